// Package metrics exposes Prometheus collectors for the recognition service.
package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the application-specific Prometheus collectors.
	Registry = prometheus.NewRegistry()

	httpInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "kudos",
			Subsystem: "http",
			Name:      "inflight_requests",
			Help:      "Current number of in-flight HTTP requests.",
		},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	httpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "kudos",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10), // 5ms to ~5s
		},
		[]string{"method", "path"},
	)

	recognitionsSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "ledger",
			Name:      "recognitions_sent_total",
			Help:      "Total number of recognitions created.",
		},
	)

	creditsTransferred = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "ledger",
			Name:      "credits_transferred_total",
			Help:      "Total credits moved from senders to receivers.",
		},
	)

	creditsRedeemed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "ledger",
			Name:      "credits_redeemed_total",
			Help:      "Total credits permanently removed by redemption.",
		},
	)

	endorsementsRecorded = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "ledger",
			Name:      "endorsements_total",
			Help:      "Total number of endorsements recorded.",
		},
	)

	resetsApplied = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kudos",
			Subsystem: "ledger",
			Name:      "resets_applied_total",
			Help:      "Total number of monthly resets applied to members.",
		},
		[]string{"mode"},
	)
)

func init() {
	Registry.MustRegister(
		httpInFlight,
		httpRequests,
		httpDuration,
		recognitionsSent,
		creditsTransferred,
		creditsRedeemed,
		endorsementsRecorded,
		resetsApplied,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler returns an HTTP handler exposing the registered Prometheus metrics.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordRecognition records a successful credit transfer.
func RecordRecognition(credits int64) {
	recognitionsSent.Inc()
	creditsTransferred.Add(float64(credits))
}

// RecordRedemption records a successful redemption.
func RecordRedemption(credits int64) {
	creditsRedeemed.Add(float64(credits))
}

// RecordEndorsement records a successful endorsement.
func RecordEndorsement() {
	endorsementsRecorded.Inc()
}

// RecordReset records an applied monthly reset. Mode is "opportunistic" or
// "sweep".
func RecordReset(mode string) {
	resetsApplied.WithLabelValues(mode).Inc()
}

// RecordHTTPRequest records request counters and latency for one request.
func RecordHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequests.WithLabelValues(strings.ToUpper(method), path, status).Inc()
	httpDuration.WithLabelValues(strings.ToUpper(method), path).Observe(duration.Seconds())
}

// InstrumentHandler wraps the provided handler with HTTP metrics collection.
func InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()

		httpInFlight.Inc()
		defer httpInFlight.Dec()

		next.ServeHTTP(rec, r)

		RecordHTTPRequest(r.Method, canonicalPath(r.URL.Path), strconv.Itoa(rec.status), time.Since(start))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

// canonicalPath collapses entity ids so metric cardinality stays bounded.
func canonicalPath(raw string) string {
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return "/"
	}
	parts := strings.Split(trimmed, "/")
	switch parts[0] {
	case "members", "recognitions", "endorsements", "redemptions":
		if len(parts) == 1 {
			return "/" + parts[0]
		}
		if len(parts) == 3 && parts[0] == "members" {
			return "/members/:id/" + parts[2]
		}
		return "/" + parts[0] + "/:id"
	default:
		return "/" + parts[0]
	}
}
