// Package httpapi exposes the application services over REST. Handlers are
// thin: decode, call the service, map sentinel errors to status codes.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	app "github.com/boostly/kudos/internal/app"
	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/domain/recognition"
	"github.com/boostly/kudos/internal/app/domain/redemption"
	"github.com/boostly/kudos/internal/app/metrics"
	"github.com/boostly/kudos/internal/app/services/members"
	"github.com/boostly/kudos/internal/app/services/recognitions"
	"github.com/boostly/kudos/internal/app/services/redemptions"
	"github.com/boostly/kudos/internal/app/storage"
)

// handler bundles HTTP endpoints for the application services.
type handler struct {
	app *app.Application

	// now is swappable in tests.
	now func() time.Time
}

// NewHandler returns a router exposing the REST API, the health endpoint
// and the Prometheus metrics endpoint.
func NewHandler(application *app.Application) http.Handler {
	h := &handler{app: application, now: func() time.Time { return time.Now().UTC() }}

	r := mux.NewRouter()
	r.HandleFunc("/members", h.registerMember).Methods(http.MethodPost)
	r.HandleFunc("/members", h.listMembers).Methods(http.MethodGet)
	r.HandleFunc("/members/{id}", h.getMember).Methods(http.MethodGet)
	r.HandleFunc("/members/{id}/redemptions", h.listMemberRedemptions).Methods(http.MethodGet)

	r.HandleFunc("/recognitions", h.sendRecognition).Methods(http.MethodPost)
	r.HandleFunc("/recognitions", h.listRecognitions).Methods(http.MethodGet)
	r.HandleFunc("/recognitions/{id}", h.getRecognition).Methods(http.MethodGet)

	r.HandleFunc("/endorsements", h.endorse).Methods(http.MethodPost)
	r.HandleFunc("/endorsements/{id}", h.getEndorsement).Methods(http.MethodGet)

	r.HandleFunc("/redemptions", h.redeem).Methods(http.MethodPost)
	r.HandleFunc("/redemptions/{id}", h.getRedemption).Methods(http.MethodGet)

	r.HandleFunc("/leaderboard", h.leaderboard).Methods(http.MethodGet)
	r.HandleFunc("/credits/reset", h.sweepResets).Methods(http.MethodPost)

	r.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	return metrics.InstrumentHandler(r)
}

type memberResponse struct {
	ID                  string    `json:"id"`
	Name                string    `json:"name"`
	Email               string    `json:"email"`
	CurrentBalance      int64     `json:"current_balance"`
	MonthlySendingLimit int64     `json:"monthly_sending_limit"`
	LastResetAt         time.Time `json:"last_reset_at"`
	CreatedAt           time.Time `json:"created_at"`
	UpdatedAt           time.Time `json:"updated_at"`
}

func toMemberResponse(m member.Member) memberResponse {
	return memberResponse{
		ID:                  m.ID,
		Name:                m.Name,
		Email:               m.Email,
		CurrentBalance:      m.CurrentBalance,
		MonthlySendingLimit: m.MonthlySendingLimit,
		LastResetAt:         m.LastResetAt,
		CreatedAt:           m.CreatedAt,
		UpdatedAt:           m.UpdatedAt,
	}
}

type recognitionResponse struct {
	ID               string    `json:"id"`
	SenderID         string    `json:"sender_id"`
	ReceiverID       string    `json:"receiver_id"`
	Credits          int64     `json:"credits"`
	Message          string    `json:"message,omitempty"`
	PeriodKey        string    `json:"period_key"`
	EndorsementCount int64     `json:"endorsement_count"`
	CreatedAt        time.Time `json:"created_at"`
}

func toRecognitionResponse(rec recognition.WithCount) recognitionResponse {
	return recognitionResponse{
		ID:               rec.ID,
		SenderID:         rec.SenderID,
		ReceiverID:       rec.ReceiverID,
		Credits:          rec.Credits,
		Message:          rec.Message,
		PeriodKey:        string(rec.PeriodKey),
		EndorsementCount: rec.EndorsementCount,
		CreatedAt:        rec.CreatedAt,
	}
}

type endorsementResponse struct {
	ID            string    `json:"id"`
	RecognitionID string    `json:"recognition_id"`
	EndorserID    string    `json:"endorser_id"`
	CreatedAt     time.Time `json:"created_at"`
}

func toEndorsementResponse(e recognition.Endorsement) endorsementResponse {
	return endorsementResponse{
		ID:            e.ID,
		RecognitionID: e.RecognitionID,
		EndorserID:    e.EndorserID,
		CreatedAt:     e.CreatedAt,
	}
}

type redemptionResponse struct {
	ID              string    `json:"id"`
	MemberID        string    `json:"member_id"`
	CreditsRedeemed int64     `json:"credits_redeemed"`
	VoucherAmount   int64     `json:"voucher_amount"`
	CreatedAt       time.Time `json:"created_at"`
}

func toRedemptionResponse(red redemption.Redemption) redemptionResponse {
	return redemptionResponse{
		ID:              red.ID,
		MemberID:        red.MemberID,
		CreditsRedeemed: red.CreditsRedeemed,
		VoucherAmount:   red.VoucherAmount,
		CreatedAt:       red.CreatedAt,
	}
}

type leaderboardEntryResponse struct {
	MemberID                  string `json:"member_id"`
	MemberName                string `json:"member_name"`
	TotalCreditsReceived      int64  `json:"total_credits_received"`
	TotalRecognitionsReceived int64  `json:"total_recognitions_received"`
	TotalEndorsementsReceived int64  `json:"total_endorsements_received"`
}

func (h *handler) registerMember(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	m, err := h.app.Members.Register(r.Context(), payload.Name, payload.Email, h.now())
	if err != nil {
		// Registration failures other than the email conflict are caller
		// mistakes.
		if errors.Is(err, members.ErrEmailTaken) {
			writeError(w, http.StatusConflict, err)
		} else {
			writeError(w, http.StatusBadRequest, err)
		}
		return
	}
	writeJSON(w, http.StatusCreated, toMemberResponse(m))
}

func (h *handler) getMember(w http.ResponseWriter, r *http.Request) {
	m, err := h.app.Members.Get(r.Context(), mux.Vars(r)["id"], h.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberResponse(m))
}

func (h *handler) listMembers(w http.ResponseWriter, r *http.Request) {
	all, err := h.app.Members.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]memberResponse, 0, len(all))
	for _, m := range all {
		out = append(out, toMemberResponse(m))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) sendRecognition(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		SenderID   string `json:"sender_id"`
		ReceiverID string `json:"receiver_id"`
		Credits    int64  `json:"credits"`
		Message    string `json:"message"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rec, err := h.app.Recognitions.Send(r.Context(), payload.SenderID, payload.ReceiverID, payload.Credits, payload.Message, h.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRecognitionResponse(rec))
}

func (h *handler) getRecognition(w http.ResponseWriter, r *http.Request) {
	rec, err := h.app.Recognitions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRecognitionResponse(rec))
}

func (h *handler) listRecognitions(w http.ResponseWriter, r *http.Request) {
	all, err := h.app.Recognitions.List(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]recognitionResponse, 0, len(all))
	for _, rec := range all {
		out = append(out, toRecognitionResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) endorse(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		EndorserID    string `json:"endorser_id"`
		RecognitionID string `json:"recognition_id"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	end, err := h.app.Recognitions.Endorse(r.Context(), payload.EndorserID, payload.RecognitionID, h.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEndorsementResponse(end))
}

func (h *handler) getEndorsement(w http.ResponseWriter, r *http.Request) {
	end, err := h.app.Recognitions.GetEndorsement(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEndorsementResponse(end))
}

func (h *handler) redeem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		MemberID string `json:"member_id"`
		Credits  int64  `json:"credits"`
	}
	if err := decodeJSON(r.Body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	red, err := h.app.Redemptions.Redeem(r.Context(), payload.MemberID, payload.Credits, h.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toRedemptionResponse(red))
}

func (h *handler) getRedemption(w http.ResponseWriter, r *http.Request) {
	red, err := h.app.Redemptions.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRedemptionResponse(red))
}

func (h *handler) listMemberRedemptions(w http.ResponseWriter, r *http.Request) {
	all, err := h.app.Redemptions.ListForMember(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]redemptionResponse, 0, len(all))
	for _, red := range all {
		out = append(out, toRedemptionResponse(red))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) leaderboard(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, errors.New("limit must be an integer"))
			return
		}
		limit = parsed
	}

	entries, err := h.app.Leaderboard.Top(r.Context(), limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	out := make([]leaderboardEntryResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, leaderboardEntryResponse(e))
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *handler) sweepResets(w http.ResponseWriter, r *http.Request) {
	count, err := h.app.Resets.SweepAll(r.Context(), h.now())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"members_reset": count})
}

func (h *handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeServiceError maps service sentinels onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, members.ErrNotFound),
		errors.Is(err, recognitions.ErrSenderNotFound),
		errors.Is(err, recognitions.ErrReceiverNotFound),
		errors.Is(err, recognitions.ErrRecognitionNotFound),
		errors.Is(err, recognitions.ErrEndorserNotFound),
		errors.Is(err, recognitions.ErrEndorsementNotFound),
		errors.Is(err, redemptions.ErrRedemptionNotFound),
		errors.Is(err, storage.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, members.ErrEmailTaken),
		errors.Is(err, recognitions.ErrAlreadyEndorsed):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, recognitions.ErrSelfRecognition),
		errors.Is(err, recognitions.ErrNonPositiveCredits),
		errors.Is(err, recognitions.ErrInsufficientBalance),
		errors.Is(err, recognitions.ErrLimitExceeded),
		errors.Is(err, redemptions.ErrNonPositiveCredits),
		errors.Is(err, redemptions.ErrInsufficientBalance):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
