package resets

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/boostly/kudos/internal/app/system"
	"github.com/boostly/kudos/pkg/logger"
)

// DefaultSweepSchedule runs the sweep hourly. Reset eligibility is computed
// from calendar months, so running more often than monthly only costs a scan.
const DefaultSweepSchedule = "@hourly"

// Sweeper periodically runs the bulk reset sweep on a cron schedule.
type Sweeper struct {
	service  *Service
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Sweeper)(nil)

// NewSweeper builds a sweeper for the given schedule. An empty schedule
// falls back to DefaultSweepSchedule.
func NewSweeper(service *Service, schedule string, log *logger.Logger) *Sweeper {
	if log == nil {
		log = logger.NewDefault("reset-sweeper")
	}
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	return &Sweeper{service: service, schedule: schedule, log: log}
}

func (s *Sweeper) Name() string { return "reset-sweeper" }

// Start schedules the sweep. The first run happens on schedule, not at
// startup; startup sweeps belong to the operator endpoint.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		sweepCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		count, err := s.service.SweepAll(sweepCtx, time.Now().UTC())
		if err != nil {
			s.log.WithError(err).Warn("scheduled reset sweep failed")
			return
		}
		if count > 0 {
			s.log.WithField("reset_count", count).Info("scheduled reset sweep applied resets")
		}
	})
	if err != nil {
		return err
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("reset sweeper started")
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}

	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	s.cron = nil
	s.running = false
	return nil
}
