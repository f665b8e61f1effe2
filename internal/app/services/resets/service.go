// Package resets implements the monthly-cycle engine: per-member reset
// eligibility and the capped carry-forward reset, applied opportunistically
// before member-scoped operations and in bulk sweeps.
package resets

import (
	"context"
	"fmt"
	"time"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/metrics"
	"github.com/boostly/kudos/internal/app/period"
	"github.com/boostly/kudos/internal/app/storage"
	"github.com/boostly/kudos/pkg/logger"
)

// Reset application modes, used only for metric labelling.
const (
	ModeOpportunistic = "opportunistic"
	ModeSweep         = "sweep"
)

// Service applies the two-state-per-member transition {current-period,
// stale}. It holds no per-call state.
type Service struct {
	store storage.Store
	log   *logger.Logger
}

// New constructs a reset service.
func New(store storage.Store, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("resets")
	}
	return &Service{store: store, log: log}
}

// IsDue reports whether m's last reset falls in an earlier calendar month
// than now.
func IsDue(m member.Member, now time.Time) bool {
	return period.Due(m.LastResetAt, now)
}

// Transition returns the post-reset copy of m without persisting it:
// balance 100 plus capped carry-forward, limit restored, reset timestamp
// advanced to now.
func Transition(m member.Member, now time.Time) member.Member {
	carry := m.CurrentBalance
	if carry > member.MaxCarryForward {
		carry = member.MaxCarryForward
	}
	m.CurrentBalance = member.MonthlyAllowance + carry
	m.MonthlySendingLimit = member.DefaultSendingLimit
	m.LastResetAt = now
	return m
}

// MaybeReset applies the transition inside the caller's transaction when a
// reset is due. It is idempotent within a period: a second call in the same
// month is a no-op. The returned member reflects current state either way.
func (s *Service) MaybeReset(ctx context.Context, tx storage.Tx, m member.Member, now time.Time, mode string) (member.Member, bool, error) {
	if !IsDue(m, now) {
		return m, false, nil
	}

	updated, err := tx.UpdateMember(ctx, Transition(m, now))
	if err != nil {
		return member.Member{}, false, fmt.Errorf("persist reset for member %s: %w", m.ID, err)
	}

	metrics.RecordReset(mode)
	s.log.WithField("member_id", m.ID).
		WithField("period", period.FromTime(now).String()).
		WithField("balance", updated.CurrentBalance).
		Info("monthly reset applied")
	return updated, true, nil
}

// SweepAll scans every member and resets each eligible one. Safe to run
// redundantly and concurrently with per-member resets; already-reset members
// are skipped.
func (s *Service) SweepAll(ctx context.Context, now time.Time) (int, error) {
	var count int
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		count = 0
		members, err := tx.ListMembers(ctx)
		if err != nil {
			return err
		}
		for _, m := range members {
			_, applied, err := s.MaybeReset(ctx, tx, m, now, ModeSweep)
			if err != nil {
				return err
			}
			if applied {
				count++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	if count > 0 {
		s.log.WithField("reset_count", count).
			WithField("period", period.FromTime(now).String()).
			Info("bulk reset sweep completed")
	}
	return count, nil
}
