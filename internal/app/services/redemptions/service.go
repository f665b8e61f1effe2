// Package redemptions converts banked credits into monetary vouchers.
package redemptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boostly/kudos/internal/app/domain/redemption"
	"github.com/boostly/kudos/internal/app/metrics"
	"github.com/boostly/kudos/internal/app/services/members"
	"github.com/boostly/kudos/internal/app/services/resets"
	"github.com/boostly/kudos/internal/app/storage"
	"github.com/boostly/kudos/pkg/logger"
)

var (
	ErrRedemptionNotFound  = errors.New("redemption not found")
	ErrNonPositiveCredits  = errors.New("credits to redeem must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Service applies redemptions. Redeemed credits are debited permanently;
// vouchers are external to the ledger and carry no reversal path.
type Service struct {
	store  storage.Store
	resets *resets.Service
	log    *logger.Logger
}

// New constructs a redemption service.
func New(store storage.Store, resetSvc *resets.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("redemptions")
	}
	return &Service{store: store, resets: resetSvc, log: log}
}

// Redeem converts credits into a voucher at the fixed rate and debits the
// member inside one transaction.
func (s *Service) Redeem(ctx context.Context, memberID string, credits int64, now time.Time) (redemption.Redemption, error) {
	var created redemption.Redemption
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		m, err := tx.GetMember(ctx, memberID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return members.ErrNotFound
			}
			return err
		}

		m, _, err = s.resets.MaybeReset(ctx, tx, m, now, resets.ModeOpportunistic)
		if err != nil {
			return err
		}

		if credits <= 0 {
			return ErrNonPositiveCredits
		}
		if credits > m.CurrentBalance {
			return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientBalance, m.CurrentBalance, credits)
		}

		created, err = tx.CreateRedemption(ctx, redemption.Redemption{
			MemberID:        memberID,
			CreditsRedeemed: credits,
			VoucherAmount:   credits * redemption.VoucherRate,
			CreatedAt:       now,
		})
		if err != nil {
			return err
		}

		m.CurrentBalance -= credits
		_, err = tx.UpdateMember(ctx, m)
		return err
	})
	if err != nil {
		return redemption.Redemption{}, err
	}

	metrics.RecordRedemption(credits)
	s.log.WithField("redemption_id", created.ID).
		WithField("member_id", memberID).
		WithField("credits", credits).
		WithField("voucher_amount", created.VoucherAmount).
		Info("credits redeemed")
	return created, nil
}

// Get fetches one redemption by id.
func (s *Service) Get(ctx context.Context, id string) (redemption.Redemption, error) {
	var result redemption.Redemption
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		r, err := tx.GetRedemption(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrRedemptionNotFound
			}
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return redemption.Redemption{}, err
	}
	return result, nil
}

// ListForMember returns a member's redemption history, oldest first.
func (s *Service) ListForMember(ctx context.Context, memberID string) ([]redemption.Redemption, error) {
	var result []redemption.Redemption
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetMember(ctx, memberID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return members.ErrNotFound
			}
			return err
		}
		var err error
		result, err = tx.ListRedemptions(ctx, memberID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}
