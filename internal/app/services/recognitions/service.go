// Package recognitions implements the credit-transfer engine and the
// endorsement engine.
package recognitions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boostly/kudos/internal/app/domain/recognition"
	"github.com/boostly/kudos/internal/app/metrics"
	"github.com/boostly/kudos/internal/app/period"
	"github.com/boostly/kudos/internal/app/services/resets"
	"github.com/boostly/kudos/internal/app/storage"
	"github.com/boostly/kudos/pkg/logger"
)

var (
	ErrSenderNotFound      = errors.New("sender not found")
	ErrReceiverNotFound    = errors.New("receiver not found")
	ErrRecognitionNotFound = errors.New("recognition not found")
	ErrEndorserNotFound    = errors.New("endorser not found")
	ErrEndorsementNotFound = errors.New("endorsement not found")
	ErrSelfRecognition     = errors.New("members cannot send credits to themselves")
	ErrNonPositiveCredits  = errors.New("credits must be greater than zero")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrLimitExceeded       = errors.New("monthly sending limit exceeded")
	ErrAlreadyEndorsed     = errors.New("recognition already endorsed by this member")
)

// Service validates and applies credit transfers and endorsements. Every
// operation runs its full check-then-mutate sequence inside one store
// transaction; a rejected precondition mutates nothing.
type Service struct {
	store  storage.Store
	resets *resets.Service
	log    *logger.Logger
}

// New constructs a recognition service.
func New(store storage.Store, resetSvc *resets.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("recognitions")
	}
	return &Service{store: store, resets: resetSvc, log: log}
}

// Send transfers credits from sender to receiver. Preconditions are checked
// in order and the first failure wins; the created recognition freezes the
// period key active at `now` for limit accounting.
func (s *Service) Send(ctx context.Context, senderID, receiverID string, credits int64, message string, now time.Time) (recognition.WithCount, error) {
	if credits <= 0 {
		return recognition.WithCount{}, ErrNonPositiveCredits
	}
	message = strings.TrimSpace(message)

	var created recognition.Recognition
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		sender, err := tx.GetMember(ctx, senderID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrSenderNotFound
			}
			return err
		}

		sender, _, err = s.resets.MaybeReset(ctx, tx, sender, now, resets.ModeOpportunistic)
		if err != nil {
			return err
		}

		if _, err := tx.GetMember(ctx, receiverID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrReceiverNotFound
			}
			return err
		}

		if senderID == receiverID {
			return ErrSelfRecognition
		}

		if credits > sender.CurrentBalance {
			return fmt.Errorf("%w: balance %d, requested %d", ErrInsufficientBalance, sender.CurrentBalance, credits)
		}

		key := period.FromTime(now)
		sent, err := tx.SumSentCredits(ctx, senderID, key)
		if err != nil {
			return err
		}
		if sent+credits > sender.MonthlySendingLimit {
			return fmt.Errorf("%w: limit %d, already sent %d, requested %d", ErrLimitExceeded, sender.MonthlySendingLimit, sent, credits)
		}

		created, err = tx.CreateRecognition(ctx, recognition.Recognition{
			SenderID:   senderID,
			ReceiverID: receiverID,
			Credits:    credits,
			Message:    message,
			PeriodKey:  key,
			CreatedAt:  now,
		})
		if err != nil {
			return err
		}

		sender.CurrentBalance -= credits
		if _, err := tx.UpdateMember(ctx, sender); err != nil {
			return err
		}

		// Receiver is re-read inside the same transaction so the credit
		// lands on current state.
		receiver, err := tx.GetMember(ctx, receiverID)
		if err != nil {
			return err
		}
		receiver.CurrentBalance += credits
		_, err = tx.UpdateMember(ctx, receiver)
		return err
	})
	if err != nil {
		return recognition.WithCount{}, err
	}

	metrics.RecordRecognition(credits)
	s.log.WithField("recognition_id", created.ID).
		WithField("sender_id", senderID).
		WithField("receiver_id", receiverID).
		WithField("credits", credits).
		Info("recognition sent")
	return recognition.WithCount{Recognition: created, EndorsementCount: 0}, nil
}

// Get fetches a recognition with its endorsement count.
func (s *Service) Get(ctx context.Context, id string) (recognition.WithCount, error) {
	var result recognition.WithCount
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		rec, err := tx.GetRecognition(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrRecognitionNotFound
			}
			return err
		}
		count, err := tx.CountEndorsements(ctx, id)
		if err != nil {
			return err
		}
		result = recognition.WithCount{Recognition: rec, EndorsementCount: count}
		return nil
	})
	if err != nil {
		return recognition.WithCount{}, err
	}
	return result, nil
}

// List returns every recognition with endorsement counts, oldest first.
func (s *Service) List(ctx context.Context) ([]recognition.WithCount, error) {
	var result []recognition.WithCount
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		recs, err := tx.ListRecognitions(ctx)
		if err != nil {
			return err
		}
		result = make([]recognition.WithCount, 0, len(recs))
		for _, rec := range recs {
			count, err := tx.CountEndorsements(ctx, rec.ID)
			if err != nil {
				return err
			}
			result = append(result, recognition.WithCount{Recognition: rec, EndorsementCount: count})
		}
		return nil
	})
	return result, err
}

// Endorse records a one-per-member endorsement on a recognition. Endorsing
// one's own recognition is allowed.
func (s *Service) Endorse(ctx context.Context, endorserID, recognitionID string, now time.Time) (recognition.Endorsement, error) {
	var created recognition.Endorsement
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetMember(ctx, endorserID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrEndorserNotFound
			}
			return err
		}
		if _, err := tx.GetRecognition(ctx, recognitionID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrRecognitionNotFound
			}
			return err
		}

		exists, err := tx.HasEndorsement(ctx, recognitionID, endorserID)
		if err != nil {
			return err
		}
		if exists {
			return ErrAlreadyEndorsed
		}

		created, err = tx.CreateEndorsement(ctx, recognition.Endorsement{
			RecognitionID: recognitionID,
			EndorserID:    endorserID,
			CreatedAt:     now,
		})
		if errors.Is(err, storage.ErrDuplicate) {
			// Unique-pair constraint backstop.
			return ErrAlreadyEndorsed
		}
		return err
	})
	if err != nil {
		return recognition.Endorsement{}, err
	}

	metrics.RecordEndorsement()
	s.log.WithField("endorsement_id", created.ID).
		WithField("recognition_id", recognitionID).
		WithField("endorser_id", endorserID).
		Info("endorsement recorded")
	return created, nil
}

// GetEndorsement fetches one endorsement by id.
func (s *Service) GetEndorsement(ctx context.Context, id string) (recognition.Endorsement, error) {
	var result recognition.Endorsement
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		e, err := tx.GetEndorsement(ctx, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return ErrEndorsementNotFound
			}
			return err
		}
		result = e
		return nil
	})
	if err != nil {
		return recognition.Endorsement{}, err
	}
	return result, nil
}
