// Package members manages member registration and retrieval.
package members

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/services/resets"
	"github.com/boostly/kudos/internal/app/storage"
	"github.com/boostly/kudos/pkg/logger"
)

var (
	// ErrNotFound reports an unknown member id.
	ErrNotFound = errors.New("member not found")
	// ErrEmailTaken reports a registration against an already-used email.
	ErrEmailTaken = errors.New("email already registered")
)

// Service manages member records. Reads apply the opportunistic monthly
// reset before returning state.
type Service struct {
	store  storage.Store
	resets *resets.Service
	log    *logger.Logger
}

// New constructs a member service.
func New(store storage.Store, resetSvc *resets.Service, log *logger.Logger) *Service {
	if log == nil {
		log = logger.NewDefault("members")
	}
	return &Service{store: store, resets: resetSvc, log: log}
}

// Register creates a member with the initial allowance.
func (s *Service) Register(ctx context.Context, name, email string, now time.Time) (member.Member, error) {
	name = strings.TrimSpace(name)
	email = strings.ToLower(strings.TrimSpace(email))
	if name == "" {
		return member.Member{}, fmt.Errorf("name is required")
	}
	if email == "" {
		return member.Member{}, fmt.Errorf("email is required")
	}

	var created member.Member
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		if _, err := tx.GetMemberByEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, storage.ErrNotFound) {
			return err
		}

		var err error
		created, err = tx.CreateMember(ctx, member.Member{
			Name:                name,
			Email:               email,
			CurrentBalance:      member.InitialBalance,
			MonthlySendingLimit: member.DefaultSendingLimit,
			LastResetAt:         now,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			return member.Member{}, ErrEmailTaken
		}
		return member.Member{}, err
	}

	s.log.WithField("member_id", created.ID).Info("member registered")
	return created, nil
}

// Get fetches a member, applying the monthly reset first when one is due.
func (s *Service) Get(ctx context.Context, id string, now time.Time) (member.Member, error) {
	var result member.Member
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		m, err := tx.GetMember(ctx, id)
		if err != nil {
			return err
		}
		result, _, err = s.resets.MaybeReset(ctx, tx, m, now, resets.ModeOpportunistic)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return member.Member{}, ErrNotFound
		}
		return member.Member{}, err
	}
	return result, nil
}

// List returns all members without touching reset state; stale rows are
// normalised on their next member-scoped operation or by the sweep.
func (s *Service) List(ctx context.Context) ([]member.Member, error) {
	var result []member.Member
	err := s.store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		result, err = tx.ListMembers(ctx)
		return err
	})
	return result, err
}
