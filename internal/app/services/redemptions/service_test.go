package redemptions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/services/members"
	"github.com/boostly/kudos/internal/app/services/resets"
	"github.com/boostly/kudos/internal/app/storage"
)

func newService() (*Service, *storage.Memory) {
	store := storage.NewMemory()
	return New(store, resets.New(store, nil), nil), store
}

func seedMember(t *testing.T, store *storage.Memory, balance int64, lastReset time.Time) member.Member {
	t.Helper()

	var seeded member.Member
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		m, err := tx.CreateMember(context.Background(), member.Member{
			Name:                "test",
			Email:               "test@example.com",
			CurrentBalance:      balance,
			MonthlySendingLimit: member.DefaultSendingLimit,
			LastResetAt:         lastReset,
		})
		seeded = m
		return err
	})
	if err != nil {
		t.Fatalf("seed member: %v", err)
	}
	return seeded
}

func memberBalance(t *testing.T, store *storage.Memory, id string) int64 {
	t.Helper()

	var balance int64
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		m, err := tx.GetMember(context.Background(), id)
		balance = m.CurrentBalance
		return err
	})
	if err != nil {
		t.Fatalf("get member: %v", err)
	}
	return balance
}

func TestRedeem(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	m := seedMember(t, store, 100, now)

	red, err := svc.Redeem(context.Background(), m.ID, 20, now)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if red.CreditsRedeemed != 20 {
		t.Fatalf("credits redeemed = %d, want 20", red.CreditsRedeemed)
	}
	if red.VoucherAmount != 100 {
		t.Fatalf("voucher amount = %d, want 100", red.VoucherAmount)
	}
	if got := memberBalance(t, store, m.ID); got != 80 {
		t.Fatalf("balance = %d, want 80", got)
	}
}

func TestRedeemFullBalance(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	m := seedMember(t, store, 100, now)

	if _, err := svc.Redeem(context.Background(), m.ID, 100, now); err != nil {
		t.Fatalf("redeem full balance: %v", err)
	}
	if got := memberBalance(t, store, m.ID); got != 0 {
		t.Fatalf("balance = %d, want 0", got)
	}
}

func TestRedeemRejections(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	m := seedMember(t, store, 40, now)

	if _, err := svc.Redeem(context.Background(), "missing", 10, now); !errors.Is(err, members.ErrNotFound) {
		t.Fatalf("expected members.ErrNotFound, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), m.ID, 0, now); !errors.Is(err, ErrNonPositiveCredits) {
		t.Fatalf("expected ErrNonPositiveCredits, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), m.ID, -3, now); !errors.Is(err, ErrNonPositiveCredits) {
		t.Fatalf("expected ErrNonPositiveCredits, got %v", err)
	}
	if _, err := svc.Redeem(context.Background(), m.ID, 41, now); !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got := memberBalance(t, store, m.ID); got != 40 {
		t.Fatalf("balance changed to %d", got)
	}
}

func TestRedeemAppliesReset(t *testing.T) {
	svc, store := newService()
	march := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC)
	// Drained in March. A redemption after the month turn sees the fresh
	// allowance plus carry.
	m := seedMember(t, store, 10, march)

	if _, err := svc.Redeem(context.Background(), m.ID, 105, april); err != nil {
		t.Fatalf("redeem after month turn: %v", err)
	}
	if got := memberBalance(t, store, m.ID); got != 5 {
		t.Fatalf("balance = %d, want 5", got)
	}
}

func TestGetAndListForMember(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	m := seedMember(t, store, 100, now)

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrRedemptionNotFound) {
		t.Fatalf("expected ErrRedemptionNotFound, got %v", err)
	}
	if _, err := svc.ListForMember(context.Background(), "missing"); !errors.Is(err, members.ErrNotFound) {
		t.Fatalf("expected members.ErrNotFound, got %v", err)
	}

	first, err := svc.Redeem(context.Background(), m.ID, 10, now)
	if err != nil {
		t.Fatalf("redeem: %v", err)
	}
	if _, err := svc.Redeem(context.Background(), m.ID, 15, now); err != nil {
		t.Fatalf("redeem: %v", err)
	}

	got, err := svc.Get(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != first.ID || got.VoucherAmount != 50 {
		t.Fatalf("unexpected redemption: %+v", got)
	}

	all, err := svc.ListForMember(context.Background(), m.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 redemptions, got %d", len(all))
	}
}
