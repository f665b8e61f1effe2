package resets

import (
	"context"
	"testing"
	"time"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/storage"
)

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

func TestTransitionCarryForward(t *testing.T) {
	now := time.Date(2024, time.April, 1, 9, 0, 0, 0, time.UTC)

	cases := []struct {
		name        string
		balance     int64
		wantBalance int64
	}{
		{name: "partial carry", balance: 40, wantBalance: 140},
		{name: "carry capped at 50", balance: 90, wantBalance: 150},
		{name: "zero balance", balance: 0, wantBalance: 100},
		{name: "exactly at cap", balance: 50, wantBalance: 150},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := member.Member{CurrentBalance: tc.balance, MonthlySendingLimit: 10}
			got := Transition(m, now)
			if got.CurrentBalance != tc.wantBalance {
				t.Fatalf("balance = %d, want %d", got.CurrentBalance, tc.wantBalance)
			}
			if got.MonthlySendingLimit != member.DefaultSendingLimit {
				t.Fatalf("limit = %d, want %d", got.MonthlySendingLimit, member.DefaultSendingLimit)
			}
			if !got.LastResetAt.Equal(now) {
				t.Fatalf("last reset not advanced: %s", got.LastResetAt)
			}
		})
	}
}

func TestMaybeResetIdempotentWithinPeriod(t *testing.T) {
	store := storage.NewMemory()
	svc := New(store, nil)
	ctx := context.Background()

	march := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC)
	m := seedMember(t, store, 30, march)

	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		first, applied, err := svc.MaybeReset(ctx, tx, m, april, ModeOpportunistic)
		if err != nil {
			return err
		}
		if !applied {
			t.Fatal("first call should apply the reset")
		}
		if first.CurrentBalance != 130 {
			t.Fatalf("balance = %d, want 130", first.CurrentBalance)
		}

		second, applied, err := svc.MaybeReset(ctx, tx, first, april.Add(24*time.Hour), ModeOpportunistic)
		if err != nil {
			return err
		}
		if applied {
			t.Fatal("second call in the same period must be a no-op")
		}
		if second.CurrentBalance != 130 {
			t.Fatalf("balance changed on redundant reset: %d", second.CurrentBalance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestMaybeResetNotDueSameMonth(t *testing.T) {
	store := storage.NewMemory()
	svc := New(store, nil)
	ctx := context.Background()

	start := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	m := seedMember(t, store, 70, start)

	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		got, applied, err := svc.MaybeReset(ctx, tx, m, start.AddDate(0, 0, 30), ModeOpportunistic)
		if err != nil {
			return err
		}
		if applied {
			t.Fatal("reset must not apply within the same calendar month")
		}
		if got.CurrentBalance != 70 {
			t.Fatalf("balance mutated: %d", got.CurrentBalance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("tx: %v", err)
	}
}

func TestSweepAllResetsOnlyEligible(t *testing.T) {
	store := storage.NewMemory()
	svc := New(store, nil)
	ctx := context.Background()

	march := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)

	var stale, fresh member.Member
	err := store.WithinTx(ctx, func(tx storage.Tx) error {
		var err error
		stale, err = tx.CreateMember(ctx, member.Member{Name: "stale", Email: "stale@x", CurrentBalance: 80, MonthlySendingLimit: 100, LastResetAt: march})
		if err != nil {
			return err
		}
		fresh, err = tx.CreateMember(ctx, member.Member{Name: "fresh", Email: "fresh@x", CurrentBalance: 120, MonthlySendingLimit: 100, LastResetAt: april})
		return err
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	count, err := svc.SweepAll(ctx, april)
	if err != nil {
		t.Fatalf("sweep: %v", err)
	}
	if count != 1 {
		t.Fatalf("reset count = %d, want 1", count)
	}

	err = store.WithinTx(ctx, func(tx storage.Tx) error {
		got, err := tx.GetMember(ctx, stale.ID)
		if err != nil {
			return err
		}
		if got.CurrentBalance != 150 {
			t.Fatalf("stale member balance = %d, want 150 (carry capped)", got.CurrentBalance)
		}
		got, err = tx.GetMember(ctx, fresh.ID)
		if err != nil {
			return err
		}
		if got.CurrentBalance != 120 {
			t.Fatalf("fresh member mutated: %d", got.CurrentBalance)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	// Redundant sweep in the same period changes nothing.
	count, err = svc.SweepAll(ctx, april.AddDate(0, 0, 5))
	if err != nil {
		t.Fatalf("second sweep: %v", err)
	}
	if count != 0 {
		t.Fatalf("second sweep reset %d members, want 0", count)
	}
}
