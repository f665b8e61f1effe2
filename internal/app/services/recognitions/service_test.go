package recognitions

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/services/resets"
	"github.com/boostly/kudos/internal/app/storage"
)

func newService() (*Service, *storage.Memory) {
	store := storage.NewMemory()
	return New(store, resets.New(store, nil), nil), store
}

func seedMember(t *testing.T, store *storage.Memory, email string, balance int64, lastReset time.Time) member.Member {
	t.Helper()

	var seeded member.Member
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		m, err := tx.CreateMember(context.Background(), member.Member{
			Name:                email,
			Email:               email,
			CurrentBalance:      balance,
			MonthlySendingLimit: member.DefaultSendingLimit,
			LastResetAt:         lastReset,
		})
		seeded = m
		return err
	})
	if err != nil {
		t.Fatalf("seed member %s: %v", email, err)
	}
	return seeded
}

func getMember(t *testing.T, store *storage.Memory, id string) member.Member {
	t.Helper()

	var got member.Member
	err := store.WithinTx(context.Background(), func(tx storage.Tx) error {
		m, err := tx.GetMember(context.Background(), id)
		got = m
		return err
	})
	if err != nil {
		t.Fatalf("get member %s: %v", id, err)
	}
	return got
}

func TestSendTransfersCredits(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	a := seedMember(t, store, "a@example.com", 100, now)
	b := seedMember(t, store, "b@example.com", 100, now)

	rec, err := svc.Send(context.Background(), a.ID, b.ID, 30, "great incident response", now)
	if err != nil {
		t.Fatalf("send: %v", err)
	}
	if rec.Credits != 30 || rec.SenderID != a.ID || rec.ReceiverID != b.ID {
		t.Fatalf("unexpected recognition: %+v", rec)
	}
	if got := string(rec.PeriodKey); got != "2024-06" {
		t.Fatalf("period key = %q, want 2024-06", got)
	}
	if rec.EndorsementCount != 0 {
		t.Fatalf("new recognition has %d endorsements", rec.EndorsementCount)
	}

	if bal := getMember(t, store, a.ID).CurrentBalance; bal != 70 {
		t.Fatalf("sender balance = %d, want 70", bal)
	}
	if bal := getMember(t, store, b.ID).CurrentBalance; bal != 130 {
		t.Fatalf("receiver balance = %d, want 130", bal)
	}
}

func TestSendEnforcesMonthlyLimit(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	// Inflated balance so only the sending limit can trip.
	a := seedMember(t, store, "a@example.com", 500, now)
	b := seedMember(t, store, "b@example.com", 100, now)

	if _, err := svc.Send(context.Background(), a.ID, b.ID, 30, "", now); err != nil {
		t.Fatalf("first send: %v", err)
	}
	_, err := svc.Send(context.Background(), a.ID, b.ID, 80, "", now)
	if !errors.Is(err, ErrLimitExceeded) {
		t.Fatalf("expected ErrLimitExceeded, got %v", err)
	}
	// 30 + 70 stays within the limit of 100.
	if _, err := svc.Send(context.Background(), a.ID, b.ID, 70, "", now); err != nil {
		t.Fatalf("boundary send: %v", err)
	}
}

func TestSendLimitResetsNextMonth(t *testing.T) {
	svc, store := newService()
	june := time.Date(2024, time.June, 28, 0, 0, 0, 0, time.UTC)
	july := time.Date(2024, time.July, 1, 0, 0, 0, 0, time.UTC)
	a := seedMember(t, store, "a@example.com", 500, june)
	b := seedMember(t, store, "b@example.com", 100, june)

	if _, err := svc.Send(context.Background(), a.ID, b.ID, 100, "", june); err != nil {
		t.Fatalf("june send: %v", err)
	}
	// A new period starts a fresh tally.
	rec, err := svc.Send(context.Background(), a.ID, b.ID, 100, "", july)
	if err != nil {
		t.Fatalf("july send: %v", err)
	}
	if got := string(rec.PeriodKey); got != "2024-07" {
		t.Fatalf("period key = %q, want 2024-07", got)
	}
}

func TestSendAppliesSenderReset(t *testing.T) {
	svc, store := newService()
	march := time.Date(2024, time.March, 20, 0, 0, 0, 0, time.UTC)
	april := time.Date(2024, time.April, 2, 0, 0, 0, 0, time.UTC)
	// Drained in March. Without the reset this send would fail.
	a := seedMember(t, store, "a@example.com", 5, march)
	b := seedMember(t, store, "b@example.com", 100, march)

	if _, err := svc.Send(context.Background(), a.ID, b.ID, 50, "", april); err != nil {
		t.Fatalf("send after month turn: %v", err)
	}
	// 100 + carry of 5, minus the 50 sent.
	if bal := getMember(t, store, a.ID).CurrentBalance; bal != 55 {
		t.Fatalf("sender balance = %d, want 55", bal)
	}
}

func TestSendRejections(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	a := seedMember(t, store, "a@example.com", 40, now)
	b := seedMember(t, store, "b@example.com", 100, now)

	cases := []struct {
		name     string
		sender   string
		receiver string
		credits  int64
		want     error
	}{
		{"zero credits", a.ID, b.ID, 0, ErrNonPositiveCredits},
		{"negative credits", a.ID, b.ID, -5, ErrNonPositiveCredits},
		{"unknown sender", "missing", b.ID, 10, ErrSenderNotFound},
		{"unknown receiver", a.ID, "missing", 10, ErrReceiverNotFound},
		{"self send", a.ID, a.ID, 10, ErrSelfRecognition},
		{"insufficient balance", a.ID, b.ID, 41, ErrInsufficientBalance},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Send(context.Background(), tc.sender, tc.receiver, tc.credits, "", now)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}

	// Nothing above moved any credits.
	if bal := getMember(t, store, a.ID).CurrentBalance; bal != 40 {
		t.Fatalf("sender balance changed to %d", bal)
	}
	if bal := getMember(t, store, b.ID).CurrentBalance; bal != 100 {
		t.Fatalf("receiver balance changed to %d", bal)
	}
}

func TestSendConservesCredits(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	a := seedMember(t, store, "a@example.com", 100, now)
	b := seedMember(t, store, "b@example.com", 100, now)
	c := seedMember(t, store, "c@example.com", 100, now)

	sends := []struct {
		from, to string
		credits  int64
	}{
		{a.ID, b.ID, 25},
		{b.ID, c.ID, 40},
		{c.ID, a.ID, 10},
	}
	for _, s := range sends {
		if _, err := svc.Send(context.Background(), s.from, s.to, s.credits, "", now); err != nil {
			t.Fatalf("send %s -> %s: %v", s.from, s.to, err)
		}
	}

	total := getMember(t, store, a.ID).CurrentBalance +
		getMember(t, store, b.ID).CurrentBalance +
		getMember(t, store, c.ID).CurrentBalance
	if total != 300 {
		t.Fatalf("total balance = %d, want 300", total)
	}
}

func TestEndorse(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	a := seedMember(t, store, "a@example.com", 100, now)
	b := seedMember(t, store, "b@example.com", 100, now)
	c := seedMember(t, store, "c@example.com", 100, now)

	rec, err := svc.Send(context.Background(), a.ID, b.ID, 10, "", now)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	end, err := svc.Endorse(context.Background(), c.ID, rec.ID, now)
	if err != nil {
		t.Fatalf("endorse: %v", err)
	}
	if end.RecognitionID != rec.ID || end.EndorserID != c.ID {
		t.Fatalf("unexpected endorsement: %+v", end)
	}

	// Endorsing spends no credits.
	if bal := getMember(t, store, c.ID).CurrentBalance; bal != 100 {
		t.Fatalf("endorser balance = %d, want 100", bal)
	}

	_, err = svc.Endorse(context.Background(), c.ID, rec.ID, now)
	if !errors.Is(err, ErrAlreadyEndorsed) {
		t.Fatalf("expected ErrAlreadyEndorsed, got %v", err)
	}

	// Each member endorses at most once per recognition, but the sender
	// may endorse their own send.
	if _, err := svc.Endorse(context.Background(), a.ID, rec.ID, now); err != nil {
		t.Fatalf("sender endorsing own recognition: %v", err)
	}

	got, err := svc.Get(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.EndorsementCount != 2 {
		t.Fatalf("endorsement count = %d, want 2", got.EndorsementCount)
	}
}

func TestEndorseRejections(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	a := seedMember(t, store, "a@example.com", 100, now)
	b := seedMember(t, store, "b@example.com", 100, now)

	rec, err := svc.Send(context.Background(), a.ID, b.ID, 10, "", now)
	if err != nil {
		t.Fatalf("send: %v", err)
	}

	if _, err := svc.Endorse(context.Background(), "missing", rec.ID, now); !errors.Is(err, ErrEndorserNotFound) {
		t.Fatalf("expected ErrEndorserNotFound, got %v", err)
	}
	if _, err := svc.Endorse(context.Background(), a.ID, "missing", now); !errors.Is(err, ErrRecognitionNotFound) {
		t.Fatalf("expected ErrRecognitionNotFound, got %v", err)
	}
}

func TestGetAndList(t *testing.T) {
	svc, store := newService()
	now := time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC)
	a := seedMember(t, store, "a@example.com", 100, now)
	b := seedMember(t, store, "b@example.com", 100, now)

	if _, err := svc.Get(context.Background(), "missing"); !errors.Is(err, ErrRecognitionNotFound) {
		t.Fatalf("expected ErrRecognitionNotFound, got %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := svc.Send(context.Background(), a.ID, b.ID, 10, fmt.Sprintf("send %d", i), now); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	all, err := svc.List(context.Background())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 recognitions, got %d", len(all))
	}
}
