package storage

import (
	"context"
	"errors"

	"github.com/boostly/kudos/internal/app/domain/member"
	"github.com/boostly/kudos/internal/app/domain/recognition"
	"github.com/boostly/kudos/internal/app/domain/redemption"
	"github.com/boostly/kudos/internal/app/period"
)

// Sentinel errors shared by all store implementations. Services translate
// these into their own user-visible failures.
var (
	// ErrNotFound reports an absent entity.
	ErrNotFound = errors.New("storage: not found")
	// ErrDuplicate reports a unique-key violation (member email or
	// endorsement pair).
	ErrDuplicate = errors.New("storage: duplicate key")
)

// LeaderboardEntry is one ranked row of received-credit totals.
type LeaderboardEntry struct {
	MemberID                  string
	MemberName                string
	TotalCreditsReceived      int64
	TotalRecognitionsReceived int64
	TotalEndorsementsReceived int64
}

// Tx is a transaction-scoped handle. Engine operations receive one per call
// and must not retain it; every read inside the transaction sees current
// state, and member reads take a row-level lock where the backend supports
// it.
type Tx interface {
	CreateMember(ctx context.Context, m member.Member) (member.Member, error)
	UpdateMember(ctx context.Context, m member.Member) (member.Member, error)
	GetMember(ctx context.Context, id string) (member.Member, error)
	GetMemberByEmail(ctx context.Context, email string) (member.Member, error)
	ListMembers(ctx context.Context) ([]member.Member, error)

	CreateRecognition(ctx context.Context, rec recognition.Recognition) (recognition.Recognition, error)
	GetRecognition(ctx context.Context, id string) (recognition.Recognition, error)
	ListRecognitions(ctx context.Context) ([]recognition.Recognition, error)
	SumSentCredits(ctx context.Context, senderID string, key period.Key) (int64, error)

	CreateEndorsement(ctx context.Context, e recognition.Endorsement) (recognition.Endorsement, error)
	GetEndorsement(ctx context.Context, id string) (recognition.Endorsement, error)
	HasEndorsement(ctx context.Context, recognitionID, endorserID string) (bool, error)
	CountEndorsements(ctx context.Context, recognitionID string) (int64, error)

	CreateRedemption(ctx context.Context, r redemption.Redemption) (redemption.Redemption, error)
	GetRedemption(ctx context.Context, id string) (redemption.Redemption, error)
	ListRedemptions(ctx context.Context, memberID string) ([]redemption.Redemption, error)

	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)
}

// Store runs a function inside one atomic transaction. An error from fn
// rolls the transaction back; implementations retry fn on transient
// serialization conflicts, so fn must be safe to re-run.
type Store interface {
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}
