package member

import "time"

// Defaults applied at registration and at each monthly reset.
const (
	InitialBalance      int64 = 100
	MonthlyAllowance    int64 = 100
	DefaultSendingLimit int64 = 100
	MaxCarryForward     int64 = 50
)

// Member is a participant of the recognition program. CurrentBalance and
// MonthlySendingLimit are the authoritative mutable fields; both are kept
// non-negative by the engines and backstopped by storage check constraints.
type Member struct {
	ID                  string
	Name                string
	Email               string
	CurrentBalance      int64
	MonthlySendingLimit int64
	LastResetAt         time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}
