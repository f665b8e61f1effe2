package recognition

import (
	"time"

	"github.com/boostly/kudos/internal/app/period"
)

// Recognition is an immutable one-way credit transfer between two members.
// PeriodKey freezes the month active at creation so monthly-limit accounting
// is unaffected by later resets.
type Recognition struct {
	ID         string
	SenderID   string
	ReceiverID string
	Credits    int64
	Message    string
	PeriodKey  period.Key
	CreatedAt  time.Time
}

// Endorsement is a unique-per-member acknowledgement on a recognition.
type Endorsement struct {
	ID            string
	RecognitionID string
	EndorserID    string
	CreatedAt     time.Time
}

// WithCount pairs a recognition with its endorsement count for read paths.
type WithCount struct {
	Recognition
	EndorsementCount int64
}
