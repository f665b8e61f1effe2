// Package period resolves calendar month periods for limit bucketing and
// reset comparisons.
package period

import (
	"fmt"
	"time"
)

// Key identifies a calendar month as "YYYY-MM". Recognitions freeze the key
// active at creation so limit accounting survives later resets.
type Key string

// FromTime returns the key for the month containing t.
func FromTime(t time.Time) Key {
	return Key(t.Format("2006-01"))
}

// String implements fmt.Stringer.
func (k Key) String() string { return string(k) }

// Before reports whether k is an earlier calendar month than other.
// Comparison is lexical, which is correct for the zero-padded layout.
func (k Key) Before(other Key) bool { return k < other }

// Due reports whether now falls in a strictly later calendar month than
// lastReset. The comparison is on (year, month) only, never on elapsed
// duration.
func Due(lastReset, now time.Time) bool {
	ly, lm, _ := lastReset.Date()
	ny, nm, _ := now.Date()
	if ny != ly {
		return ny > ly
	}
	return nm > lm
}

// Parse validates a raw period key.
func Parse(raw string) (Key, error) {
	if _, err := time.Parse("2006-01", raw); err != nil {
		return "", fmt.Errorf("invalid period key %q: %w", raw, err)
	}
	return Key(raw), nil
}
