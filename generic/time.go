package generic

import (
	"time"
)

// =============================================================================
// CLOCK - Source of audit timestamps
// =============================================================================

// Clock supplies the instant stamped on transitions. All stamps are UTC.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Used by tests and scenarios.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At.UTC() }

// NewFixedClock returns a clock stopped at midnight UTC of the given day.
func NewFixedClock(year int, month time.Month, day int) FixedClock {
	return FixedClock{At: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}
