package generic

import (
	"fmt"
	"time"
)

// =============================================================================
// PERIOD - One billing cycle
// =============================================================================

// Period is a (year, month) pair identifying one billing cycle.
// Month is 1-12. Periods are plain integers, never instants.
type Period struct {
	Year  int
	Month int
}

func NewPeriod(year, month int) (Period, error) {
	p := Period{Year: year, Month: month}
	if err := p.Validate(); err != nil {
		return Period{}, err
	}
	return p, nil
}

// PeriodOf returns the period containing t, evaluated in UTC.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: int(t.Month())}
}

func (p Period) Validate() error {
	if p.Year <= 0 {
		return &ValidationError{Field: "year", Message: "must be positive"}
	}
	if p.Month < 1 || p.Month > 12 {
		return &ValidationError{Field: "month", Message: "must be between 1 and 12"}
	}
	return nil
}

// Before compares by year, then month.
func (p Period) Before(other Period) bool {
	if p.Year != other.Year {
		return p.Year < other.Year
	}
	return p.Month < other.Month
}

// Prev returns the preceding period, rolling over the year at month 0.
func (p Period) Prev() Period {
	if p.Month == 1 {
		return Period{Year: p.Year - 1, Month: 12}
	}
	return Period{Year: p.Year, Month: p.Month - 1}
}

// Next returns the following period.
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

// Start returns the first instant of the period in UTC.
func (p Period) Start() time.Time {
	return time.Date(p.Year, time.Month(p.Month), 1, 0, 0, 0, 0, time.UTC)
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// TrailingWindow returns n consecutive periods ending at asOf, newest first.
func TrailingWindow(asOf Period, n int) []Period {
	window := make([]Period, 0, n)
	current := asOf
	for i := 0; i < n; i++ {
		window = append(window, current)
		current = current.Prev()
	}
	return window
}
