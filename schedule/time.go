package schedule

import (
	"time"
)

// =============================================================================
// DATE - Calendar day (payment due dates have no time component)
// =============================================================================

const DateLayout = "2006-01-02"

type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// DatePtr is a convenience for optional dates.
func DatePtr(d Date) *Date { return &d }

// Comparison
func (d Date) Before(other Date) bool        { return d.normalize().Before(other.normalize()) }
func (d Date) Equal(other Date) bool         { return d.normalize().Equal(other.normalize()) }
func (d Date) After(other Date) bool         { return d.normalize().After(other.normalize()) }
func (d Date) BeforeOrEqual(other Date) bool { return d.Before(other) || d.Equal(other) }
func (d Date) AfterOrEqual(other Date) bool  { return d.After(other) || d.Equal(other) }

func (d Date) normalize() time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (d Date) AddDays(n int) Date { return DateOf(d.normalize().AddDate(0, 0, n)) }

// Properties
func (d Date) Year() int          { return d.Time.Year() }
func (d Date) Month() time.Month  { return d.Time.Month() }
func (d Date) Day() int           { return d.Time.Day() }
func (d Date) IsZero() bool       { return d.Time.IsZero() }
func (d Date) String() string     { return d.Time.Format(DateLayout) }

// DaysBetween counts whole days from `from` to `to` (negative if to is earlier).
func DaysBetween(from, to Date) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// =============================================================================
// CLOCK - "Today" for rules that depend on the current date
// =============================================================================

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always reports the same instant.
type FixedClock struct{ At time.Time }

func (c FixedClock) Now() time.Time { return c.At }

// Today returns the clock's current calendar day.
func Today(c Clock) Date {
	if c == nil {
		c = SystemClock{}
	}
	return DateOf(c.Now().UTC())
}
