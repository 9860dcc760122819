package analytics

import (
	"fmt"
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	monthLayout = "2006-01"
	labelLayout = "01/02"
)

// Interval closed time interval; a nil bound is unbounded on that side.
type Interval struct {
	Start *time.Time
	End   *time.Time
}

// Unbounded the interval with no bounds at all.
func Unbounded() Interval {
	return Interval{}
}

// IsUnbounded reports whether neither side is bounded.
func (iv Interval) IsUnbounded() bool {
	return iv.Start == nil && iv.End == nil
}

// Contains reports whether t lies inside the interval, bounds included.
func (iv Interval) Contains(t time.Time) bool {
	if iv.Start != nil && t.Before(*iv.Start) {
		return false
	}
	if iv.End != nil && t.After(*iv.End) {
		return false
	}
	return true
}

// Equal compares bounds by instant.
func (iv Interval) Equal(other Interval) bool {
	return sameBound(iv.Start, other.Start) && sameBound(iv.End, other.End)
}

func (iv Interval) String() string {
	return boundString(iv.Start) + ".." + boundString(iv.End)
}

func sameBound(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equal(*b)
}

func boundString(t *time.Time) string {
	if t == nil {
		return "*"
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// Normalize turns an optional start/end pair into an Interval. Zero times
// count as absent. Fails with a ValidationError when start is after end.
// Normalizing the bounds of an already normalized interval returns it unchanged.
func Normalize(start, end *time.Time) (Interval, error) {
	var iv Interval
	if start != nil && !start.IsZero() {
		s := *start
		iv.Start = &s
	}
	if end != nil && !end.IsZero() {
		e := *end
		iv.End = &e
	}
	if iv.Start != nil && iv.End != nil && iv.Start.After(*iv.End) {
		return Interval{}, &ValidationError{
			Field:   "interval",
			Message: fmt.Sprintf("start %s is after end %s", boundString(iv.Start), boundString(iv.End)),
		}
	}
	return iv, nil
}

// ParseInterval parses query-string bounds. Each side accepts YYYY-MM-DD or
// RFC3339; an empty string is unbounded. A date-only end covers the whole day.
func ParseInterval(start, end string) (Interval, error) {
	s, err := parseBound("start_date", start, false)
	if err != nil {
		return Interval{}, err
	}
	e, err := parseBound("end_date", end, true)
	if err != nil {
		return Interval{}, err
	}
	return Normalize(s, e)
}

func parseBound(field, raw string, endOfDay bool) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	d, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, &ValidationError{Field: field, Message: fmt.Sprintf("%q is not a date (YYYY-MM-DD) or RFC3339 timestamp", raw)}
	}
	if endOfDay {
		d = EndOfDay(d)
	}
	return &d, nil
}

// MonthInterval covers the first to the last day of a month, UTC.
func MonthInterval(year int, month time.Month) Interval {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := EndOfDay(start.AddDate(0, 1, -1))
	return Interval{Start: &start, End: &end}
}

// ParseMonth parses YYYY-MM into its month interval.
func ParseMonth(raw string) (Interval, error) {
	m, err := time.Parse(monthLayout, strings.TrimSpace(raw))
	if err != nil {
		return Interval{}, &ValidationError{Field: "month", Message: fmt.Sprintf("%q is not a month (YYYY-MM)", raw)}
	}
	return MonthInterval(m.Year(), m.Month()), nil
}

// StartOfDay midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// EndOfDay last representable instant of t's calendar day.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}
