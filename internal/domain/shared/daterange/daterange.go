package daterange

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Layout is the wire format for calendar dates.
const Layout = "2006-01-02"

// MaxDays caps how many nights a single range may span.
const MaxDays = 366

var (
	ErrInvalidRange = errors.New("daterange: end must not be before start")
	ErrRangeTooLong = errors.New("daterange: range exceeds maximum length")
	ErrInvalidDate  = errors.New("daterange: invalid date")
)

// CalendarRange is an inclusive interval of calendar dates [Start, End].
// Both bounds are normalized to UTC midnight.
type CalendarRange struct {
	Start time.Time
	End   time.Time
}

func New(start, end time.Time) (CalendarRange, error) {
	cr := CalendarRange{Start: Day(start), End: Day(end)}
	if err := cr.Validate(); err != nil {
		return CalendarRange{}, err
	}
	return cr, nil
}

// Parse builds a range from two YYYY-MM-DD strings.
func Parse(start, end string) (CalendarRange, error) {
	s, err := ParseDate(start)
	if err != nil {
		return CalendarRange{}, err
	}
	e, err := ParseDate(end)
	if err != nil {
		return CalendarRange{}, err
	}
	return New(s, e)
}

func ParseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, ErrInvalidDate
	}
	t, err := time.Parse(Layout, raw)
	if err != nil {
		if ts, errTS := time.Parse(time.RFC3339, raw); errTS == nil {
			return Day(ts), nil
		}
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, raw)
	}
	return t, nil
}

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (cr CalendarRange) Validate() error {
	if cr.Start.IsZero() || cr.End.IsZero() {
		return ErrInvalidRange
	}
	if cr.End.Before(cr.Start) {
		return ErrInvalidRange
	}
	if cr.Days() > MaxDays {
		return ErrRangeTooLong
	}
	return nil
}

// Days is the number of calendar dates in the range, both ends included.
func (cr CalendarRange) Days() int {
	if cr.Start.IsZero() || cr.End.IsZero() || cr.End.Before(cr.Start) {
		return 0
	}
	return int(cr.End.Sub(cr.Start).Hours()/24) + 1
}

// Dates enumerates every date in the range in ascending order.
func (cr CalendarRange) Dates() []time.Time {
	n := cr.Days()
	out := make([]time.Time, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, cr.Start.AddDate(0, 0, i))
	}
	return out
}

func (cr CalendarRange) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(cr.Start) && !d.After(cr.End)
}

func (cr CalendarRange) Overlaps(other CalendarRange) bool {
	return !cr.Start.After(other.End) && !other.Start.After(cr.End)
}

func (cr CalendarRange) String() string {
	return cr.Start.Format(Layout) + ".." + cr.End.Format(Layout)
}

// Key formats a date the way PMS payloads and projections index it.
func Key(t time.Time) string {
	return t.UTC().Format(Layout)
}
