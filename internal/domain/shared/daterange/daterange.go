package daterange

import (
	"errors"
	"fmt"
	"time"
)

const Layout = "2006-01-02"

var (
	ErrInvalidRange = errors.New("daterange: end date must not precede start date")
	ErrNotContained = errors.New("daterange: range is not contained in the available windows")
)

// DateRange is an inclusive span of calendar days [Start, End]. A range with
// Start == End covers exactly one day.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Day truncates t to its calendar day in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func New(start, end time.Time) (DateRange, error) {
	dr := DateRange{Start: Day(start), End: Day(end)}
	if err := dr.Validate(); err != nil {
		return DateRange{}, err
	}
	return dr, nil
}

// Parse builds a range from two YYYY-MM-DD strings.
func Parse(start, end string) (DateRange, error) {
	s, err := time.Parse(Layout, start)
	if err != nil {
		return DateRange{}, fmt.Errorf("daterange: start %q: %w", start, err)
	}
	e, err := time.Parse(Layout, end)
	if err != nil {
		return DateRange{}, fmt.Errorf("daterange: end %q: %w", end, err)
	}
	return New(s, e)
}

// MustParse is Parse that panics; used by fixtures and tests.
func MustParse(start, end string) DateRange {
	dr, err := Parse(start, end)
	if err != nil {
		panic(err)
	}
	return dr
}

func (dr DateRange) Validate() error {
	if dr.Start.IsZero() || dr.End.IsZero() {
		return ErrInvalidRange
	}
	if dr.End.Before(dr.Start) {
		return ErrInvalidRange
	}
	return nil
}

// Span returns the number of whole calendar days between start and end.
func (dr DateRange) Span() int {
	return int(dr.End.Sub(dr.Start).Hours() / 24)
}

// Days returns how many calendar days the range covers.
func (dr DateRange) Days() int {
	return dr.Span() + 1
}

func (dr DateRange) Overlaps(other DateRange) bool {
	return !dr.Start.After(other.End) && !other.Start.After(dr.End)
}

func (dr DateRange) Contains(other DateRange) bool {
	return !dr.Start.After(other.Start) && !dr.End.Before(other.End)
}

func (dr DateRange) ContainsDate(t time.Time) bool {
	t = Day(t)
	return !t.Before(dr.Start) && !t.After(dr.End)
}

// Adjacent reports whether the ranges touch with no free day between them.
func (dr DateRange) Adjacent(other DateRange) bool {
	return dr.End.AddDate(0, 0, 1).Equal(other.Start) || other.End.AddDate(0, 0, 1).Equal(dr.Start)
}

func (dr DateRange) Merge(other DateRange) (DateRange, bool) {
	if !(dr.Overlaps(other) || dr.Adjacent(other)) {
		return DateRange{}, false
	}
	start := dr.Start
	if other.Start.Before(start) {
		start = other.Start
	}
	end := dr.End
	if other.End.After(end) {
		end = other.End
	}
	return DateRange{Start: start, End: end}, true
}

func (dr DateRange) Equal(other DateRange) bool {
	return dr.Start.Equal(other.Start) && dr.End.Equal(other.End)
}

func (dr DateRange) String() string {
	return dr.Start.Format(Layout) + ".." + dr.End.Format(Layout)
}
