package resource

import (
	"errors"

	"rentguru/internal/domain/shared/daterange"
)

var ErrMixedAvailability = errors.New("resource: open-to-request availability cannot carry dated windows")

// Availability is either a calendar of disjoint windows or the open-to-request marker.
type Availability struct {
	OnRequest bool
	Windows   []daterange.DateRange
}

func Calendar(windows ...daterange.DateRange) Availability {
	return Availability{Windows: daterange.Merge(windows)}
}

func OpenToRequest() Availability {
	return Availability{OnRequest: true}
}

func (a Availability) Validate() error {
	if a.OnRequest && len(a.Windows) > 0 {
		return ErrMixedAvailability
	}
	return nil
}

// Contains reports whether the range may be booked. Open-to-request resources accept any range.
func (a Availability) Contains(r daterange.DateRange) bool {
	if a.OnRequest {
		return true
	}
	return daterange.Contains(a.Windows, r)
}

// Reserve removes r from the calendar. Open-to-request availability is left unchanged.
func (a Availability) Reserve(r daterange.DateRange) (Availability, error) {
	if a.OnRequest {
		return a, nil
	}
	rest, err := daterange.Subtract(a.Windows, r)
	if err != nil {
		return a, err
	}
	return Availability{Windows: daterange.Merge(rest)}, nil
}

// Restore puts r back into the calendar and re-merges it.
func (a Availability) Restore(r daterange.DateRange) Availability {
	if a.OnRequest {
		return a
	}
	windows := make([]daterange.DateRange, 0, len(a.Windows)+1)
	windows = append(windows, a.Windows...)
	windows = append(windows, r)
	return Availability{Windows: daterange.Merge(windows)}
}

func (a Availability) Clone() Availability {
	return Availability{OnRequest: a.OnRequest, Windows: append([]daterange.DateRange(nil), a.Windows...)}
}
