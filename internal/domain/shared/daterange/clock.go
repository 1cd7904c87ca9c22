package daterange

import (
	"errors"
	"fmt"
	"time"
)

var ErrInvalidClock = errors.New("daterange: time of day must be HH:MM")

// Clock is a time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

func ParseClock(raw string) (Clock, error) {
	t, err := time.Parse("15:04", raw)
	if err != nil {
		return Clock{}, fmt.Errorf("%w: %q", ErrInvalidClock, raw)
	}
	return Clock{Hour: t.Hour(), Minute: t.Minute()}, nil
}

// On places the clock on the given calendar day (UTC).
func (c Clock) On(day time.Time) time.Time {
	d := Day(day)
	return d.Add(time.Duration(c.Hour)*time.Hour + time.Duration(c.Minute)*time.Minute)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}
