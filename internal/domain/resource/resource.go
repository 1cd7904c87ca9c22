package resource

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

var (
	ErrNotFound        = errors.New("resource: not found")
	ErrUnknownKind     = errors.New("resource: unknown vehicle kind")
	ErrInvalidRentDays = errors.New("resource: min rent days must not exceed max rent days")
	ErrOutsideRentDays = errors.New("resource: rental length is outside the allowed range")
)

type ID string

type Kind string

const (
	KindAuto           Kind = "auto"
	KindBike           Kind = "bike"
	KindShip           Kind = "ship"
	KindHelicopter     Kind = "helicopter"
	KindSpecialTechnic Kind = "special_technic"
)

// Resource is the closed set of rentable vehicles. Every variant embeds Vehicle.
type Resource interface {
	Kind() Kind
	Base() *Vehicle
	Owner() string
	TariffTable() TariffTable
	Availability() Availability
}

// Vehicle carries the fields shared by all variants.
type Vehicle struct {
	ID                ID
	OwnerID           string
	Title             string
	CommissionPercent int64
	Tariffs           TariffTable
	Calendar          Availability
	MinRentDays       int
	MaxRentDays       int
	Deposit           money.Money
	DeliveryFee       money.Money
	Trips             int
	CanceledTrips     int
	UpdatedAt         time.Time
	Version           int64
}

func (v *Vehicle) Base() *Vehicle             { return v }
func (v *Vehicle) Owner() string              { return v.OwnerID }
func (v *Vehicle) TariffTable() TariffTable   { return v.Tariffs }
func (v *Vehicle) Availability() Availability { return v.Calendar }
func (v *Vehicle) IsOpenToRequest() bool      { return v.Calendar.OnRequest }

// Available reports whether the range can still be booked.
func (v *Vehicle) Available(r daterange.DateRange) bool {
	return v.Calendar.Contains(r)
}

// Reserve consumes the range from the calendar.
func (v *Vehicle) Reserve(r daterange.DateRange, now time.Time) error {
	next, err := v.Calendar.Reserve(r)
	if err != nil {
		return err
	}
	v.Calendar = next
	v.touch(now)
	return nil
}

// Restore returns the range to the calendar.
func (v *Vehicle) Restore(r daterange.DateRange, now time.Time) {
	v.Calendar = v.Calendar.Restore(r)
	v.touch(now)
}

func (v *Vehicle) RecordFinishedTrip(now time.Time) {
	v.Trips++
	v.touch(now)
}

func (v *Vehicle) RecordCanceledTrip(now time.Time) {
	v.CanceledTrips++
	v.touch(now)
}

// CheckRentDays validates the rental length against the owner's bounds.
// Zero bounds mean no limit on that side.
func (v *Vehicle) CheckRentDays(days int) error {
	if v.MinRentDays > 0 && days < v.MinRentDays {
		return fmt.Errorf("%w: rental must be between %d and %d days, got %d", ErrOutsideRentDays, v.MinRentDays, v.MaxRentDays, days)
	}
	if v.MaxRentDays > 0 && days > v.MaxRentDays {
		return fmt.Errorf("%w: rental must be between %d and %d days, got %d", ErrOutsideRentDays, v.MinRentDays, v.MaxRentDays, days)
	}
	return nil
}

func (v *Vehicle) Validate() error {
	if v.MinRentDays > 0 && v.MaxRentDays > 0 && v.MinRentDays > v.MaxRentDays {
		return ErrInvalidRentDays
	}
	return v.Calendar.Validate()
}

func (v *Vehicle) touch(now time.Time) {
	v.UpdatedAt = now.UTC()
}

type Auto struct {
	Vehicle
	Seats        int
	Transmission string
}

type Bike struct {
	Vehicle
	EngineVolume int
}

type Ship struct {
	Vehicle
	LengthMeters int
	Cabins       int
}

type Helicopter struct {
	Vehicle
	Passengers int
}

type SpecialTechnic struct {
	Vehicle
	Purpose string
}

func (*Auto) Kind() Kind           { return KindAuto }
func (*Bike) Kind() Kind           { return KindBike }
func (*Ship) Kind() Kind           { return KindShip }
func (*Helicopter) Kind() Kind     { return KindHelicopter }
func (*SpecialTechnic) Kind() Kind { return KindSpecialTechnic }

// New builds an empty variant for the kind, dispatching on the tag.
func New(kind Kind, base Vehicle) (Resource, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	switch kind {
	case KindAuto:
		return &Auto{Vehicle: base}, nil
	case KindBike:
		return &Bike{Vehicle: base}, nil
	case KindShip:
		return &Ship{Vehicle: base}, nil
	case KindHelicopter:
		return &Helicopter{Vehicle: base}, nil
	case KindSpecialTechnic:
		return &SpecialTechnic{Vehicle: base}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
}

// Clone deep-copies the resource so stores can hand out snapshots.
func Clone(r Resource) Resource {
	switch v := r.(type) {
	case *Auto:
		c := *v
		c.Calendar = v.Calendar.Clone()
		return &c
	case *Bike:
		c := *v
		c.Calendar = v.Calendar.Clone()
		return &c
	case *Ship:
		c := *v
		c.Calendar = v.Calendar.Clone()
		return &c
	case *Helicopter:
		c := *v
		c.Calendar = v.Calendar.Clone()
		return &c
	case *SpecialTechnic:
		c := *v
		c.Calendar = v.Calendar.Clone()
		return &c
	default:
		return r
	}
}

type Repository interface {
	ByID(ctx context.Context, id ID) (Resource, error)
	Save(ctx context.Context, r Resource) error
}
