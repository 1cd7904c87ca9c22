package booking

import (
	"time"

	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/money"
)

type RequestCreated struct {
	RequestID   RequestID
	ResourceID  resource.ID
	OrganizerID string
	Total       money.Money
	OnRequest   bool
	At          time.Time
}

func (e RequestCreated) EventName() string     { return "booking.request_created" }
func (e RequestCreated) AggregateID() string   { return string(e.RequestID) }
func (e RequestCreated) OccurredAt() time.Time { return e.At }

type RequestAccepted struct {
	RequestID RequestID
	PaymentID PaymentID
	Amount    money.Money
	At        time.Time
}

func (e RequestAccepted) EventName() string     { return "booking.request_accepted" }
func (e RequestAccepted) AggregateID() string   { return string(e.RequestID) }
func (e RequestAccepted) OccurredAt() time.Time { return e.At }

type RequestDenied struct {
	RequestID RequestID
	Reason    string
	At        time.Time
}

func (e RequestDenied) EventName() string     { return "booking.request_denied" }
func (e RequestDenied) AggregateID() string   { return string(e.RequestID) }
func (e RequestDenied) OccurredAt() time.Time { return e.At }

type PaymentSucceeded struct {
	PaymentID PaymentID
	RequestID RequestID
	Amount    money.Money
	At        time.Time
}

func (e PaymentSucceeded) EventName() string     { return "booking.payment_succeeded" }
func (e PaymentSucceeded) AggregateID() string   { return string(e.RequestID) }
func (e PaymentSucceeded) OccurredAt() time.Time { return e.At }

type PaymentFailedEvent struct {
	PaymentID PaymentID
	RequestID RequestID
	Status    PaymentStatus
	At        time.Time
}

func (e PaymentFailedEvent) EventName() string     { return "booking.payment_failed" }
func (e PaymentFailedEvent) AggregateID() string   { return string(e.RequestID) }
func (e PaymentFailedEvent) OccurredAt() time.Time { return e.At }

type TripStartedEvent struct {
	TripID    TripID
	RequestID RequestID
	PaymentID PaymentID
	At        time.Time
}

func (e TripStartedEvent) EventName() string     { return "booking.trip_started" }
func (e TripStartedEvent) AggregateID() string   { return string(e.RequestID) }
func (e TripStartedEvent) OccurredAt() time.Time { return e.At }

type TripActivatedEvent struct {
	TripID    TripID
	RequestID RequestID
	At        time.Time
}

func (e TripActivatedEvent) EventName() string     { return "booking.trip_activated" }
func (e TripActivatedEvent) AggregateID() string   { return string(e.RequestID) }
func (e TripActivatedEvent) OccurredAt() time.Time { return e.At }

type TripCanceledEvent struct {
	TripID    TripID
	RequestID RequestID
	Refund    bool
	At        time.Time
}

func (e TripCanceledEvent) EventName() string     { return "booking.trip_canceled" }
func (e TripCanceledEvent) AggregateID() string   { return string(e.RequestID) }
func (e TripCanceledEvent) OccurredAt() time.Time { return e.At }

type TripFinishedEvent struct {
	TripID    TripID
	RequestID RequestID
	At        time.Time
}

func (e TripFinishedEvent) EventName() string     { return "booking.trip_finished" }
func (e TripFinishedEvent) AggregateID() string   { return string(e.RequestID) }
func (e TripFinishedEvent) OccurredAt() time.Time { return e.At }
