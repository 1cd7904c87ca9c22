package booking

import (
	"context"
	"time"

	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/events"
)

type TripID string

type TripStatus string

const (
	TripStarted  TripStatus = "started"
	TripCurrent  TripStatus = "current"
	TripFinished TripStatus = "finished"
	TripCanceled TripStatus = "canceled"
)

// DefaultRefundWindow is how long before the start a canceled paid trip is still refunded.
const DefaultRefundWindow = 48 * time.Hour

type Trip struct {
	ID          TripID
	RequestID   RequestID
	PaymentID   PaymentID
	OrganizerID string
	OwnerID     string
	ResourceID  resource.ID
	Dates       daterange.DateRange
	StartTime   *daterange.Clock
	EndTime     *daterange.Clock
	OnRequest   bool
	Status      TripStatus
	ClosedBy    string
	CreatedAt   time.Time
	UpdatedAt   time.Time
	Version     int64
	events.EventRecorder
}

type TripRepository interface {
	ByID(ctx context.Context, id TripID) (*Trip, error)
	ByRequest(ctx context.Context, requestID RequestID) (*Trip, error)
	Save(ctx context.Context, trip *Trip) error
}

func newTrip(id TripID, r *RentalRequest, p *Payment, now time.Time) *Trip {
	t := &Trip{
		ID:          id,
		RequestID:   r.ID,
		PaymentID:   p.ID,
		OrganizerID: r.OrganizerID,
		OwnerID:     r.OwnerID,
		ResourceID:  r.ResourceID,
		Dates:       r.Window.Dates,
		StartTime:   r.Window.StartTime,
		EndTime:     r.Window.EndTime,
		OnRequest:   r.OnRequest,
		Status:      TripStarted,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	t.Record(TripStartedEvent{TripID: id, RequestID: r.ID, PaymentID: p.ID, At: now})
	return t
}

// StartsAt is the scheduled start instant; midnight UTC when no time was given.
func (t *Trip) StartsAt() time.Time {
	if t.StartTime != nil {
		return t.StartTime.On(t.Dates.Start)
	}
	return daterange.Day(t.Dates.Start)
}

// Activate moves a started trip to current. The payment must have succeeded.
func (t *Trip) Activate(p *Payment, now time.Time) error {
	if t.Status != TripStarted || p.ID != t.PaymentID || p.Status != PaymentSuccess {
		return ErrInvalidTransition
	}
	t.Status = TripCurrent
	t.UpdatedAt = now.UTC()
	t.Record(TripActivatedEvent{TripID: t.ID, RequestID: t.RequestID, At: t.UpdatedAt})
	return nil
}

func (t *Trip) IsParticipant(actor Actor) bool {
	return actor.Staff || actor.UserID == t.OrganizerID || actor.UserID == t.OwnerID
}

func (t *Trip) open() bool {
	return t.Status == TripStarted || t.Status == TripCurrent
}

// CancelTrip cancels an open trip. The window, bonus and promo are always
// returned; the charge is refunded only when the payment succeeded and the
// start is more than refundWindow away, otherwise the payment is canceled
// without a refund.
func CancelTrip(t *Trip, p *Payment, actor Actor, refundWindow time.Duration, now time.Time) ([]Effect, error) {
	if !t.IsParticipant(actor) {
		return nil, ErrForbidden
	}
	if !t.open() {
		return nil, ErrInvalidTransition
	}
	now = now.UTC()
	t.Status = TripCanceled
	t.ClosedBy = actor.UserID
	t.UpdatedAt = now

	refund := p.Status == PaymentSuccess && t.StartsAt().Sub(now) > refundWindow
	if refund {
		p.RefundPending = true
	} else {
		p.Status = PaymentCanceled
	}
	p.UpdatedAt = now
	t.Record(TripCanceledEvent{TripID: t.ID, RequestID: t.RequestID, Refund: refund, At: now})

	var effects []Effect
	if !t.OnRequest {
		effects = append(effects, RestoreWindow{ResourceID: t.ResourceID, Range: t.Dates})
	}
	if p.BonusAmount.IsPositive() {
		effects = append(effects, CreditBonus{UserID: t.OrganizerID, Amount: p.BonusAmount})
	}
	if p.PromoCode != "" {
		effects = append(effects, ReleasePromo{Code: p.PromoCode, UserID: t.OrganizerID})
	}
	effects = append(effects, RecordTripStats{ResourceID: t.ResourceID, OwnerID: t.OwnerID, Outcome: TripCanceled})
	if refund {
		effects = append(effects, RefundCharge{PaymentID: p.ID})
	}
	organizerText := "Your trip was canceled"
	if refund {
		organizerText = "Your trip was canceled, the payment of " + p.Amount.Decimal() + " will be refunded"
	}
	effects = append(effects,
		Notify{UserID: t.OrganizerID, Text: organizerText, Link: TripLink(t.ID)},
		Notify{UserID: t.OwnerID, Text: "A trip with your vehicle was canceled", Link: TripLink(t.ID)},
	)
	return effects, nil
}

// FinishTrip closes an open trip. An early finish returns the unused tail of
// the window; counters and partner payouts run once since a finished trip
// cannot be finished again.
func FinishTrip(t *Trip, p *Payment, actor Actor, now time.Time) ([]Effect, error) {
	if !t.IsParticipant(actor) {
		return nil, ErrForbidden
	}
	if !t.open() {
		return nil, ErrInvalidTransition
	}
	now = now.UTC()
	t.Status = TripFinished
	t.ClosedBy = actor.UserID
	t.UpdatedAt = now
	t.Record(TripFinishedEvent{TripID: t.ID, RequestID: t.RequestID, At: now})

	var effects []Effect
	today := daterange.Day(now)
	if !t.OnRequest && today.Before(t.Dates.End) {
		start := today
		if start.Before(t.Dates.Start) {
			start = t.Dates.Start
		}
		effects = append(effects, RestoreWindow{ResourceID: t.ResourceID, Range: daterange.DateRange{Start: start, End: t.Dates.End}})
	}
	effects = append(effects,
		RecordTripStats{ResourceID: t.ResourceID, OwnerID: t.OwnerID, Outcome: TripFinished},
		PayoutPartners{OrganizerID: t.OrganizerID, OwnerID: t.OwnerID, Amount: p.Amount},
		Notify{UserID: t.OrganizerID, Text: "Your trip is finished, rate your trip", Link: TripLink(t.ID)},
		Notify{UserID: t.OwnerID, Text: "A trip with your vehicle is finished, rate your trip", Link: TripLink(t.ID)},
	)
	return effects, nil
}

func TripLink(id TripID) string {
	return "/trips/" + string(id)
}
