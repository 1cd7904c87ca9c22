package booking

import (
	"context"
	"time"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	"rentguru/internal/app/uow"
	domainbooking "rentguru/internal/domain/booking"
)

type TripResult = dto.TripClosure

type CancelTripHandler struct{ *Engine }

func (h CancelTripHandler) Handle(ctx context.Context, cmd CancelTripCommand) (*TripResult, error) {
	window := h.refundWindow()
	return h.closeTrip(ctx, cmd.Actor, cmd.TripID, func(t *domainbooking.Trip, p *domainbooking.Payment, now time.Time) ([]domainbooking.Effect, error) {
		return domainbooking.CancelTrip(t, p, cmd.Actor, window, now)
	})
}

type FinishTripHandler struct{ *Engine }

func (h FinishTripHandler) Handle(ctx context.Context, cmd FinishTripCommand) (*TripResult, error) {
	return h.closeTrip(ctx, cmd.Actor, cmd.TripID, func(t *domainbooking.Trip, p *domainbooking.Payment, now time.Time) ([]domainbooking.Effect, error) {
		return domainbooking.FinishTrip(t, p, cmd.Actor, now)
	})
}

// closeTrip runs a terminal trip transition under the resource lock, since
// both cancel and finish may give dates back to the calendar.
func (e *Engine) closeTrip(ctx context.Context, actor domainbooking.Actor, tripID string, fn func(*domainbooking.Trip, *domainbooking.Payment, time.Time) ([]domainbooking.Effect, error)) (*TripResult, error) {
	var out TripResult
	err := e.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		id := domainbooking.TripID(tripID)
		var target *domainbooking.Trip
		err := e.peek(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
			var err error
			target, err = unit.Trips().ByID(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
		if !target.IsParticipant(actor) {
			return domainbooking.ErrForbidden
		}
		if !target.OnRequest {
			if err := e.lockResource(ctx, target.ResourceID); err != nil {
				return err
			}
		}
		trip, err := unit.Trips().ByID(ctx, id)
		if err != nil {
			return err
		}
		payment, err := unit.Payments().ByID(ctx, trip.PaymentID)
		if err != nil {
			return err
		}
		effects, err := fn(trip, payment, e.now())
		if err != nil {
			return err
		}
		if err := unit.Trips().Save(ctx, trip); err != nil {
			return err
		}
		if err := unit.Payments().Save(ctx, payment); err != nil {
			return err
		}
		if err := e.apply(ctx, unit, effects); err != nil {
			return err
		}
		if err := e.record(ctx, trip); err != nil {
			return err
		}
		e.log().InfoContext(ctx, "trip closed", "trip_id", trip.ID, "status", trip.Status, "closed_by", actor.UserID, "refund_pending", payment.RefundPending)
		out.Trip = dto.Trip(trip)
		out.Payment = dto.Payment(payment)
		paymentID := payment.ID
		e.afterCommit(ctx, func(ctx context.Context) error {
			var view *dto.PaymentView
			e.refreshPayment(ctx, paymentID, &view)
			if view != nil {
				out.Payment = *view
			}
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

var (
	_ commands.Handler[CancelTripCommand, *TripResult] = CancelTripHandler{}
	_ commands.Handler[FinishTripCommand, *TripResult] = FinishTripHandler{}
)
