package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	"rentguru/internal/app/outbox"
	"rentguru/internal/app/policies"
	"rentguru/internal/app/uow"
	domainbooking "rentguru/internal/domain/booking"
)

type (
	PaymentResult    = dto.PaymentView
	SettlementResult = dto.Settlement
)

type PayHandler struct{ *Engine }

// Handle returns a payable charge for an accepted request. A charge the renter
// can still complete is reused; a failed or canceled payment that never
// succeeded is re-billed with the same financial snapshot.
func (h PayHandler) Handle(ctx context.Context, cmd PayCommand) (*PaymentResult, error) {
	var (
		out    PaymentResult
		target domainbooking.PaymentID
	)
	err := h.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.now()
		req, err := unit.Requests().ByID(ctx, domainbooking.RequestID(cmd.RequestID))
		if err != nil {
			return err
		}
		if cmd.Actor.UserID != req.OrganizerID {
			return domainbooking.ErrForbidden
		}
		if req.Status != domainbooking.StatusAccepted {
			return domainbooking.ErrInvalidTransition
		}
		if _, err := unit.Trips().ByRequest(ctx, req.ID); err == nil {
			return domainbooking.ErrPaymentSettled
		} else if !errors.Is(err, domainbooking.ErrTripNotFound) {
			return err
		}
		p, err := unit.Payments().LatestForRequest(ctx, req.ID)
		if err != nil {
			return err
		}

		if p.Status == domainbooking.PaymentPending && p.ChargeID != "" {
			state, err := h.chargeState(ctx, p.ChargeID)
			if err != nil {
				return err
			}
			if !state.Failed() {
				out = dto.Payment(p)
				return nil
			}
			effects, err := domainbooking.FailPayment(req, p, failureStatus(state), now)
			if err != nil {
				return err
			}
			if err := unit.Payments().Save(ctx, p); err != nil {
				return err
			}
			if err := h.apply(ctx, unit, effects); err != nil {
				return err
			}
			if err := h.record(ctx, p); err != nil {
				return err
			}
		}

		switch p.Status {
		case domainbooking.PaymentSuccess:
			return domainbooking.ErrPaymentSettled
		case domainbooking.PaymentPending:
			target = p.ID
		default:
			next, err := p.Rebill(domainbooking.PaymentID(h.newID()), now)
			if err != nil {
				return err
			}
			if err := unit.Payments().Save(ctx, next); err != nil {
				return err
			}
			h.log().InfoContext(ctx, "payment re-billed", "request_id", req.ID, "payment_id", next.ID, "previous_payment_id", p.ID)
			target = next.ID
		}
		h.afterCommit(ctx, func(ctx context.Context) error {
			charged, err := h.charge(ctx, target)
			if err != nil {
				return err
			}
			out = dto.Payment(charged)
			return nil
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (e *Engine) chargeState(ctx context.Context, chargeID string) (policies.ChargeStatus, error) {
	if e.Gateway == nil {
		return "", ErrGatewayNotConfigured
	}
	state, err := e.Gateway.ChargeState(ctx, chargeID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domainbooking.ErrGatewayPending, err)
	}
	return state, nil
}

func failureStatus(state policies.ChargeStatus) domainbooking.PaymentStatus {
	if state == policies.ChargeRejected {
		return domainbooking.PaymentFailed
	}
	return domainbooking.PaymentCanceled
}

type SettleChargeHandler struct{ *Engine }

func (h SettleChargeHandler) Handle(ctx context.Context, cmd SettleChargeCommand) (*SettlementResult, error) {
	return h.settle(ctx, cmd.ChargeID, policies.ChargeStatus(cmd.Status), cmd.Amount)
}

// settle applies a gateway outcome to the payment behind chargeID. Repeated
// notifications of the same outcome return the current state unchanged.
func (e *Engine) settle(ctx context.Context, chargeID string, state policies.ChargeStatus, amount int64) (*SettlementResult, error) {
	var out SettlementResult
	err := e.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := e.now()
		p, err := unit.Payments().ByChargeID(ctx, chargeID)
		if err != nil {
			return err
		}
		if amount != p.Amount.Amount {
			return domainbooking.Validation("payment amount does not match the charge")
		}
		req, err := unit.Requests().ByID(ctx, p.RequestID)
		if err != nil {
			return err
		}

		switch {
		case state == policies.ChargeConfirmed:
			if p.Status == domainbooking.PaymentSuccess {
				break
			}
			existing, err := unit.Trips().ByRequest(ctx, req.ID)
			if err == nil {
				if err := e.settleSurplus(ctx, unit, p, existing.ID); err != nil {
					return err
				}
				break
			}
			if !errors.Is(err, domainbooking.ErrTripNotFound) {
				return err
			}
			trip, effects, err := domainbooking.SettlePayment(req, p, domainbooking.TripID(e.newID()), now)
			if err != nil {
				return err
			}
			if err := unit.Payments().Save(ctx, p); err != nil {
				return err
			}
			if err := unit.Trips().Save(ctx, trip); err != nil {
				return err
			}
			if err := e.apply(ctx, unit, effects); err != nil {
				return err
			}
			if err := e.record(ctx, p, trip); err != nil {
				return err
			}
			e.log().InfoContext(ctx, "payment settled", "payment_id", p.ID, "request_id", req.ID, "trip_id", trip.ID)
		case state.Failed():
			effects, err := domainbooking.FailPayment(req, p, failureStatus(state), now)
			if errors.Is(err, domainbooking.ErrPaymentSettled) {
				break
			}
			if err != nil {
				return err
			}
			if err := unit.Payments().Save(ctx, p); err != nil {
				return err
			}
			if err := e.apply(ctx, unit, effects); err != nil {
				return err
			}
			if err := e.record(ctx, p); err != nil {
				return err
			}
			e.log().InfoContext(ctx, "payment failed", "payment_id", p.ID, "request_id", req.ID, "status", p.Status)
		case state == policies.ChargeRefunded && p.RefundPending:
			if err := p.ConfirmRefund(now); err != nil {
				return err
			}
			if err := unit.Payments().Save(ctx, p); err != nil {
				return err
			}
		}

		out.Payment = dto.Payment(p)
		trip, err := unit.Trips().ByRequest(ctx, req.ID)
		switch {
		case err == nil:
			view := dto.Trip(trip)
			out.Trip = &view
		case !errors.Is(err, domainbooking.ErrTripNotFound):
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// settleSurplus handles a late confirmation for a request that already has a
// trip: the extra charge is refunded instead of opening another trip.
func (e *Engine) settleSurplus(ctx context.Context, unit uow.UnitOfWork, p *domainbooking.Payment, tripID domainbooking.TripID) error {
	effects, err := domainbooking.SettleSurplusPayment(p, e.now())
	if err != nil {
		return err
	}
	if err := unit.Payments().Save(ctx, p); err != nil {
		return err
	}
	if err := e.apply(ctx, unit, effects); err != nil {
		return err
	}
	if err := e.record(ctx, p); err != nil {
		return err
	}
	e.log().WarnContext(ctx, "surplus charge confirmed, refunding", "payment_id", p.ID, "request_id", p.RequestID, "trip_id", tripID)
	return nil
}

// Reconciler polls the gateway for charges whose notification never arrived
// and retries refunds that failed at cancellation time.
type Reconciler struct {
	Engine *Engine
	// After is how old a charge must be before it is polled.
	After time.Duration
}

func (r *Reconciler) Run(ctx context.Context) (dto.ReconcileReport, error) {
	var report dto.ReconcileReport
	e := r.Engine
	ctx = outbox.WithCommand(ctx, "reconcile_payments")
	var pending, refunds []*domainbooking.Payment
	err := e.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		if pending, err = unit.Payments().ListPending(ctx, e.now().Add(-r.After)); err != nil {
			return err
		}
		refunds, err = unit.Payments().ListRefundPending(ctx)
		return err
	})
	if err != nil {
		return report, err
	}

	for _, p := range pending {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if p.ChargeID == "" {
			continue
		}
		state, err := e.chargeState(ctx, p.ChargeID)
		if err != nil {
			report.Errors++
			e.log().WarnContext(ctx, "charge state unavailable", "payment_id", p.ID, "error", err)
			continue
		}
		if state != policies.ChargeConfirmed && !state.Failed() {
			continue
		}
		if _, err := e.settle(ctx, p.ChargeID, state, p.Amount.Amount); err != nil {
			report.Errors++
			e.log().WarnContext(ctx, "reconciliation failed", "payment_id", p.ID, "state", state, "error", err)
			continue
		}
		if state == policies.ChargeConfirmed {
			report.Settled++
		} else {
			report.Failed++
		}
	}

	for _, p := range refunds {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		if err := e.refund(ctx, p.ID); err != nil {
			report.Errors++
			e.log().WarnContext(ctx, "refund retry failed", "payment_id", p.ID, "error", err)
			continue
		}
		report.Refunded++
	}
	return report, nil
}

var (
	_ commands.Handler[PayCommand, *PaymentResult]             = PayHandler{}
	_ commands.Handler[SettleChargeCommand, *SettlementResult] = SettleChargeHandler{}
)
