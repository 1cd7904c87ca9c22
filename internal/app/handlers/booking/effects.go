package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"rentguru/internal/app/dto"
	"rentguru/internal/app/policies"
	"rentguru/internal/app/uow"
	domainbooking "rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

var (
	ErrGatewayNotConfigured = errors.New("booking: payment gateway not configured")
	ErrRefundRefused        = errors.New("booking: the payment provider refused the refund")
)

// apply runs transactional effects now, in order, and schedules the deferred
// ones to run after commit.
func (e *Engine) apply(ctx context.Context, unit uow.UnitOfWork, effects []domainbooking.Effect) error {
	tx, deferred := domainbooking.Split(effects)
	now := e.now()
	for _, eff := range tx {
		if err := e.applyTx(ctx, unit, eff, now); err != nil {
			return err
		}
	}
	if len(deferred) > 0 {
		e.afterCommit(ctx, func(ctx context.Context) error {
			e.runDeferred(ctx, deferred)
			return nil
		})
	}
	return nil
}

func (e *Engine) applyTx(ctx context.Context, unit uow.UnitOfWork, eff domainbooking.Effect, now time.Time) error {
	switch eff := eff.(type) {
	case domainbooking.ReserveWindow:
		res, err := unit.Resources().ByID(ctx, eff.ResourceID)
		if err != nil {
			return err
		}
		if err := res.Base().Reserve(eff.Range, now); err != nil {
			if errors.Is(err, daterange.ErrNotContained) {
				return domainbooking.ErrWindowNoLongerAvailable
			}
			return err
		}
		return unit.Resources().Save(ctx, res)
	case domainbooking.RestoreWindow:
		res, err := unit.Resources().ByID(ctx, eff.ResourceID)
		if err != nil {
			return err
		}
		res.Base().Restore(eff.Range, now)
		return unit.Resources().Save(ctx, res)
	case domainbooking.ClaimPromo:
		return unit.PromoUsages().Claim(ctx, eff.Code, eff.UserID, now)
	case domainbooking.ReleasePromo:
		return unit.PromoUsages().Release(ctx, eff.Code, eff.UserID)
	case domainbooking.DebitBonus:
		return unit.Accounts().AdjustBonus(ctx, eff.UserID, eff.Amount.Neg())
	case domainbooking.CreditBonus:
		return unit.Accounts().AdjustBonus(ctx, eff.UserID, eff.Amount)
	case domainbooking.RecordTripStats:
		return e.recordTripStats(ctx, unit, eff, now)
	case domainbooking.PayoutPartners:
		for _, userID := range []string{eff.OrganizerID, eff.OwnerID} {
			if err := e.payout(ctx, unit, userID, eff.Amount); err != nil {
				return err
			}
		}
		return nil
	case domainbooking.OpenConversation:
		return e.openConversation(ctx, unit, eff, now)
	default:
		return fmt.Errorf("booking: unexpected transactional effect %T", eff)
	}
}

func (e *Engine) recordTripStats(ctx context.Context, unit uow.UnitOfWork, eff domainbooking.RecordTripStats, now time.Time) error {
	res, err := unit.Resources().ByID(ctx, eff.ResourceID)
	if err != nil {
		return err
	}
	if eff.Outcome != domainbooking.TripFinished {
		res.Base().RecordCanceledTrip(now)
		return unit.Resources().Save(ctx, res)
	}
	res.Base().RecordFinishedTrip(now)
	if err := unit.Resources().Save(ctx, res); err != nil {
		return err
	}
	owner, err := e.account(ctx, unit, eff.OwnerID)
	if err != nil {
		return err
	}
	owner.RecordTrip(now)
	return unit.Accounts().Save(ctx, owner)
}

// account loads the user's account, creating an empty one on first use.
func (e *Engine) account(ctx context.Context, unit uow.UnitOfWork, userID string) (*incentive.Account, error) {
	acct, err := unit.Accounts().ByUser(ctx, userID)
	if errors.Is(err, incentive.ErrAccountNotFound) {
		acct = incentive.NewAccount(userID)
		if err := unit.Accounts().Save(ctx, acct); err != nil {
			return nil, err
		}
		return acct, nil
	}
	return acct, err
}

func (e *Engine) payout(ctx context.Context, unit uow.UnitOfWork, userID string, amount money.Money) error {
	acct, err := unit.Accounts().ByUser(ctx, userID)
	if errors.Is(err, incentive.ErrAccountNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if acct.ReferredBy == "" {
		return nil
	}
	partner, err := unit.Partners().ByID(ctx, acct.ReferredBy)
	if errors.Is(err, incentive.ErrPartnerNotFound) {
		e.log().WarnContext(ctx, "referral partner missing", "partner_id", acct.ReferredBy, "user_id", userID)
		return nil
	}
	if err != nil {
		return err
	}
	share := partner.Payout(amount)
	if !share.IsPositive() {
		return nil
	}
	return unit.Partners().Credit(ctx, partner.ID, share)
}

func (e *Engine) openConversation(ctx context.Context, unit uow.UnitOfWork, eff domainbooking.OpenConversation, now time.Time) error {
	_, err := unit.Conversations().ByRequest(ctx, eff.RequestID)
	if err == nil {
		return nil
	}
	if !errors.Is(err, chat.ErrConversationNotFound) {
		return err
	}
	if len(eff.Participants) != 2 {
		return fmt.Errorf("booking: conversation needs organizer and owner, got %d participants", len(eff.Participants))
	}
	conv := chat.NewBookingConversation(chat.ConversationID(e.newID()), eff.RequestID, eff.Participants[0], eff.Participants[1], now)
	return unit.Conversations().Save(ctx, conv)
}

// runDeferred performs after-commit effects. Failures are logged and never
// undo the committed transition.
func (e *Engine) runDeferred(ctx context.Context, effects []domainbooking.Effect) {
	for _, eff := range effects {
		switch eff := eff.(type) {
		case domainbooking.InitiateCharge:
			if _, err := e.charge(ctx, eff.PaymentID); err != nil {
				e.log().WarnContext(ctx, "charge not created", "payment_id", eff.PaymentID, "error", err)
			}
		case domainbooking.RefundCharge:
			if err := e.refund(ctx, eff.PaymentID); err != nil {
				e.log().WarnContext(ctx, "refund not completed, left for reconciliation", "payment_id", eff.PaymentID, "error", err)
			}
		case domainbooking.PostBookingUpdate:
			if err := e.postUpdate(ctx, eff.RequestID); err != nil {
				e.log().WarnContext(ctx, "booking card not posted", "request_id", eff.RequestID, "error", err)
			}
		case domainbooking.Notify:
			e.notify(ctx, eff)
		}
	}
}

// charge creates the gateway charge for a pending payment that has none yet.
func (e *Engine) charge(ctx context.Context, id domainbooking.PaymentID) (*domainbooking.Payment, error) {
	var (
		p   *domainbooking.Payment
		req *domainbooking.RentalRequest
	)
	err := e.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		if p, err = unit.Payments().ByID(ctx, id); err != nil {
			return err
		}
		req, err = unit.Requests().ByID(ctx, p.RequestID)
		return err
	})
	if err != nil {
		return nil, err
	}
	if p.Status != domainbooking.PaymentPending || p.ChargeID != "" {
		return p, nil
	}
	if e.Gateway == nil {
		return p, ErrGatewayNotConfigured
	}
	now := e.now()
	orderRef := p.OrderRefAt(now)
	ch, err := e.Gateway.CreateCharge(ctx, policies.ChargeRequest{
		OrderRef:    orderRef,
		Amount:      p.Amount,
		Description: fmt.Sprintf("Rental of %s, %s", req.ResourceID, req.Window.Dates),
		CustomerID:  p.OrganizerID,
	})
	if err != nil {
		return p, fmt.Errorf("%w: %w", domainbooking.ErrGatewayPending, err)
	}

	var out *domainbooking.Payment
	err = e.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		fresh, err := unit.Payments().ByID(ctx, id)
		if err != nil {
			return err
		}
		if fresh.ChargeID == "" {
			fresh.AttachCharge(ch.ID, ch.RedirectURL, orderRef, now)
			if err := unit.Payments().Save(ctx, fresh); err != nil {
				return err
			}
		}
		out = fresh
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.log().InfoContext(ctx, "charge created", "payment_id", id, "charge_id", out.ChargeID)
	return out, nil
}

// refund cancels the charge of a payment waiting for its refund.
func (e *Engine) refund(ctx context.Context, id domainbooking.PaymentID) error {
	var p *domainbooking.Payment
	err := e.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		p, err = unit.Payments().ByID(ctx, id)
		return err
	})
	if err != nil {
		return err
	}
	if !p.RefundPending {
		return nil
	}
	if e.Gateway == nil {
		return ErrGatewayNotConfigured
	}
	ok, err := e.Gateway.CancelCharge(ctx, p.ChargeID, p.Amount)
	if err != nil {
		return fmt.Errorf("%w: %w", domainbooking.ErrGatewayPending, err)
	}
	if !ok {
		return ErrRefundRefused
	}
	return e.confirmRefund(ctx, id)
}

func (e *Engine) confirmRefund(ctx context.Context, id domainbooking.PaymentID) error {
	return e.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		fresh, err := unit.Payments().ByID(ctx, id)
		if err != nil {
			return err
		}
		if !fresh.RefundPending {
			return nil
		}
		if err := fresh.ConfirmRefund(e.now()); err != nil {
			return err
		}
		e.log().InfoContext(ctx, "payment refunded", "payment_id", id)
		return unit.Payments().Save(ctx, fresh)
	})
}

// postUpdate writes the current request card into the booking conversation.
func (e *Engine) postUpdate(ctx context.Context, id domainbooking.RequestID) error {
	if e.Messages == nil {
		return nil
	}
	var (
		req  *domainbooking.RentalRequest
		conv *chat.Conversation
	)
	err := e.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		var err error
		if req, err = unit.Requests().ByID(ctx, id); err != nil {
			return err
		}
		conv, err = unit.Conversations().ByRequest(ctx, id)
		return err
	})
	if errors.Is(err, chat.ErrConversationNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	msg, err := chat.NewCardMessage(chat.MessageID(e.newID()), conv.ID, req, e.now())
	if err != nil {
		return err
	}
	if e.Locker != nil {
		unlock, err := e.Locker.Lock(ctx, policies.ConversationLockKey(string(conv.ID)))
		if err != nil {
			return err
		}
		defer unlock()
	}
	if err := e.Messages.Append(ctx, msg); err != nil {
		return err
	}
	if e.Publisher == nil {
		return nil
	}
	return e.Publisher.PublishMessage(ctx, msg)
}

func (e *Engine) notify(ctx context.Context, n domainbooking.Notify) {
	if e.Notifier == nil {
		e.log().DebugContext(ctx, "notification dropped, no notifier", "user_id", n.UserID, "text", n.Text)
		return
	}
	if err := e.Notifier.Notify(ctx, n.UserID, n.Text, n.Link); err != nil {
		e.log().WarnContext(ctx, "notification failed", "user_id", n.UserID, "error", err)
	}
}

// refreshPayment reloads a payment view after deferred effects touched it.
func (e *Engine) refreshPayment(ctx context.Context, id domainbooking.PaymentID, dst **dto.PaymentView) {
	err := e.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		fresh, err := unit.Payments().ByID(ctx, id)
		if err != nil {
			return err
		}
		view := dto.Payment(fresh)
		*dst = &view
		return nil
	})
	if err != nil {
		e.log().WarnContext(ctx, "payment view not refreshed", "payment_id", id, "error", err)
	}
}
