package booking

import (
	"context"
	"errors"
	"time"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	"rentguru/internal/app/uow"
	domainbooking "rentguru/internal/domain/booking"
	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/pricing"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

type (
	RequestResult  = dto.RequestView
	DecisionResult = dto.Decision
)

type CreateRequestHandler struct{ *Engine }

func (h CreateRequestHandler) Handle(ctx context.Context, cmd CreateRequestCommand) (*RequestResult, error) {
	window, err := parseWindow(cmd.StartDate, cmd.EndDate, cmd.StartTime, cmd.EndTime)
	if err != nil {
		return nil, err
	}
	bonus := money.Zero(money.DefaultCurrency)
	if cmd.Bonus != "" {
		if bonus, err = money.Parse(cmd.Bonus, money.DefaultCurrency); err != nil {
			return nil, err
		}
	}

	var out RequestResult
	err = h.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.now()
		res, err := unit.Resources().ByID(ctx, resource.ID(cmd.ResourceID))
		if err != nil {
			return err
		}
		promo, err := h.percentPromo(ctx, unit, cmd.PromoCode, cmd.Actor.UserID, now)
		if err != nil {
			return err
		}
		balance, err := h.bonusBalance(ctx, unit, cmd.Actor.UserID)
		if err != nil {
			return err
		}

		req, effects, err := domainbooking.NewRequest(domainbooking.CreateParams{
			ID:           domainbooking.RequestID(h.newID()),
			OrganizerID:  cmd.Actor.UserID,
			Resource:     res,
			Window:       window,
			Delivery:     cmd.Delivery,
			Promo:        promo,
			Bonus:        bonus,
			BonusBalance: balance,
			Now:          now,
		})
		if err != nil {
			return err
		}
		if err := unit.Requests().Save(ctx, req); err != nil {
			return err
		}
		if err := h.apply(ctx, unit, effects); err != nil {
			return err
		}
		if err := h.record(ctx, req); err != nil {
			return err
		}
		h.log().InfoContext(ctx, "rental request created", "request_id", req.ID, "resource_id", req.ResourceID, "on_request", req.OnRequest)
		out = dto.Request(req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// percentPromo resolves a request-time promo code. A code already redeemed by
// the user is refused here and again, atomically, when the request is accepted.
func (e *Engine) percentPromo(ctx context.Context, unit uow.UnitOfWork, raw, userID string, now time.Time) (*incentive.PromoCode, error) {
	code := incentive.NormalizeCode(raw)
	if code == "" {
		return nil, nil
	}
	promo, err := unit.Promos().ByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	if err := promo.Usable(incentive.PromoPercent, now); err != nil {
		return nil, err
	}
	used, err := unit.PromoUsages().Used(ctx, code, userID)
	if err != nil {
		return nil, err
	}
	if used {
		return nil, incentive.ErrPromoAlreadyUsed
	}
	return &promo, nil
}

func (e *Engine) bonusBalance(ctx context.Context, unit uow.UnitOfWork, userID string) (money.Money, error) {
	acct, err := unit.Accounts().ByUser(ctx, userID)
	if errors.Is(err, incentive.ErrAccountNotFound) {
		return money.Zero(money.DefaultCurrency), nil
	}
	if err != nil {
		return money.Money{}, err
	}
	return acct.Bonus, nil
}

type AcceptRequestHandler struct{ *Engine }

// Handle accepts a dated request. The resource lock is taken before the unit
// reads anything and held until it closes, so concurrent accepts on the same
// vehicle observe each other's reservations.
func (h AcceptRequestHandler) Handle(ctx context.Context, cmd AcceptRequestCommand) (*DecisionResult, error) {
	var out DecisionResult
	err := h.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		id := domainbooking.RequestID(cmd.RequestID)
		var target *domainbooking.RentalRequest
		err := h.peek(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
			var err error
			target, err = unit.Requests().ByID(ctx, id)
			return err
		})
		if err != nil {
			return err
		}
		if cmd.Actor.UserID != target.OwnerID {
			return domainbooking.ErrForbidden
		}
		if !target.OnRequest {
			if err := h.lockResource(ctx, target.ResourceID); err != nil {
				return err
			}
		}
		req, err := unit.Requests().ByID(ctx, id)
		if err != nil {
			return err
		}
		payment, effects, err := req.Accept(cmd.Actor, domainbooking.PaymentID(h.newID()), h.now())
		if err != nil {
			return err
		}
		return h.decide(ctx, unit, req, payment, effects, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// decide persists an accepted request with its new payment. The payment view
// is refreshed after commit so it carries the charge redirect.
func (e *Engine) decide(ctx context.Context, unit uow.UnitOfWork, req *domainbooking.RentalRequest, payment *domainbooking.Payment, effects []domainbooking.Effect, out *DecisionResult) error {
	if err := unit.Requests().Save(ctx, req); err != nil {
		return err
	}
	if err := unit.Payments().Save(ctx, payment); err != nil {
		return err
	}
	if err := e.apply(ctx, unit, effects); err != nil {
		return err
	}
	if err := e.record(ctx, req, payment); err != nil {
		return err
	}
	e.log().InfoContext(ctx, "rental request accepted", "request_id", req.ID, "resource_id", req.ResourceID, "payment_id", payment.ID)
	out.Request = dto.Request(req)
	view := dto.Payment(payment)
	out.Payment = &view
	paymentID := payment.ID
	e.afterCommit(ctx, func(ctx context.Context) error {
		e.refreshPayment(ctx, paymentID, &out.Payment)
		return nil
	})
	return nil
}

type DenyRequestHandler struct{ *Engine }

func (h DenyRequestHandler) Handle(ctx context.Context, cmd DenyRequestCommand) (*RequestResult, error) {
	return h.transition(ctx, cmd.RequestID, func(req *domainbooking.RentalRequest) ([]domainbooking.Effect, error) {
		return req.Deny(cmd.Actor, cmd.Reason, h.now())
	})
}

type DeclineTermsHandler struct{ *Engine }

func (h DeclineTermsHandler) Handle(ctx context.Context, cmd DeclineTermsCommand) (*RequestResult, error) {
	return h.transition(ctx, cmd.RequestID, func(req *domainbooking.RentalRequest) ([]domainbooking.Effect, error) {
		return req.DeclineTerms(cmd.Actor, cmd.Reason, h.now())
	})
}

// transition applies a request-only transition and persists the result.
func (e *Engine) transition(ctx context.Context, requestID string, fn func(*domainbooking.RentalRequest) ([]domainbooking.Effect, error)) (*RequestResult, error) {
	var out RequestResult
	err := e.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		req, err := unit.Requests().ByID(ctx, domainbooking.RequestID(requestID))
		if err != nil {
			return err
		}
		effects, err := fn(req)
		if err != nil {
			return err
		}
		if err := unit.Requests().Save(ctx, req); err != nil {
			return err
		}
		if err := e.apply(ctx, unit, effects); err != nil {
			return err
		}
		if err := e.record(ctx, req); err != nil {
			return err
		}
		e.log().InfoContext(ctx, "rental request updated", "request_id", req.ID, "status", req.Status)
		out = dto.Request(req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type ProposeTermsHandler struct{ *Engine }

func (h ProposeTermsHandler) Handle(ctx context.Context, cmd ProposeTermsCommand) (*RequestResult, error) {
	window, err := parseWindow(cmd.StartDate, cmd.EndDate, cmd.StartTime, cmd.EndTime)
	if err != nil {
		return nil, err
	}
	var out RequestResult
	err = h.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		now := h.now()
		req, err := unit.Requests().ByID(ctx, domainbooking.RequestID(cmd.RequestID))
		if err != nil {
			return err
		}
		if cmd.Actor.UserID != req.OwnerID {
			return domainbooking.ErrForbidden
		}
		res, err := unit.Resources().ByID(ctx, req.ResourceID)
		if err != nil {
			return err
		}
		terms, err := h.terms(ctx, unit, req, res.Base(), window, cmd, now)
		if err != nil {
			return err
		}
		effects, err := req.ProposeTerms(cmd.Actor, terms, now)
		if err != nil {
			return err
		}
		if err := unit.Requests().Save(ctx, req); err != nil {
			return err
		}
		if err := h.apply(ctx, unit, effects); err != nil {
			return err
		}
		h.log().InfoContext(ctx, "terms proposed", "request_id", req.ID, "total", req.TotalCost.String())
		out = dto.Request(req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// terms prices the proposed window with the vehicle's tariffs unless the owner
// named a total, then recomputes the payable snapshot. Requested bonus is
// capped by the current balance.
func (e *Engine) terms(ctx context.Context, unit uow.UnitOfWork, req *domainbooking.RentalRequest, v *resource.Vehicle, window pricing.Window, cmd ProposeTermsCommand, now time.Time) (domainbooking.Terms, error) {
	var quote pricing.Quote
	if cmd.TotalCost != "" {
		rent, err := money.Parse(cmd.TotalCost, money.DefaultCurrency)
		if err != nil {
			return domainbooking.Terms{}, err
		}
		delivery := money.Zero(money.DefaultCurrency)
		if cmd.Delivery && v.DeliveryFee.Currency != "" {
			delivery = v.DeliveryFee
		}
		total, err := rent.Add(delivery)
		if err != nil {
			return domainbooking.Terms{}, err
		}
		quote = pricing.Quote{Mode: pricing.ModeDaily, RentalDays: window.RentalDays(), Rent: rent, Delivery: delivery, Total: total}
	} else {
		var err error
		quote, err = pricing.Calculate(pricing.Input{Tariffs: v.Tariffs, Window: window, Delivery: cmd.Delivery, DeliveryFee: v.DeliveryFee})
		if err != nil {
			return domainbooking.Terms{}, err
		}
	}

	deposit := v.Deposit
	if deposit.Currency == "" {
		deposit = money.Zero(money.DefaultCurrency)
	}
	if cmd.Deposit != "" {
		var err error
		if deposit, err = money.Parse(cmd.Deposit, money.DefaultCurrency); err != nil {
			return domainbooking.Terms{}, err
		}
	}

	var promo *incentive.PromoCode
	if req.PromoCode != "" {
		p, err := unit.Promos().ByCode(ctx, req.PromoCode)
		if err != nil {
			return domainbooking.Terms{}, err
		}
		promo = &p
	}
	balance, err := e.bonusBalance(ctx, unit, req.OrganizerID)
	if err != nil {
		return domainbooking.Terms{}, err
	}
	requested := req.RequestedBonus
	if requested.Currency == "" {
		requested = money.Zero(money.DefaultCurrency)
	}
	financials, err := incentive.Calculate(incentive.Input{
		Total:             quote.Total,
		CommissionPercent: req.CommissionPercent,
		Promo:             promo,
		RequestedBonus:    requested,
		BonusBalance:      balance,
	})
	if err != nil {
		return domainbooking.Terms{}, err
	}
	return domainbooking.Terms{Window: window, Quote: quote, Deposit: deposit, Financials: financials}, nil
}

type ConfirmTermsHandler struct{ *Engine }

// Handle accepts owner-proposed terms. Open-to-request vehicles keep no
// calendar, so no resource lock is needed.
func (h ConfirmTermsHandler) Handle(ctx context.Context, cmd ConfirmTermsCommand) (*DecisionResult, error) {
	var out DecisionResult
	err := h.within(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		req, err := unit.Requests().ByID(ctx, domainbooking.RequestID(cmd.RequestID))
		if err != nil {
			return err
		}
		payment, effects, err := req.ConfirmTerms(cmd.Actor, domainbooking.PaymentID(h.newID()), h.now())
		if err != nil {
			return err
		}
		return h.decide(ctx, unit, req, payment, effects, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func parseWindow(startDate, endDate, startTime, endTime string) (pricing.Window, error) {
	dates, err := daterange.Parse(startDate, endDate)
	if err != nil {
		return pricing.Window{}, err
	}
	w := pricing.Window{Dates: dates}
	if startTime != "" {
		c, err := daterange.ParseClock(startTime)
		if err != nil {
			return pricing.Window{}, err
		}
		w.StartTime = &c
	}
	if endTime != "" {
		c, err := daterange.ParseClock(endTime)
		if err != nil {
			return pricing.Window{}, err
		}
		w.EndTime = &c
	}
	return w, nil
}

var (
	_ commands.Handler[CreateRequestCommand, *RequestResult]  = CreateRequestHandler{}
	_ commands.Handler[AcceptRequestCommand, *DecisionResult] = AcceptRequestHandler{}
	_ commands.Handler[DenyRequestCommand, *RequestResult]    = DenyRequestHandler{}
	_ commands.Handler[ProposeTermsCommand, *RequestResult]   = ProposeTermsHandler{}
	_ commands.Handler[ConfirmTermsCommand, *DecisionResult]  = ConfirmTermsHandler{}
	_ commands.Handler[DeclineTermsCommand, *RequestResult]   = DeclineTermsHandler{}
)
