package booking

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/pricing"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/events"
	"rentguru/internal/domain/shared/money"
)

type RequestID string

type RequestStatus string

const (
	StatusUnknown  RequestStatus = "unknown"
	StatusAccepted RequestStatus = "accept"
	StatusDenied   RequestStatus = "denied"
)

const defaultDeclineReason = "The organizer declined the proposed terms"

// Actor is whoever drives a transition.
type Actor struct {
	UserID string
	Staff  bool
}

// RentalRequest is a proposed booking awaiting the owner's decision. Its
// financial snapshot is computed at creation and only replaced while terms are
// negotiated, before any payment exists.
type RentalRequest struct {
	ID                RequestID
	OrganizerID       string
	OwnerID           string
	ResourceID        resource.ID
	ResourceKind      resource.Kind
	Window            pricing.Window
	Mode              pricing.Mode
	Delivery          bool
	TotalCost         money.Money
	DepositCost       money.Money
	DeliveryCost      money.Money
	CommissionPercent int64
	Financials        incentive.Breakdown
	RequestedBonus    money.Money
	PromoCode         string
	OnRequest         bool
	TermsProposed     bool
	Status            RequestStatus
	DenyReason        string
	Deleted           bool
	CreatedAt         time.Time
	UpdatedAt         time.Time
	Version           int64
	events.EventRecorder
}

type RequestRepository interface {
	ByID(ctx context.Context, id RequestID) (*RentalRequest, error)
	Save(ctx context.Context, req *RentalRequest) error
}

type CreateParams struct {
	ID           RequestID
	OrganizerID  string
	Resource     resource.Resource
	Window       pricing.Window
	Delivery     bool
	Promo        *incentive.PromoCode
	Bonus        money.Money
	BonusBalance money.Money
	Now          time.Time
}

// NewRequest validates the window against the resource, prices it and computes
// the payable snapshot. Nothing is reserved until the request is accepted.
func NewRequest(p CreateParams) (*RentalRequest, []Effect, error) {
	if p.Resource == nil {
		return nil, nil, resource.ErrNotFound
	}
	v := p.Resource.Base()
	if p.OrganizerID == "" {
		return nil, nil, Validation("organizer is required")
	}
	if p.OrganizerID == v.OwnerID {
		return nil, nil, ErrOwnVehicle
	}
	if (p.Window.StartTime == nil) != (p.Window.EndTime == nil) {
		return nil, nil, ErrIncompleteTimes
	}
	if err := p.Window.Dates.Validate(); err != nil {
		return nil, nil, err
	}
	onRequest := v.IsOpenToRequest()
	if !onRequest && !v.Available(p.Window.Dates) {
		return nil, nil, ErrWindowUnavailable
	}

	quote, err := pricing.Calculate(pricing.Input{
		Tariffs:     v.Tariffs,
		Window:      p.Window,
		Delivery:    p.Delivery,
		DeliveryFee: v.DeliveryFee,
	})
	switch {
	case err == nil:
	case onRequest && errors.Is(err, pricing.ErrNoApplicableTariff):
		zero := money.Zero(money.DefaultCurrency)
		quote = pricing.Quote{Mode: pricing.ModeDaily, RentalDays: p.Window.RentalDays(), Rent: zero, Delivery: zero, Total: zero}
	default:
		return nil, nil, err
	}
	if !onRequest && quote.Mode != pricing.ModeHourly {
		if err := v.CheckRentDays(quote.RentalDays); err != nil {
			return nil, nil, err
		}
	}

	financials, err := incentive.Calculate(incentive.Input{
		Total:             quote.Total,
		CommissionPercent: v.CommissionPercent,
		Promo:             p.Promo,
		RequestedBonus:    p.Bonus,
		BonusBalance:      p.BonusBalance,
	})
	if err != nil {
		return nil, nil, err
	}

	now := p.Now.UTC()
	req := &RentalRequest{
		ID:                p.ID,
		OrganizerID:       p.OrganizerID,
		OwnerID:           v.OwnerID,
		ResourceID:        v.ID,
		ResourceKind:      p.Resource.Kind(),
		Window:            p.Window,
		Mode:              quote.Mode,
		Delivery:          p.Delivery,
		TotalCost:         quote.Total,
		DepositCost:       depositOf(v),
		DeliveryCost:      quote.Delivery,
		CommissionPercent: v.CommissionPercent,
		Financials:        financials,
		RequestedBonus:    p.Bonus,
		OnRequest:         onRequest,
		Status:            StatusUnknown,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if p.Promo != nil {
		req.PromoCode = p.Promo.Code
	}
	req.Record(RequestCreated{RequestID: req.ID, ResourceID: req.ResourceID, OrganizerID: req.OrganizerID, Total: req.TotalCost, OnRequest: onRequest, At: now})

	var effects []Effect
	if onRequest {
		effects = append(effects,
			OpenConversation{RequestID: req.ID, Participants: []string{req.OrganizerID, req.OwnerID}},
			PostBookingUpdate{RequestID: req.ID},
		)
	}
	effects = append(effects, Notify{UserID: req.OwnerID, Text: "You have a new rental request", Link: RequestLink(req.ID)})
	return req, effects, nil
}

// Accept is the owner's approval of a dated request.
func (r *RentalRequest) Accept(actor Actor, paymentID PaymentID, now time.Time) (*Payment, []Effect, error) {
	if actor.UserID != r.OwnerID {
		return nil, nil, ErrForbidden
	}
	if r.OnRequest {
		return nil, nil, ErrTermsNotProposed
	}
	return r.accept(paymentID, now)
}

// Deny rejects the request with a reason shown to the organizer.
func (r *RentalRequest) Deny(actor Actor, reason string, now time.Time) ([]Effect, error) {
	if actor.UserID != r.OwnerID {
		return nil, ErrForbidden
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrReasonRequired
	}
	if r.Status != StatusUnknown {
		return nil, ErrInvalidTransition
	}
	r.deny(reason, now)
	return []Effect{
		PostBookingUpdate{RequestID: r.ID},
		Notify{UserID: r.OrganizerID, Text: "Your rental request was declined: " + reason, Link: RequestLink(r.ID)},
	}, nil
}

// Terms are concrete dates and costs proposed by the owner of an open-to-request resource.
type Terms struct {
	Window     pricing.Window
	Quote      pricing.Quote
	Deposit    money.Money
	Financials incentive.Breakdown
}

// ProposeTerms replaces the snapshot of an open-to-request request and reopens it if it was denied.
func (r *RentalRequest) ProposeTerms(actor Actor, terms Terms, now time.Time) ([]Effect, error) {
	if actor.UserID != r.OwnerID {
		return nil, ErrForbidden
	}
	if !r.OnRequest {
		return nil, ErrInvalidTransition
	}
	if r.Status != StatusUnknown && r.Status != StatusDenied {
		return nil, ErrInvalidTransition
	}
	if err := terms.Window.Dates.Validate(); err != nil {
		return nil, err
	}
	r.Window = terms.Window
	r.Mode = terms.Quote.Mode
	r.TotalCost = terms.Quote.Total
	r.DeliveryCost = terms.Quote.Delivery
	r.DepositCost = terms.Deposit
	r.Financials = terms.Financials
	r.TermsProposed = true
	r.Status = StatusUnknown
	r.DenyReason = ""
	r.UpdatedAt = now.UTC()
	return []Effect{
		PostBookingUpdate{RequestID: r.ID},
		Notify{UserID: r.OrganizerID, Text: "The owner proposed terms for your request", Link: RequestLink(r.ID)},
	}, nil
}

// ConfirmTerms is the organizer accepting owner-proposed terms.
func (r *RentalRequest) ConfirmTerms(actor Actor, paymentID PaymentID, now time.Time) (*Payment, []Effect, error) {
	if actor.UserID != r.OrganizerID {
		return nil, nil, ErrForbidden
	}
	if !r.OnRequest {
		return nil, nil, ErrInvalidTransition
	}
	if !r.TermsProposed {
		return nil, nil, ErrTermsNotProposed
	}
	return r.accept(paymentID, now)
}

// DeclineTerms is the organizer rejecting owner-proposed terms.
func (r *RentalRequest) DeclineTerms(actor Actor, reason string, now time.Time) ([]Effect, error) {
	if actor.UserID != r.OrganizerID {
		return nil, ErrForbidden
	}
	if !r.OnRequest || r.Status != StatusUnknown {
		return nil, ErrInvalidTransition
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = defaultDeclineReason
	}
	r.deny(reason, now)
	return []Effect{
		PostBookingUpdate{RequestID: r.ID},
		Notify{UserID: r.OwnerID, Text: "The organizer declined your terms: " + reason, Link: RequestLink(r.ID)},
	}, nil
}

func (r *RentalRequest) accept(paymentID PaymentID, now time.Time) (*Payment, []Effect, error) {
	if r.Status != StatusUnknown {
		return nil, nil, ErrInvalidTransition
	}
	now = now.UTC()
	r.Status = StatusAccepted
	r.UpdatedAt = now
	payment := newPayment(paymentID, r, now)
	r.Record(RequestAccepted{RequestID: r.ID, PaymentID: payment.ID, Amount: payment.Amount, At: now})

	var effects []Effect
	if !r.OnRequest {
		effects = append(effects, ReserveWindow{ResourceID: r.ResourceID, Range: r.Window.Dates})
	}
	if r.PromoCode != "" {
		effects = append(effects, ClaimPromo{Code: r.PromoCode, UserID: r.OrganizerID})
	}
	if r.Financials.Bonus.IsPositive() {
		effects = append(effects, DebitBonus{UserID: r.OrganizerID, Amount: r.Financials.Bonus})
	}
	effects = append(effects,
		OpenConversation{RequestID: r.ID, Participants: []string{r.OrganizerID, r.OwnerID}},
		InitiateCharge{PaymentID: payment.ID},
		PostBookingUpdate{RequestID: r.ID},
		Notify{UserID: r.OrganizerID, Text: "Your rental request was accepted, proceed to payment", Link: RequestLink(r.ID)},
	)
	return payment, effects, nil
}

func (r *RentalRequest) deny(reason string, now time.Time) {
	now = now.UTC()
	r.Status = StatusDenied
	r.DenyReason = reason
	r.UpdatedAt = now
	r.Record(RequestDenied{RequestID: r.ID, Reason: reason, At: now})
}

// IsParticipant reports whether the actor may see the request.
func (r *RentalRequest) IsParticipant(actor Actor) bool {
	return actor.Staff || actor.UserID == r.OrganizerID || actor.UserID == r.OwnerID
}

func RequestLink(id RequestID) string {
	return "/requests/" + string(id)
}

func depositOf(v *resource.Vehicle) money.Money {
	if v.Deposit.Currency == "" {
		return money.Zero(money.DefaultCurrency)
	}
	return v.Deposit
}
