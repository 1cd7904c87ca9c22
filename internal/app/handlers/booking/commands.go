package booking

import (
	"strings"

	"rentguru/internal/app/middleware"
	domainbooking "rentguru/internal/domain/booking"
)

const (
	CreateRequestKey = "booking.create_request"
	AcceptRequestKey = "booking.accept_request"
	DenyRequestKey   = "booking.deny_request"
	ProposeTermsKey  = "booking.propose_terms"
	ConfirmTermsKey  = "booking.confirm_terms"
	DeclineTermsKey  = "booking.decline_terms"
	PayKey           = "booking.pay"
	SettleChargeKey  = "booking.settle_charge"
	CancelTripKey    = "booking.cancel_trip"
	FinishTripKey    = "booking.finish_trip"
	ApplyPromoKey    = "booking.apply_promo"
	OpenSupportKey   = "booking.open_support"
)

type CreateRequestCommand struct {
	Actor      domainbooking.Actor
	ResourceID string
	StartDate  string
	EndDate    string
	StartTime  string
	EndTime    string
	Delivery   bool
	PromoCode  string
	Bonus      string

	IdempotencyKeyV string
}

func (CreateRequestCommand) Key() string              { return CreateRequestKey }
func (c CreateRequestCommand) ActorID() string        { return c.Actor.UserID }
func (c CreateRequestCommand) IdempotencyKey() string { return c.IdempotencyKeyV }
func (CreateRequestCommand) ResultPrototype() any     { return &RequestResult{} }

func (c CreateRequestCommand) Validate() error {
	if strings.TrimSpace(c.ResourceID) == "" {
		return domainbooking.Validation("vehicle is required")
	}
	if c.StartDate == "" || c.EndDate == "" {
		return domainbooking.Validation("start and end dates are required")
	}
	return nil
}

type AcceptRequestCommand struct {
	Actor     domainbooking.Actor
	RequestID string

	IdempotencyKeyV string
}

func (AcceptRequestCommand) Key() string              { return AcceptRequestKey }
func (c AcceptRequestCommand) ActorID() string        { return c.Actor.UserID }
func (c AcceptRequestCommand) IdempotencyKey() string { return c.IdempotencyKeyV }
func (AcceptRequestCommand) ResultPrototype() any     { return &DecisionResult{} }

type DenyRequestCommand struct {
	Actor     domainbooking.Actor
	RequestID string
	Reason    string
}

func (DenyRequestCommand) Key() string       { return DenyRequestKey }
func (c DenyRequestCommand) ActorID() string { return c.Actor.UserID }

// ProposeTermsCommand carries concrete terms from the owner of an
// open-to-request vehicle. TotalCost overrides tariff pricing when given.
type ProposeTermsCommand struct {
	Actor     domainbooking.Actor
	RequestID string
	StartDate string
	EndDate   string
	StartTime string
	EndTime   string
	Delivery  bool
	TotalCost string
	Deposit   string
}

func (ProposeTermsCommand) Key() string       { return ProposeTermsKey }
func (c ProposeTermsCommand) ActorID() string { return c.Actor.UserID }

func (c ProposeTermsCommand) Validate() error {
	if c.StartDate == "" || c.EndDate == "" {
		return domainbooking.Validation("start and end dates are required")
	}
	return nil
}

type ConfirmTermsCommand struct {
	Actor     domainbooking.Actor
	RequestID string
}

func (ConfirmTermsCommand) Key() string       { return ConfirmTermsKey }
func (c ConfirmTermsCommand) ActorID() string { return c.Actor.UserID }

type DeclineTermsCommand struct {
	Actor     domainbooking.Actor
	RequestID string
	Reason    string
}

func (DeclineTermsCommand) Key() string       { return DeclineTermsKey }
func (c DeclineTermsCommand) ActorID() string { return c.Actor.UserID }

type PayCommand struct {
	Actor     domainbooking.Actor
	RequestID string

	IdempotencyKeyV string
}

func (PayCommand) Key() string              { return PayKey }
func (c PayCommand) ActorID() string        { return c.Actor.UserID }
func (c PayCommand) IdempotencyKey() string { return c.IdempotencyKeyV }
func (PayCommand) ResultPrototype() any     { return &PaymentResult{} }

// SettleChargeCommand is a verified gateway notification. Amount is in minor units.
type SettleChargeCommand struct {
	ChargeID string
	Status   string
	Amount   int64
}

func (SettleChargeCommand) Key() string { return SettleChargeKey }

func (c SettleChargeCommand) IdempotencyKey() string {
	return c.ChargeID + ":" + c.Status
}

func (SettleChargeCommand) ResultPrototype() any { return &SettlementResult{} }

func (c SettleChargeCommand) Validate() error {
	if c.ChargeID == "" || c.Status == "" {
		return domainbooking.Validation("payment id and status are required")
	}
	return nil
}

type CancelTripCommand struct {
	Actor  domainbooking.Actor
	TripID string
}

func (CancelTripCommand) Key() string       { return CancelTripKey }
func (c CancelTripCommand) ActorID() string { return c.Actor.UserID }

type FinishTripCommand struct {
	Actor  domainbooking.Actor
	TripID string
}

func (FinishTripCommand) Key() string       { return FinishTripKey }
func (c FinishTripCommand) ActorID() string { return c.Actor.UserID }

type ApplyPromoCommand struct {
	Actor domainbooking.Actor
	Code  string
}

func (ApplyPromoCommand) Key() string       { return ApplyPromoKey }
func (c ApplyPromoCommand) ActorID() string { return c.Actor.UserID }

func (c ApplyPromoCommand) Validate() error {
	if strings.TrimSpace(c.Code) == "" {
		return domainbooking.Validation("promo code is required")
	}
	return nil
}

type OpenSupportCommand struct {
	Actor       domainbooking.Actor
	Topic       string
	Description string
}

func (OpenSupportCommand) Key() string       { return OpenSupportKey }
func (c OpenSupportCommand) ActorID() string { return c.Actor.UserID }

var (
	_ middleware.IdempotentCommand = CreateRequestCommand{}
	_ middleware.IdempotentCommand = AcceptRequestCommand{}
	_ middleware.IdempotentCommand = PayCommand{}
	_ middleware.IdempotentCommand = SettleChargeCommand{}
	_ middleware.Actored           = CreateRequestCommand{}
)
