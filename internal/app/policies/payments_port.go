package policies

import (
	"context"

	"rentguru/internal/domain/shared/money"
)

// ChargeStatus is the gateway's view of a charge.
type ChargeStatus string

const (
	ChargeNew             ChargeStatus = "NEW"
	ChargeFormShowed      ChargeStatus = "FORM_SHOWED"
	ChargeAuthorizing     ChargeStatus = "AUTHORIZING"
	ChargeAuthorized      ChargeStatus = "AUTHORIZED"
	ChargeConfirmed       ChargeStatus = "CONFIRMED"
	ChargeRejected        ChargeStatus = "REJECTED"
	ChargeCanceled        ChargeStatus = "CANCELED"
	ChargeDeadlineExpired ChargeStatus = "DEADLINE_EXPIRED"
	ChargeRefunded        ChargeStatus = "REFUNDED"
)

// InProgress reports whether the renter can still complete the charge.
func (s ChargeStatus) InProgress() bool {
	switch s {
	case ChargeNew, ChargeFormShowed, ChargeAuthorizing, ChargeAuthorized:
		return true
	}
	return false
}

// Failed reports a terminal unsuccessful status.
func (s ChargeStatus) Failed() bool {
	switch s {
	case ChargeRejected, ChargeCanceled, ChargeDeadlineExpired:
		return true
	}
	return false
}

type ChargeRequest struct {
	OrderRef    string
	Amount      money.Money
	Description string
	CustomerID  string
}

type Charge struct {
	ID          string
	RedirectURL string
}

// PaymentGateway is the external card processor.
type PaymentGateway interface {
	CreateCharge(ctx context.Context, req ChargeRequest) (Charge, error)
	// CancelCharge refunds or voids a charge; false means the provider refused.
	CancelCharge(ctx context.Context, chargeID string, amount money.Money) (bool, error)
	ChargeState(ctx context.Context, chargeID string) (ChargeStatus, error)
}
