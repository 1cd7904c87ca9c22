package booking

import (
	"errors"
	"strings"

	"rentguru/internal/domain/incentive"
	"rentguru/internal/domain/pricing"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

var (
	ErrRequestNotFound         = errors.New("booking: rental request not found")
	ErrPaymentNotFound         = errors.New("booking: payment not found")
	ErrTripNotFound            = errors.New("booking: trip not found")
	ErrInvalidTransition       = errors.New("booking: invalid state transition")
	ErrForbidden               = errors.New("booking: actor is not allowed to perform this action")
	ErrReasonRequired          = errors.New("booking: a reason is required to deny a request")
	ErrWindowUnavailable       = errors.New("booking: the requested period is not available for this vehicle")
	ErrWindowNoLongerAvailable = errors.New("booking: the requested period is no longer available")
	ErrOwnVehicle              = errors.New("booking: owners cannot rent their own vehicle")
	ErrIncompleteTimes         = errors.New("booking: start and end time must be given together")
	ErrTermsNotProposed        = errors.New("booking: the owner has not proposed terms yet")
	ErrPaymentSettled          = errors.New("booking: payment is already settled")
	ErrRebillNotAllowed        = errors.New("booking: payment cannot be re-billed")
	ErrGatewayPending          = errors.New("payment pending, retry")
	ErrConcurrentUpdate        = errors.New("booking: record was modified concurrently")
)

// Kind classifies errors for callers. The zero kind is an internal failure.
type Kind string

const (
	KindValidation Kind = "validation"
	KindConflict   Kind = "conflict"
	KindGateway    Kind = "gateway"
	KindNotFound   Kind = "not_found"
	KindPermission Kind = "permission"
)

// Error carries a kind and a single-sentence reason safe to show to users.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func Validation(reason string) *Error {
	return &Error{Kind: KindValidation, Reason: reason}
}

func Wrap(kind Kind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

var sentinelKinds = []struct {
	err  error
	kind Kind
}{
	{ErrWindowNoLongerAvailable, KindConflict},
	{ErrConcurrentUpdate, KindConflict},
	{ErrInvalidTransition, KindConflict},
	{ErrPaymentSettled, KindConflict},
	{ErrRebillNotAllowed, KindConflict},
	{ErrTermsNotProposed, KindConflict},
	{incentive.ErrPromoAlreadyUsed, KindConflict},
	{incentive.ErrInsufficientBonus, KindConflict},
	{daterange.ErrNotContained, KindConflict},
	{ErrGatewayPending, KindGateway},
	{ErrRequestNotFound, KindNotFound},
	{ErrPaymentNotFound, KindNotFound},
	{ErrTripNotFound, KindNotFound},
	{resource.ErrNotFound, KindNotFound},
	{incentive.ErrPromoNotFound, KindNotFound},
	{incentive.ErrAccountNotFound, KindNotFound},
	{ErrForbidden, KindPermission},
	{ErrReasonRequired, KindValidation},
	{ErrWindowUnavailable, KindValidation},
	{ErrOwnVehicle, KindValidation},
	{ErrIncompleteTimes, KindValidation},
	{pricing.ErrNoApplicableTariff, KindValidation},
	{pricing.ErrInvalidWindow, KindValidation},
	{daterange.ErrInvalidRange, KindValidation},
	{daterange.ErrInvalidClock, KindValidation},
	{resource.ErrOutsideRentDays, KindValidation},
	{incentive.ErrPromoExpired, KindValidation},
	{incentive.ErrPromoWrongKind, KindValidation},
	{incentive.ErrInvalidPromoValue, KindValidation},
	{money.ErrInvalidAmount, KindValidation},
}

// KindOf resolves the kind of err. Unknown errors return the zero kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Kind != "" {
		return typed.Kind
	}
	for _, s := range sentinelKinds {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return ""
}

// PublicReason is the single sentence shown to users for err: the typed
// reason when present, otherwise the error text without its package prefix.
func PublicReason(err error) string {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) && typed.Reason != "" {
		return typed.Reason
	}
	if errors.Is(err, ErrGatewayPending) {
		return ErrGatewayPending.Error()
	}
	msg := err.Error()
	if i := strings.Index(msg, ": "); i > 0 && !strings.ContainsAny(msg[:i], " ,") {
		msg = msg[i+2:]
	}
	return msg
}
