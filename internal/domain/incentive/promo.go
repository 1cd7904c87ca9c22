package incentive

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentguru/internal/domain/shared/money"
)

var (
	ErrPromoNotFound     = errors.New("incentive: promo code not found")
	ErrPromoAlreadyUsed  = errors.New("incentive: promo code has already been used")
	ErrPromoExpired      = errors.New("incentive: promo code has expired")
	ErrPromoWrongKind    = errors.New("incentive: promo code cannot be applied here")
	ErrInvalidPromoValue = errors.New("incentive: percent promo must be within 1..50")
)

type PromoKind string

const (
	PromoPercent PromoKind = "percent"
	PromoCash    PromoKind = "cash"
)

type PromoCode struct {
	Code      string
	Kind      PromoKind
	Percent   int64
	Cash      money.Money
	PartnerID PartnerID
	ExpiresAt *time.Time
	Uses      int
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (p PromoCode) Validate() error {
	switch p.Kind {
	case PromoPercent:
		if p.Percent <= 0 || p.Percent > 50 {
			return ErrInvalidPromoValue
		}
	case PromoCash:
		if !p.Cash.IsPositive() {
			return ErrInvalidPromoValue
		}
	default:
		return ErrPromoWrongKind
	}
	return nil
}

// Usable checks expiry and kind for the given application point.
func (p PromoCode) Usable(kind PromoKind, now time.Time) error {
	if p.Kind != kind {
		return ErrPromoWrongKind
	}
	if p.ExpiresAt != nil && now.After(*p.ExpiresAt) {
		return ErrPromoExpired
	}
	return p.Validate()
}

// Usage records that a user redeemed a code. A released usage may be claimed again.
type Usage struct {
	Code      string
	UserID    string
	Used      bool
	ClaimedAt time.Time
}

type PromoRepository interface {
	ByCode(ctx context.Context, code string) (PromoCode, error)
}

// UsageRepository must make Claim atomic per (code, user).
type UsageRepository interface {
	// Claim marks the code used by the user or fails with ErrPromoAlreadyUsed.
	Claim(ctx context.Context, code, userID string, at time.Time) error
	// Release resets the used flag so the code may be redeemed again.
	Release(ctx context.Context, code, userID string) error
	Used(ctx context.Context, code, userID string) (bool, error)
}
