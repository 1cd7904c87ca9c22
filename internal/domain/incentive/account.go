package incentive

import (
	"context"
	"errors"
	"time"

	"rentguru/internal/domain/shared/money"
)

var (
	ErrAccountNotFound   = errors.New("incentive: account not found")
	ErrPartnerNotFound   = errors.New("incentive: partner not found")
	ErrInsufficientBonus = errors.New("incentive: bonus balance is insufficient")
)

type PartnerID string

// Account is the per-user ledger: bonus balance, referral link and owner statistics.
type Account struct {
	UserID       string
	Bonus        money.Money
	ReferredBy   PartnerID
	Trips        int
	Responses    int
	ResponseTime time.Duration
	UpdatedAt    time.Time
}

func NewAccount(userID string) *Account {
	return &Account{UserID: userID, Bonus: money.Zero(money.DefaultCurrency)}
}

// RecordResponse folds one owner reply delay into the running average.
func (a *Account) RecordResponse(delay time.Duration, now time.Time) {
	if delay < 0 {
		delay = 0
	}
	total := a.ResponseTime*time.Duration(a.Responses) + delay
	a.Responses++
	a.ResponseTime = total / time.Duration(a.Responses)
	a.UpdatedAt = now.UTC()
}

func (a *Account) RecordTrip(now time.Time) {
	a.Trips++
	a.UpdatedAt = now.UTC()
}

// Partner is a referral partner credited for bringing users to the platform.
type Partner struct {
	ID                PartnerID
	CommissionPercent int64
	Balance           money.Money
}

// Payout is the partner's share of a payment.
func (p Partner) Payout(payment money.Money) money.Money {
	return payment.Percent(p.CommissionPercent)
}

type AccountRepository interface {
	ByUser(ctx context.Context, userID string) (*Account, error)
	Save(ctx context.Context, account *Account) error
	// AdjustBonus adds delta to the balance atomically; a debit below zero fails with ErrInsufficientBonus.
	AdjustBonus(ctx context.Context, userID string, delta money.Money) error
}

type PartnerRepository interface {
	ByID(ctx context.Context, id PartnerID) (Partner, error)
	// Credit adds amount to the partner's running balance.
	Credit(ctx context.Context, id PartnerID, amount money.Money) error
}
