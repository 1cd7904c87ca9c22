package incentive

import (
	"rentguru/internal/domain/shared/money"
)

// MinPayable is what must remain payable after bonus redemption.
var MinPayable = money.RUB(1)

type Input struct {
	Total             money.Money
	CommissionPercent int64
	Promo             *PromoCode
	RequestedBonus    money.Money
	BonusBalance      money.Money
}

// Breakdown is the financial snapshot of a request: what the platform takes and
// how much of it the renter still pays after promo and bonus.
type Breakdown struct {
	Total      money.Money
	Commission money.Money
	Discount   money.Money
	Bonus      money.Money
	Payable    money.Money
}

// Commission is the platform's share of the trip total.
func Commission(total money.Money, percent int64) money.Money {
	return total.Percent(percent)
}

// Calculate applies at most one percent promo, then redeems the smallest of the
// requested bonus, the balance and the cap that keeps MinPayable payable.
// Asking for more than the balance redeems the balance.
func Calculate(in Input) (Breakdown, error) {
	currency := in.Total.Currency
	commission := Commission(in.Total, in.CommissionPercent)
	out := Breakdown{
		Total:      in.Total,
		Commission: commission,
		Discount:   money.Zero(currency),
		Bonus:      money.Zero(currency),
	}

	afterPromo := commission
	if in.Promo != nil {
		if in.Promo.Kind != PromoPercent {
			return Breakdown{}, ErrPromoWrongKind
		}
		out.Discount = commission.Percent(in.Promo.Percent)
		afterPromo, _ = commission.Sub(out.Discount)
	}

	if in.RequestedBonus.IsPositive() {
		if bonus := money.Min(money.Min(in.RequestedBonus, in.BonusBalance), BonusCap(afterPromo)); bonus.IsPositive() {
			out.Bonus = bonus
		}
	}
	payable, err := afterPromo.Sub(out.Bonus)
	if err != nil {
		return Breakdown{}, err
	}
	out.Payable = payable
	return out, nil
}

// BonusCap is the most bonus that may be redeemed against the amount.
func BonusCap(amount money.Money) money.Money {
	limit := money.Money{Amount: amount.Amount - MinPayable.Amount, Currency: amount.Currency}
	if limit.IsNegative() {
		return money.Zero(amount.Currency)
	}
	return limit
}
