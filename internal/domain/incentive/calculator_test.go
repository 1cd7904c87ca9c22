package incentive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/domain/shared/money"
)

func TestCalculate(t *testing.T) {
	percent10 := &PromoCode{Code: "SPRING10", Kind: PromoPercent, Percent: 10}
	tests := []struct {
		name         string
		in           Input
		wantDiscount string
		wantBonus    string
		wantPayable  string
		wantErr      error
	}{
		{
			name:         "commission only",
			in:           Input{Total: money.RUB(500), CommissionPercent: 20},
			wantDiscount: "0.00", wantBonus: "0.00", wantPayable: "100.00",
		},
		{
			name:         "percent promo",
			in:           Input{Total: money.RUB(500), CommissionPercent: 20, Promo: percent10},
			wantDiscount: "10.00", wantBonus: "0.00", wantPayable: "90.00",
		},
		{
			name: "bonus capped to keep one unit payable",
			in: Input{
				Total: money.RUB(500), CommissionPercent: 20, Promo: percent10,
				RequestedBonus: money.RUB(95), BonusBalance: money.RUB(200),
			},
			wantDiscount: "10.00", wantBonus: "89.00", wantPayable: "1.00",
		},
		{
			name: "bonus below cap",
			in: Input{
				Total: money.RUB(500), CommissionPercent: 20,
				RequestedBonus: money.RUB(30), BonusBalance: money.RUB(30),
			},
			wantDiscount: "0.00", wantBonus: "30.00", wantPayable: "70.00",
		},
		{
			name: "commission under one unit takes no bonus",
			in: Input{
				Total: money.Must(400, money.DefaultCurrency), CommissionPercent: 20,
				RequestedBonus: money.RUB(5), BonusBalance: money.RUB(5),
			},
			wantDiscount: "0.00", wantBonus: "0.00", wantPayable: "0.80",
		},
		{
			name: "bonus over balance redeems the balance",
			in: Input{
				Total: money.RUB(500), CommissionPercent: 20,
				RequestedBonus: money.RUB(50), BonusBalance: money.RUB(10),
			},
			wantDiscount: "0.00", wantBonus: "10.00", wantPayable: "90.00",
		},
		{
			name: "bonus over balance and cap",
			in: Input{
				Total: money.RUB(100), CommissionPercent: 20,
				RequestedBonus: money.RUB(50), BonusBalance: money.RUB(30),
			},
			wantDiscount: "0.00", wantBonus: "19.00", wantPayable: "1.00",
		},
		{
			name: "empty balance",
			in: Input{
				Total: money.RUB(500), CommissionPercent: 20,
				RequestedBonus: money.RUB(50), BonusBalance: money.RUB(0),
			},
			wantDiscount: "0.00", wantBonus: "0.00", wantPayable: "100.00",
		},
		{
			name:    "cash promo at request time",
			in:      Input{Total: money.RUB(500), CommissionPercent: 20, Promo: &PromoCode{Kind: PromoCash, Cash: money.RUB(100)}},
			wantErr: ErrPromoWrongKind,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Calculate(tt.in)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDiscount, got.Discount.Decimal())
			assert.Equal(t, tt.wantBonus, got.Bonus.Decimal())
			assert.Equal(t, tt.wantPayable, got.Payable.Decimal())
		})
	}
}

func TestBonusNeverBreaksFloor(t *testing.T) {
	for commission := int64(100); commission <= 100_000; commission += 137 {
		amount := money.Must(commission, money.DefaultCurrency)
		got, err := Calculate(Input{
			Total:             amount.Multiply(5),
			CommissionPercent: 20,
			RequestedBonus:    money.RUB(10_000),
			BonusBalance:      money.RUB(10_000),
		})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got.Payable.Amount, MinPayable.Amount)
	}
}

func TestPromoUsable(t *testing.T) {
	past := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := past.Add(48 * time.Hour)

	expired := PromoCode{Kind: PromoPercent, Percent: 10, ExpiresAt: &past}
	assert.ErrorIs(t, expired.Usable(PromoPercent, now), ErrPromoExpired)

	cash := PromoCode{Kind: PromoCash, Cash: money.RUB(300)}
	assert.ErrorIs(t, cash.Usable(PromoPercent, now), ErrPromoWrongKind)
	assert.NoError(t, cash.Usable(PromoCash, now))

	tooGenerous := PromoCode{Kind: PromoPercent, Percent: 70}
	assert.ErrorIs(t, tooGenerous.Usable(PromoPercent, now), ErrInvalidPromoValue)
	assert.Equal(t, "SPRING10", NormalizeCode("  spring10 "))
}

func TestAccountResponseAverageAndPayout(t *testing.T) {
	acc := NewAccount("owner")
	now := time.Now()
	acc.RecordResponse(10*time.Minute, now)
	acc.RecordResponse(20*time.Minute, now)
	assert.Equal(t, 15*time.Minute, acc.ResponseTime)
	assert.Equal(t, 2, acc.Responses)

	p := Partner{ID: "p1", CommissionPercent: 5}
	assert.Equal(t, "4.50", p.Payout(money.RUB(90)).Decimal())
}
