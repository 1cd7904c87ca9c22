package money

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

const DefaultCurrency = "RUB"

var (
	ErrInvalidCurrency  = errors.New("money: invalid currency code")
	ErrCurrencyMismatch = errors.New("money: currency mismatch")
	ErrInvalidAmount    = errors.New("money: invalid decimal amount")
	ErrZeroDenominator  = errors.New("money: ratio denominator must not be zero")
)

// Money keeps amounts in minor units (two fractional digits) to avoid floating point issues.
type Money struct {
	Amount   int64
	Currency string
}

// New constructs Money from minor units.
func New(amount int64, currency string) (Money, error) {
	if len(currency) != 3 {
		return Money{}, ErrInvalidCurrency
	}
	return Money{Amount: amount, Currency: strings.ToUpper(currency)}, nil
}

// Must creates Money and panics if validation fails; useful in tests and fixtures.
func Must(amount int64, currency string) Money {
	m, err := New(amount, currency)
	if err != nil {
		panic(err)
	}
	return m
}

// RUB builds an amount from whole rubles.
func RUB(units int64) Money {
	return Money{Amount: units * 100, Currency: DefaultCurrency}
}

func Zero(currency string) Money {
	if currency == "" {
		currency = DefaultCurrency
	}
	return Money{Currency: currency}
}

// Parse reads a decimal string such as "125", "125.5" or "125.50".
func Parse(raw, currency string) (Money, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Money{}, ErrInvalidAmount
	}
	neg := strings.HasPrefix(raw, "-")
	raw = strings.TrimPrefix(raw, "-")
	whole, frac, _ := strings.Cut(raw, ".")
	if whole == "" || len(frac) > 2 {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	for len(frac) < 2 {
		frac += "0"
	}
	units, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	cents, err := strconv.ParseInt(frac, 10, 64)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, raw)
	}
	amount := units*100 + cents
	if neg {
		amount = -amount
	}
	return New(amount, currency)
}

// Add adds two money values ensuring currencies match.
func (m Money) Add(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount + other.Amount, Currency: m.Currency}, nil
}

// Sub subtracts other from the receiver.
func (m Money) Sub(other Money) (Money, error) {
	if err := m.ensureSameCurrency(other); err != nil {
		return Money{}, err
	}
	return Money{Amount: m.Amount - other.Amount, Currency: m.Currency}, nil
}

func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

func (m Money) Multiply(times int64) Money {
	return Money{Amount: m.Amount * times, Currency: m.Currency}
}

// Ratio returns m * num / den rounded half away from zero to the minor unit.
// The intermediate value is exact.
func (m Money) Ratio(num, den int64) (Money, error) {
	if den == 0 {
		return Money{}, ErrZeroDenominator
	}
	r := new(big.Rat).SetFrac(big.NewInt(m.Amount), big.NewInt(1))
	r.Mul(r, big.NewRat(num, den))
	return Money{Amount: roundHalfAway(r), Currency: m.Currency}, nil
}

// Percent returns pct percent of m.
func (m Money) Percent(pct int64) Money {
	out, _ := m.Ratio(pct, 100)
	return out
}

func (m Money) Cmp(other Money) int {
	switch {
	case m.Amount < other.Amount:
		return -1
	case m.Amount > other.Amount:
		return 1
	default:
		return 0
	}
}

func Min(a, b Money) Money {
	if a.Amount <= b.Amount {
		return a
	}
	return b
}

func (m Money) IsZero() bool {
	return m.Amount == 0
}

func (m Money) IsPositive() bool {
	return m.Amount > 0
}

func (m Money) IsNegative() bool {
	return m.Amount < 0
}

// Decimal renders the amount with two fractional digits, e.g. "125.00".
func (m Money) Decimal() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
}

func (m Money) String() string {
	return m.Decimal() + " " + m.Currency
}

func (m Money) ensureSameCurrency(other Money) error {
	if m.Currency == "" || other.Currency == "" {
		return ErrInvalidCurrency
	}
	if m.Currency != other.Currency {
		return ErrCurrencyMismatch
	}
	return nil
}

func roundHalfAway(r *big.Rat) int64 {
	num := new(big.Int).Set(r.Num())
	den := r.Denom()
	neg := num.Sign() < 0
	num.Abs(num)
	q, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Mul(rem, big.NewInt(2)).Cmp(den) >= 0 {
		q.Add(q, big.NewInt(1))
	}
	if neg {
		q.Neg(q)
	}
	return q.Int64()
}
