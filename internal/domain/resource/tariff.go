package resource

import (
	"errors"
	"fmt"
	"sort"

	"rentguru/internal/domain/shared/money"
)

var (
	ErrDuplicatePeriod   = errors.New("resource: tariff period already defined")
	ErrUnknownPeriod     = errors.New("resource: unknown tariff period")
	ErrInvalidTariff     = errors.New("resource: tariff price must be positive")
	ErrInvalidDiscount   = errors.New("resource: tariff discount must be within 0..90")
	ErrInvalidCommission = errors.New("resource: owner commission must be within 0..99")
)

type Period string

const (
	PeriodHour  Period = "hour"
	PeriodDay   Period = "day"
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// DailyPeriods lists the day-based periods from the largest to the smallest.
var DailyPeriods = []Period{PeriodYear, PeriodMonth, PeriodWeek, PeriodDay}

// Days is the period length in calendar days. Hour has no day length.
func (p Period) Days() int {
	switch p {
	case PeriodDay:
		return 1
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	case PeriodYear:
		return 365
	default:
		return 0
	}
}

func (p Period) Valid() bool {
	return p == PeriodHour || p.Days() > 0
}

// Tariff is the price of one period. Total is the price inflated by the owner's
// commission and is what the renter is billed.
type Tariff struct {
	Period          Period
	Price           money.Money
	DiscountPercent int64
	Total           money.Money
}

// TariffTable holds at most one tariff per period.
type TariffTable struct {
	byPeriod map[Period]Tariff
}

type TariffInput struct {
	Period          Period
	Price           money.Money
	DiscountPercent int64
}

// NewTariffTable derives tariff totals from base prices:
// total = price * 100 / (100 - commission).
func NewTariffTable(commissionPercent int64, inputs ...TariffInput) (TariffTable, error) {
	if commissionPercent < 0 || commissionPercent >= 100 {
		return TariffTable{}, ErrInvalidCommission
	}
	table := TariffTable{byPeriod: make(map[Period]Tariff, len(inputs))}
	for _, in := range inputs {
		if !in.Period.Valid() {
			return TariffTable{}, fmt.Errorf("%w: %q", ErrUnknownPeriod, in.Period)
		}
		if _, dup := table.byPeriod[in.Period]; dup {
			return TariffTable{}, fmt.Errorf("%w: %s", ErrDuplicatePeriod, in.Period)
		}
		if !in.Price.IsPositive() {
			return TariffTable{}, ErrInvalidTariff
		}
		if in.DiscountPercent < 0 || in.DiscountPercent > 90 {
			return TariffTable{}, ErrInvalidDiscount
		}
		total, err := in.Price.Ratio(100, 100-commissionPercent)
		if err != nil {
			return TariffTable{}, err
		}
		table.byPeriod[in.Period] = Tariff{
			Period:          in.Period,
			Price:           in.Price,
			DiscountPercent: in.DiscountPercent,
			Total:           total,
		}
	}
	return table, nil
}

// RestoreTariffTable rebuilds a table from persisted tariffs without recomputing totals.
func RestoreTariffTable(tariffs []Tariff) (TariffTable, error) {
	table := TariffTable{byPeriod: make(map[Period]Tariff, len(tariffs))}
	for _, t := range tariffs {
		if _, dup := table.byPeriod[t.Period]; dup {
			return TariffTable{}, fmt.Errorf("%w: %s", ErrDuplicatePeriod, t.Period)
		}
		table.byPeriod[t.Period] = t
	}
	return table, nil
}

func (t TariffTable) Lookup(period Period) (Tariff, bool) {
	tariff, ok := t.byPeriod[period]
	return tariff, ok
}

func (t TariffTable) Has(period Period) bool {
	_, ok := t.byPeriod[period]
	return ok
}

func (t TariffTable) Len() int {
	return len(t.byPeriod)
}

// Tariffs returns the tariffs ordered from the shortest period to the longest.
func (t TariffTable) Tariffs() []Tariff {
	out := make([]Tariff, 0, len(t.byPeriod))
	for _, tariff := range t.byPeriod {
		out = append(out, tariff)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Period.Days() < out[j].Period.Days() })
	return out
}
