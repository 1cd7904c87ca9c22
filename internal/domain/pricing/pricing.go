package pricing

import (
	"errors"
	"time"

	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

var (
	ErrNoApplicableTariff = errors.New("pricing: no applicable tariff for the requested window")
	ErrInvalidWindow      = errors.New("pricing: rental end must be after its start")
)

// Hours at or above which an overnight rental is billed as one day when a daily tariff exists.
const fullDayHours = 8

type Mode string

const (
	ModeHourly Mode = "hourly"
	ModeDaily  Mode = "daily"
)

// Window is the requested rental: calendar dates plus optional times of day.
type Window struct {
	Dates     daterange.DateRange
	StartTime *daterange.Clock
	EndTime   *daterange.Clock
}

func (w Window) HasTimes() bool {
	return w.StartTime != nil && w.EndTime != nil
}

// Instants returns the exact start and end of the rental when both times are given.
func (w Window) Instants() (time.Time, time.Time, bool) {
	if !w.HasTimes() {
		return time.Time{}, time.Time{}, false
	}
	return w.StartTime.On(w.Dates.Start), w.EndTime.On(w.Dates.End), true
}

// RentalDays is the billable day count; day N to day N+1 is one day, a same-day rental is one day.
func (w Window) RentalDays() int {
	if days := w.Dates.Span(); days > 1 {
		return days
	}
	return 1
}

type Input struct {
	Tariffs     resource.TariffTable
	Window      Window
	Delivery    bool
	DeliveryFee money.Money
}

type Quote struct {
	Mode       Mode
	Period     resource.Period
	RentalDays int
	Seconds    int64
	Rent       money.Money
	Delivery   money.Money
	Total      money.Money
}

// Calculate prices a rental window against a tariff table.
func Calculate(in Input) (Quote, error) {
	if err := in.Window.Dates.Validate(); err != nil {
		return Quote{}, err
	}
	quote, err := rent(in.Tariffs, in.Window)
	if err != nil {
		return Quote{}, err
	}
	quote.Delivery = money.Zero(quote.Rent.Currency)
	quote.Total = quote.Rent
	if in.Delivery && in.DeliveryFee.IsPositive() {
		quote.Delivery = in.DeliveryFee
		total, err := quote.Rent.Add(in.DeliveryFee)
		if err != nil {
			return Quote{}, err
		}
		quote.Total = total
	}
	return quote, nil
}

func rent(tariffs resource.TariffTable, w Window) (Quote, error) {
	hourly, hasHourly := tariffs.Lookup(resource.PeriodHour)
	if hasHourly && w.HasTimes() && w.Dates.Span() <= 1 {
		start, end, _ := w.Instants()
		if !end.After(start) {
			return Quote{}, ErrInvalidWindow
		}
		seconds := int64(end.Sub(start) / time.Second)
		overnight := w.Dates.Span() == 1
		if day, ok := tariffs.Lookup(resource.PeriodDay); ok && overnight && seconds >= fullDayHours*3600 {
			return Quote{Mode: ModeDaily, Period: resource.PeriodDay, RentalDays: 1, Seconds: seconds, Rent: day.Total}, nil
		}
		amount, err := hourly.Total.Ratio(seconds, 3600)
		if err != nil {
			return Quote{}, err
		}
		return Quote{Mode: ModeHourly, Period: resource.PeriodHour, RentalDays: 1, Seconds: seconds, Rent: amount}, nil
	}

	days := w.RentalDays()
	for _, period := range resource.DailyPeriods {
		tariff, ok := tariffs.Lookup(period)
		if !ok || period.Days() > days {
			continue
		}
		amount, err := tariff.Total.Ratio(int64(days), int64(period.Days()))
		if err != nil {
			return Quote{}, err
		}
		return Quote{Mode: ModeDaily, Period: period, RentalDays: days, Rent: amount}, nil
	}
	return Quote{}, ErrNoApplicableTariff
}
