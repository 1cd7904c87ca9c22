package pricing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/daterange"
	"rentguru/internal/domain/shared/money"
)

func clock(t *testing.T, raw string) *daterange.Clock {
	t.Helper()
	c, err := daterange.ParseClock(raw)
	require.NoError(t, err)
	return &c
}

func table(t *testing.T, commission int64, inputs ...resource.TariffInput) resource.TariffTable {
	t.Helper()
	tt, err := resource.NewTariffTable(commission, inputs...)
	require.NoError(t, err)
	return tt
}

func TestCalculateDaily(t *testing.T) {
	tariffs := table(t, 20,
		resource.TariffInput{Period: resource.PeriodDay, Price: money.RUB(100)},
		resource.TariffInput{Period: resource.PeriodWeek, Price: money.RUB(560)},
	)
	tests := []struct {
		name       string
		dates      daterange.DateRange
		wantPeriod resource.Period
		wantDays   int
		wantTotal  string
	}{
		{name: "two calendar days", dates: daterange.MustParse("2024-01-05", "2024-01-07"), wantPeriod: resource.PeriodDay, wantDays: 2, wantTotal: "250.00"},
		{name: "next day bills one day", dates: daterange.MustParse("2024-01-05", "2024-01-06"), wantPeriod: resource.PeriodDay, wantDays: 1, wantTotal: "125.00"},
		{name: "same day bills one day", dates: daterange.MustParse("2024-01-05", "2024-01-05"), wantPeriod: resource.PeriodDay, wantDays: 1, wantTotal: "125.00"},
		{name: "ten days on weekly tariff", dates: daterange.MustParse("2024-01-01", "2024-01-11"), wantPeriod: resource.PeriodWeek, wantDays: 10, wantTotal: "1000.00"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Calculate(Input{Tariffs: tariffs, Window: Window{Dates: tt.dates}})
			require.NoError(t, err)
			assert.Equal(t, ModeDaily, q.Mode)
			assert.Equal(t, tt.wantPeriod, q.Period)
			assert.Equal(t, tt.wantDays, q.RentalDays)
			assert.Equal(t, tt.wantTotal, q.Total.Decimal())
		})
	}
}

func TestCalculateHourly(t *testing.T) {
	tariffs := table(t, 0,
		resource.TariffInput{Period: resource.PeriodHour, Price: money.RUB(20)},
		resource.TariffInput{Period: resource.PeriodDay, Price: money.RUB(120)},
	)

	t.Run("short same-day rental bills hours", func(t *testing.T) {
		q, err := Calculate(Input{Tariffs: tariffs, Window: Window{
			Dates:     daterange.MustParse("2024-03-01", "2024-03-01"),
			StartTime: clock(t, "09:00"),
			EndTime:   clock(t, "19:00"),
		}})
		require.NoError(t, err)
		assert.Equal(t, ModeHourly, q.Mode)
		assert.Equal(t, money.RUB(200), q.Total)
	})

	t.Run("overnight rental over eight hours bills one day", func(t *testing.T) {
		q, err := Calculate(Input{Tariffs: tariffs, Window: Window{
			Dates:     daterange.MustParse("2024-03-01", "2024-03-02"),
			StartTime: clock(t, "09:00"),
			EndTime:   clock(t, "18:00"),
		}})
		require.NoError(t, err)
		assert.Equal(t, ModeDaily, q.Mode)
		assert.Equal(t, int64(33*3600), q.Seconds)
		assert.Equal(t, money.RUB(120), q.Total)
	})

	t.Run("fractional hours", func(t *testing.T) {
		q, err := Calculate(Input{Tariffs: tariffs, Window: Window{
			Dates:     daterange.MustParse("2024-03-01", "2024-03-01"),
			StartTime: clock(t, "09:00"),
			EndTime:   clock(t, "10:20"),
		}})
		require.NoError(t, err)
		assert.Equal(t, "26.67", q.Total.Decimal())
	})

	t.Run("end before start", func(t *testing.T) {
		_, err := Calculate(Input{Tariffs: tariffs, Window: Window{
			Dates:     daterange.MustParse("2024-03-01", "2024-03-01"),
			StartTime: clock(t, "12:00"),
			EndTime:   clock(t, "09:00"),
		}})
		assert.ErrorIs(t, err, ErrInvalidWindow)
	})

	t.Run("long window without day tariff stays hourly", func(t *testing.T) {
		hourOnly := table(t, 0, resource.TariffInput{Period: resource.PeriodHour, Price: money.RUB(20)})
		q, err := Calculate(Input{Tariffs: hourOnly, Window: Window{
			Dates:     daterange.MustParse("2024-03-01", "2024-03-01"),
			StartTime: clock(t, "08:00"),
			EndTime:   clock(t, "20:00"),
		}})
		require.NoError(t, err)
		assert.Equal(t, ModeHourly, q.Mode)
		assert.Equal(t, money.RUB(240), q.Total)
	})
}

func TestCalculateDeliveryAndMissingTariff(t *testing.T) {
	tariffs := table(t, 20, resource.TariffInput{Period: resource.PeriodDay, Price: money.RUB(100)})
	q, err := Calculate(Input{
		Tariffs:     tariffs,
		Window:      Window{Dates: daterange.MustParse("2024-01-05", "2024-01-07")},
		Delivery:    true,
		DeliveryFee: money.RUB(30),
	})
	require.NoError(t, err)
	assert.Equal(t, money.RUB(250), q.Rent)
	assert.Equal(t, money.RUB(280), q.Total)

	monthly := table(t, 0, resource.TariffInput{Period: resource.PeriodMonth, Price: money.RUB(3000)})
	_, err = Calculate(Input{Tariffs: monthly, Window: Window{Dates: daterange.MustParse("2024-01-05", "2024-01-07")}})
	assert.ErrorIs(t, err, ErrNoApplicableTariff)
}

func TestCalculateMonotonicWithinTier(t *testing.T) {
	tariffs := table(t, 15,
		resource.TariffInput{Period: resource.PeriodDay, Price: money.RUB(100)},
		resource.TariffInput{Period: resource.PeriodWeek, Price: money.RUB(600)},
		resource.TariffInput{Period: resource.PeriodMonth, Price: money.RUB(2400)},
		resource.TariffInput{Period: resource.PeriodYear, Price: money.RUB(25000)},
	)
	start := daterange.Day(daterange.MustParse("2024-01-01", "2024-01-01").Start)
	prev := money.Zero("")
	prevPeriod := resource.Period("")
	for days := 1; days <= 800; days++ {
		w := Window{Dates: daterange.DateRange{Start: start, End: start.AddDate(0, 0, days)}}
		q, err := Calculate(Input{Tariffs: tariffs, Window: w})
		require.NoError(t, err)
		if q.Period == prevPeriod {
			assert.GreaterOrEqual(t, q.Total.Amount, prev.Amount, "total dropped at %d days", days)
		}
		prev, prevPeriod = q.Total, q.Period
	}
}
