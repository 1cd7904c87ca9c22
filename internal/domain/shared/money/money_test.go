package money

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		want    int64
		wantErr bool
	}{
		{raw: "125", want: 12500},
		{raw: "125.5", want: 12550},
		{raw: "0.01", want: 1},
		{raw: "-3.10", want: -310},
		{raw: "1.005", wantErr: true},
		{raw: "abc", wantErr: true},
		{raw: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := Parse(tt.raw, DefaultCurrency)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidAmount)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Amount)
		})
	}
}

func TestRatioRoundsHalfAway(t *testing.T) {
	got, err := RUB(125).Ratio(10, 7)
	require.NoError(t, err)
	assert.Equal(t, "178.57", got.Decimal())

	got, err = Must(5, DefaultCurrency).Ratio(1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.Amount)

	_, err = RUB(1).Ratio(1, 0)
	assert.ErrorIs(t, err, ErrZeroDenominator)
}

func TestPercentAndCurrency(t *testing.T) {
	assert.Equal(t, RUB(100), RUB(500).Percent(20))

	_, err := RUB(1).Add(Must(1, "USD"))
	assert.ErrorIs(t, err, ErrCurrencyMismatch)
	assert.Equal(t, "-1.05 RUB", Must(-105, "rub").String())
}
