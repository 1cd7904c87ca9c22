package daterange

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	tests := []struct {
		name string
		in   []DateRange
		want []DateRange
	}{
		{name: "empty", in: nil, want: []DateRange{}},
		{
			name: "single day window",
			in:   []DateRange{MustParse("2024-01-05", "2024-01-05")},
			want: []DateRange{MustParse("2024-01-05", "2024-01-05")},
		},
		{
			name: "overlapping unsorted",
			in: []DateRange{
				MustParse("2024-01-10", "2024-01-20"),
				MustParse("2024-01-01", "2024-01-12"),
			},
			want: []DateRange{MustParse("2024-01-01", "2024-01-20")},
		},
		{
			name: "adjacent days join",
			in: []DateRange{
				MustParse("2024-01-01", "2024-01-04"),
				MustParse("2024-01-05", "2024-01-07"),
			},
			want: []DateRange{MustParse("2024-01-01", "2024-01-07")},
		},
		{
			name: "one free day keeps windows apart",
			in: []DateRange{
				MustParse("2024-01-01", "2024-01-04"),
				MustParse("2024-01-06", "2024-01-07"),
			},
			want: []DateRange{
				MustParse("2024-01-01", "2024-01-04"),
				MustParse("2024-01-06", "2024-01-07"),
			},
		},
		{
			name: "nested window absorbed",
			in: []DateRange{
				MustParse("2024-01-01", "2024-01-31"),
				MustParse("2024-01-10", "2024-01-12"),
			},
			want: []DateRange{MustParse("2024-01-01", "2024-01-31")},
		},
		{
			name: "invalid window dropped",
			in: []DateRange{
				{Start: time.Date(2024, 1, 9, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
				MustParse("2024-02-01", "2024-02-02"),
			},
			want: []DateRange{MustParse("2024-02-01", "2024-02-02")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Merge(tt.in))
		})
	}
}

func TestContains(t *testing.T) {
	windows := []DateRange{
		MustParse("2024-01-01", "2024-01-10"),
		MustParse("2024-01-15", "2024-01-20"),
	}
	assert.True(t, Contains(windows, MustParse("2024-01-01", "2024-01-10")))
	assert.True(t, Contains(windows, MustParse("2024-01-16", "2024-01-16")))
	assert.False(t, Contains(windows, MustParse("2024-01-09", "2024-01-16")), "must be covered by a single window")
	assert.False(t, Contains(windows, MustParse("2024-01-11", "2024-01-12")))
	assert.False(t, Contains(nil, MustParse("2024-01-01", "2024-01-01")))
}

func TestSubtract(t *testing.T) {
	windows := []DateRange{
		MustParse("2024-01-01", "2024-01-31"),
		MustParse("2024-03-01", "2024-03-10"),
	}

	t.Run("splits middle", func(t *testing.T) {
		got, err := Subtract(windows, MustParse("2024-01-05", "2024-01-07"))
		require.NoError(t, err)
		assert.Equal(t, []DateRange{
			MustParse("2024-01-01", "2024-01-04"),
			MustParse("2024-01-08", "2024-01-31"),
			MustParse("2024-03-01", "2024-03-10"),
		}, got)
	})

	t.Run("consumes whole window", func(t *testing.T) {
		got, err := Subtract(windows, MustParse("2024-03-01", "2024-03-10"))
		require.NoError(t, err)
		assert.Equal(t, []DateRange{MustParse("2024-01-01", "2024-01-31")}, got)
	})

	t.Run("trims edge", func(t *testing.T) {
		got, err := Subtract(windows, MustParse("2024-01-01", "2024-01-01"))
		require.NoError(t, err)
		assert.Equal(t, MustParse("2024-01-02", "2024-01-31"), got[0])
	})

	t.Run("not contained", func(t *testing.T) {
		_, err := Subtract(windows, MustParse("2024-01-30", "2024-02-02"))
		assert.ErrorIs(t, err, ErrNotContained)
	})

	t.Run("empty set", func(t *testing.T) {
		_, err := Subtract(nil, MustParse("2024-01-01", "2024-01-02"))
		assert.ErrorIs(t, err, ErrNotContained)
	})
}

func TestMergeProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	randomSet := func() []DateRange {
		n := rng.Intn(8)
		out := make([]DateRange, 0, n)
		for i := 0; i < n; i++ {
			start := base.AddDate(0, 0, rng.Intn(90))
			out = append(out, DateRange{Start: start, End: start.AddDate(0, 0, rng.Intn(10))})
		}
		return out
	}

	for i := 0; i < 500; i++ {
		w := randomSet()
		merged := Merge(w)

		assert.Equal(t, merged, Merge(merged), "merge must be idempotent")

		for j := 1; j < len(merged); j++ {
			prev, next := merged[j-1], merged[j]
			assert.False(t, prev.Overlaps(next) || prev.Adjacent(next), "merged windows %s and %s still touch", prev, next)
		}

		for _, r := range merged {
			start := r.Start.AddDate(0, 0, rng.Intn(r.Days()))
			remaining := int(r.End.Sub(start).Hours()/24) + 1
			sub := DateRange{Start: start, End: start.AddDate(0, 0, rng.Intn(remaining))}

			rest, err := Subtract(w, sub)
			require.NoError(t, err)
			assert.Equal(t, merged, Merge(append(rest, sub)), "restoring %s must give back the original set", sub)
		}
	}
}
