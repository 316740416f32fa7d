package l2traces

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
)

func dp(scan int, mz, intensity float64) l1frames.DataPoint {
	return l1frames.DataPoint{MZ: mz, Intensity: intensity, ScanIndex: scan, FrameNumber: 1 + scan/10}
}

func TestAccumulator_Empty(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator()
	assert.Equal(t, 0, acc.Len())
	assert.True(t, math.IsNaN(acc.CenterMZ()))
	assert.True(t, math.IsInf(acc.MZLow(), 1))
	assert.True(t, math.IsInf(acc.MZHigh(), -1))

	_, err := acc.ToSeries()
	assert.ErrorIs(t, err, ErrEmptyTrace)
}

func TestAccumulator_TryAdd_Statistics(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator()
	_, occupied := acc.TryAdd(dp(1, 100.0, 10))
	require.False(t, occupied)
	_, occupied = acc.TryAdd(dp(2, 100.05, 5))
	require.False(t, occupied)

	assert.InDelta(t, 100.0167, acc.CenterMZ(), 1e-4)
	assert.Equal(t, 100.0, acc.MZLow())
	assert.Equal(t, 100.05, acc.MZHigh())
	assert.Equal(t, 2, acc.Len())
}

func TestAccumulator_TryAdd_Occupied(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator()
	first := dp(4, 200.0, 50)
	acc.TryAdd(first)

	existing, occupied := acc.TryAdd(dp(4, 200.2, 500))
	assert.True(t, occupied)
	assert.Equal(t, first, existing)

	stored, ok := acc.Get(4)
	require.True(t, ok)
	assert.Equal(t, first, stored)
	assert.Equal(t, 200.0, acc.CenterMZ())
}

func TestAccumulator_Replace(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator()
	_, replaced := acc.Replace(dp(3, 150.0, 1))
	assert.False(t, replaced, "replace on an empty slot inserts")

	prev, replaced := acc.Replace(dp(3, 150.4, 2))
	assert.True(t, replaced)
	assert.Equal(t, 150.0, prev.MZ)
	assert.Equal(t, 1, acc.Len())
	assert.Equal(t, 150.4, acc.CenterMZ())
	assert.Equal(t, 150.4, acc.MZLow(), "bounds follow the stored points")
	assert.Equal(t, 150.4, acc.MZHigh())
}

func TestAccumulator_ResolveBestFit(t *testing.T) {
	t.Parallel()

	t.Run("free slot inserts", func(t *testing.T) {
		acc := NewAccumulator()
		res, got := acc.ResolveBestFit(dp(1, 100, 1))
		assert.Equal(t, Inserted, res)
		assert.Equal(t, l1frames.DataPoint{}, got)
	})

	t.Run("farther point rejected", func(t *testing.T) {
		acc := NewAccumulator()
		acc.TryAdd(dp(3, 100.0, 100))

		incoming := dp(3, 105.0, 1)
		res, got := acc.ResolveBestFit(incoming)
		assert.Equal(t, Rejected, res)
		assert.Equal(t, incoming, got)

		stored, _ := acc.Get(3)
		assert.Equal(t, 100.0, stored.MZ)
	})

	t.Run("closer point replaces", func(t *testing.T) {
		acc := NewAccumulator()
		acc.TryAdd(dp(1, 100.00, 100))
		acc.TryAdd(dp(2, 100.00, 100))
		acc.TryAdd(dp(3, 100.10, 1)) // centroid stays near 100.0005

		res, got := acc.ResolveBestFit(dp(3, 100.001, 1))
		assert.Equal(t, Replaced, res)
		assert.Equal(t, 100.10, got.MZ)

		stored, _ := acc.Get(3)
		assert.Equal(t, 100.001, stored.MZ)
		assert.Equal(t, 100.001, acc.MZHigh())
	})

	t.Run("tie keeps existing", func(t *testing.T) {
		acc := NewAccumulator()
		acc.TryAdd(dp(1, 99.0, 1))
		acc.TryAdd(dp(2, 101.0, 1)) // centroid 100.0

		res, _ := acc.ResolveBestFit(dp(2, 99.0, 1)) // both 1.0 away
		assert.Equal(t, Rejected, res)
		stored, _ := acc.Get(2)
		assert.Equal(t, 101.0, stored.MZ)
	})

	t.Run("undefined centroid keeps existing", func(t *testing.T) {
		acc := NewAccumulator()
		acc.TryAdd(dp(1, 100.0, 0))
		require.True(t, math.IsNaN(acc.CenterMZ()))

		res, _ := acc.ResolveBestFit(dp(1, 100.0, 5))
		assert.Equal(t, Rejected, res)
	})
}

// Whatever the sequence of offers, each scan index holds exactly one
// point, and a replacement is never farther from the pre-replacement
// centroid than the point it displaced.
func TestAccumulator_BestFitProperties(t *testing.T) {
	t.Parallel()

	rng := rand.New(rand.NewSource(42))
	acc := NewAccumulator()
	for i := 0; i < 2000; i++ {
		scan := rng.Intn(25)
		incoming := dp(scan, 300+rng.Float64(), 1+rng.Float64()*100)

		before := acc.CenterMZ()
		existing, hadExisting := acc.Get(scan)
		res, _ := acc.ResolveBestFit(incoming)

		stored, ok := acc.Get(scan)
		require.True(t, ok)
		switch res {
		case Inserted:
			require.False(t, hadExisting)
		case Replaced:
			require.True(t, hadExisting)
			require.LessOrEqual(t, math.Abs(before-stored.MZ), math.Abs(before-existing.MZ))
		case Rejected:
			require.Equal(t, existing, stored)
		}

		seen := map[int]bool{}
		for _, p := range acc.Points() {
			require.False(t, seen[p.ScanIndex], "scan %d stored twice", p.ScanIndex)
			seen[p.ScanIndex] = true
			require.GreaterOrEqual(t, p.MZ, acc.MZLow())
			require.LessOrEqual(t, p.MZ, acc.MZHigh())
		}
	}
}

func TestAccumulator_CentroidOrderIndependent(t *testing.T) {
	t.Parallel()

	points := []l1frames.DataPoint{
		dp(5, 400.01, 3), dp(1, 400.00, 7), dp(9, 400.03, 1), dp(2, 399.99, 12), dp(7, 400.02, 4),
	}
	var num, den float64
	for _, p := range points {
		num += p.MZ * p.Intensity
		den += p.Intensity
	}
	want := num / den

	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 20; round++ {
		acc := NewAccumulator()
		for _, i := range rng.Perm(len(points)) {
			acc.TryAdd(points[i])
		}
		assert.InDelta(t, want, acc.CenterMZ(), 1e-9)
	}
}

func TestAccumulator_ToSeriesOrdered(t *testing.T) {
	t.Parallel()

	acc := NewAccumulator()
	for _, scan := range []int{12, 3, 27, 4, 11} {
		acc.TryAdd(dp(scan, 500, 1))
	}
	series, err := acc.ToSeries()
	require.NoError(t, err)

	var got []int
	for _, p := range series.Points {
		got = append(got, p.ScanIndex)
	}
	if diff := cmp.Diff([]int{3, 4, 11, 12, 27}, got); diff != "" {
		t.Errorf("scan order mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 3, series.NumFrames())
	assert.Len(t, series.ByFrame(), 3)
}
