package l2traces

import (
	"errors"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
)

// ErrEmptyTrace is returned when a series is requested from an accumulator
// without points.
var ErrEmptyTrace = errors.New("trace has no data points")

// Resolution is the outcome of ResolveBestFit.
type Resolution int

const (
	Inserted Resolution = iota // slot was free, point added
	Replaced                   // incoming point was closer to the centroid
	Rejected                   // existing point kept
)

func (r Resolution) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Replaced:
		return "replaced"
	case Rejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Accumulator collects the data points of one candidate trace, at most one
// per mobility scan index, kept in scan index order.
//
// Statistics are recomputed with a full pass on every mutation. Traces are
// bounded by the number of mobility scans they span, so the pass is short.
//
// An Accumulator is not safe for concurrent use; it has a single writer.
type Accumulator struct {
	points []l1frames.DataPoint

	mzLow    float64
	mzHigh   float64
	centerMZ float64

	// scratch buffers for the statistics pass
	mzs         []float64
	intensities []float64
}

// NewAccumulator returns an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		mzLow:    math.Inf(1),
		mzHigh:   math.Inf(-1),
		centerMZ: math.NaN(),
	}
}

// Len returns the number of stored points.
func (a *Accumulator) Len() int { return len(a.points) }

// MZLow returns the lowest stored m/z, +Inf when empty.
func (a *Accumulator) MZLow() float64 { return a.mzLow }

// MZHigh returns the highest stored m/z, -Inf when empty.
func (a *Accumulator) MZHigh() float64 { return a.mzHigh }

// CenterMZ returns the intensity-weighted mean m/z. It is NaN while the
// accumulator is empty or its summed intensity is zero; callers must treat
// NaN as "cannot compare".
func (a *Accumulator) CenterMZ() float64 { return a.centerMZ }

// Get returns the point stored for scanIndex.
func (a *Accumulator) Get(scanIndex int) (l1frames.DataPoint, bool) {
	i, found := a.search(scanIndex)
	if !found {
		return l1frames.DataPoint{}, false
	}
	return a.points[i], true
}

// Points returns a copy of the stored points in scan index order.
func (a *Accumulator) Points() []l1frames.DataPoint {
	out := make([]l1frames.DataPoint, len(a.points))
	copy(out, a.points)
	return out
}

// TryAdd inserts dp if no point is stored for its scan index. If the slot
// is occupied, nothing changes and the stored point is returned with
// occupied set.
func (a *Accumulator) TryAdd(dp l1frames.DataPoint) (existing l1frames.DataPoint, occupied bool) {
	i, found := a.search(dp.ScanIndex)
	if found {
		return a.points[i], true
	}
	a.insertAt(i, dp)
	a.update()
	return l1frames.DataPoint{}, false
}

// Replace stores dp unconditionally and returns the point it displaced.
func (a *Accumulator) Replace(dp l1frames.DataPoint) (previous l1frames.DataPoint, replaced bool) {
	i, found := a.search(dp.ScanIndex)
	if found {
		previous = a.points[i]
		a.points[i] = dp
	} else {
		a.insertAt(i, dp)
	}
	a.update()
	return previous, found
}

// ResolveBestFit adds dp, settling a conflict for an occupied scan index in
// favour of the point closer to the current centroid. The returned point
// is the displaced point for Replaced, dp itself for Rejected, and the zero
// value for Inserted. Ties and an undefined centroid keep the existing
// point.
func (a *Accumulator) ResolveBestFit(dp l1frames.DataPoint) (Resolution, l1frames.DataPoint) {
	current, occupied := a.TryAdd(dp)
	if !occupied {
		return Inserted, l1frames.DataPoint{}
	}

	currentDelta := math.Abs(a.centerMZ - current.MZ)
	proposedDelta := math.Abs(a.centerMZ - dp.MZ)
	if currentDelta > proposedDelta {
		previous, _ := a.Replace(dp)
		return Replaced, previous
	}
	return Rejected, dp
}

// ToSeries flattens the accumulator into an output series.
func (a *Accumulator) ToSeries() (Series, error) {
	if len(a.points) == 0 {
		return Series{}, ErrEmptyTrace
	}
	return Series{Points: a.Points()}, nil
}

func (a *Accumulator) search(scanIndex int) (int, bool) {
	i := sort.Search(len(a.points), func(i int) bool {
		return a.points[i].ScanIndex >= scanIndex
	})
	return i, i < len(a.points) && a.points[i].ScanIndex == scanIndex
}

func (a *Accumulator) insertAt(i int, dp l1frames.DataPoint) {
	// Frame order makes appends the common case.
	if i == len(a.points) {
		a.points = append(a.points, dp)
		return
	}
	a.points = append(a.points, l1frames.DataPoint{})
	copy(a.points[i+1:], a.points[i:])
	a.points[i] = dp
}

func (a *Accumulator) update() {
	if len(a.points) == 0 {
		a.mzLow, a.mzHigh, a.centerMZ = math.Inf(1), math.Inf(-1), math.NaN()
		return
	}

	a.mzs = a.mzs[:0]
	a.intensities = a.intensities[:0]
	for _, p := range a.points {
		a.mzs = append(a.mzs, p.MZ)
		a.intensities = append(a.intensities, p.Intensity)
	}

	a.mzLow = floats.Min(a.mzs)
	a.mzHigh = floats.Max(a.mzs)

	if floats.Sum(a.intensities) == 0 {
		a.centerMZ = math.NaN()
		return
	}
	a.centerMZ = stat.Mean(a.mzs, a.intensities)
}
