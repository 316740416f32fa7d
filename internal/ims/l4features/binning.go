package l4features

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
)

// SummedMobilogram is a mobilogram summed over frames into fixed-width
// mobility bins.
type SummedMobilogram struct {
	BinWidth    float64   `json:"bin_width"`
	Mobilities  []float64 `json:"mobilities"` // bin centres
	Intensities []float64 `json:"intensities"`
}

// Apex returns the bin centre with the highest intensity; ok is false when
// every bin is empty.
func (m SummedMobilogram) Apex() (mobility, intensity float64, ok bool) {
	if len(m.Intensities) == 0 {
		return 0, 0, false
	}
	i := floats.MaxIdx(m.Intensities)
	if m.Intensities[i] <= 0 {
		return 0, 0, false
	}
	return m.Mobilities[i], m.Intensities[i], true
}

// Binner sums data points into fixed-width bins spanning the mobility
// range of one raw file. It is read-only after construction and may be
// shared.
type Binner struct {
	width    float64
	dividers []float64
	centres  []float64
}

// MaxBins bounds the number of bins a Binner may allocate.
const MaxBins = 1 << 20

// NewBinner builds a binner of width over the mobility range of raw.
func NewBinner(raw *l1frames.RawFile, width float64) (*Binner, error) {
	if width <= 0 || math.IsNaN(width) || math.IsInf(width, 0) {
		return nil, fmt.Errorf("mobility bin width must be positive, got %v", width)
	}
	lo, hi, ok := raw.MobilityRange()
	if !ok {
		return nil, fmt.Errorf("raw file %q has no mobility scans", raw.Name)
	}

	if span := (hi - lo) / width; span >= MaxBins {
		return nil, fmt.Errorf("mobility bin width %v over range [%v, %v] needs more than %d bins", width, lo, hi, MaxBins)
	}
	n := int(math.Floor((hi-lo)/width)) + 1
	for lo+float64(n)*width <= hi {
		n++
	}
	dividers := floats.Span(make([]float64, n+1), lo, lo+float64(n)*width)
	centres := make([]float64, n)
	for i := range centres {
		centres[i] = (dividers[i] + dividers[i+1]) / 2
	}
	return &Binner{width: width, dividers: dividers, centres: centres}, nil
}

// Width returns the bin width.
func (b *Binner) Width() float64 { return b.width }

// NumBins returns the number of bins.
func (b *Binner) NumBins() int { return len(b.centres) }

// Bin sums the intensities of points by mobility. Points outside the
// binner's range are ignored.
func (b *Binner) Bin(points []l1frames.DataPoint) SummedMobilogram {
	lo, hi := b.dividers[0], b.dividers[len(b.dividers)-1]

	sorted := make([]l1frames.DataPoint, 0, len(points))
	for _, p := range points {
		if p.Mobility >= lo && p.Mobility < hi {
			sorted = append(sorted, p)
		}
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Mobility < sorted[j].Mobility })

	x := make([]float64, len(sorted))
	w := make([]float64, len(sorted))
	for i, p := range sorted {
		x[i] = p.Mobility
		w[i] = p.Intensity
	}

	counts := stat.Histogram(nil, b.dividers, x, w)
	return SummedMobilogram{
		BinWidth:    b.width,
		Mobilities:  append([]float64(nil), b.centres...),
		Intensities: counts,
	}
}
