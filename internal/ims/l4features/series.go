package l4features

import (
	"errors"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/integrate"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
	"github.com/banshee-data/mobility.report/internal/ims/l2traces"
	"github.com/banshee-data/mobility.report/internal/ims/l3expand"
)

// Mobilogram is the part of a trace acquired in one frame.
type Mobilogram struct {
	FrameNumber   int
	RetentionTime float64
	Points        []l1frames.DataPoint // scan index order
}

// SummedIntensity returns the total intensity of the mobilogram.
func (m Mobilogram) SummedIntensity() float64 {
	var sum float64
	for _, p := range m.Points {
		sum += p.Intensity
	}
	return sum
}

// IonMobilogramTimeSeries is an expanded trace: one mobilogram per frame
// plus the summed, binned mobilogram over all frames.
type IonMobilogramTimeSeries struct {
	Mobilograms []Mobilogram
	Summed      SummedMobilogram
}

// NewIonMobilogramTimeSeries splits series by frame and bins it with b.
func NewIonMobilogramTimeSeries(series l2traces.Series, b *Binner) (*IonMobilogramTimeSeries, error) {
	if series.Len() == 0 {
		return nil, l2traces.ErrEmptyTrace
	}
	if b == nil {
		return nil, errors.New("mobilogram binner is required")
	}

	return &IonMobilogramTimeSeries{
		Mobilograms: SplitMobilograms(series),
		Summed:      b.Bin(series.Points),
	}, nil
}

// SplitMobilograms cuts series into one mobilogram per frame.
func SplitMobilograms(series l2traces.Series) []Mobilogram {
	runs := series.ByFrame()
	out := make([]Mobilogram, 0, len(runs))
	for _, run := range runs {
		out = append(out, Mobilogram{
			FrameNumber:   run[0].FrameNumber,
			RetentionTime: run[0].RetentionTime,
			Points:        run,
		})
	}
	return out
}

// NumFrames returns the number of frames with at least one point.
func (ts *IonMobilogramTimeSeries) NumFrames() int { return len(ts.Mobilograms) }

// NumScans returns the number of mobility scans with a point.
func (ts *IonMobilogramTimeSeries) NumScans() int {
	n := 0
	for _, m := range ts.Mobilograms {
		n += len(m.Points)
	}
	return n
}

// Points returns every point in scan index order.
func (ts *IonMobilogramTimeSeries) Points() []l1frames.DataPoint {
	out := make([]l1frames.DataPoint, 0, ts.NumScans())
	for _, m := range ts.Mobilograms {
		out = append(out, m.Points...)
	}
	return out
}

// Chromatogram returns retention times and summed intensities per frame.
func (ts *IonMobilogramTimeSeries) Chromatogram() (rts, intensities []float64) {
	rts = make([]float64, len(ts.Mobilograms))
	intensities = make([]float64, len(ts.Mobilograms))
	for i, m := range ts.Mobilograms {
		rts[i] = m.RetentionTime
		intensities[i] = m.SummedIntensity()
	}
	return rts, intensities
}

// ApplyTo recomputes the series-dependent values of f: m/z, retention
// time, height, area, apex mobility and the m/z and retention time ranges.
func (ts *IonMobilogramTimeSeries) ApplyTo(f *Feature) {
	f.Series = ts
	points := ts.Points()
	if len(points) == 0 {
		return
	}

	mzs := make([]float64, len(points))
	weights := make([]float64, len(points))
	for i, p := range points {
		mzs[i] = p.MZ
		weights[i] = p.Intensity
	}
	f.MZRange = l3expand.Range{Lo: floats.Min(mzs), Hi: floats.Max(mzs)}
	if floats.Sum(weights) > 0 {
		f.MZ = stat.Mean(mzs, weights)
	}

	rts, intensities := ts.Chromatogram()
	apex := floats.MaxIdx(intensities)
	f.RetentionTime = rts[apex]
	f.Height = intensities[apex]
	f.RTRange = l3expand.Range{Lo: rts[0], Hi: rts[len(rts)-1]}
	f.Area = 0
	if len(rts) > 1 {
		f.Area = integrate.Trapezoidal(rts, intensities)
	}

	f.Mobility = 0
	if mob, _, ok := ts.Summed.Apex(); ok {
		f.Mobility = mob
	}
}
