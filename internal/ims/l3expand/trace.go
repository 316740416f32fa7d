package l3expand

import (
	"errors"
	"fmt"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
	"github.com/banshee-data/mobility.report/internal/ims/l2traces"
)

// ErrTooFewScans is returned when an output series is requested from a
// trace with fewer than two contributing mobility scans. Callers check
// NumberOfMobilityScans first.
var ErrTooFewScans = errors.New("trace spans fewer than two mobility scans")

// ExpandingTrace binds one candidate row to an m/z acceptance window and
// collects the matching points of every frame.
//
// A trace is owned by exactly one worker while frames are scanned and is
// read-only afterwards.
type ExpandingTrace struct {
	Row     int   // opaque row handle
	MZRange Range // acceptance window
	RTRange Range // frames outside are skipped; zero value accepts all

	acc      *l2traces.Accumulator
	numScans int
}

// NewExpandingTrace creates an empty trace for row.
func NewExpandingTrace(row int, mzRange, rtRange Range) *ExpandingTrace {
	return &ExpandingTrace{
		Row:     row,
		MZRange: mzRange,
		RTRange: rtRange,
		acc:     l2traces.NewAccumulator(),
	}
}

// Accepts reports whether mz lies in the acceptance window.
func (t *ExpandingTrace) Accepts(mz float64) bool { return t.MZRange.Contains(mz) }

// AcceptsFrame reports whether points of frame may join the trace.
func (t *ExpandingTrace) AcceptsFrame(frame *l1frames.Frame) bool {
	return t.RTRange.IsZero() || t.RTRange.Contains(frame.RetentionTime)
}

// Offer proposes signal s from scan of frame. It returns true when the
// point was stored, either in a free slot or by replacing a worse fit.
func (t *ExpandingTrace) Offer(frame *l1frames.Frame, scan *l1frames.MobilityScan, s l1frames.Signal) bool {
	if !t.Accepts(s.MZ) {
		return false
	}
	res, _ := t.acc.ResolveBestFit(l1frames.NewDataPoint(frame, scan, s))
	switch res {
	case l2traces.Inserted:
		t.numScans++
		return true
	case l2traces.Replaced:
		return true
	default:
		return false
	}
}

// NumberOfMobilityScans returns the number of distinct contributing scans.
func (t *ExpandingTrace) NumberOfMobilityScans() int { return t.numScans }

// CenterMZ returns the current centroid of the collected points.
func (t *ExpandingTrace) CenterMZ() float64 { return t.acc.CenterMZ() }

// ToOutputSeries flattens the collected points.
func (t *ExpandingTrace) ToOutputSeries() (l2traces.Series, error) {
	if t.numScans <= 1 {
		return l2traces.Series{}, fmt.Errorf("row %d: %w", t.Row, ErrTooFewScans)
	}
	return t.acc.ToSeries()
}

func (t *ExpandingTrace) String() string {
	return fmt.Sprintf("trace(row=%d mz=%s scans=%d)", t.Row, t.MZRange, t.numScans)
}
