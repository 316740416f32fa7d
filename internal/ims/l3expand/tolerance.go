package l3expand

import (
	"fmt"
	"math"
)

// Range is a closed interval [Lo, Hi].
type Range struct {
	Lo float64 `json:"lo"`
	Hi float64 `json:"hi"`
}

// NewRange returns the interval spanning a and b in either order.
func NewRange(a, b float64) Range {
	if a > b {
		a, b = b, a
	}
	return Range{Lo: a, Hi: b}
}

// Contains reports whether v lies in the interval, bounds included.
func (r Range) Contains(v float64) bool { return v >= r.Lo && v <= r.Hi }

// Width returns Hi - Lo.
func (r Range) Width() float64 { return r.Hi - r.Lo }

// IsZero reports whether the range is unset.
func (r Range) IsZero() bool { return r.Lo == 0 && r.Hi == 0 }

func (r Range) String() string { return fmt.Sprintf("[%.5f, %.5f]", r.Lo, r.Hi) }

// MZTolerance is an m/z matching tolerance. The effective half-width at a
// given m/z is the larger of the absolute and the ppm-derived tolerance.
type MZTolerance struct {
	Absolute float64 `json:"absolute"`
	PPM      float64 `json:"ppm"`
}

// HalfWidth returns the tolerance at mz.
func (t MZTolerance) HalfWidth(mz float64) float64 {
	return math.Max(t.Absolute, math.Abs(mz)*t.PPM*1e-6)
}

// ToleranceRange returns the acceptance window around mz.
func (t MZTolerance) ToleranceRange(mz float64) Range {
	w := t.HalfWidth(mz)
	return Range{Lo: mz - w, Hi: mz + w}
}

func (t MZTolerance) String() string {
	return fmt.Sprintf("%.4f m/z or %.1f ppm", t.Absolute, t.PPM)
}
