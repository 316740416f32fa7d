package l1frames

import (
	"fmt"
	"strings"
)

// MobilityTypeNone marks a raw file acquired without a mobility dimension.
const MobilityTypeNone = "none"

// Signal is one detected (m/z, intensity) peak within a mobility scan.
type Signal struct {
	MZ        float64 `json:"mz"`
	Intensity float64 `json:"intensity"`
}

// MobilityScan is one sub-scan of a frame.
type MobilityScan struct {
	Index    int      `json:"index"`  // stable scan index, unique across the raw file
	Number   int      `json:"number"` // position within the owning frame
	Mobility float64  `json:"mobility"`
	Signals  []Signal `json:"signals"`
}

// Frame is one complete ion-mobility acquisition cycle.
type Frame struct {
	Number        int            `json:"number"`
	RetentionTime float64        `json:"rt"` // minutes
	Scans         []MobilityScan `json:"scans"`
}

// NumSignals returns the total number of signals over all scans.
func (f *Frame) NumSignals() int {
	n := 0
	for i := range f.Scans {
		n += len(f.Scans[i].Signals)
	}
	return n
}

// DataPoint is an immutable point assigned to a trace. The scan reference
// is carried as a handle (index and frame number) rather than a pointer.
type DataPoint struct {
	MZ            float64
	Intensity     float64
	Mobility      float64
	ScanIndex     int
	FrameNumber   int
	RetentionTime float64
}

// NewDataPoint builds the data point for signal s detected in scan of frame.
func NewDataPoint(frame *Frame, scan *MobilityScan, s Signal) DataPoint {
	return DataPoint{
		MZ:            s.MZ,
		Intensity:     s.Intensity,
		Mobility:      scan.Mobility,
		ScanIndex:     scan.Index,
		FrameNumber:   frame.Number,
		RetentionTime: frame.RetentionTime,
	}
}

// RawFile is the frame source of one acquisition.
type RawFile struct {
	Name         string   `json:"name"`
	MobilityType string   `json:"mobility_type"` // e.g. "tims", "drift_tube", "none"
	Frames       []*Frame `json:"frames"`
}

// HasMobility reports whether the file carries a mobility dimension.
func (r *RawFile) HasMobility() bool {
	if r == nil {
		return false
	}
	t := strings.TrimSpace(strings.ToLower(r.MobilityType))
	return t != "" && t != MobilityTypeNone
}

// MobilityRange returns the smallest and largest scan mobility in the file.
// ok is false when the file contains no scans.
func (r *RawFile) MobilityRange() (lo, hi float64, ok bool) {
	for _, f := range r.Frames {
		for i := range f.Scans {
			m := f.Scans[i].Mobility
			if !ok {
				lo, hi, ok = m, m, true
				continue
			}
			if m < lo {
				lo = m
			}
			if m > hi {
				hi = m
			}
		}
	}
	return lo, hi, ok
}

// FrameByNumber returns the frame with the given number, or nil.
func (r *RawFile) FrameByNumber(number int) *Frame {
	for _, f := range r.Frames {
		if f.Number == number {
			return f
		}
	}
	return nil
}

// Validate checks the ordering guarantees the expansion workers rely on:
// frames in strictly increasing number and retention time order, and scan
// indices strictly increasing across the whole file.
func (r *RawFile) Validate() error {
	for i, f := range r.Frames {
		if f == nil {
			return fmt.Errorf("raw file %q: frame %d is nil", r.Name, i)
		}
		if i == 0 {
			continue
		}
		prev := r.Frames[i-1]
		if f.Number <= prev.Number {
			return fmt.Errorf("raw file %q: frame %d follows frame %d", r.Name, f.Number, prev.Number)
		}
		if f.RetentionTime < prev.RetentionTime {
			return fmt.Errorf("raw file %q: frame %d retention time %.4f before %.4f",
				r.Name, f.Number, f.RetentionTime, prev.RetentionTime)
		}
	}
	return r.ValidateScanIndices()
}

// ValidateScanIndices checks that scan indices strictly increase in
// file order, so no two scans of the file share an index.
func (r *RawFile) ValidateScanIndices() error {
	lastIndex := -1
	for i, f := range r.Frames {
		if f == nil {
			return fmt.Errorf("raw file %q: frame %d is nil", r.Name, i)
		}
		for j := range f.Scans {
			idx := f.Scans[j].Index
			if idx <= lastIndex {
				return fmt.Errorf("raw file %q: frame %d scan index %d not after %d",
					r.Name, f.Number, idx, lastIndex)
			}
			lastIndex = idx
		}
	}
	return nil
}
