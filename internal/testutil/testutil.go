// Package testutil provides shared test utilities and fixtures.
//
// This package centralises synthetic acquisition builders so tests across
// the ims layers describe runs the same way.
package testutil

import (
	"math"
	"sort"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
)

// Peak describes a synthetic compound with a Gaussian profile in both
// retention time and mobility.
type Peak struct {
	MZ            float64
	RT            float64
	Mobility      float64
	Height        float64
	RTWidth       float64 // sigma, minutes
	MobilityWidth float64 // sigma, mobility units
}

// RunSpec describes a synthetic acquisition.
type RunSpec struct {
	Name          string
	Frames        int
	ScansPerFrame int
	RTStart       float64
	RTStep        float64
	MobilityStart float64
	MobilityStep  float64 // negative for TIMS-like descending mobility
	NoiseFloor    float64 // signals at or below this intensity are not emitted
	Peaks         []Peak
}

// BuildRawFile renders spec into a raw file with stable, increasing scan
// indices and frames numbered from 1.
func BuildRawFile(spec RunSpec) *l1frames.RawFile {
	peaks := append([]Peak(nil), spec.Peaks...)
	sort.Slice(peaks, func(i, j int) bool { return peaks[i].MZ < peaks[j].MZ })

	name := spec.Name
	if name == "" {
		name = "synthetic.d"
	}
	raw := &l1frames.RawFile{Name: name, MobilityType: "tims"}
	index := 0
	for f := 0; f < spec.Frames; f++ {
		frame := &l1frames.Frame{
			Number:        f + 1,
			RetentionTime: spec.RTStart + float64(f)*spec.RTStep,
			Scans:         make([]l1frames.MobilityScan, 0, spec.ScansPerFrame),
		}
		for s := 0; s < spec.ScansPerFrame; s++ {
			scan := l1frames.MobilityScan{
				Index:    index,
				Number:   s,
				Mobility: spec.MobilityStart + float64(s)*spec.MobilityStep,
			}
			index++
			for _, p := range peaks {
				in := p.Height *
					gauss(frame.RetentionTime, p.RT, p.RTWidth) *
					gauss(scan.Mobility, p.Mobility, p.MobilityWidth)
				if in > spec.NoiseFloor {
					scan.Signals = append(scan.Signals, l1frames.Signal{MZ: p.MZ, Intensity: in})
				}
			}
			frame.Scans = append(frame.Scans, scan)
		}
		raw.Frames = append(raw.Frames, frame)
	}
	return raw
}

func gauss(x, mu, sigma float64) float64 {
	if sigma <= 0 {
		if x == mu {
			return 1
		}
		return 0
	}
	d := (x - mu) / sigma
	return math.Exp(-0.5 * d * d)
}

// SingleSignalFrame builds a frame with one scan per signal; signal i is
// placed in scan index firstIndex+i.
func SingleSignalFrame(number int, rt float64, firstIndex int, signals ...l1frames.Signal) *l1frames.Frame {
	frame := &l1frames.Frame{Number: number, RetentionTime: rt}
	for i, s := range signals {
		frame.Scans = append(frame.Scans, l1frames.MobilityScan{
			Index:    firstIndex + i,
			Number:   i,
			Mobility: 1.0 - 0.01*float64(i),
			Signals:  []l1frames.Signal{s},
		})
	}
	return frame
}

