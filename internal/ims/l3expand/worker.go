package l3expand

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync/atomic"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
)

// ErrFrameOrder is returned when a worker meets frames out of acquisition
// order. Traces rely on frame order to receive points by increasing scan
// index.
var ErrFrameOrder = errors.New("frames out of acquisition order")

// Worker scans every frame for signals matching its own traces.
//
// The traces handed to a worker are owned by it until Run returns; no
// other goroutine may touch them meanwhile. Frames are shared read-only.
type Worker struct {
	ID int

	traces []*ExpandingTrace
	frames []*l1frames.Frame

	// traces ordered by lower window bound, for range search
	byLo     []*ExpandingTrace
	los      []float64
	maxWidth float64

	processed atomic.Int64
	stored    atomic.Int64
}

// NewWorker prepares a worker over traces and the shared frame sequence.
func NewWorker(id int, traces []*ExpandingTrace, frames []*l1frames.Frame) *Worker {
	w := &Worker{
		ID:     id,
		traces: traces,
		frames: frames,
		byLo:   make([]*ExpandingTrace, len(traces)),
		los:    make([]float64, len(traces)),
	}
	copy(w.byLo, traces)
	sort.SliceStable(w.byLo, func(i, j int) bool {
		return w.byLo[i].MZRange.Lo < w.byLo[j].MZRange.Lo
	})
	for i, t := range w.byLo {
		w.los[i] = t.MZRange.Lo
		if wd := t.MZRange.Width(); wd > w.maxWidth {
			w.maxWidth = wd
		}
	}
	return w
}

// Traces returns the traces owned by the worker in their input order.
func (w *Worker) Traces() []*ExpandingTrace { return w.traces }

// Progress returns the fraction of frames processed, in [0,1].
func (w *Worker) Progress() float64 {
	if len(w.frames) == 0 {
		return 1
	}
	return float64(w.processed.Load()) / float64(len(w.frames))
}

// FramesProcessed returns the number of frames completed so far.
func (w *Worker) FramesProcessed() int { return int(w.processed.Load()) }

// PointsStored returns how many offers were stored by the worker's traces.
func (w *Worker) PointsStored() int64 { return w.stored.Load() }

// Run scans all frames in order. Cancellation is checked between frames,
// so a trace is never left with a half-processed frame. A panic inside
// the scan is returned as an error.
func (w *Worker) Run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker %d panicked: %v\n%s", w.ID, r, debug.Stack())
		}
	}()

	for i, frame := range w.frames {
		if err := ctx.Err(); err != nil {
			return err
		}
		if i > 0 && frame.Number <= w.frames[i-1].Number {
			return fmt.Errorf("worker %d: frame %d after frame %d: %w",
				w.ID, frame.Number, w.frames[i-1].Number, ErrFrameOrder)
		}
		w.scanFrame(frame)
		w.processed.Add(1)
	}
	return nil
}

func (w *Worker) scanFrame(frame *l1frames.Frame) {
	var stored int64
	for si := range frame.Scans {
		scan := &frame.Scans[si]
		for _, s := range scan.Signals {
			for _, t := range w.candidates(s.MZ) {
				if !t.AcceptsFrame(frame) {
					continue
				}
				if t.Offer(frame, scan, s) {
					stored++
				}
			}
		}
	}
	w.stored.Add(stored)
}

// candidates returns the traces whose window could contain mz: the lower
// bound is at most mz and no further below it than the widest window.
func (w *Worker) candidates(mz float64) []*ExpandingTrace {
	first := sort.SearchFloat64s(w.los, mz-w.maxWidth)
	last := first
	for last < len(w.los) && w.los[last] <= mz {
		last++
	}
	return w.byLo[first:last]
}
