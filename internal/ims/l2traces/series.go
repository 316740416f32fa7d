package l2traces

import "github.com/banshee-data/mobility.report/internal/ims/l1frames"

// Series is a trace flattened in scan index order.
type Series struct {
	Points []l1frames.DataPoint
}

// Len returns the number of points.
func (s Series) Len() int { return len(s.Points) }

// NumFrames returns the number of distinct frames the series spans.
func (s Series) NumFrames() int {
	n := 0
	last := 0
	for i, p := range s.Points {
		if i == 0 || p.FrameNumber != last {
			n++
			last = p.FrameNumber
		}
	}
	return n
}

// ByFrame splits the series into consecutive runs of points sharing a frame.
// Runs keep scan index order, so frames come out in acquisition order.
func (s Series) ByFrame() [][]l1frames.DataPoint {
	var out [][]l1frames.DataPoint
	start := 0
	for i := 1; i <= len(s.Points); i++ {
		if i == len(s.Points) || s.Points[i].FrameNumber != s.Points[start].FrameNumber {
			out = append(out, s.Points[start:i])
			start = i
		}
	}
	return out
}
