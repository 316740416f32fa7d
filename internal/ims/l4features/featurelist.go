package l4features

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
	"github.com/banshee-data/mobility.report/internal/ims/l3expand"
)

// Feature is the detected signal of one row in one raw file.
type Feature struct {
	MZ            float64        `json:"mz"`
	RetentionTime float64        `json:"rt"`
	Height        float64        `json:"height"`
	Area          float64        `json:"area"`
	Mobility      float64        `json:"mobility,omitempty"`
	MZRange       l3expand.Range `json:"mz_range"` // m/z range of the raw data points
	RTRange       l3expand.Range `json:"rt_range"`

	Series *IonMobilogramTimeSeries `json:"-"`
}

// Clone returns a copy of f without its series.
func (f *Feature) Clone() *Feature {
	if f == nil {
		return nil
	}
	c := *f
	c.Series = nil
	return &c
}

// Row is one candidate compound of a feature list.
type Row struct {
	ID        int      `json:"id"`
	AverageMZ float64  `json:"average_mz"`
	Comment   string   `json:"comment,omitempty"`
	Feature   *Feature `json:"feature,omitempty"`
}

// Clone returns a deep copy of r, dropping any series on its feature.
func (r *Row) Clone() *Row {
	c := *r
	c.Feature = r.Feature.Clone()
	return &c
}

// AppliedMethod records one processing step applied to a feature list.
type AppliedMethod struct {
	Name       string          `json:"name"`
	Parameters json.RawMessage `json:"parameters,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
}

// FeatureList is the result collection: rows detected in raw files.
type FeatureList struct {
	ID             string              `json:"id"`
	Name           string              `json:"name"`
	RawFiles       []*l1frames.RawFile `json:"raw_files"`
	SelectedFrames []int               `json:"selected_frames,omitempty"` // frame numbers; empty selects all
	Rows           []*Row              `json:"rows"`
	AppliedMethods []AppliedMethod     `json:"applied_methods,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
}

// NewFeatureList creates an empty feature list over raw files.
func NewFeatureList(name string, raw ...*l1frames.RawFile) *FeatureList {
	return &FeatureList{
		ID:        uuid.New().String(),
		Name:      name,
		RawFiles:  raw,
		CreatedAt: time.Now(),
	}
}

// NumRows returns the number of rows.
func (fl *FeatureList) NumRows() int { return len(fl.Rows) }

// AddRow appends r.
func (fl *FeatureList) AddRow(r *Row) { fl.Rows = append(fl.Rows, r) }

// RowByID returns the row with id, or nil.
func (fl *FeatureList) RowByID(id int) *Row {
	for _, r := range fl.Rows {
		if r.ID == id {
			return r
		}
	}
	return nil
}

// Frames returns the selected frames of raw in acquisition order. An empty
// selection selects every frame.
func (fl *FeatureList) Frames(raw *l1frames.RawFile) []*l1frames.Frame {
	if len(fl.SelectedFrames) == 0 {
		return raw.Frames
	}
	selected := make(map[int]struct{}, len(fl.SelectedFrames))
	for _, n := range fl.SelectedFrames {
		selected[n] = struct{}{}
	}
	out := make([]*l1frames.Frame, 0, len(fl.SelectedFrames))
	for _, f := range raw.Frames {
		if _, ok := selected[f.Number]; ok {
			out = append(out, f)
		}
	}
	return out
}
