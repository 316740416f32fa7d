package l4features

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
	"github.com/banshee-data/mobility.report/internal/ims/l2traces"
	"github.com/banshee-data/mobility.report/internal/ims/l3expand"
	"github.com/banshee-data/mobility.report/internal/testutil"
)

func testRawFile() *l1frames.RawFile {
	return testutil.BuildRawFile(testutil.RunSpec{
		Frames:        5,
		ScansPerFrame: 10,
		RTStart:       3.0,
		RTStep:        0.01,
		MobilityStart: 1.0,
		MobilityStep:  -0.01,
	})
}

func TestBinner(t *testing.T) {
	t.Parallel()

	raw := testRawFile() // mobility 0.91 .. 1.00

	_, err := NewBinner(raw, 0)
	assert.Error(t, err)
	_, err = NewBinner(&l1frames.RawFile{Name: "empty"}, 0.01)
	assert.ErrorContains(t, err, "no mobility scans")
	_, err = NewBinner(raw, 1e-9)
	assert.ErrorContains(t, err, "needs more than")

	b, err := NewBinner(raw, 0.02)
	require.NoError(t, err)
	assert.Equal(t, 5, b.NumBins())
	assert.Equal(t, 0.02, b.Width())

	summed := b.Bin([]l1frames.DataPoint{
		{Mobility: 1.00, Intensity: 1},
		{Mobility: 0.912, Intensity: 2},
		{Mobility: 0.915, Intensity: 3},
		{Mobility: 2.5, Intensity: 100}, // outside, ignored
	})
	require.Len(t, summed.Intensities, 5)
	assert.InDelta(t, 5, summed.Intensities[0], 1e-12)
	assert.InDelta(t, 1, summed.Intensities[4], 1e-12)

	mob, in, ok := summed.Apex()
	require.True(t, ok)
	assert.InDelta(t, 0.92, mob, 1e-9)
	assert.InDelta(t, 5, in, 1e-12)

	_, _, ok = b.Bin(nil).Apex()
	assert.False(t, ok)
}

func TestIonMobilogramTimeSeries(t *testing.T) {
	t.Parallel()

	raw := testRawFile()
	b, err := NewBinner(raw, 0.01)
	require.NoError(t, err)

	series := l2traces.Series{Points: []l1frames.DataPoint{
		{MZ: 200.00, Intensity: 10, Mobility: 0.95, ScanIndex: 5, FrameNumber: 1, RetentionTime: 3.00},
		{MZ: 200.01, Intensity: 30, Mobility: 0.95, ScanIndex: 15, FrameNumber: 2, RetentionTime: 3.01},
		{MZ: 200.00, Intensity: 20, Mobility: 0.94, ScanIndex: 16, FrameNumber: 2, RetentionTime: 3.01},
		{MZ: 200.02, Intensity: 10, Mobility: 0.95, ScanIndex: 25, FrameNumber: 3, RetentionTime: 3.02},
	}}

	_, err = NewIonMobilogramTimeSeries(l2traces.Series{}, b)
	assert.ErrorIs(t, err, l2traces.ErrEmptyTrace)
	_, err = NewIonMobilogramTimeSeries(series, nil)
	assert.Error(t, err)

	ts, err := NewIonMobilogramTimeSeries(series, b)
	require.NoError(t, err)
	assert.Equal(t, 3, ts.NumFrames())
	assert.Equal(t, 4, ts.NumScans())
	assert.Equal(t, series.Points, ts.Points())

	rts, intensities := ts.Chromatogram()
	assert.Equal(t, []float64{3.00, 3.01, 3.02}, rts)
	assert.Equal(t, []float64{10, 50, 10}, intensities)

	f := &Feature{MZ: 1, Mobility: 9}
	ts.ApplyTo(f)
	assert.Same(t, ts, f.Series)
	assert.InDelta(t, (200.00*10+200.01*30+200.00*20+200.02*10)/70, f.MZ, 1e-9)
	assert.Equal(t, 3.01, f.RetentionTime)
	assert.Equal(t, 50.0, f.Height)
	assert.InDelta(t, 0.01*(10+50)/2+0.01*(50+10)/2, f.Area, 1e-9)
	assert.InDelta(t, 0.95, f.Mobility, 0.006)
	assert.Equal(t, l3expand.Range{Lo: 200.00, Hi: 200.02}, f.MZRange)
	assert.Equal(t, l3expand.Range{Lo: 3.00, Hi: 3.02}, f.RTRange)
}

func TestRowClone(t *testing.T) {
	t.Parallel()

	row := &Row{ID: 4, AverageMZ: 300, Feature: &Feature{MZ: 300, Series: &IonMobilogramTimeSeries{}}}
	c := row.Clone()
	require.NotSame(t, row.Feature, c.Feature)
	assert.Nil(t, c.Feature.Series)
	assert.Equal(t, 300.0, c.Feature.MZ)

	c.Feature.MZ = 1
	assert.Equal(t, 300.0, row.Feature.MZ)

	bare := (&Row{ID: 1}).Clone()
	assert.Nil(t, bare.Feature)
}

func TestFeatureList_Frames(t *testing.T) {
	t.Parallel()

	raw := testRawFile()
	fl := NewFeatureList("sample", raw)
	assert.NotEmpty(t, fl.ID)
	assert.Len(t, fl.Frames(raw), 5)

	fl.SelectedFrames = []int{4, 2}
	frames := fl.Frames(raw)
	require.Len(t, frames, 2)
	assert.Equal(t, 2, frames[0].Number, "acquisition order kept")
	assert.Equal(t, 4, frames[1].Number)

	fl.AddRow(&Row{ID: 7})
	assert.Equal(t, 1, fl.NumRows())
	assert.NotNil(t, fl.RowByID(7))
	assert.Nil(t, fl.RowByID(8))
}

func TestLoadFeatureList(t *testing.T) {
	t.Parallel()

	fl := NewFeatureList("input", testRawFile())
	fl.AddRow(&Row{ID: 1, AverageMZ: 200.1, Feature: &Feature{MZ: 200.1, MZRange: l3expand.Range{Lo: 200.09, Hi: 200.11}}})
	fl.AddRow(&Row{ID: 2, AverageMZ: 150.0})
	data, err := json.Marshal(fl)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "flist.json")
	require.NoError(t, os.WriteFile(path, data, 0o644))

	loaded, err := LoadFeatureList(path)
	require.NoError(t, err)
	assert.Equal(t, fl.ID, loaded.ID)
	assert.Equal(t, "input", loaded.Name)
	require.Len(t, loaded.Rows, 2)
	assert.Equal(t, 200.11, loaded.Rows[0].Feature.MZRange.Hi)
	require.Len(t, loaded.RawFiles, 1)
	assert.True(t, loaded.RawFiles[0].HasMobility())

	t.Run("duplicate row ids", func(t *testing.T) {
		_, err := DecodeFeatureList(strings.NewReader(`{"name":"x","rows":[{"id":1},{"id":1}]}`))
		assert.ErrorContains(t, err, "duplicate row id")
	})

	t.Run("generated id", func(t *testing.T) {
		got, err := DecodeFeatureList(strings.NewReader(`{"name":"x"}`))
		require.NoError(t, err)
		assert.NotEmpty(t, got.ID)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := DecodeFeatureList(strings.NewReader(`{`))
		assert.ErrorContains(t, err, "decode feature list")
	})
}
