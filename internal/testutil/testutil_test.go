package testutil

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
)

func TestBuildRawFile(t *testing.T) {
	raw := BuildRawFile(RunSpec{
		Frames:        4,
		ScansPerFrame: 10,
		RTStart:       2.0,
		RTStep:        0.01,
		MobilityStart: 1.4,
		MobilityStep:  -0.01,
		NoiseFloor:    1,
		Peaks: []Peak{
			{MZ: 300.1, RT: 2.015, Mobility: 1.35, Height: 1e4, RTWidth: 0.01, MobilityWidth: 0.02},
			{MZ: 150.2, RT: 2.015, Mobility: 1.35, Height: 1e4, RTWidth: 0.01, MobilityWidth: 0.02},
		},
	})

	require.NoError(t, raw.Validate())
	assert.True(t, raw.HasMobility())
	require.Len(t, raw.Frames, 4)
	assert.Equal(t, 1, raw.Frames[0].Number)
	assert.Equal(t, 39, raw.Frames[3].Scans[9].Index)

	apex := raw.Frames[1].Scans[5]
	require.Len(t, apex.Signals, 2)
	assert.Less(t, apex.Signals[0].MZ, apex.Signals[1].MZ, "signals sorted by m/z")
}

func TestSingleSignalFrame(t *testing.T) {
	f := SingleSignalFrame(3, 1.5, 20, l1frames.Signal{MZ: 100, Intensity: 1}, l1frames.Signal{MZ: 101, Intensity: 2})
	require.Len(t, f.Scans, 2)
	assert.Equal(t, 21, f.Scans[1].Index)
	assert.Equal(t, 3, f.Number)
	assert.Equal(t, 2, f.NumSignals())
}
