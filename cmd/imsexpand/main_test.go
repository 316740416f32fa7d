package main

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/mobility.report/internal/db"
	"github.com/banshee-data/mobility.report/internal/ims/l4features"
	"github.com/banshee-data/mobility.report/internal/ims/pipeline"
	"github.com/banshee-data/mobility.report/internal/ims/storage/sqlite"
)

func TestTrackRunSavesState(t *testing.T) {
	d, err := db.NewDB(filepath.Join(t.TempDir(), "results.db"))
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	defer func() {
		if err := d.Close(); err != nil {
			t.Errorf("Failed to close test database: %v", err)
		}
	}()

	source := l4features.NewFeatureList("sample")
	e := pipeline.NewExpander(source, pipeline.Options{})
	runs := sqlite.NewRunStore(d.DB)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		trackRun(ctx, runs, e, 5*time.Millisecond)
	}()

	require.Eventually(t, func() bool {
		_, err := runs.GetRun(e.ID())
		return err == nil
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()

	rec, err := runs.GetRun(e.ID())
	require.NoError(t, err)
	assert.Equal(t, pipeline.StatusNotStarted, rec.Status)
	assert.Equal(t, "sample", rec.SourceName)
	assert.Equal(t, source.ID, rec.SourceID)
}
