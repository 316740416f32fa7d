package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mobility.report/internal/config"
	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
	"github.com/banshee-data/mobility.report/internal/ims/l3expand"
	"github.com/banshee-data/mobility.report/internal/ims/l4features"
	"github.com/banshee-data/mobility.report/internal/monitoring"
	"github.com/banshee-data/mobility.report/internal/timeutil"
)

// AppliedMethodName names the processing step appended to expanded lists.
const AppliedMethodName = "Mobility expansion"

var (
	// ErrPrecondition is returned when the source feature list cannot be
	// expanded. No worker is started.
	ErrPrecondition = errors.New("mobility expansion precondition failed")

	// ErrWorkerFailed wraps the first error of a failing worker.
	ErrWorkerFailed = errors.New("mobility expansion worker failed")
)

var logf = monitoring.Prefixed("expand")

// Options configure an Expander. Zero fields take defaults.
type Options struct {
	Config *config.ExpanderConfig
	Pool   Pool           // defaults to GroupPool limited to the worker count
	Clock  timeutil.Clock // defaults to timeutil.RealClock
}

// Expander rebuilds the ion mobility trace of every row of a feature list
// and produces a new list holding the rows with more than one mobility
// scan.
//
// An Expander runs once. Status, Progress, Description and State may be
// called from any goroutine while Run is in progress.
type Expander struct {
	id     string
	source *l4features.FeatureList
	cfg    *config.ExpanderConfig
	pool   Pool
	clock  timeutil.Clock

	aggregated atomic.Int64

	mu         sync.RWMutex
	started    bool
	status     Status
	err        error
	workers    []*l3expand.Worker
	totalRows  int
	expanded   int
	result     *l4features.FeatureList
	startedAt  time.Time
	finishedAt time.Time
}

// NewExpander prepares an expansion of source.
func NewExpander(source *l4features.FeatureList, opts Options) *Expander {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.EmptyExpanderConfig()
	}
	pool := opts.Pool
	if pool == nil {
		pool = GroupPool{Limit: cfg.GetWorkerCount()}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Expander{
		id:     uuid.New().String(),
		source: source,
		cfg:    cfg,
		pool:   pool,
		clock:  clock,
		status: StatusNotStarted,
	}
}

// Expand runs a one-off expansion of source with the default pool and
// clock.
func Expand(ctx context.Context, source *l4features.FeatureList, cfg *config.ExpanderConfig) (*l4features.FeatureList, error) {
	return NewExpander(source, Options{Config: cfg}).Run(ctx)
}

// ID returns the run id.
func (e *Expander) ID() string { return e.id }

// Status returns the current lifecycle state.
func (e *Expander) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status
}

// Err returns the terminal error of a canceled or failed run.
func (e *Expander) Err() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.err
}

// Result returns the expanded feature list once the run has finished.
func (e *Expander) Result() *l4features.FeatureList {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.result
}

// Workers returns the frame scan workers of the run; empty before
// partitioning.
func (e *Expander) Workers() []*l3expand.Worker {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.workers
}

// Progress returns the blended completion in [0,1]: half from the mean
// worker progress, half from the rows aggregated so far.
func (e *Expander) Progress() float64 {
	e.mu.RLock()
	status, workers, total := e.status, e.workers, e.totalRows
	e.mu.RUnlock()

	if status == StatusFinished {
		return 1
	}
	var scan float64
	if len(workers) > 0 {
		for _, w := range workers {
			scan += w.Progress()
		}
		scan /= float64(len(workers))
	} else if status == StatusAggregating {
		scan = 1
	}
	var agg float64
	if total > 0 {
		agg = float64(e.aggregated.Load()) / float64(total)
	}
	p := 0.5*scan + 0.5*agg
	switch {
	case p < 0:
		return 0
	case p > 1:
		return 1
	}
	return p
}

// Description returns a human readable account of what the run is doing.
func (e *Expander) Description() string {
	e.mu.RLock()
	status, total, expanded, err := e.status, e.totalRows, e.expanded, e.err
	e.mu.RUnlock()

	name := e.source.Name
	switch status {
	case StatusNotStarted:
		return fmt.Sprintf("Mobility expansion of %s: waiting", name)
	case StatusPartitioning:
		return fmt.Sprintf("Mobility expansion of %s: partitioning %d rows", name, len(e.source.Rows))
	case StatusWorkersRunning:
		return fmt.Sprintf("Mobility expansion of %s: scanning frames (%.0f%%)", name, 100*e.Progress())
	case StatusAggregating:
		return fmt.Sprintf("Creating new features %d/%d", e.aggregated.Load(), total)
	case StatusFinished:
		return fmt.Sprintf("Mobility expansion of %s: %d of %d rows expanded", name, expanded, total)
	default:
		return fmt.Sprintf("Mobility expansion of %s %s: %v", name, status, err)
	}
}

// State returns a snapshot of the run.
func (e *Expander) State() RunState {
	progress, desc := e.Progress(), e.Description()

	e.mu.RLock()
	defer e.mu.RUnlock()
	st := RunState{
		ID:           e.id,
		SourceID:     e.source.ID,
		SourceName:   e.source.Name,
		Status:       e.status,
		Progress:     progress,
		Description:  desc,
		TotalRows:    e.totalRows,
		ExpandedRows: e.expanded,
		Workers:      len(e.workers),
		StartedAt:    e.startedAt,
		FinishedAt:   e.finishedAt,
	}
	if e.result != nil {
		st.ResultID = e.result.ID
	}
	if e.err != nil {
		st.Error = e.err.Error()
	}
	return st
}

func (e *Expander) setStatus(s Status) {
	e.mu.Lock()
	prev := e.status
	e.status = s
	e.mu.Unlock()
	logf("run %s: %s -> %s", e.id, prev, s)
}

// finish moves the run to a terminal state and returns err.
func (e *Expander) finish(s Status, err error) error {
	e.mu.Lock()
	prev := e.status
	e.status = s
	e.err = err
	e.finishedAt = e.clock.Now()
	e.mu.Unlock()
	logf("run %s: %s -> %s", e.id, prev, s)
	if err != nil {
		logf("run %s %s: %v", e.id, s, err)
	}
	return err
}

// Run executes the expansion and blocks until it is terminal. On success
// it returns the new feature list; on cancellation or failure it returns
// nil and an error, and no partial list is produced.
func (e *Expander) Run(ctx context.Context) (*l4features.FeatureList, error) {
	e.mu.Lock()
	if e.started {
		e.mu.Unlock()
		return nil, fmt.Errorf("expansion run %s already %s", e.id, e.status)
	}
	e.started = true
	e.startedAt = e.clock.Now()
	e.mu.Unlock()

	raw, err := e.checkSource()
	if err != nil {
		return nil, e.finish(StatusFailed, err)
	}
	binner, err := l4features.NewBinner(raw, e.cfg.GetMobilityBinWidth())
	if err != nil {
		return nil, e.finish(StatusFailed, fmt.Errorf("%w: %w", ErrPrecondition, err))
	}
	e.setStatus(StatusPartitioning)

	rows := sortedRows(e.source.Rows)
	traces := make([]*l3expand.ExpandingTrace, len(rows))
	for i, row := range rows {
		traces[i] = l3expand.NewExpandingTrace(i, e.window(row), rtRange(row))
	}

	frames := e.source.Frames(raw)
	parts := l3expand.Partition(traces, e.cfg.GetWorkerCount())
	workers := make([]*l3expand.Worker, len(parts))
	tasks := make([]Task, len(parts))
	for i, part := range parts {
		workers[i] = l3expand.NewWorker(i, part, frames)
		tasks[i] = workers[i]
	}

	e.mu.Lock()
	e.workers = workers
	e.totalRows = len(rows)
	e.status = StatusWorkersRunning
	e.mu.Unlock()
	logf("run %s: %s -> %s", e.id, StatusPartitioning, StatusWorkersRunning)
	logf("run %s: %d rows over %d frames of %s, %d workers",
		e.id, len(rows), len(frames), raw.Name, len(workers))

	if err := e.await(ctx, tasks); err != nil {
		cause := ctx.Err()
		if cause == nil && errors.Is(err, context.Canceled) {
			cause = context.Canceled
		}
		if cause != nil {
			return nil, e.finish(StatusCanceled, fmt.Errorf("mobility expansion canceled: %w", cause))
		}
		return nil, e.finish(StatusFailed, fmt.Errorf("%w: %w", ErrWorkerFailed, err))
	}

	e.setStatus(StatusAggregating)
	result, expanded, err := e.aggregate(ctx, raw, rows, traces, binner)
	if err != nil {
		if ctx.Err() != nil {
			return nil, e.finish(StatusCanceled, err)
		}
		return nil, e.finish(StatusFailed, err)
	}

	e.mu.Lock()
	e.result = result
	e.expanded = expanded
	e.mu.Unlock()
	e.finish(StatusFinished, nil)
	logf("run %s finished: %d of %d rows expanded in %s",
		e.id, expanded, len(rows), e.clock.Since(e.startedAt))
	return result, nil
}

// checkSource returns the single raw file of the source list.
func (e *Expander) checkSource() (*l1frames.RawFile, error) {
	if n := len(e.source.RawFiles); n != 1 {
		return nil, fmt.Errorf("%w: feature list %q has %d raw files, need exactly 1",
			ErrPrecondition, e.source.Name, n)
	}
	raw := e.source.RawFiles[0]
	if !raw.HasMobility() {
		return nil, fmt.Errorf("%w: raw file %q has no ion mobility dimension",
			ErrPrecondition, raw.Name)
	}
	if err := raw.ValidateScanIndices(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPrecondition, err)
	}
	return raw, nil
}

// window returns the m/z acceptance window of row. A row without a
// feature always uses the tolerance window.
func (e *Expander) window(row *l4features.Row) l3expand.Range {
	if !e.cfg.GetUseToleranceWindow() && row.Feature != nil && !row.Feature.MZRange.IsZero() {
		return row.Feature.MZRange
	}
	tol := l3expand.MZTolerance{
		Absolute: e.cfg.GetMZToleranceAbs(),
		PPM:      e.cfg.GetMZTolerancePPM(),
	}
	return tol.ToleranceRange(row.AverageMZ)
}

func rtRange(row *l4features.Row) l3expand.Range {
	if row.Feature == nil {
		return l3expand.Range{}
	}
	return row.Feature.RTRange
}

// sortedRows returns rows ordered by average m/z; rows with equal m/z keep
// their list order.
func sortedRows(rows []*l4features.Row) []*l4features.Row {
	out := append([]*l4features.Row(nil), rows...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].AverageMZ < out[j].AverageMZ })
	return out
}

// await submits tasks and blocks until the pool reports them terminal,
// logging progress on every clock tick. Cancellation of ctx reaches the
// tasks through the pool; await still waits for them so that no trace is
// read while a worker may write it.
func (e *Expander) await(ctx context.Context, tasks []Task) error {
	done := make(chan error, 1)
	e.pool.Submit(ctx, tasks, func(err error) { done <- err })

	ticker := e.clock.NewTicker(e.cfg.GetProgressInterval())
	defer ticker.Stop()

	ctxDone := ctx.Done()
	for {
		select {
		case err := <-done:
			return err
		case <-ticker.C():
			logf("run %s: %s", e.id, e.Description())
		case <-ctxDone:
			logf("run %s: cancel requested, waiting for workers", e.id)
			ctxDone = nil
		}
	}
}

// aggregate builds the expanded feature list from the finished traces in
// m/z order. Traces with a single mobility scan are dropped.
func (e *Expander) aggregate(
	ctx context.Context,
	raw *l1frames.RawFile,
	rows []*l4features.Row,
	traces []*l3expand.ExpandingTrace,
	binner *l4features.Binner,
) (*l4features.FeatureList, int, error) {
	out := l4features.NewFeatureList(e.source.Name+" expanded", raw)
	out.CreatedAt = e.clock.Now()
	out.SelectedFrames = append([]int(nil), e.source.SelectedFrames...)
	out.AppliedMethods = append([]l4features.AppliedMethod(nil), e.source.AppliedMethods...)

	for _, t := range traces {
		if err := ctx.Err(); err != nil {
			return nil, 0, fmt.Errorf("mobility expansion canceled while aggregating: %w", err)
		}
		if t.NumberOfMobilityScans() > 1 {
			if row, err := expandRow(rows[t.Row], t, binner); err != nil {
				logf("run %s: skipping %s: %v", e.id, t, err)
			} else {
				out.AddRow(row)
			}
		}
		e.aggregated.Add(1)
	}

	params, err := json.Marshal(e.cfg)
	if err != nil {
		return nil, 0, fmt.Errorf("marshal expansion parameters: %w", err)
	}
	out.AppliedMethods = append(out.AppliedMethods, l4features.AppliedMethod{
		Name:       AppliedMethodName,
		Parameters: params,
		Timestamp:  e.clock.Now(),
	})
	return out, out.NumRows(), nil
}

// expandRow clones row with a feature recomputed from the trace.
func expandRow(row *l4features.Row, t *l3expand.ExpandingTrace, binner *l4features.Binner) (*l4features.Row, error) {
	series, err := t.ToOutputSeries()
	if err != nil {
		return nil, err
	}
	ts, err := l4features.NewIonMobilogramTimeSeries(series, binner)
	if err != nil {
		return nil, err
	}
	out := row.Clone()
	if out.Feature == nil {
		out.Feature = &l4features.Feature{}
	}
	ts.ApplyTo(out.Feature)
	out.AverageMZ = out.Feature.MZ
	return out, nil
}
