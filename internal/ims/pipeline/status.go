package pipeline

import (
	"net/http"
	"time"

	"github.com/banshee-data/mobility.report/internal/httputil"
)

// Status is the lifecycle state of an expansion run.
type Status string

const (
	StatusNotStarted     Status = "not_started"
	StatusPartitioning   Status = "partitioning"
	StatusWorkersRunning Status = "workers_running"
	StatusAggregating    Status = "aggregating"
	StatusFinished       Status = "finished"
	StatusCanceled       Status = "canceled"
	StatusFailed         Status = "failed"
)

// Terminal reports whether no further transition can happen.
func (s Status) Terminal() bool {
	switch s {
	case StatusFinished, StatusCanceled, StatusFailed:
		return true
	}
	return false
}

// RunState is a point-in-time snapshot of an expansion run, suitable for
// JSON status pages and the run store.
type RunState struct {
	ID           string    `json:"id"`
	SourceID     string    `json:"source_id"`
	SourceName   string    `json:"source_name"`
	ResultID     string    `json:"result_id,omitempty"`
	Status       Status    `json:"status"`
	Progress     float64   `json:"progress"`
	Description  string    `json:"description"`
	Error        string    `json:"error,omitempty"`
	TotalRows    int       `json:"total_rows"`
	ExpandedRows int       `json:"expanded_rows"`
	Workers      int       `json:"workers"`
	StartedAt    time.Time `json:"started_at,omitempty"`
	FinishedAt   time.Time `json:"finished_at,omitempty"`
}

// StatusHandler serves the state of e as JSON.
func StatusHandler(e *Expander) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !httputil.ReadOnly(w, r) {
			return
		}
		httputil.WriteJSON(w, http.StatusOK, e.State())
	})
}
