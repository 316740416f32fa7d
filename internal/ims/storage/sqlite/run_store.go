package sqlite

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/mobility.report/internal/ims/pipeline"
)

// RunRecord is a stored expansion run: its last known state and the
// parameters it ran with.
type RunRecord struct {
	pipeline.RunState
	Params json.RawMessage `json:"params,omitempty"`
}

// RunStore persists expansion run records.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *sql.DB) *RunStore {
	return &RunStore{db: db}
}

// SaveRun inserts the run or updates its state if it already exists.
func (s *RunStore) SaveRun(st pipeline.RunState, params json.RawMessage) error {
	_, err := s.db.Exec(`
		INSERT INTO expansion_runs (
			run_id, source_list_id, source_name, result_list_id, status,
			progress, description, error, total_rows, expanded_rows, workers,
			params_json, started_at_ns, finished_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (run_id) DO UPDATE SET
			result_list_id = excluded.result_list_id,
			status = excluded.status,
			progress = excluded.progress,
			description = excluded.description,
			error = excluded.error,
			total_rows = excluded.total_rows,
			expanded_rows = excluded.expanded_rows,
			workers = excluded.workers,
			params_json = COALESCE(excluded.params_json, expansion_runs.params_json),
			started_at_ns = excluded.started_at_ns,
			finished_at_ns = excluded.finished_at_ns
	`,
		st.ID,
		st.SourceID,
		nullString(st.SourceName),
		nullString(st.ResultID),
		string(st.Status),
		st.Progress,
		nullString(st.Description),
		nullString(st.Error),
		st.TotalRows,
		st.ExpandedRows,
		st.Workers,
		nullString(string(params)),
		nullTime(st.StartedAt),
		nullTime(st.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("save expansion run: %w", err)
	}
	return nil
}

const runColumns = `
	run_id, source_list_id, source_name, result_list_id, status,
	progress, description, error, total_rows, expanded_rows, workers,
	params_json, started_at_ns, finished_at_ns
`

// GetRun retrieves a run by ID.
func (s *RunStore) GetRun(runID string) (*RunRecord, error) {
	rec, err := scanRun(s.db.QueryRow(`SELECT `+runColumns+` FROM expansion_runs WHERE run_id = ?`, runID))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("expansion run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get expansion run: %w", err)
	}
	return rec, nil
}

// ListRuns returns runs, most recently started first, optionally
// filtered by source feature list.
func (s *RunStore) ListRuns(sourceListID string) ([]*RunRecord, error) {
	query := `SELECT ` + runColumns + ` FROM expansion_runs`
	var args []interface{}
	if sourceListID != "" {
		query += ` WHERE source_list_id = ?`
		args = append(args, sourceListID)
	}
	query += ` ORDER BY started_at_ns DESC`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list expansion runs: %w", err)
	}
	defer rows.Close()

	var out []*RunRecord
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expansion run: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(r rowScanner) (*RunRecord, error) {
	var rec RunRecord
	var status string
	var sourceName, resultID, description, errText, params sql.NullString
	var startedAt, finishedAt sql.NullInt64

	if err := r.Scan(
		&rec.ID,
		&rec.SourceID,
		&sourceName,
		&resultID,
		&status,
		&rec.Progress,
		&description,
		&errText,
		&rec.TotalRows,
		&rec.ExpandedRows,
		&rec.Workers,
		&params,
		&startedAt,
		&finishedAt,
	); err != nil {
		return nil, err
	}

	rec.Status = pipeline.Status(status)
	rec.SourceName = sourceName.String
	rec.ResultID = resultID.String
	rec.Description = description.String
	rec.Error = errText.String
	if params.Valid && params.String != "" {
		rec.Params = json.RawMessage(params.String)
	}
	if startedAt.Valid {
		rec.StartedAt = time.Unix(0, startedAt.Int64)
	}
	if finishedAt.Valid {
		rec.FinishedAt = time.Unix(0, finishedAt.Int64)
	}
	return &rec, nil
}

func nullTime(t time.Time) sql.NullInt64 {
	if t.IsZero() {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}
