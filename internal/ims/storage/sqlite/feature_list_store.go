package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/mobility.report/internal/ims/l1frames"
	"github.com/banshee-data/mobility.report/internal/ims/l4features"
	"github.com/banshee-data/mobility.report/internal/monitoring"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// storedRawFile is the persisted identity of a raw file. Frames are not
// stored; they stay with the acquisition.
type storedRawFile struct {
	Name         string `json:"name"`
	MobilityType string `json:"mobility_type,omitempty"`
}

// FeatureListSummary describes a stored feature list without its rows.
type FeatureListSummary struct {
	ListID      string `json:"list_id"`
	Name        string `json:"name"`
	RowCount    int    `json:"row_count"`
	CreatedAtNs int64  `json:"created_at_ns"`
}

// FeatureListStore persists feature lists, their rows and expanded series.
type FeatureListStore struct {
	db *sql.DB
}

// NewFeatureListStore creates a new FeatureListStore.
func NewFeatureListStore(db *sql.DB) *FeatureListStore {
	return &FeatureListStore{db: db}
}

// InsertFeatureList stores fl and all of its rows in one transaction.
// If fl.ID is empty, a new UUID is generated.
func (s *FeatureListStore) InsertFeatureList(fl *l4features.FeatureList) error {
	if fl.ID == "" {
		fl.ID = uuid.New().String()
	}
	if fl.CreatedAt.IsZero() {
		fl.CreatedAt = time.Now()
	}

	rawFiles := make([]storedRawFile, len(fl.RawFiles))
	for i, r := range fl.RawFiles {
		rawFiles[i] = storedRawFile{Name: r.Name, MobilityType: r.MobilityType}
	}
	rawJSON, err := json.Marshal(rawFiles)
	if err != nil {
		return fmt.Errorf("marshal raw files: %w", err)
	}
	var selectedJSON, methodsJSON []byte
	if len(fl.SelectedFrames) > 0 {
		if selectedJSON, err = json.Marshal(fl.SelectedFrames); err != nil {
			return fmt.Errorf("marshal selected frames: %w", err)
		}
	}
	if len(fl.AppliedMethods) > 0 {
		if methodsJSON, err = json.Marshal(fl.AppliedMethods); err != nil {
			return fmt.Errorf("marshal applied methods: %w", err)
		}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin insert feature list: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO feature_lists (
			list_id, name, raw_files_json, selected_frames_json,
			applied_methods_json, row_count, created_at_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		fl.ID,
		fl.Name,
		string(rawJSON),
		nullString(string(selectedJSON)),
		nullString(string(methodsJSON)),
		fl.NumRows(),
		fl.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert feature list: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO feature_rows (
			list_id, row_id, average_mz, comment, feature_json,
			series_blob, series_points, series_checksum
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert feature row: %w", err)
	}
	defer stmt.Close()

	for _, row := range fl.Rows {
		var featureJSON []byte
		var blob []byte
		var points, checksum sql.NullInt64
		if row.Feature != nil {
			if featureJSON, err = json.Marshal(row.Feature); err != nil {
				return fmt.Errorf("marshal feature of row %d: %w", row.ID, err)
			}
			if ts := row.Feature.Series; ts != nil {
				var sum uint64
				blob, sum = encodeSeries(ts)
				points = sql.NullInt64{Int64: int64(ts.NumScans()), Valid: true}
				checksum = sql.NullInt64{Int64: int64(sum), Valid: true}
			}
		}
		if _, err := stmt.Exec(
			fl.ID,
			row.ID,
			row.AverageMZ,
			nullString(row.Comment),
			nullString(string(featureJSON)),
			blob,
			points,
			checksum,
		); err != nil {
			return fmt.Errorf("insert feature row %d: %w", row.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit feature list: %w", err)
	}
	monitoring.Logf("stored feature list %s (%q, %d rows)", fl.ID, fl.Name, fl.NumRows())
	return nil
}

// GetFeatureList retrieves a feature list with its rows in insertion
// order. Raw files come back without frames.
func (s *FeatureListStore) GetFeatureList(listID string) (*l4features.FeatureList, error) {
	var fl l4features.FeatureList
	var rawJSON string
	var selectedJSON, methodsJSON sql.NullString
	var createdAtNs int64

	err := s.db.QueryRow(`
		SELECT list_id, name, raw_files_json, selected_frames_json,
		       applied_methods_json, created_at_ns
		FROM feature_lists
		WHERE list_id = ?
	`, listID).Scan(&fl.ID, &fl.Name, &rawJSON, &selectedJSON, &methodsJSON, &createdAtNs)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("feature list %s: %w", listID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get feature list: %w", err)
	}
	fl.CreatedAt = time.Unix(0, createdAtNs)

	var rawFiles []storedRawFile
	if err := json.Unmarshal([]byte(rawJSON), &rawFiles); err != nil {
		return nil, fmt.Errorf("unmarshal raw files: %w", err)
	}
	for _, r := range rawFiles {
		fl.RawFiles = append(fl.RawFiles, &l1frames.RawFile{Name: r.Name, MobilityType: r.MobilityType})
	}
	if selectedJSON.Valid && selectedJSON.String != "" {
		if err := json.Unmarshal([]byte(selectedJSON.String), &fl.SelectedFrames); err != nil {
			return nil, fmt.Errorf("unmarshal selected frames: %w", err)
		}
	}
	if methodsJSON.Valid && methodsJSON.String != "" {
		if err := json.Unmarshal([]byte(methodsJSON.String), &fl.AppliedMethods); err != nil {
			return nil, fmt.Errorf("unmarshal applied methods: %w", err)
		}
	}

	if fl.Rows, err = s.getRows(listID); err != nil {
		return nil, err
	}
	return &fl, nil
}

func (s *FeatureListStore) getRows(listID string) ([]*l4features.Row, error) {
	rows, err := s.db.Query(`
		SELECT row_id, average_mz, comment, feature_json, series_blob, series_checksum
		FROM feature_rows
		WHERE list_id = ?
		ORDER BY rowid
	`, listID)
	if err != nil {
		return nil, fmt.Errorf("query feature rows: %w", err)
	}
	defer rows.Close()

	var out []*l4features.Row
	for rows.Next() {
		var row l4features.Row
		var comment, featureJSON sql.NullString
		var blob []byte
		var checksum sql.NullInt64
		if err := rows.Scan(&row.ID, &row.AverageMZ, &comment, &featureJSON, &blob, &checksum); err != nil {
			return nil, fmt.Errorf("scan feature row: %w", err)
		}
		if comment.Valid {
			row.Comment = comment.String
		}
		if featureJSON.Valid && featureJSON.String != "" {
			row.Feature = &l4features.Feature{}
			if err := json.Unmarshal([]byte(featureJSON.String), row.Feature); err != nil {
				return nil, fmt.Errorf("unmarshal feature of row %d: %w", row.ID, err)
			}
			if len(blob) > 0 && checksum.Valid {
				ts, err := decodeSeries(blob, uint64(checksum.Int64))
				if err != nil {
					return nil, fmt.Errorf("decode series of row %d: %w", row.ID, err)
				}
				row.Feature.Series = ts
			}
		}
		out = append(out, &row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate feature rows: %w", err)
	}
	return out, nil
}

// ListFeatureLists returns all stored feature lists, newest first.
func (s *FeatureListStore) ListFeatureLists() ([]*FeatureListSummary, error) {
	rows, err := s.db.Query(`
		SELECT list_id, name, row_count, created_at_ns
		FROM feature_lists
		ORDER BY created_at_ns DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("list feature lists: %w", err)
	}
	defer rows.Close()

	var out []*FeatureListSummary
	for rows.Next() {
		var sum FeatureListSummary
		if err := rows.Scan(&sum.ListID, &sum.Name, &sum.RowCount, &sum.CreatedAtNs); err != nil {
			return nil, fmt.Errorf("scan feature list: %w", err)
		}
		out = append(out, &sum)
	}
	return out, rows.Err()
}

// DeleteFeatureList removes a feature list and its rows.
func (s *FeatureListStore) DeleteFeatureList(listID string) error {
	result, err := s.db.Exec(`DELETE FROM feature_lists WHERE list_id = ?`, listID)
	if err != nil {
		return fmt.Errorf("delete feature list: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete feature list: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("feature list %s: %w", listID, ErrNotFound)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
