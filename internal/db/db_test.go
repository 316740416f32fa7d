package db

import (
	"encoding/json"
	"io/fs"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const latestVersion = 2

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "results.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func tableExists(t *testing.T, db *DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	require.NoError(t, err)
	return n > 0
}

func TestEmbeddedMigrations(t *testing.T) {
	t.Parallel()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)
	// one up and one down file per version
	assert.Len(t, entries, 2*latestVersion)
}

func TestNewDB_Migrates(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	version, dirty, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(latestVersion), version)
	assert.False(t, dirty)

	for _, table := range []string{"feature_lists", "feature_rows", "expansion_runs"} {
		assert.True(t, tableExists(t, db, table), table)
	}

	var fk int
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 1, fk)
}

func TestNewDB_ReopenIsNoop(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "results.db")
	first, err := NewDB(path)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewDB(path)
	require.NoError(t, err)
	defer second.Close()

	version, _, err := second.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(latestVersion), version)
	assert.Equal(t, path, second.Path())
}

func TestMigrateDownUp(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	require.NoError(t, db.MigrateDown())

	version, _, err := db.MigrateVersion()
	require.NoError(t, err)
	assert.Equal(t, uint(latestVersion-1), version)
	assert.False(t, tableExists(t, db, "expansion_runs"))
	assert.True(t, tableExists(t, db, "feature_lists"))

	require.NoError(t, db.MigrateUp())
	assert.True(t, tableExists(t, db, "expansion_runs"))
}

func TestAttachAdminRoutes(t *testing.T) {
	t.Parallel()

	db := newTestDB(t)
	mux := http.NewServeMux()
	require.NoError(t, db.AttachAdminRoutes(mux))

	req := httptest.NewRequest(http.MethodGet, "/debug/schema", nil)
	req.RemoteAddr = "127.0.0.1:40000"
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var got struct {
		Path    string `json:"path"`
		Version uint   `json:"version"`
		Dirty   bool   `json:"dirty"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, uint(latestVersion), got.Version)
	assert.Equal(t, db.Path(), got.Path)
}
