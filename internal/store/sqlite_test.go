// ABOUTME: Tests for SQLite store implementation
// ABOUTME: Covers database creation, schema idempotency and the session_id migration

package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestNewSQLiteStore_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "subdir", "nested", "test.db")

	s, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err, "database file was not created in nested directory")
}

func TestNewSQLiteStore_ReopenIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")

	s, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestNewSQLiteStore_MigratesOldSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "old.db")

	db, err := sql.Open("sqlite", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE adapter_invocations (
		id TEXT PRIMARY KEY,
		adapter_id TEXT NOT NULL,
		success INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL
	)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	s, err := NewSQLiteStore(dbPath, nil)
	require.NoError(t, err)
	defer s.Close()

	var exists int
	err = s.db.QueryRow(`SELECT 1 FROM pragma_table_info('adapter_invocations') WHERE name = 'session_id'`).Scan(&exists)
	require.NoError(t, err)
	assert.Equal(t, 1, exists)
}
