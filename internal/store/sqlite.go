// ABOUTME: SQLite implementation of the InvocationStore interface using modernc.org/sqlite
// ABOUTME: Opens the database in WAL mode with automatic schema creation and migrations

package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the InvocationStore interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed. Pass nil logger for default.
func NewSQLiteStore(path string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store")

	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// The telemetry sink and heartbeat readers share the file
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS adapter_invocations (
			id          TEXT PRIMARY KEY,
			adapter_id  TEXT NOT NULL,
			success     INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error       TEXT,
			created_at  TEXT NOT NULL,

			CHECK (success IN (0, 1))
		);

		CREATE INDEX IF NOT EXISTS idx_invocations_adapter_created
			ON adapter_invocations(adapter_id, created_at);

		CREATE INDEX IF NOT EXISTS idx_invocations_created
			ON adapter_invocations(created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// runMigrations applies schema migrations for existing databases.
// These are idempotent - safe to run multiple times.
func (s *SQLiteStore) runMigrations() error {
	// SQLite doesn't support ADD COLUMN IF NOT EXISTS, so we check first
	migrations := []struct {
		check  string // Query to check if migration is needed
		apply  string // Query to apply the migration
		column string // Column name for logging
	}{
		{
			check:  `SELECT 1 FROM pragma_table_info('adapter_invocations') WHERE name = 'session_id'`,
			apply:  `ALTER TABLE adapter_invocations ADD COLUMN session_id TEXT`,
			column: "session_id",
		},
	}

	for _, m := range migrations {
		var exists int
		err := s.db.QueryRow(m.check).Scan(&exists)
		if err == nil {
			// Column already exists, skip
			continue
		}
		if _, err := s.db.Exec(m.apply); err != nil {
			return fmt.Errorf("adding %s column to adapter_invocations: %w", m.column, err)
		}
		s.logger.Info("applied migration", "column", m.column, "table", "adapter_invocations")
	}

	if _, err := s.db.Exec(`CREATE INDEX IF NOT EXISTS idx_invocations_session
		ON adapter_invocations(session_id)`); err != nil {
		return fmt.Errorf("creating session index: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// nullString converts an empty string to a SQL NULL
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Ensure SQLiteStore implements InvocationStore interface.
var _ InvocationStore = (*SQLiteStore)(nil)
