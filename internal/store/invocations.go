// ABOUTME: SQLite implementation for adapter invocation history
// ABOUTME: Stores invocation outcomes and aggregates them per adapter for diagnostics

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// timeFormat is fixed width so stored timestamps sort lexically.
const timeFormat = "2006-01-02T15:04:05.000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// SaveInvocation stores an invocation record. An empty ID is generated and a
// zero CreatedAt is set to now.
func (s *SQLiteStore) SaveInvocation(ctx context.Context, rec *InvocationRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO adapter_invocations (
			id, adapter_id, session_id, success, duration_ms, error, created_at
		)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	success := 0
	if rec.Success {
		success = 1
	}

	_, err := s.db.ExecContext(ctx, query,
		rec.ID,
		rec.AdapterID,
		nullString(rec.SessionID),
		success,
		rec.DurationMs,
		nullString(rec.Error),
		formatTime(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("inserting invocation: %w", err)
	}

	s.logger.Debug("saved adapter invocation",
		"id", rec.ID,
		"adapter_id", rec.AdapterID,
		"success", rec.Success,
		"duration_ms", rec.DurationMs,
	)
	return nil
}

// whereClause builds the shared filter for list and stats queries.
func (f InvocationFilter) whereClause() (string, []any) {
	var conds []string
	var args []any

	if f.AdapterID != nil {
		conds = append(conds, "adapter_id = ?")
		args = append(args, *f.AdapterID)
	}
	if f.SessionID != nil {
		conds = append(conds, "session_id = ?")
		args = append(args, *f.SessionID)
	}
	if f.Since != nil {
		conds = append(conds, "created_at >= ?")
		args = append(args, formatTime(*f.Since))
	}
	if f.Until != nil {
		conds = append(conds, "created_at < ?")
		args = append(args, formatTime(*f.Until))
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListInvocations returns matching records, newest first.
func (s *SQLiteStore) ListInvocations(ctx context.Context, filter InvocationFilter) ([]*InvocationRecord, error) {
	where, args := filter.whereClause()
	query := `
		SELECT id, adapter_id, session_id, success, duration_ms, error, created_at
		FROM adapter_invocations` + where + `
		ORDER BY created_at DESC, id DESC`
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invocations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*InvocationRecord
	for rows.Next() {
		rec, err := scanInvocation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation rows: %w", err)
	}

	return records, nil
}

// GetInvocationStats returns aggregated statistics per adapter, ordered by adapter id.
func (s *SQLiteStore) GetInvocationStats(ctx context.Context, filter InvocationFilter) ([]*InvocationStats, error) {
	where, args := filter.whereClause()
	query := `
		SELECT
			adapter_id,
			COUNT(*) as invocations,
			COALESCE(SUM(success), 0) as successes,
			COALESCE(AVG(duration_ms), 0) as avg_duration,
			COALESCE(MAX(duration_ms), 0) as max_duration,
			MAX(created_at) as last_invocation
		FROM adapter_invocations` + where + `
		GROUP BY adapter_id
		ORDER BY adapter_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying invocation stats: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var stats []*InvocationStats
	for rows.Next() {
		var st InvocationStats
		var last string
		if err := rows.Scan(
			&st.AdapterID,
			&st.Invocations,
			&st.Successes,
			&st.AvgDurationMs,
			&st.MaxDurationMs,
			&last,
		); err != nil {
			return nil, fmt.Errorf("scanning invocation stats: %w", err)
		}
		st.Failures = st.Invocations - st.Successes
		st.LastInvocationAt, err = time.Parse(timeFormat, last)
		if err != nil {
			return nil, fmt.Errorf("parsing last invocation time: %w", err)
		}
		stats = append(stats, &st)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating invocation stats: %w", err)
	}

	return stats, nil
}

// PruneInvocations deletes records created before the given time and
// returns how many were removed.
func (s *SQLiteStore) PruneInvocations(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM adapter_invocations WHERE created_at < ?`, formatTime(before))
	if err != nil {
		return 0, fmt.Errorf("pruning invocations: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("getting rows affected: %w", err)
	}

	s.logger.Debug("pruned adapter invocations", "before", before, "rows_affected", n)
	return n, nil
}

// scanInvocation scans a single invocation row into an InvocationRecord.
func scanInvocation(rows *sql.Rows) (*InvocationRecord, error) {
	var rec InvocationRecord
	var sessionID, errText sql.NullString
	var success int
	var createdAtStr string

	err := rows.Scan(
		&rec.ID,
		&rec.AdapterID,
		&sessionID,
		&success,
		&rec.DurationMs,
		&errText,
		&createdAtStr,
	)
	if err != nil {
		return nil, fmt.Errorf("scanning invocation row: %w", err)
	}

	rec.Success = success == 1
	if sessionID.Valid {
		rec.SessionID = sessionID.String
	}
	if errText.Valid {
		rec.Error = errText.String
	}

	rec.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	return &rec, nil
}
