// ABOUTME: Store interface and data types for uta-gateway persistence
// ABOUTME: Defines invocation records, filters and per-adapter aggregate statistics

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// InvocationRecord is one persisted adapter invocation.
type InvocationRecord struct {
	ID         string
	AdapterID  string
	SessionID  string // empty for calls made outside a session
	Success    bool
	DurationMs int64
	Error      string
	CreatedAt  time.Time
}

// InvocationFilter narrows list and stats queries. Nil fields are ignored.
type InvocationFilter struct {
	AdapterID *string
	SessionID *string
	Since     *time.Time
	Until     *time.Time
	Limit     int // 0 means no limit (list only)
}

// InvocationStats aggregates persisted invocations of one adapter.
type InvocationStats struct {
	AdapterID        string    `json:"adapterId"`
	Invocations      int64     `json:"invocations"`
	Successes        int64     `json:"successes"`
	Failures         int64     `json:"failures"`
	AvgDurationMs    float64   `json:"avgDurationMs"`
	MaxDurationMs    int64     `json:"maxDurationMs"`
	LastInvocationAt time.Time `json:"lastInvocationAt"`
}

// InvocationStore persists adapter invocation history.
type InvocationStore interface {
	SaveInvocation(ctx context.Context, rec *InvocationRecord) error
	ListInvocations(ctx context.Context, filter InvocationFilter) ([]*InvocationRecord, error)
	GetInvocationStats(ctx context.Context, filter InvocationFilter) ([]*InvocationStats, error)
	PruneInvocations(ctx context.Context, before time.Time) (int64, error)
	Close() error
}
