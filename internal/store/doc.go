// Package store provides persistent storage for uta-gateway using SQLite.
//
// # Scope
//
// Sessions and their events live in memory only. The store keeps the
// history of adapter invocations so telemetry survives restarts:
//
//   - InvocationRecord: one adapter call with outcome, duration and error
//   - InvocationStats: per-adapter aggregates over a filtered range
//
// SQLiteStore implements InvocationStore.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode for concurrent reads:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Use a path under t.TempDir() in tests.
//
// # Migrations
//
// createSchema creates missing tables; runMigrations adds columns that older
// databases lack. Both are idempotent and run on every open.
package store
