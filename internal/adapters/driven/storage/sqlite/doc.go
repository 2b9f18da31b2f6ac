// Package sqlite provides a unified SQLite-based implementation of driven port interfaces.
//
// This adapter uses modernc.org/sqlite, a pure Go SQLite implementation that requires
// no CGO. It implements every store the backfill worker needs through a single
// database connection:
//
//   - SubscriptionStore: Jira host to GitHub installation links
//   - RepoSyncStateStore: per-repository, per-task progress and cursors
//   - Queue: backfill message queue with visibility timeouts and dead-lettering
//   - Cache: expiring keys used for delivery deduplication
//
// # Schema
//
// The database schema is managed through versioned migrations stored in the
// migrations/ directory. Each migration is a pair of .up.sql and .down.sql files.
//
// # Data Location
//
// By default, the database is stored at ~/.jira-sync/data/jira-sync.db
//
// # Thread Safety
//
// All operations are safe for concurrent use by multiple workers and processes.
// Task progress writes are conditional in SQL so a status never moves backwards.
package sqlite
