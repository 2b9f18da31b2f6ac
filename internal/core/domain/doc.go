// Package domain defines the core business entities for jira-sync.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Subscription: one Jira host linked to one GitHub installation
//   - RepoSyncState: per-repository, per-task backfill progress
//   - Cursor: a resumable pagination position
//   - BackfillMessage: the queue payload driving a backfill step
//   - Jira entities: the transformed batches shipped downstream
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
