package driven

import (
	"context"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// RepoSyncStateStore persists backfill progress per repository and task.
type RepoSyncStateStore interface {
	// Upsert records a discovered repository. A new row is created with
	// every task PENDING and created is true. An existing row only has
	// its repository metadata refreshed; task progress is untouched.
	Upsert(ctx context.Context, subscriptionID int64, repo domain.Repository) (created bool, err error)

	// Get returns one repository's state. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, subscriptionID, repoID int64) (*domain.RepoSyncState, error)

	// List returns every repository of a subscription in scheduling order:
	// most recently updated first, then by repository ID.
	List(ctx context.Context, subscriptionID int64) ([]domain.RepoSyncState, error)

	// Count returns the number of repositories of a subscription.
	Count(ctx context.Context, subscriptionID int64) (int, error)

	// SaveTaskProgress records a task's status and cursor. Transitions
	// that would move a task backwards (see TaskStatus.CanTransition)
	// are ignored without error, so repeats are no-ops.
	SaveTaskProgress(ctx context.Context, subscriptionID, repoID int64, task domain.TaskType, p domain.TaskProgress) error

	// SetFailedCode records the coarse failure reason of a repository.
	SetFailedCode(ctx context.Context, subscriptionID, repoID int64, code domain.FailedCode) error

	// ResetTasks puts matching tasks back to PENDING with no cursor and
	// clears the failed code. repoID zero matches every repository and
	// empty tasks match every task type. Returns the number of tasks reset.
	ResetTasks(ctx context.Context, subscriptionID, repoID int64, tasks []domain.TaskType, failedOnly bool) (int, error)

	// DeleteAll removes every repository state of a subscription.
	DeleteAll(ctx context.Context, subscriptionID int64) error
}
