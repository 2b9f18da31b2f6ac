package driven

import (
	"context"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// PageFetcher fetches one page of a repository task and transforms it
// into Jira entities. Calling it twice with the same cursor must have no
// side effects beyond provider reads.
type PageFetcher interface {
	// FetchPage returns the page at cursor. A zero cursor means the start.
	FetchPage(ctx context.Context, task domain.Task, cursor domain.Cursor, pageSize int, meta domain.SyncMeta) (*domain.Page, error)

	// StartCursor returns the first cursor of a task type.
	StartCursor(task domain.TaskType, pageSize int) domain.Cursor
}

// RepositoryLister lists the repositories of an installation for discovery.
type RepositoryLister interface {
	ListRepositories(ctx context.Context, inst domain.InstallationContext, cursor domain.Cursor, pageSize int) (*domain.RepositoryPage, error)
}

// RateLimitSource reports the provider's current rate-limit budget.
type RateLimitSource interface {
	RateLimit(ctx context.Context, inst domain.InstallationContext) (*domain.RateLimitStatus, error)
}

// JiraSubmitter ships transformed batches to a Jira host. Submissions
// are upserts keyed by entity IDs so repeats are safe.
type JiraSubmitter interface {
	Submit(ctx context.Context, jiraHost string, payload *domain.JiraPayload, opts domain.SubmitOptions) error
}
