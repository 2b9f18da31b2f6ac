package github

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// Verify interface compliance.
var (
	_ driven.PageFetcher      = (*Fetcher)(nil)
	_ driven.RepositoryLister = (*Fetcher)(nil)
	_ driven.RateLimitSource  = (*Fetcher)(nil)
)

// Fetcher reads backfill pages from GitHub and turns them into Jira
// entities.
type Fetcher struct {
	clients *ClientFactory
}

// NewFetcher creates a fetcher over a client factory.
func NewFetcher(clients *ClientFactory) *Fetcher {
	return &Fetcher{clients: clients}
}

// usesGraphQL reports whether a task paginates with GraphQL cursors.
func usesGraphQL(task domain.TaskType) bool {
	return task == domain.TaskBranch || task == domain.TaskCommit
}

// StartCursor returns page one for REST tasks and the zero cursor for
// GraphQL tasks.
func (f *Fetcher) StartCursor(task domain.TaskType, pageSize int) domain.Cursor {
	if usesGraphQL(task) {
		return domain.Cursor{}
	}
	return domain.NewPageCursor(pageSize, 1)
}

// FetchPage fetches the page of a task at cursor.
func (f *Fetcher) FetchPage(
	ctx context.Context, task domain.Task, cursor domain.Cursor, pageSize int, meta domain.SyncMeta,
) (*domain.Page, error) {
	client, err := f.clients.Client(meta.Installation)
	if err != nil {
		return nil, err
	}

	if usesGraphQL(task.Type) {
		if cursor.IsPaged() {
			return nil, fmt.Errorf("%w: %s task cannot resume from page cursor %q",
				domain.ErrInvalidCursor, task.Type, cursor.String())
		}
	} else {
		if cursor.Kind == domain.CursorProvider {
			return nil, fmt.Errorf("%w: %s task cannot resume from provider cursor %q",
				domain.ErrInvalidCursor, task.Type, cursor.String())
		}
		if cursor.IsZero() {
			cursor = domain.NewPageCursor(pageSize, 1)
		}
	}

	repo := task.Repository
	switch task.Type {
	case domain.TaskBranch:
		return fetchBranches(ctx, client, repo, cursor, pageSize)
	case domain.TaskCommit:
		return fetchCommits(ctx, client, repo, cursor, pageSize, meta.BackfillSince)
	case domain.TaskPull:
		return fetchPullRequests(ctx, client, repo, cursor, meta.BackfillSince)
	case domain.TaskBuild:
		return fetchBuilds(ctx, client, repo, cursor, meta.BackfillSince)
	case domain.TaskDeployment:
		return fetchDeployments(ctx, client, repo, cursor, meta.BackfillSince)
	case domain.TaskDependabotAlert:
		return fetchDependabotAlerts(ctx, client, repo, cursor)
	case domain.TaskSecretScanningAlert:
		return fetchSecretScanningAlerts(ctx, client, repo, cursor)
	case domain.TaskCodeScanningAlert:
		return fetchCodeScanningAlerts(ctx, client, repo, cursor)
	default:
		return nil, fmt.Errorf("%w: unsupported task type %q", domain.ErrInvalidInput, task.Type)
	}
}

// RateLimit reports the installation's REST and GraphQL budgets.
func (f *Fetcher) RateLimit(ctx context.Context, inst domain.InstallationContext) (*domain.RateLimitStatus, error) {
	client, err := f.clients.Client(inst)
	if err != nil {
		return nil, err
	}

	limits, _, err := client.gh.RateLimit.Get(ctx)
	if err != nil {
		return nil, client.wrapError(err, "get rate limit")
	}

	status := &domain.RateLimitStatus{}
	if core := limits.GetCore(); core != nil {
		status.Core = domain.RateLimitResource{Limit: core.Limit, Remaining: core.Remaining, Reset: core.Reset.Time}
	}
	if graphql := limits.GetGraphQL(); graphql != nil {
		status.GraphQL = domain.RateLimitResource{Limit: graphql.Limit, Remaining: graphql.Remaining, Reset: graphql.Reset.Time}
	}
	return status, nil
}

// newPayload starts a payload for repo.
func newPayload(repo domain.Repository) *domain.JiraPayload {
	return &domain.JiraPayload{
		Repository: &domain.JiraRepository{
			ID:   strconv.FormatInt(repo.ID, 10),
			Name: repo.FullName,
			URL:  repo.URL,
		},
	}
}

// finishPage drops an empty payload so callers skip the submission.
func finishPage(edges []domain.Edge, payload *domain.JiraPayload) *domain.Page {
	page := &domain.Page{Edges: edges}
	if !payload.IsEmpty() {
		page.Payload = payload
	}
	return page
}

// restEdge is the edge of a REST item. Every item on a page resumes at
// the following page.
func restEdge(cursor domain.Cursor, nodeID string) domain.Edge {
	return domain.Edge{Cursor: cursor.Next(), NodeID: nodeID}
}

// before reports whether t is older than the backfill horizon.
func before(t time.Time, since *time.Time) bool {
	return since != nil && !t.IsZero() && t.Before(*since)
}

func branchURL(repo domain.Repository, branch string) string {
	return repo.URL + "/tree/" + branch
}
