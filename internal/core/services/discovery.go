package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// DefaultDiscoveryPageSize is the number of repositories listed per step.
const DefaultDiscoveryPageSize = 100

// Discovery enumerates a subscription's repositories one page per step.
// A repository row is always persisted before the discovery cursor moves
// past it, and repository tasks are only ever selected from persisted
// rows, so no task can run for a repository discovery has not stored.
type Discovery struct {
	lister   driven.RepositoryLister
	subs     driven.SubscriptionStore
	repos    driven.RepoSyncStateStore
	pageSize int
	logger   *zap.Logger
}

// NewDiscovery creates the discovery task.
func NewDiscovery(
	lister driven.RepositoryLister,
	subs driven.SubscriptionStore,
	repos driven.RepoSyncStateStore,
	pageSize int,
	logger *zap.Logger,
) *Discovery {
	if pageSize <= 0 {
		pageSize = DefaultDiscoveryPageSize
	}
	return &Discovery{
		lister:   lister,
		subs:     subs,
		repos:    repos,
		pageSize: pageSize,
		logger:   logger,
	}
}

// Step lists one page of repositories and persists them. It returns
// done once the listing is exhausted and the repository count is final.
// Progress is saved against sub's epoch and mirrored into sub.
func (d *Discovery) Step(ctx context.Context, sub *domain.Subscription, inst domain.InstallationContext) (bool, error) {
	task := domain.Task{Type: domain.TaskRepository}

	cursor, err := domain.ParseCursor(sub.RepositoryCursor)
	if err != nil {
		return false, domain.NewTaskError(task, err)
	}
	if cursor.IsZero() {
		cursor = domain.NewPageCursor(d.pageSize, 1)
	}

	page, err := d.lister.ListRepositories(ctx, inst, cursor, d.pageSize)
	if err != nil {
		return false, domain.NewTaskError(task, fmt.Errorf("list repositories: %w", err))
	}

	created := 0
	for _, repo := range page.Repositories {
		isNew, err := d.repos.Upsert(ctx, sub.ID, repo)
		if err != nil {
			return false, domain.NewTaskError(task, fmt.Errorf("upsert repository %d: %w", repo.ID, err))
		}
		if isNew {
			created++
		}
	}

	total, err := d.repos.Count(ctx, sub.ID)
	if err != nil {
		return false, domain.NewTaskError(task, fmt.Errorf("count repositories: %w", err))
	}
	progress := domain.DiscoveryProgress{Status: domain.TaskStatusComplete, TotalRepos: total}
	done := len(page.Edges) == 0
	if !done {
		progress.Status = domain.TaskStatusActive
		progress.Cursor = page.Edges[len(page.Edges)-1].Cursor.String()
	}

	// Rejected if the backfill was cancelled or restarted during the listing.
	if err := d.subs.SaveDiscoveryProgress(ctx, sub.ID, sub.Epoch, progress); err != nil {
		return false, domain.NewTaskError(task, fmt.Errorf("save discovery progress: %w", err))
	}
	sub.RepositoryStatus = progress.Status
	sub.RepositoryCursor = progress.Cursor
	sub.TotalNumberOfRepos = total

	d.logger.Debug("discovery step",
		zap.Int64("subscription_id", sub.ID),
		zap.Int("listed", len(page.Repositories)),
		zap.Int("created", created),
		zap.Int("total_repos", total),
		zap.Bool("done", done),
	)
	return done, nil
}
