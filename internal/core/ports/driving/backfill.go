package driving

import (
	"context"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// BackfillService is the scheduling API used by the CLI and admin HTTP.
type BackfillService interface {
	// AddSubscription registers a subscription that has never been synced.
	AddSubscription(ctx context.Context, sub domain.Subscription) (*domain.Subscription, error)

	// ListSubscriptions returns every subscription.
	ListSubscriptions(ctx context.Context) ([]domain.Subscription, error)

	// StartBackfill resets progress according to the sync type and
	// enqueues the first backfill message.
	StartBackfill(ctx context.Context, subscriptionID int64, req domain.BackfillRequest) error

	// Resync puts tasks back to PENDING and enqueues a partial backfill
	// for them. Returns the number of tasks reset.
	Resync(ctx context.Context, subscriptionID int64, req domain.ResyncRequest) (int, error)

	// Status reports per-repository progress.
	Status(ctx context.Context, subscriptionID int64) (*domain.SyncReport, error)
}
