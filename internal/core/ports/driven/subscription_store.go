package driven

import (
	"context"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// SubscriptionStore persists subscriptions.
type SubscriptionStore interface {
	// Create stores a new subscription and returns it with its ID set.
	// Returns domain.ErrAlreadyExists for a duplicate (jiraHost, installation).
	Create(ctx context.Context, sub domain.Subscription) (*domain.Subscription, error)

	// Get retrieves a subscription. Returns domain.ErrNotFound if missing.
	Get(ctx context.Context, id int64) (*domain.Subscription, error)

	// List returns all subscriptions ordered by ID.
	List(ctx context.Context) ([]domain.Subscription, error)

	// Save updates every mutable field of an existing subscription,
	// including the epoch. It is the operator path; backfill workers use
	// the epoch-guarded methods below.
	Save(ctx context.Context, sub domain.Subscription) error

	// ActivateSync moves a PENDING subscription to ACTIVE. An ACTIVE
	// subscription is left as is. Returns domain.ErrSubscriptionCancelled
	// if the epoch moved on or the status is no longer runnable.
	ActivateSync(ctx context.Context, id, epoch int64) error

	// SaveDiscoveryProgress records discovery state while the subscription
	// is runnable and still at epoch. Returns domain.ErrSubscriptionCancelled
	// otherwise.
	SaveDiscoveryProgress(ctx context.Context, id, epoch int64, progress domain.DiscoveryProgress) error

	// CompleteSync moves an ACTIVE subscription at epoch to COMPLETE and
	// records the final counts. Returns domain.ErrSubscriptionCancelled
	// otherwise.
	CompleteSync(ctx context.Context, id, epoch int64, syncedRepos, totalRepos int) error

	// UpdateSyncStatus sets only the sync status.
	UpdateSyncStatus(ctx context.Context, id int64, status domain.SyncStatus) error

	// Delete removes a subscription and its repository states.
	Delete(ctx context.Context, id int64) error
}
