package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// subscriptionStore implements driven.SubscriptionStore.
type subscriptionStore struct {
	store *Store
}

var _ driven.SubscriptionStore = (*subscriptionStore)(nil)

const subscriptionColumns = `id, jira_host, github_installation_id, github_app_id, github_base_url,
	sync_status, backfill_since, total_number_of_repos, synced_repos,
	repository_status, repository_cursor, epoch, created_at, updated_at`

// Create stores a new subscription.
func (s *subscriptionStore) Create(ctx context.Context, sub domain.Subscription) (*domain.Subscription, error) {
	now := s.store.now()
	res, err := s.store.db.ExecContext(ctx, `
		INSERT INTO subscriptions (jira_host, github_installation_id, github_app_id, github_base_url,
			sync_status, backfill_since, total_number_of_repos, synced_repos,
			repository_status, repository_cursor, epoch, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sub.JiraHost, sub.GitHubInstallationID, nullableInt64(sub.GitHubAppID), sub.GitHubBaseURL,
		string(sub.SyncStatus), formatNullableTime(sub.BackfillSince), sub.TotalNumberOfRepos, sub.SyncedRepos,
		string(sub.RepositoryStatus), sub.RepositoryCursor, sub.Epoch, formatTime(now), formatTime(now))
	if isUniqueViolation(err) {
		return nil, domain.ErrAlreadyExists
	}
	if err != nil {
		return nil, fmt.Errorf("creating subscription: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading subscription id: %w", err)
	}
	return s.Get(ctx, id)
}

// Get retrieves a subscription.
func (s *subscriptionStore) Get(ctx context.Context, id int64) (*domain.Subscription, error) {
	row := s.store.db.QueryRowContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions WHERE id = ?", id)
	return scanSubscription(row)
}

// List returns all subscriptions ordered by ID.
func (s *subscriptionStore) List(ctx context.Context) ([]domain.Subscription, error) {
	rows, err := s.store.db.QueryContext(ctx,
		"SELECT "+subscriptionColumns+" FROM subscriptions ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []domain.Subscription //nolint:prealloc // size unknown from query
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriptions: %w", err)
	}
	return subs, nil
}

// Save updates every mutable field of an existing subscription.
func (s *subscriptionStore) Save(ctx context.Context, sub domain.Subscription) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			jira_host = ?,
			github_installation_id = ?,
			github_app_id = ?,
			github_base_url = ?,
			sync_status = ?,
			backfill_since = ?,
			total_number_of_repos = ?,
			synced_repos = ?,
			repository_status = ?,
			repository_cursor = ?,
			epoch = ?,
			updated_at = ?
		WHERE id = ?
	`, sub.JiraHost, sub.GitHubInstallationID, nullableInt64(sub.GitHubAppID), sub.GitHubBaseURL,
		string(sub.SyncStatus), formatNullableTime(sub.BackfillSince), sub.TotalNumberOfRepos, sub.SyncedRepos,
		string(sub.RepositoryStatus), sub.RepositoryCursor, sub.Epoch, formatTime(s.store.now()), sub.ID)
	if isUniqueViolation(err) {
		return domain.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("saving subscription: %w", err)
	}
	return requireAffected(res)
}

// UpdateSyncStatus sets only the sync status.
func (s *subscriptionStore) UpdateSyncStatus(ctx context.Context, id int64, status domain.SyncStatus) error {
	res, err := s.store.db.ExecContext(ctx,
		"UPDATE subscriptions SET sync_status = ?, updated_at = ? WHERE id = ?",
		string(status), formatTime(s.store.now()), id)
	if err != nil {
		return fmt.Errorf("updating sync status: %w", err)
	}
	return requireAffected(res)
}

// ActivateSync moves a PENDING subscription at epoch to ACTIVE.
func (s *subscriptionStore) ActivateSync(ctx context.Context, id, epoch int64) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE subscriptions SET sync_status = ?, updated_at = ?
		WHERE id = ? AND epoch = ? AND sync_status IN (?, ?)
	`, string(domain.SyncStatusActive), formatTime(s.store.now()), id, epoch,
		string(domain.SyncStatusPending), string(domain.SyncStatusActive))
	if err != nil {
		return fmt.Errorf("activating subscription: %w", err)
	}
	return s.requireCurrent(ctx, id, res)
}

// SaveDiscoveryProgress records discovery state while the subscription
// is runnable and at epoch.
func (s *subscriptionStore) SaveDiscoveryProgress(
	ctx context.Context,
	id, epoch int64,
	progress domain.DiscoveryProgress,
) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			repository_status = ?,
			repository_cursor = ?,
			total_number_of_repos = ?,
			updated_at = ?
		WHERE id = ? AND epoch = ? AND sync_status IN (?, ?)
	`, string(progress.Status), progress.Cursor, progress.TotalRepos, formatTime(s.store.now()), id, epoch,
		string(domain.SyncStatusPending), string(domain.SyncStatusActive))
	if err != nil {
		return fmt.Errorf("saving discovery progress: %w", err)
	}
	return s.requireCurrent(ctx, id, res)
}

// CompleteSync moves an ACTIVE subscription at epoch to COMPLETE.
func (s *subscriptionStore) CompleteSync(ctx context.Context, id, epoch int64, syncedRepos, totalRepos int) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE subscriptions SET
			sync_status = ?,
			synced_repos = ?,
			total_number_of_repos = ?,
			updated_at = ?
		WHERE id = ? AND epoch = ? AND sync_status = ?
	`, string(domain.SyncStatusComplete), syncedRepos, totalRepos, formatTime(s.store.now()), id, epoch,
		string(domain.SyncStatusActive))
	if err != nil {
		return fmt.Errorf("completing subscription: %w", err)
	}
	return s.requireCurrent(ctx, id, res)
}

// requireCurrent maps a guarded update that matched no row to
// domain.ErrNotFound when the subscription is gone and to
// domain.ErrSubscriptionCancelled when it was changed under the worker.
func (s *subscriptionStore) requireCurrent(ctx context.Context, id int64, res sql.Result) error {
	err := requireAffected(res)
	if !errors.Is(err, domain.ErrNotFound) {
		return err
	}
	var one int
	err = s.store.db.QueryRowContext(ctx, "SELECT 1 FROM subscriptions WHERE id = ?", id).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case err != nil:
		return fmt.Errorf("checking subscription: %w", err)
	}
	return domain.ErrSubscriptionCancelled
}

// Delete removes a subscription. Repository and task states cascade.
func (s *subscriptionStore) Delete(ctx context.Context, id int64) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM subscriptions WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting subscription: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*domain.Subscription, error) {
	var sub domain.Subscription
	var appID sql.NullInt64
	var syncStatus, repoStatus, createdAt, updatedAt string
	var backfillSince sql.NullString

	if err := row.Scan(&sub.ID, &sub.JiraHost, &sub.GitHubInstallationID, &appID, &sub.GitHubBaseURL,
		&syncStatus, &backfillSince, &sub.TotalNumberOfRepos, &sub.SyncedRepos,
		&repoStatus, &sub.RepositoryCursor, &sub.Epoch, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning subscription: %w", err)
	}

	if appID.Valid {
		id := appID.Int64
		sub.GitHubAppID = &id
	}
	sub.SyncStatus = domain.SyncStatus(syncStatus)
	sub.RepositoryStatus = domain.TaskStatus(repoStatus)
	sub.BackfillSince = parseNullableTime(backfillSince)
	sub.CreatedAt = parseTime(createdAt)
	sub.UpdatedAt = parseTime(updatedAt)
	return &sub, nil
}

func nullableInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

// requireAffected maps an update that matched no row to domain.ErrNotFound.
func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
