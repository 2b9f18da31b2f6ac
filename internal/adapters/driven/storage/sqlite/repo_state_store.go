package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// repoStateStore implements driven.RepoSyncStateStore.
type repoStateStore struct {
	store *Store
}

var _ driven.RepoSyncStateStore = (*repoStateStore)(nil)

// statusRank mirrors domain.TaskStatus ordering inside SQL.
const statusRank = `CASE %s WHEN 'ACTIVE' THEN 1 WHEN 'COMPLETE' THEN 2 WHEN 'FAILED' THEN 2 ELSE 0 END`

// Upsert records a discovered repository.
func (s *repoStateStore) Upsert(ctx context.Context, subscriptionID int64, repo domain.Repository) (bool, error) {
	created := false
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		var exists int
		err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM repo_sync_states WHERE subscription_id = ? AND repo_id = ?",
			subscriptionID, repo.ID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking repository: %w", err)
		}
		created = exists == 0

		_, err = tx.ExecContext(ctx, `
			INSERT INTO repo_sync_states (subscription_id, repo_id, repo_name, repo_owner,
				repo_full_name, repo_url, repo_updated_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(subscription_id, repo_id) DO UPDATE SET
				repo_name = excluded.repo_name,
				repo_owner = excluded.repo_owner,
				repo_full_name = excluded.repo_full_name,
				repo_url = excluded.repo_url,
				repo_updated_at = excluded.repo_updated_at,
				updated_at = excluded.updated_at
		`, subscriptionID, repo.ID, repo.Name, repo.Owner, repo.FullName, repo.URL,
			formatSortableTime(repo.UpdatedAt), formatTime(s.store.now()))
		if err != nil {
			return fmt.Errorf("upserting repository: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// Get returns one repository's state.
func (s *repoStateStore) Get(ctx context.Context, subscriptionID, repoID int64) (*domain.RepoSyncState, error) {
	row := s.store.db.QueryRowContext(ctx, `
		SELECT subscription_id, repo_id, repo_name, repo_owner, repo_full_name, repo_url,
			repo_updated_at, failed_code, updated_at
		FROM repo_sync_states WHERE subscription_id = ? AND repo_id = ?
	`, subscriptionID, repoID)
	state, err := scanRepoState(row)
	if err != nil {
		return nil, err
	}

	rows, err := s.store.db.QueryContext(ctx, `
		SELECT repo_id, task_type, status, cursor FROM task_states
		WHERE subscription_id = ? AND repo_id = ?
	`, subscriptionID, repoID)
	if err != nil {
		return nil, fmt.Errorf("querying task states: %w", err)
	}
	defer rows.Close()

	byRepo := map[int64]*domain.RepoSyncState{repoID: state}
	if err := applyTaskRows(rows, byRepo); err != nil {
		return nil, err
	}
	return state, nil
}

// List returns every repository of a subscription in scheduling order.
func (s *repoStateStore) List(ctx context.Context, subscriptionID int64) ([]domain.RepoSyncState, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT subscription_id, repo_id, repo_name, repo_owner, repo_full_name, repo_url,
			repo_updated_at, failed_code, updated_at
		FROM repo_sync_states WHERE subscription_id = ?
		ORDER BY repo_updated_at DESC, repo_id ASC
	`, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("querying repository states: %w", err)
	}

	var states []*domain.RepoSyncState
	byRepo := make(map[int64]*domain.RepoSyncState)
	for rows.Next() {
		state, err := scanRepoState(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		states = append(states, state)
		byRepo[state.Repository.ID] = state
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterating repository states: %w", err)
	}
	rows.Close()

	taskRows, err := s.store.db.QueryContext(ctx,
		"SELECT repo_id, task_type, status, cursor FROM task_states WHERE subscription_id = ?",
		subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("querying task states: %w", err)
	}
	defer taskRows.Close()
	if err := applyTaskRows(taskRows, byRepo); err != nil {
		return nil, err
	}

	out := make([]domain.RepoSyncState, 0, len(states))
	for _, st := range states {
		out = append(out, *st)
	}
	return out, nil
}

// Count returns the number of repositories of a subscription.
func (s *repoStateStore) Count(ctx context.Context, subscriptionID int64) (int, error) {
	var n int
	err := s.store.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM repo_sync_states WHERE subscription_id = ?", subscriptionID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting repositories: %w", err)
	}
	return n, nil
}

// SaveTaskProgress records a task's status and cursor. The update is
// conditional in SQL so concurrent workers can never move a task backwards.
func (s *repoStateStore) SaveTaskProgress(
	ctx context.Context,
	subscriptionID, repoID int64,
	task domain.TaskType,
	p domain.TaskProgress,
) error {
	if p.Status == "" {
		p.Status = domain.TaskStatusPending
	}
	return s.store.withTx(ctx, func(tx *sql.Tx) error {
		if err := repoExists(ctx, tx, subscriptionID, repoID); err != nil {
			return err
		}

		query := fmt.Sprintf(`
			INSERT INTO task_states (subscription_id, repo_id, task_type, status, cursor, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(subscription_id, repo_id, task_type) DO UPDATE SET
				status = excluded.status,
				cursor = excluded.cursor,
				updated_at = excluded.updated_at
			WHERE task_states.status = excluded.status
				OR (%s < 2 AND %s > %s)
		`, fmt.Sprintf(statusRank, "task_states.status"),
			fmt.Sprintf(statusRank, "excluded.status"),
			fmt.Sprintf(statusRank, "task_states.status"))

		_, err := tx.ExecContext(ctx, query, subscriptionID, repoID, string(task),
			string(p.Status), p.Cursor, formatTime(s.store.now()))
		if err != nil {
			return fmt.Errorf("saving task progress: %w", err)
		}
		return nil
	})
}

// SetFailedCode records the failure reason of a repository.
func (s *repoStateStore) SetFailedCode(ctx context.Context, subscriptionID, repoID int64, code domain.FailedCode) error {
	res, err := s.store.db.ExecContext(ctx, `
		UPDATE repo_sync_states SET failed_code = ?, updated_at = ?
		WHERE subscription_id = ? AND repo_id = ?
	`, string(code), formatTime(s.store.now()), subscriptionID, repoID)
	if err != nil {
		return fmt.Errorf("setting failed code: %w", err)
	}
	return requireAffected(res)
}

// ResetTasks puts matching tasks back to PENDING.
func (s *repoStateStore) ResetTasks(
	ctx context.Context,
	subscriptionID, repoID int64,
	tasks []domain.TaskType,
	failedOnly bool,
) (int, error) {
	if len(tasks) == 0 {
		tasks = domain.RepoTaskOrder
	}

	reset := 0
	err := s.store.withTx(ctx, func(tx *sql.Tx) error {
		repoIDs, err := matchingRepos(ctx, tx, subscriptionID, repoID)
		if err != nil {
			return err
		}

		now := formatTime(s.store.now())
		for _, id := range repoIDs {
			changed := 0
			for _, t := range tasks {
				var res sql.Result
				if failedOnly {
					res, err = tx.ExecContext(ctx, `
						UPDATE task_states SET status = 'PENDING', cursor = '', updated_at = ?
						WHERE subscription_id = ? AND repo_id = ? AND task_type = ? AND status = 'FAILED'
					`, now, subscriptionID, id, string(t))
				} else {
					res, err = tx.ExecContext(ctx, `
						INSERT INTO task_states (subscription_id, repo_id, task_type, status, cursor, updated_at)
						VALUES (?, ?, ?, 'PENDING', '', ?)
						ON CONFLICT(subscription_id, repo_id, task_type) DO UPDATE SET
							status = 'PENDING', cursor = '', updated_at = excluded.updated_at
					`, subscriptionID, id, string(t), now)
				}
				if err != nil {
					return fmt.Errorf("resetting task %s: %w", t, err)
				}
				n, err := res.RowsAffected()
				if err != nil {
					return fmt.Errorf("reading affected rows: %w", err)
				}
				changed += int(n)
			}
			if changed == 0 {
				continue
			}
			reset += changed
			if _, err := tx.ExecContext(ctx, `
				UPDATE repo_sync_states SET failed_code = '', updated_at = ?
				WHERE subscription_id = ? AND repo_id = ?
			`, now, subscriptionID, id); err != nil {
				return fmt.Errorf("clearing failed code: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return reset, nil
}

// DeleteAll removes every repository state of a subscription.
func (s *repoStateStore) DeleteAll(ctx context.Context, subscriptionID int64) error {
	_, err := s.store.db.ExecContext(ctx, "DELETE FROM repo_sync_states WHERE subscription_id = ?", subscriptionID)
	if err != nil {
		return fmt.Errorf("deleting repository states: %w", err)
	}
	return nil
}

// ==================== Helper Functions ====================

func scanRepoState(row rowScanner) (*domain.RepoSyncState, error) {
	var (
		subID                        int64
		repo                         domain.Repository
		repoUpdated, failed, updated string
	)
	if err := row.Scan(&subID, &repo.ID, &repo.Name, &repo.Owner, &repo.FullName, &repo.URL,
		&repoUpdated, &failed, &updated); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scanning repository state: %w", err)
	}
	repo.UpdatedAt = parseTime(repoUpdated)

	state := domain.NewRepoSyncState(subID, repo)
	state.FailedCode = domain.FailedCode(failed)
	state.UpdatedAt = parseTime(updated)
	return &state, nil
}

func applyTaskRows(rows *sql.Rows, byRepo map[int64]*domain.RepoSyncState) error {
	for rows.Next() {
		var repoID int64
		var taskType, status, cursor string
		if err := rows.Scan(&repoID, &taskType, &status, &cursor); err != nil {
			return fmt.Errorf("scanning task state: %w", err)
		}
		if st, ok := byRepo[repoID]; ok {
			st.Tasks[domain.TaskType(taskType)] = domain.TaskProgress{
				Status: domain.TaskStatus(status),
				Cursor: cursor,
			}
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterating task states: %w", err)
	}
	return nil
}

func repoExists(ctx context.Context, tx *sql.Tx, subscriptionID, repoID int64) error {
	var n int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM repo_sync_states WHERE subscription_id = ? AND repo_id = ?",
		subscriptionID, repoID).Scan(&n)
	if err != nil {
		return fmt.Errorf("checking repository: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func matchingRepos(ctx context.Context, tx *sql.Tx, subscriptionID, repoID int64) ([]int64, error) {
	query := "SELECT repo_id FROM repo_sync_states WHERE subscription_id = ?"
	args := []any{subscriptionID}
	if repoID != 0 {
		query += " AND repo_id = ?"
		args = append(args, repoID)
	}

	rows, err := tx.QueryContext(ctx, query+" ORDER BY repo_id", args...)
	if err != nil {
		return nil, fmt.Errorf("querying repositories: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning repository id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
