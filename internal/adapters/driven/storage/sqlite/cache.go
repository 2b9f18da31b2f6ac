package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// cacheStore implements driven.Cache on the cache_entries table.
type cacheStore struct {
	store *Store
}

var _ driven.Cache = (*cacheStore)(nil)

// SetNX stores the key only if it is absent or expired.
func (c *cacheStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := c.store.now()
	res, err := c.store.db.ExecContext(ctx, `
		INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expires_at = excluded.expires_at
		WHERE cache_entries.expires_at <= ?
	`, key, value, now.Add(ttl).UnixMilli(), now.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("setting cache key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading affected rows: %w", err)
	}
	return n > 0, nil
}

// Get returns the value of a live key.
func (c *cacheStore) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := c.store.db.QueryRowContext(ctx,
		"SELECT value FROM cache_entries WHERE key = ? AND expires_at > ?",
		key, c.store.now().UnixMilli()).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getting cache key: %w", err)
	}
	return value, true, nil
}

// Delete removes a key.
func (c *cacheStore) Delete(ctx context.Context, key string) error {
	if _, err := c.store.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key); err != nil {
		return fmt.Errorf("deleting cache key: %w", err)
	}
	return nil
}

// PurgeExpired removes expired keys.
func (c *cacheStore) PurgeExpired(ctx context.Context) (int, error) {
	res, err := c.store.db.ExecContext(ctx,
		"DELETE FROM cache_entries WHERE expires_at <= ?", c.store.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging cache: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}
