package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// queueStore implements driven.Queue on the queue_messages table.
type queueStore struct {
	store      *Store
	visibility time.Duration
	maxReceive int
}

var _ driven.Queue = (*queueStore)(nil)

// Send enqueues a message that becomes visible after delay.
func (q *queueStore) Send(ctx context.Context, queue string, body []byte, delay time.Duration) (string, error) {
	id := uuid.NewString()
	now := q.store.now()
	_, err := q.store.db.ExecContext(ctx, `
		INSERT INTO queue_messages (id, queue, body, max_receive_count, visible_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, id, queue, body, q.maxReceive, now.Add(delay).UnixMilli(), now.UnixNano())
	if err != nil {
		return "", fmt.Errorf("sending message: %w", err)
	}
	return id, nil
}

// Receive leases the oldest visible message. Messages that already
// used up their receives are dead-lettered instead of delivered.
func (q *queueStore) Receive(ctx context.Context, queue string) (*domain.QueueMessage, error) {
	now := q.store.now()

	_, err := q.store.db.ExecContext(ctx, `
		UPDATE queue_messages SET dead = 1, dead_reason = 'max receive count exceeded', dead_at = ?
		WHERE queue = ? AND dead = 0 AND visible_at <= ?
			AND max_receive_count > 0 AND receive_count >= max_receive_count
	`, now.UnixMilli(), queue, now.UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("dead-lettering exhausted messages: %w", err)
	}

	row := q.store.db.QueryRowContext(ctx, `
		UPDATE queue_messages
		SET receive_count = receive_count + 1, visible_at = ?
		WHERE id = (
			SELECT id FROM queue_messages
			WHERE queue = ? AND dead = 0 AND visible_at <= ?
			ORDER BY created_at, rowid
			LIMIT 1
		)
		RETURNING id, queue, body, receive_count, max_receive_count
	`, now.Add(q.visibility).UnixMilli(), queue, now.UnixMilli())

	var msg domain.QueueMessage
	if err := row.Scan(&msg.ID, &msg.Queue, &msg.Body, &msg.ReceiveCount, &msg.MaxReceiveCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("receiving message: %w", err)
	}
	return &msg, nil
}

// Ack deletes a message.
func (q *queueStore) Ack(ctx context.Context, id string) error {
	if _, err := q.store.db.ExecContext(ctx, "DELETE FROM queue_messages WHERE id = ?", id); err != nil {
		return fmt.Errorf("acking message: %w", err)
	}
	return nil
}

// Retry makes a message visible again after delay.
func (q *queueStore) Retry(ctx context.Context, id string, delay time.Duration) error {
	res, err := q.store.db.ExecContext(ctx,
		"UPDATE queue_messages SET visible_at = ? WHERE id = ? AND dead = 0",
		q.store.now().Add(delay).UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("retrying message: %w", err)
	}
	return requireAffected(res)
}

// DeadLetter parks a message so it is never delivered again.
func (q *queueStore) DeadLetter(ctx context.Context, id, reason string) error {
	res, err := q.store.db.ExecContext(ctx,
		"UPDATE queue_messages SET dead = 1, dead_reason = ?, dead_at = ? WHERE id = ?",
		nullString(reason), q.store.now().UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("dead-lettering message: %w", err)
	}
	return requireAffected(res)
}

// PurgeDead deletes dead-lettered messages older than the cutoff.
func (q *queueStore) PurgeDead(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := q.store.db.ExecContext(ctx,
		"DELETE FROM queue_messages WHERE dead = 1 AND dead_at < ?", olderThan.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purging dead letters: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading affected rows: %w", err)
	}
	return int(n), nil
}
