package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
)

// Queue is an at-least-once message queue with delayed delivery.
type Queue interface {
	// Send enqueues a message that becomes visible after delay.
	Send(ctx context.Context, queue string, body []byte, delay time.Duration) (string, error)

	// Receive leases the next visible message, incrementing its receive
	// count and hiding it for the visibility timeout. Returns nil and no
	// error when nothing is ready.
	Receive(ctx context.Context, queue string) (*domain.QueueMessage, error)

	// Ack removes a message.
	Ack(ctx context.Context, id string) error

	// Retry makes a leased message visible again after delay.
	Retry(ctx context.Context, id string, delay time.Duration) error

	// DeadLetter parks a message that will never succeed.
	DeadLetter(ctx context.Context, id, reason string) error

	// PurgeDead deletes dead-lettered messages older than the cutoff.
	PurgeDead(ctx context.Context, olderThan time.Time) (int, error)
}
