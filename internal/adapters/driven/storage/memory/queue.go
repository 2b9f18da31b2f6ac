package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/jira-sync/internal/core/domain"
	"github.com/custodia-labs/jira-sync/internal/core/ports/driven"
)

// Ensure Queue implements the interface.
var _ driven.Queue = (*Queue)(nil)

type queuedMessage struct {
	msg       domain.QueueMessage
	visibleAt time.Time
	sentAt    time.Time
	dead      bool
	deadAt    time.Time
}

// Queue is an in-memory implementation of driven.Queue with the same
// visibility and receive-count semantics as the SQLite queue.
type Queue struct {
	mu                sync.Mutex
	messages          map[string]*queuedMessage
	visibilityTimeout time.Duration
	maxReceiveCount   int
	now               func() time.Time
}

// NewQueue creates an in-memory queue.
func NewQueue(visibilityTimeout time.Duration, maxReceiveCount int) *Queue {
	return &Queue{
		messages:          make(map[string]*queuedMessage),
		visibilityTimeout: visibilityTimeout,
		maxReceiveCount:   maxReceiveCount,
		now:               time.Now,
	}
}

// Send enqueues a message.
func (q *Queue) Send(_ context.Context, queue string, body []byte, delay time.Duration) (string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	id := uuid.NewString()
	now := q.now()
	q.messages[id] = &queuedMessage{
		msg: domain.QueueMessage{
			ID:              id,
			Queue:           queue,
			Body:            append([]byte(nil), body...),
			MaxReceiveCount: q.maxReceiveCount,
		},
		visibleAt: now.Add(delay),
		sentAt:    now,
	}
	return id, nil
}

// Receive leases the oldest visible message.
func (q *Queue) Receive(_ context.Context, queue string) (*domain.QueueMessage, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var ready []*queuedMessage
	for _, m := range q.messages {
		if m.dead || m.msg.Queue != queue || m.visibleAt.After(now) {
			continue
		}
		ready = append(ready, m)
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i].sentAt.Before(ready[j].sentAt) })

	for _, m := range ready {
		if q.maxReceiveCount > 0 && m.msg.ReceiveCount >= q.maxReceiveCount {
			m.dead = true
			m.deadAt = now
			continue
		}
		m.msg.ReceiveCount++
		m.visibleAt = now.Add(q.visibilityTimeout)
		out := m.msg
		out.Body = append([]byte(nil), m.msg.Body...)
		return &out, nil
	}
	return nil, nil
}

// Ack removes a message.
func (q *Queue) Ack(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	delete(q.messages, id)
	return nil
}

// Retry makes a message visible again after delay.
func (q *Queue) Retry(_ context.Context, id string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.visibleAt = q.now().Add(delay)
	return nil
}

// DeadLetter parks a message.
func (q *Queue) DeadLetter(_ context.Context, id, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	m, ok := q.messages[id]
	if !ok {
		return domain.ErrNotFound
	}
	m.dead = true
	m.deadAt = q.now()
	return nil
}

// PurgeDead deletes dead-lettered messages older than the cutoff.
func (q *Queue) PurgeDead(_ context.Context, olderThan time.Time) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for id, m := range q.messages {
		if m.dead && m.deadAt.Before(olderThan) {
			delete(q.messages, id)
			n++
		}
	}
	return n, nil
}

// Len returns the number of live (not dead-lettered) messages on a queue.
func (q *Queue) Len(queue string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := 0
	for _, m := range q.messages {
		if !m.dead && m.msg.Queue == queue {
			n++
		}
	}
	return n
}
