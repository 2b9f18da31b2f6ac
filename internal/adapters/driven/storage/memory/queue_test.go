package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestQueue(visibility time.Duration, maxReceive int) (*Queue, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	q := NewQueue(visibility, maxReceive)
	q.now = clock.now
	return q, clock
}

func TestQueue_SendReceiveAck(t *testing.T) {
	q, _ := newTestQueue(time.Minute, 3)
	ctx := context.Background()

	id, err := q.Send(ctx, "backfill", []byte(`{"a":1}`), 0)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	msg, err := q.Receive(ctx, "backfill")
	require.NoError(t, err)
	require.NotNil(t, msg)
	assert.Equal(t, id, msg.ID)
	assert.Equal(t, 1, msg.ReceiveCount)
	assert.Equal(t, 3, msg.MaxReceiveCount)
	assert.JSONEq(t, `{"a":1}`, string(msg.Body))

	// Leased messages are invisible.
	again, err := q.Receive(ctx, "backfill")
	require.NoError(t, err)
	assert.Nil(t, again)

	require.NoError(t, q.Ack(ctx, id))
	assert.Zero(t, q.Len("backfill"))
}

func TestQueue_OtherQueueIsolated(t *testing.T) {
	q, _ := newTestQueue(time.Minute, 3)
	ctx := context.Background()
	_, _ = q.Send(ctx, "other", []byte("x"), 0)

	msg, err := q.Receive(ctx, "backfill")
	require.NoError(t, err)
	assert.Nil(t, msg)
}

func TestQueue_Delay(t *testing.T) {
	q, clock := newTestQueue(time.Minute, 3)
	ctx := context.Background()
	_, _ = q.Send(ctx, "backfill", []byte("x"), 10*time.Minute)

	msg, _ := q.Receive(ctx, "backfill")
	assert.Nil(t, msg)

	clock.advance(10 * time.Minute)
	msg, _ = q.Receive(ctx, "backfill")
	assert.NotNil(t, msg)
}

func TestQueue_VisibilityTimeoutRedelivers(t *testing.T) {
	q, clock := newTestQueue(time.Minute, 3)
	ctx := context.Background()
	_, _ = q.Send(ctx, "backfill", []byte("x"), 0)

	first, _ := q.Receive(ctx, "backfill")
	require.NotNil(t, first)

	clock.advance(time.Minute)
	second, _ := q.Receive(ctx, "backfill")
	require.NotNil(t, second)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 2, second.ReceiveCount)
}

func TestQueue_RetryAndDeadLetterAfterMaxReceives(t *testing.T) {
	q, clock := newTestQueue(time.Minute, 2)
	ctx := context.Background()
	id, _ := q.Send(ctx, "backfill", []byte("x"), 0)

	for i := 1; i <= 2; i++ {
		msg, _ := q.Receive(ctx, "backfill")
		require.NotNil(t, msg)
		assert.Equal(t, i, msg.ReceiveCount)
		require.NoError(t, q.Retry(ctx, id, time.Second))
		clock.advance(time.Second)
	}

	msg, err := q.Receive(ctx, "backfill")
	require.NoError(t, err)
	assert.Nil(t, msg)
	assert.Zero(t, q.Len("backfill"))

	clock.advance(time.Hour)
	n, err := q.PurgeDead(ctx, clock.now())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestQueue_ExplicitDeadLetter(t *testing.T) {
	q, clock := newTestQueue(time.Minute, 3)
	ctx := context.Background()
	id, _ := q.Send(ctx, "backfill", []byte("x"), 0)

	require.NoError(t, q.DeadLetter(ctx, id, "poison"))
	msg, _ := q.Receive(ctx, "backfill")
	assert.Nil(t, msg)

	n, _ := q.PurgeDead(ctx, clock.now().Add(-time.Minute))
	assert.Zero(t, n, "younger than cutoff")
	n, _ = q.PurgeDead(ctx, clock.now().Add(time.Minute))
	assert.Equal(t, 1, n)
}

func TestQueue_UnknownID(t *testing.T) {
	q, _ := newTestQueue(time.Minute, 3)
	ctx := context.Background()
	assert.Error(t, q.Retry(ctx, "missing", 0))
	assert.Error(t, q.DeadLetter(ctx, "missing", "x"))
	assert.NoError(t, q.Ack(ctx, "missing"))
}
