package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tkersh/echobase-sub003/pkg/logger"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newClockedQueue(opts ...MemoryOption) (*MemoryQueue, *fakeClock) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	opts = append([]MemoryOption{WithClock(clock.Now)}, opts...)
	return NewMemoryQueue(30*time.Second, opts...), clock
}

func TestMemoryQueueReceiveHidesMessage(t *testing.T) {
	ctx := context.Background()
	q, _ := newClockedQueue()

	id, err := q.Enqueue(ctx, []byte(`{"a":1}`), map[string]string{AttrCorrelationID: "c-1"})
	require.NoError(t, err)

	msgs, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, id, msgs[0].ID)
	assert.Equal(t, "c-1", msgs[0].Attribute(AttrCorrelationID))
	assert.Equal(t, 1, msgs[0].ReceiveCount)

	again, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, again, "message must stay invisible inside the window")
}

func TestMemoryQueueRedeliversAfterVisibilityWindow(t *testing.T) {
	ctx := context.Background()
	q, clock := newClockedQueue()

	_, err := q.Enqueue(ctx, []byte(`{}`), nil)
	require.NoError(t, err)

	first, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)

	clock.Advance(31 * time.Second)

	second, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, 2, second[0].ReceiveCount)
	assert.NotEqual(t, first[0].Handle, second[0].Handle)
}

func TestMemoryQueueDeleteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	q, clock := newClockedQueue()

	_, err := q.Enqueue(ctx, []byte(`{}`), nil)
	require.NoError(t, err)
	msgs, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)

	require.NoError(t, q.Delete(ctx, msgs[0].Handle))
	require.NoError(t, q.Delete(ctx, msgs[0].Handle))
	require.NoError(t, q.Delete(ctx, "never-issued"))

	clock.Advance(time.Hour)
	after, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, after)

	depth, err := q.Depth(ctx)
	require.NoError(t, err)
	assert.Zero(t, depth)
}

func TestMemoryQueueNeverLosesUndeletedMessages(t *testing.T) {
	ctx := context.Background()
	q, clock := newClockedQueue()

	for i := 0; i < 5; i++ {
		_, err := q.Enqueue(ctx, []byte(`{}`), nil)
		require.NoError(t, err)
	}

	// Delete only two of the first delivery round.
	msgs, err := q.Receive(ctx, 5, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 5)
	require.NoError(t, q.Delete(ctx, msgs[0].Handle))
	require.NoError(t, q.Delete(ctx, msgs[3].Handle))

	clock.Advance(time.Minute)
	redelivered, err := q.Receive(ctx, 10, 0)
	require.NoError(t, err)
	assert.Len(t, redelivered, 3)

	got := map[string]bool{}
	for _, m := range redelivered {
		got[m.ID] = true
	}
	assert.True(t, got[msgs[1].ID])
	assert.True(t, got[msgs[2].ID])
	assert.True(t, got[msgs[4].ID])
}

func TestMemoryQueueMaxReceivesDeadLetters(t *testing.T) {
	ctx := context.Background()
	core, logs := observer.New(zap.WarnLevel)
	q, clock := newClockedQueue(WithMaxReceives(2), WithLogger(logger.NewFromZap(zap.New(core))))

	id, err := q.Enqueue(ctx, []byte(`{}`), nil)
	require.NoError(t, err)

	var handles []string
	for i := 0; i < 2; i++ {
		msgs, err := q.Receive(ctx, 1, 0)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		handles = append(handles, msgs[0].Handle)
		clock.Advance(time.Minute)
	}

	msgs, err := q.Receive(ctx, 1, 0)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	require.Len(t, q.DeadLetters(), 1)
	assert.Equal(t, id, q.DeadLetters()[0].ID)

	q.mu.Lock()
	assert.Empty(t, q.handles, "handles of a dead-lettered message are released")
	q.mu.Unlock()
	for _, h := range handles {
		assert.NoError(t, q.Delete(ctx, h))
	}
	assert.Len(t, q.DeadLetters(), 1)

	entries := logs.FilterMessageSnippet("dead-lettered").All()
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Message, id)
}

func TestMemoryQueueLongPollWakesOnEnqueue(t *testing.T) {
	ctx := context.Background()
	q := NewMemoryQueue(time.Second)

	done := make(chan []*Message, 1)
	go func() {
		msgs, _ := q.Receive(ctx, 1, 5*time.Second)
		done <- msgs
	}()

	time.Sleep(20 * time.Millisecond)
	_, err := q.Enqueue(ctx, []byte(`{}`), nil)
	require.NoError(t, err)

	select {
	case msgs := <-done:
		assert.Len(t, msgs, 1)
	case <-time.After(2 * time.Second):
		t.Fatal("long poll did not wake on enqueue")
	}
}

func TestMemoryQueueReceiveHonorsCancel(t *testing.T) {
	q := NewMemoryQueue(time.Second)
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := q.Receive(ctx, 1, time.Minute)
		errCh <- err
	}()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("receive ignored cancellation")
	}
}

func TestMemoryQueueReceiveRejectsZeroMax(t *testing.T) {
	q := NewMemoryQueue(time.Second)
	_, err := q.Receive(context.Background(), 0, 0)
	assert.Error(t, err)
}
