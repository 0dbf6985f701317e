package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/tkersh/echobase-sub003/pkg/logger"
)

// MemoryQueue is an in-process Client with visibility-timeout semantics.
type MemoryQueue struct {
	mu          sync.Mutex
	visibility  time.Duration
	maxReceives int
	now         func() time.Time
	logger      logger.Logger

	entries []*memoryEntry
	handles map[string]string // handle -> message id
	dead    []*Message
	wake    chan struct{}
}

type memoryEntry struct {
	id             string
	body           []byte
	attrs          map[string]string
	receives       int
	invisibleUntil time.Time
}

// MemoryOption configures a MemoryQueue.
type MemoryOption func(q *MemoryQueue)

// WithMaxReceives moves a message to the dead-letter list once it has been
// delivered n times without being deleted. Zero disables the cap.
func WithMaxReceives(n int) MemoryOption {
	return func(q *MemoryQueue) {
		q.maxReceives = n
	}
}

// WithLogger reports dead-lettered messages to log.
func WithLogger(log logger.Logger) MemoryOption {
	return func(q *MemoryQueue) {
		q.logger = log
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) MemoryOption {
	return func(q *MemoryQueue) {
		q.now = now
	}
}

// NewMemoryQueue creates a queue whose received messages stay hidden for visibility.
func NewMemoryQueue(visibility time.Duration, opts ...MemoryOption) *MemoryQueue {
	q := &MemoryQueue{
		visibility: visibility,
		now:        time.Now,
		logger:     logger.NewNop(),
		handles:    make(map[string]string),
		wake:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue appends a message and wakes any waiting Receive.
func (q *MemoryQueue) Enqueue(ctx context.Context, body []byte, attrs map[string]string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	copied := make(map[string]string, len(attrs))
	for k, v := range attrs {
		copied[k] = v
	}

	q.mu.Lock()
	q.entries = append(q.entries, &memoryEntry{
		id:    id,
		body:  append([]byte(nil), body...),
		attrs: copied,
	})
	close(q.wake)
	q.wake = make(chan struct{})
	q.mu.Unlock()

	return id, nil
}

// Receive hands out up to maxMessages visible messages, waiting up to wait for
// one to arrive. Messages over the receive cap are dead-lettered instead.
func (q *MemoryQueue) Receive(ctx context.Context, maxMessages int, wait time.Duration) ([]*Message, error) {
	if maxMessages <= 0 {
		return nil, fmt.Errorf("receive: max must be positive, got %d", maxMessages)
	}

	var deadline <-chan time.Time
	if wait > 0 {
		t := time.NewTimer(wait)
		defer t.Stop()
		deadline = t.C
	}

	for {
		q.mu.Lock()
		msgs, dead, nextVisible := q.takeLocked(maxMessages)
		wake := q.wake
		q.mu.Unlock()

		for _, id := range dead {
			q.logger.Warnf(ctx, "[MemoryQueue] dead-lettered message_id=%s after %d receives", id, q.maxReceives)
		}

		if len(msgs) > 0 {
			return msgs, nil
		}
		if wait <= 0 {
			return []*Message{}, nil
		}

		// Wake up when a hidden message becomes visible again.
		var visible <-chan time.Time
		var visibleTimer *time.Timer
		if !nextVisible.IsZero() {
			visibleTimer = time.NewTimer(nextVisible.Sub(q.now()))
			visible = visibleTimer.C
		}

		select {
		case <-ctx.Done():
			stopTimer(visibleTimer)
			return nil, ctx.Err()
		case <-deadline:
			stopTimer(visibleTimer)
			return []*Message{}, nil
		case <-wake:
		case <-visible:
		}
		stopTimer(visibleTimer)
	}
}

func stopTimer(t *time.Timer) {
	if t != nil {
		t.Stop()
	}
}

// takeLocked hands out up to maxMessages visible messages, returns the ids it
// dead-lettered and reports the earliest time a hidden message becomes visible
// again.
func (q *MemoryQueue) takeLocked(maxMessages int) ([]*Message, []string, time.Time) {
	now := q.now()
	var (
		msgs        []*Message
		dead        []string
		nextVisible time.Time
		kept        = q.entries[:0]
	)

	for _, e := range q.entries {
		if len(msgs) >= maxMessages || e.invisibleUntil.After(now) {
			if e.invisibleUntil.After(now) && (nextVisible.IsZero() || e.invisibleUntil.Before(nextVisible)) {
				nextVisible = e.invisibleUntil
			}
			kept = append(kept, e)
			continue
		}

		if q.maxReceives > 0 && e.receives >= q.maxReceives {
			q.dead = append(q.dead, e.message("", e.receives))
			q.dropHandlesLocked(e.id)
			dead = append(dead, e.id)
			continue
		}

		e.receives++
		e.invisibleUntil = now.Add(q.visibility)
		handle := fmt.Sprintf("%s#%d", e.id, e.receives)
		q.handles[handle] = e.id
		msgs = append(msgs, e.message(handle, e.receives))
		kept = append(kept, e)
	}

	// Clear the tail so dropped entries can be collected.
	for i := len(kept); i < len(q.entries); i++ {
		q.entries[i] = nil
	}
	q.entries = kept

	return msgs, dead, nextVisible
}

// dropHandlesLocked forgets every handle issued for message id.
func (q *MemoryQueue) dropHandlesLocked(id string) {
	for h, mid := range q.handles {
		if mid == id {
			delete(q.handles, h)
		}
	}
}

func (e *memoryEntry) message(handle string, receives int) *Message {
	attrs := make(map[string]string, len(e.attrs))
	for k, v := range e.attrs {
		attrs[k] = v
	}
	return &Message{
		ID:           e.id,
		Handle:       handle,
		Body:         append([]byte(nil), e.body...),
		Attributes:   attrs,
		ReceiveCount: receives,
	}
}

// Delete removes the message behind handle. Unknown or stale handles are a
// no-op.
func (q *MemoryQueue) Delete(ctx context.Context, handle string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	id, ok := q.handles[handle]
	if !ok {
		return nil
	}
	for i, e := range q.entries {
		if e.id == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	q.dropHandlesLocked(id)
	return nil
}

// Depth counts messages not yet deleted or dead-lettered, hidden ones included.
func (q *MemoryQueue) Depth(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries), nil
}

// DeadLetters returns the messages that exceeded the receive cap.
func (q *MemoryQueue) DeadLetters() []*Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]*Message, len(q.dead))
	copy(out, q.dead)
	return out
}

var _ Client = (*MemoryQueue)(nil)
