package catalog

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tkersh/echobase-sub003/pkg/logger"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestTTLCacheSingleFlight(t *testing.T) {
	var calls atomic.Int32
	refresh := func(ctx context.Context) (map[string]int, error) {
		calls.Inc()
		time.Sleep(50 * time.Millisecond)
		return map[string]int{"a": 1}, nil
	}
	c := NewTTLCache("test", time.Minute, refresh, logger.NewNop())

	const callers = 50
	start := make(chan struct{})
	var wg sync.WaitGroup
	results := make([]int, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			v, ok := c.Get(context.Background(), "a")
			if ok {
				results[i] = v
			}
		}(i)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load())
	for _, v := range results {
		assert.Equal(t, 1, v)
	}
}

func TestTTLCacheExpiry(t *testing.T) {
	clock := newTestClock()
	var calls atomic.Int32
	refresh := func(ctx context.Context) (map[string]int, error) {
		n := calls.Inc()
		return map[string]int{"a": int(n)}, nil
	}
	c := NewTTLCache("test", time.Minute, refresh, nil, WithCacheClock(clock.Now))
	ctx := context.Background()

	v, ok := c.Get(ctx, "a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	clock.Advance(59 * time.Second)
	v, _ = c.Get(ctx, "a")
	assert.Equal(t, 1, v, "still inside the ttl")

	clock.Advance(2 * time.Second)
	v, _ = c.Get(ctx, "a")
	assert.Equal(t, 2, v)

	c.Invalidate()
	v, _ = c.Get(ctx, "a")
	assert.Equal(t, 3, v)
}

func TestTTLCacheFailureKeepsPriorData(t *testing.T) {
	clock := newTestClock()
	core, logs := observer.New(zap.ErrorLevel)
	fail := atomic.NewBool(false)
	var calls atomic.Int32
	refresh := func(ctx context.Context) (map[string]int, error) {
		calls.Inc()
		if fail.Load() {
			return nil, errors.New("db down")
		}
		return map[string]int{"a": 1}, nil
	}
	c := NewTTLCache("test", time.Minute, refresh, logger.NewFromZap(zap.New(core)), WithCacheClock(clock.Now))
	ctx := context.Background()

	_, ok := c.Get(ctx, "a")
	require.True(t, ok)

	fail.Store(true)
	clock.Advance(2 * time.Minute)
	v, ok := c.Get(ctx, "a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
	assert.Equal(t, 1, logs.FilterMessageSnippet("refresh failed").Len())

	// The failed refresh is not retried on every call.
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, int32(2), calls.Load())

	// ttl/10 later it retries.
	clock.Advance(7 * time.Second)
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, int32(3), calls.Load())
}

func TestTTLCacheFailureWithoutDataFallsBackEmpty(t *testing.T) {
	clock := newTestClock()
	var calls atomic.Int32
	refresh := func(ctx context.Context) (map[string]int, error) {
		calls.Inc()
		return nil, errors.New("db down")
	}
	// A 5s ttl still waits the one-second minimum before retrying.
	c := NewTTLCache("test", 5*time.Second, refresh, nil, WithCacheClock(clock.Now))
	ctx := context.Background()

	_, ok := c.Get(ctx, "a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())

	clock.Advance(500 * time.Millisecond)
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, int32(1), calls.Load())

	clock.Advance(time.Second)
	_, _ = c.Get(ctx, "a")
	assert.Equal(t, int32(2), calls.Load())
}

func TestTTLCacheCallerCancelDoesNotAbortRefresh(t *testing.T) {
	release := make(chan struct{})
	refresh := func(ctx context.Context) (map[string]int, error) {
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return map[string]int{"a": 1}, nil
	}
	c := NewTTLCache("test", time.Minute, refresh, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan bool, 1)
	go func() {
		_, ok := c.Get(ctx, "a")
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	close(release)
	v, ok := c.Get(context.Background(), "a")
	assert.True(t, ok)
	assert.Equal(t, 1, v)
}
