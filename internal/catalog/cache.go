package catalog

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tkersh/echobase-sub003/pkg/logger"
)

// RefreshFunc loads the complete key/value set.
type RefreshFunc[K comparable, V any] func(ctx context.Context) (map[K]V, error)

// TTLCache holds a whole map loaded by one RefreshFunc. An expired or empty
// cache is refreshed on the next Get, and concurrent callers share a single
// in-flight refresh.
type TTLCache[K comparable, V any] struct {
	name           string
	ttl            time.Duration
	refreshTimeout time.Duration
	refresh        RefreshFunc[K, V]
	logger         logger.Logger
	now            func() time.Time

	mu        sync.RWMutex
	data      map[K]V
	expiresAt time.Time

	group singleflight.Group
}

// CacheOption configures a TTLCache.
type CacheOption func(o *cacheOptions)

type cacheOptions struct {
	refreshTimeout time.Duration
	now            func() time.Time
}

// WithRefreshTimeout bounds a single refresh call. Default 5s.
func WithRefreshTimeout(d time.Duration) CacheOption {
	return func(o *cacheOptions) { o.refreshTimeout = d }
}

// WithCacheClock overrides time.Now.
func WithCacheClock(now func() time.Time) CacheOption {
	return func(o *cacheOptions) { o.now = now }
}

// NewTTLCache creates a cache named name (used in logs).
func NewTTLCache[K comparable, V any](name string, ttl time.Duration, refresh RefreshFunc[K, V], log logger.Logger, opts ...CacheOption) *TTLCache[K, V] {
	o := cacheOptions{refreshTimeout: 5 * time.Second, now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &TTLCache[K, V]{
		name:           name,
		ttl:            ttl,
		refreshTimeout: o.refreshTimeout,
		refresh:        refresh,
		logger:         log,
		now:            o.now,
	}
}

// Get returns the cached value for key, refreshing first when the map is
// missing or expired. A caller whose ctx ends while waiting on someone
// else's refresh gets whatever is cached at that moment.
func (c *TTLCache[K, V]) Get(ctx context.Context, key K) (V, bool) {
	if v, ok, fresh := c.lookup(key); fresh {
		return v, ok
	}

	ch := c.group.DoChan("refresh", func() (interface{}, error) {
		// A flight that finished between our lookup and DoChan already did the work.
		if c.fresh() {
			return nil, nil
		}
		c.load(ctx)
		return nil, nil
	})

	select {
	case <-ch:
	case <-ctx.Done():
	}

	v, ok, _ := c.lookup(key)
	return v, ok
}

// Invalidate forces the next Get to refresh.
func (c *TTLCache[K, V]) Invalidate() {
	c.mu.Lock()
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// Len is the number of cached entries.
func (c *TTLCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

func (c *TTLCache[K, V]) lookup(key K) (v V, ok bool, fresh bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.data != nil {
		v, ok = c.data[key]
	}
	return v, ok, c.data != nil && c.now().Before(c.expiresAt)
}

func (c *TTLCache[K, V]) fresh() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.data != nil && c.now().Before(c.expiresAt)
}

// load runs the refresh detached from the caller's cancellation, since other
// callers may be waiting on it.
func (c *TTLCache[K, V]) load(ctx context.Context) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.refreshTimeout)
	defer cancel()

	data, err := c.refresh(rctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if c.data == nil {
			c.data = make(map[K]V)
		}
		c.expiresAt = c.now().Add(c.retryAfter())
		c.logger.Errorf(ctx, "[Cache] %s refresh failed, serving %d cached entries: %v", c.name, len(c.data), err)
		return
	}

	if data == nil {
		data = make(map[K]V)
	}
	c.data = data
	c.expiresAt = c.now().Add(c.ttl)
	c.logger.Debugf(ctx, "[Cache] %s refreshed, %d entries", c.name, len(data))
}

// retryAfter is TTL/10, never below one second.
func (c *TTLCache[K, V]) retryAfter() time.Duration {
	d := c.ttl / 10
	if d < time.Second {
		d = time.Second
	}
	return d
}
