package worker

import (
	"time"

	"go.uber.org/atomic"
)

// Breaker defaults.
const (
	DefaultFailureThreshold = 5
	DefaultBaseDelay        = 5 * time.Second
	DefaultMaxDelay         = 120 * time.Second
)

// CircuitBreaker counts consecutive receive failures. It opens once the count
// reaches the threshold and closes on the next success. The consumer loop owns
// it; the atomics let health endpoints read it from other goroutines.
type CircuitBreaker struct {
	threshold int32
	baseDelay time.Duration
	maxDelay  time.Duration

	failures *atomic.Int32
	open     *atomic.Bool
}

// NewCircuitBreaker builds a breaker. Non-positive arguments take the defaults.
func NewCircuitBreaker(threshold int, baseDelay, maxDelay time.Duration) *CircuitBreaker {
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	if maxDelay <= 0 {
		maxDelay = DefaultMaxDelay
	}
	return &CircuitBreaker{
		threshold: int32(threshold),
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
		failures:  atomic.NewInt32(0),
		open:      atomic.NewBool(false),
	}
}

// RecordSuccess resets the counter and reports whether the breaker just closed.
func (b *CircuitBreaker) RecordSuccess() bool {
	b.failures.Store(0)
	return b.open.CAS(true, false)
}

// RecordFailure counts a failure and reports whether the breaker just opened.
func (b *CircuitBreaker) RecordFailure() bool {
	if b.failures.Inc() >= b.threshold {
		return b.open.CAS(false, true)
	}
	return false
}

// IsOpen reports the breaker state.
func (b *CircuitBreaker) IsOpen() bool {
	return b.open.Load()
}

// Failures is the current consecutive-failure count.
func (b *CircuitBreaker) Failures() int {
	return int(b.failures.Load())
}

// Delay is how long to wait before the next poll: zero while closed, else
// min(base * 2^(failures-threshold), max).
func (b *CircuitBreaker) Delay() time.Duration {
	if !b.IsOpen() {
		return 0
	}
	exp := b.failures.Load() - b.threshold
	if exp < 0 {
		exp = 0
	}

	d := b.baseDelay
	for i := int32(0); i < exp; i++ {
		d *= 2
		if d >= b.maxDelay {
			return b.maxDelay
		}
	}
	if d > b.maxDelay {
		return b.maxDelay
	}
	return d
}
