package worker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCircuitBreakerOpensAtThreshold(t *testing.T) {
	b := NewCircuitBreaker(5, 5*time.Second, 120*time.Second)

	for i := 1; i < 5; i++ {
		assert.False(t, b.RecordFailure(), "failure %d must not open", i)
		assert.False(t, b.IsOpen())
		assert.Zero(t, b.Delay())
	}

	assert.True(t, b.RecordFailure(), "fifth failure opens")
	assert.True(t, b.IsOpen())
	assert.False(t, b.RecordFailure(), "already open")
	assert.Equal(t, 6, b.Failures())
}

func TestCircuitBreakerClosesOnSuccess(t *testing.T) {
	b := NewCircuitBreaker(5, 5*time.Second, 120*time.Second)
	assert.False(t, b.RecordSuccess(), "closed breaker stays closed")

	for i := 0; i < 5; i++ {
		b.RecordFailure()
	}
	assert.True(t, b.RecordSuccess())
	assert.False(t, b.IsOpen())
	assert.Zero(t, b.Failures())
	assert.Zero(t, b.Delay())

	// The count restarts from zero.
	for i := 0; i < 4; i++ {
		b.RecordFailure()
	}
	assert.False(t, b.IsOpen())
}

func TestCircuitBreakerDelay(t *testing.T) {
	b := NewCircuitBreaker(5, 5*time.Second, 120*time.Second)
	want := map[int]time.Duration{
		5:  5 * time.Second,
		6:  10 * time.Second,
		7:  20 * time.Second,
		8:  40 * time.Second,
		9:  80 * time.Second,
		10: 120 * time.Second,
		40: 120 * time.Second,
	}

	for failures := 1; failures <= 40; failures++ {
		b.RecordFailure()
		if d, ok := want[failures]; ok {
			assert.Equal(t, d, b.Delay(), "failures=%d", failures)
		}
	}
}

func TestCircuitBreakerDefaults(t *testing.T) {
	b := NewCircuitBreaker(0, 0, 0)
	for i := 0; i < DefaultFailureThreshold; i++ {
		b.RecordFailure()
	}
	assert.True(t, b.IsOpen())
	assert.Equal(t, DefaultBaseDelay, b.Delay())
}
