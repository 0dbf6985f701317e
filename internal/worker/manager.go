package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/atomic"

	"github.com/tkersh/echobase-sub003/pkg/logger"
)

// Runner is a blocking loop stopped by cancelling its context.
type Runner interface {
	Run(ctx context.Context) error
}

// Manager owns the consumer goroutine and the resources it depends on.
type Manager struct {
	ctx      context.Context
	cancel   context.CancelFunc
	runner   Runner
	cleanups []func() error
	closing  *atomic.Bool
	done     chan struct{}
	runErr   error
	logger   logger.Logger

	// mu orders Start against Shutdown so the wait group is never added to
	// after Shutdown began waiting on it.
	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// NewManager creates a manager for runner. cleanups run in reverse order
// after the runner has exited, so list them in acquisition order.
func NewManager(runner Runner, log logger.Logger, cleanups ...func() error) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		ctx:      logger.WithComponent(ctx, "manager"),
		cancel:   cancel,
		runner:   runner,
		cleanups: cleanups,
		closing:  atomic.NewBool(false),
		done:     make(chan struct{}),
		logger:   log,
	}
}

// ErrManagerClosed is returned by Start once Shutdown has been called.
var ErrManagerClosed = errors.New("manager is shut down")

// Start runs the loop and blocks until it exits.
func (m *Manager) Start() error {
	m.mu.Lock()
	if m.closing.Load() {
		m.mu.Unlock()
		return ErrManagerClosed
	}
	if m.started {
		m.mu.Unlock()
		return errors.New("manager already started")
	}
	m.started = true
	m.wg.Add(1)
	m.mu.Unlock()
	m.logger.Infof(m.ctx, "[Manager] Starting...")

	go func() {
		defer m.wg.Done()
		defer close(m.done)
		m.runErr = m.runner.Run(m.ctx)
	}()

	<-m.done
	return m.runErr
}

// Done is closed once the loop has exited.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Shutdown stops the loop, waits for the in-flight batch, then releases
// resources. Only the first call does the work; later calls return nil.
// If ctx ends before the loop exits, resources are left open and ctx's error
// is returned.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	if !m.closing.CAS(false, true) {
		m.mu.Unlock()
		return nil
	}
	started := m.started
	m.mu.Unlock()
	m.logger.Infof(m.ctx, "[Manager] Began to close")

	// 1. Stop scheduling cycles
	m.cancel()

	// 2. Wait for the in-flight batch
	if started {
		waitCh := make(chan struct{})
		go func() {
			m.wg.Wait()
			close(waitCh)
		}()
		select {
		case <-waitCh:
		case <-ctx.Done():
			m.logger.Errorf(m.ctx, "[Manager] Timed out waiting for the consumer loop")
			return ctx.Err()
		}
	}

	// 3. Release resources
	var errs []error
	for i := len(m.cleanups) - 1; i >= 0; i-- {
		if err := m.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		err := errors.Join(errs...)
		m.logger.Errorf(m.ctx, "[Manager] Cleanup failed: %v", err)
		return fmt.Errorf("cleanup: %w", err)
	}

	m.logger.Infof(m.ctx, "[Manager] Shutdown complete")
	return nil
}
