package readiness

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tkersh/echobase-sub003/pkg/logger"
)

// Verdicts.
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Names of the standard checks.
const (
	CheckPersistence = "persistence"
	CheckQueue       = "queue"
)

// CheckFunc probes one dependency. detail is reported on success.
type CheckFunc func(ctx context.Context) (detail string, err error)

// Check is a named probe.
type Check struct {
	Name string
	Fn   CheckFunc
}

// CheckResult is the outcome of one probe.
type CheckResult struct {
	Status    string `json:"status"`
	Message   string `json:"message,omitempty"`
	LatencyMS int64  `json:"latency_ms"`
}

// Status is the aggregated verdict.
type Status struct {
	Overall   string                 `json:"status"`
	Checks    map[string]CheckResult `json:"checks"`
	CheckedAt time.Time              `json:"checked_at"`
}

// Healthy reports whether every check passed.
func (s Status) Healthy() bool {
	return s.Overall == StatusHealthy
}

// Config tunes caching and probe timeouts.
type Config struct {
	HealthyTTL   time.Duration
	UnhealthyTTL time.Duration
	CheckTimeout time.Duration
}

// Reporter caches readiness verdicts: a healthy verdict for HealthyTTL and an
// unhealthy one for the shorter UnhealthyTTL so recovery shows up quickly.
// Callers arriving while a probe round runs share its result.
type Reporter struct {
	cfg    Config
	checks []Check
	logger logger.Logger
	now    func() time.Time

	mu        sync.Mutex
	cached    *Status
	expiresAt time.Time

	group singleflight.Group
}

// NewReporter creates a reporter over checks.
func NewReporter(cfg Config, log logger.Logger, checks ...Check) *Reporter {
	if cfg.HealthyTTL <= 0 {
		cfg.HealthyTTL = 5 * time.Second
	}
	if cfg.UnhealthyTTL <= 0 {
		cfg.UnhealthyTTL = time.Second
	}
	if cfg.CheckTimeout <= 0 {
		cfg.CheckTimeout = 2 * time.Second
	}
	return &Reporter{
		cfg:    cfg,
		checks: checks,
		logger: log,
		now:    time.Now,
	}
}

// GetStatus returns the cached verdict or probes every check.
func (r *Reporter) GetStatus(ctx context.Context) Status {
	if s, ok := r.fromCache(); ok {
		return s
	}

	v, _, _ := r.group.Do("probe", func() (interface{}, error) {
		if s, ok := r.fromCache(); ok {
			return s, nil
		}
		s := r.probe(ctx)
		r.store(s)
		return s, nil
	})
	return v.(Status)
}

func (r *Reporter) fromCache() (Status, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cached == nil || !r.now().Before(r.expiresAt) {
		return Status{}, false
	}
	return copyStatus(*r.cached), true
}

func (r *Reporter) store(s Status) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ttl := r.cfg.HealthyTTL
	if !s.Healthy() {
		ttl = r.cfg.UnhealthyTTL
	}
	cached := copyStatus(s)
	r.cached = &cached
	r.expiresAt = r.now().Add(ttl)
}

// probe runs every check concurrently, each under its own timeout.
func (r *Reporter) probe(ctx context.Context) Status {
	ctx = context.WithoutCancel(ctx)
	results := make([]CheckResult, len(r.checks))

	var wg sync.WaitGroup
	for i, c := range r.checks {
		wg.Add(1)
		go func(i int, c Check) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, r.cfg.CheckTimeout)
			defer cancel()

			start := time.Now()
			detail, err := c.Fn(cctx)
			res := CheckResult{Status: StatusHealthy, Message: detail, LatencyMS: time.Since(start).Milliseconds()}
			if err != nil {
				res.Status = StatusUnhealthy
				res.Message = err.Error()
				r.logger.Warnf(ctx, "[Readiness] check %s failed: %v", c.Name, err)
			}
			results[i] = res
		}(i, c)
	}
	wg.Wait()

	s := Status{Overall: StatusHealthy, Checks: make(map[string]CheckResult, len(r.checks)), CheckedAt: r.now().UTC()}
	for i, c := range r.checks {
		s.Checks[c.Name] = results[i]
		if results[i].Status != StatusHealthy {
			s.Overall = StatusDegraded
		}
	}
	return s
}

func copyStatus(s Status) Status {
	checks := make(map[string]CheckResult, len(s.Checks))
	for k, v := range s.Checks {
		checks[k] = v
	}
	s.Checks = checks
	return s
}
