// Package bootstrap turns a validated config into running components.
package bootstrap

import (
	"context"
	"errors"
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"gorm.io/gorm"

	"github.com/tkersh/echobase-sub003/internal/catalog"
	"github.com/tkersh/echobase-sub003/internal/readiness"
	"github.com/tkersh/echobase-sub003/internal/server"
	"github.com/tkersh/echobase-sub003/internal/submission"
	"github.com/tkersh/echobase-sub003/internal/worker"
	"github.com/tkersh/echobase-sub003/pkg/config"
	"github.com/tkersh/echobase-sub003/pkg/infra/mysql"
	"github.com/tkersh/echobase-sub003/pkg/infra/redis"
	"github.com/tkersh/echobase-sub003/pkg/lmstfy"
	"github.com/tkersh/echobase-sub003/pkg/logger"
	"github.com/tkersh/echobase-sub003/pkg/queue"
	"github.com/tkersh/echobase-sub003/pkg/telemetry"
)

// App holds the components shared by the api and consumer processes.
type App struct {
	Config    *config.Config
	Role      config.Role
	Logger    logger.Logger
	DB        *gorm.DB
	Queue     queue.Client
	Orders    *mysql.OrderDAO
	Readiness *readiness.Reporter
	Tracer    telemetry.Tracer
	Meter     telemetry.Meter
	Registry  *prometheus.Registry // nil when metrics are disabled
	Notifier  *redis.Notifier      // nil when redis.addr is empty

	cleanups []func() error
}

// New connects every dependency the role needs. On error whatever was already
// opened is closed again.
func New(ctx context.Context, cfg *config.Config, role config.Role, log logger.Logger) (_ *App, err error) {
	if err := cfg.Validate(role); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	app := &App{Config: cfg, Role: role, Logger: log}
	defer func() {
		if err != nil {
			_ = app.Close()
		}
	}()

	app.Tracer = telemetry.NoopTracer()
	if cfg.Telemetry.Tracing {
		app.Tracer = telemetry.NewOTelTracer()
	}
	app.Meter = telemetry.NoopMeter()
	if cfg.Telemetry.Metrics {
		app.Registry = prometheus.NewRegistry()
		app.Registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		app.Meter = telemetry.NewPrometheusMeter(app.Registry)
	}

	app.DB, err = mysql.Open(mysql.Options{
		DSN:             cfg.MySQL.DSN,
		MaxOpenConns:    cfg.MySQL.MaxOpenConns,
		MaxIdleConns:    cfg.MySQL.MaxIdleConns,
		ConnMaxLifetime: cfg.MySQL.ConnMaxLifetime,
	})
	if err != nil {
		return nil, err
	}
	db := app.DB
	app.cleanups = append(app.cleanups, func() error { return mysql.Close(db) })
	app.Orders = mysql.NewOrderDAO(app.DB)

	app.Queue, err = newQueue(cfg, log)
	if err != nil {
		return nil, err
	}
	log.Infof(ctx, "[Bootstrap] queue driver=%s", cfg.Queue.Driver)

	if cfg.Redis.Addr != "" {
		n, rerr := redis.NewNotifier(ctx, redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		})
		if rerr != nil {
			// Notifications are best effort; run without them.
			log.Warnf(ctx, "[Bootstrap] redis unavailable, completion notifications disabled: %v", rerr)
		} else {
			app.Notifier = n
			app.cleanups = append(app.cleanups, n.Close)
		}
	}

	app.Readiness = readiness.NewReporter(readiness.Config{
		HealthyTTL:   cfg.Readiness.HealthyTTL,
		UnhealthyTTL: cfg.Readiness.UnhealthyTTL,
		CheckTimeout: cfg.Readiness.CheckTimeout,
	}, log, readiness.PersistenceCheck(app.Orders), readiness.QueueCheck(app.Queue))

	return app, nil
}

func newQueue(cfg *config.Config, log logger.Logger) (queue.Client, error) {
	switch cfg.Queue.Driver {
	case config.QueueDriverMemory:
		opts := []queue.MemoryOption{queue.WithLogger(log)}
		if cfg.Queue.MaxReceives > 0 {
			opts = append(opts, queue.WithMaxReceives(cfg.Queue.MaxReceives))
		}
		return queue.NewMemoryQueue(cfg.Queue.VisibilityTimeout, opts...), nil
	case config.QueueDriverLmstfy:
		c, err := lmstfy.NewClient(lmstfy.Options{
			Host:      cfg.Lmstfy.Host,
			Port:      cfg.Lmstfy.Port,
			Namespace: cfg.Lmstfy.Namespace,
			Token:     cfg.Lmstfy.Token,
			Queue:     cfg.Lmstfy.Queue,
			TTL:       cfg.Lmstfy.TTL,
			Tries:     uint16(cfg.Lmstfy.Tries),
			Delay:     cfg.Lmstfy.Delay,
			TTR:       cfg.Lmstfy.TTR,
		})
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown queue driver %q", cfg.Queue.Driver)
	}
}

// InProcessConsumer reports whether the api process must consume too: the
// memory queue is only visible inside the process that owns it.
func (a *App) InProcessConsumer() bool {
	return a.Config.Queue.Driver == config.QueueDriverMemory
}

// SubmissionService builds the order submission service with its product catalog.
func (a *App) SubmissionService() (*submission.Service, error) {
	maxValue, err := a.Config.Order.MaxValue()
	if err != nil {
		return nil, fmt.Errorf("order.max_order_value: %w", err)
	}
	products := catalog.NewProductCatalog(mysql.NewProductDAO(a.DB), a.Config.Catalog.TTL, a.Logger)
	return submission.NewService(a.Queue, maxValue, a.Logger,
		submission.WithResolver(products),
		submission.WithTracer(a.Tracer),
		submission.WithMeter(a.Meter),
	), nil
}

// Consumer builds the order consumer loop.
func (a *App) Consumer() *worker.Consumer {
	c := a.Config.Consumer
	opts := []worker.ConsumerOption{
		worker.WithBreaker(worker.NewCircuitBreaker(c.FailureThreshold, c.BaseDelay, c.MaxDelay)),
		worker.WithLiveness(worker.NewLiveness(c.LivenessFile)),
		worker.WithTracer(a.Tracer),
		worker.WithMeter(a.Meter),
	}
	if a.Notifier != nil {
		opts = append(opts, worker.WithNotifier(a.Notifier))
	}
	return worker.NewConsumer(worker.ConsumerConfig{
		BatchSize:      c.BatchSize,
		WaitTime:       c.WaitTime,
		MessageTimeout: c.MessageTimeout,
	}, a.Queue, a.Orders, a.Logger, opts...)
}

// Router builds the HTTP engine. svc nil serves probes and metrics only;
// consumer nil leaves the breaker out of /health/live.
func (a *App) Router(svc *submission.Service, consumer *worker.Consumer) *gin.Engine {
	deps := server.Deps{
		Readiness: a.Readiness,
		Tracer:    a.Tracer,
		Logger:    a.Logger,
		Registry:  a.Registry,
	}
	if svc != nil {
		deps.Submitter = svc
		deps.Orders = a.Orders
	}
	if consumer != nil {
		deps.Breaker = consumer.Breaker()
	}
	return server.NewRouter(deps)
}

// Cleanups returns the release funcs in the order they were acquired.
func (a *App) Cleanups() []func() error {
	return append([]func() error(nil), a.cleanups...)
}

// Close releases every resource in reverse order of acquisition.
func (a *App) Close() error {
	var errs []error
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		if err := a.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.cleanups = nil
	return errors.Join(errs...)
}
