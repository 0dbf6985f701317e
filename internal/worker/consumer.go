package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tkersh/echobase-sub003/internal/order"
	"github.com/tkersh/echobase-sub003/pkg/logger"
	"github.com/tkersh/echobase-sub003/pkg/queue"
	"github.com/tkersh/echobase-sub003/pkg/telemetry"
)

// Default consumer settings.
const (
	DefaultBatchSize      = 10
	DefaultWaitTime       = 20 * time.Second
	DefaultMessageTimeout = 10 * time.Second
)

// OrderStore is the persistence the consumer writes to.
type OrderStore interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	InsertOrder(ctx context.Context, o *order.PersistedOrder) error
}

// CompletionNotifier is told about orders that were persisted and deleted.
type CompletionNotifier interface {
	NotifyCompleted(ctx context.Context, o *order.PersistedOrder) error
}

// ErrUnknownUser is logged when an order references a user that does not exist.
var ErrUnknownUser = errors.New("user does not exist")

// ConsumerConfig tunes the loop.
type ConsumerConfig struct {
	BatchSize      int
	WaitTime       time.Duration
	MessageTimeout time.Duration
}

// Consumer drains the order queue one message at a time. A message is
// deleted only after its order row is written, so every failure path
// leaves it for redelivery.
type Consumer struct {
	cfg      ConsumerConfig
	queue    queue.Client
	store    OrderStore
	breaker  *CircuitBreaker
	liveness *Liveness
	notifier CompletionNotifier
	tracer   telemetry.Tracer
	meter    telemetry.Meter
	logger   logger.Logger
	now      func() time.Time
}

// ConsumerOption configures a Consumer.
type ConsumerOption func(c *Consumer)

// WithBreaker replaces the default breaker, which never opens.
func WithBreaker(b *CircuitBreaker) ConsumerOption {
	return func(c *Consumer) { c.breaker = b }
}

// WithLiveness writes a heartbeat after every poll cycle.
func WithLiveness(l *Liveness) ConsumerOption {
	return func(c *Consumer) { c.liveness = l }
}

// WithNotifier publishes an event for every order persisted.
func WithNotifier(n CompletionNotifier) ConsumerOption {
	return func(c *Consumer) { c.notifier = n }
}

// WithTracer opens a span per message.
func WithTracer(t telemetry.Tracer) ConsumerOption {
	return func(c *Consumer) { c.tracer = t }
}

// WithMeter records outcome counters and processing latency.
func WithMeter(m telemetry.Meter) ConsumerOption {
	return func(c *Consumer) { c.meter = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) ConsumerOption {
	return func(c *Consumer) { c.now = now }
}

// NewConsumer creates the consumer loop.
func NewConsumer(cfg ConsumerConfig, q queue.Client, store OrderStore, log logger.Logger, opts ...ConsumerOption) *Consumer {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.WaitTime <= 0 {
		cfg.WaitTime = DefaultWaitTime
	}
	if cfg.MessageTimeout <= 0 {
		cfg.MessageTimeout = DefaultMessageTimeout
	}
	c := &Consumer{
		cfg:     cfg,
		queue:   q,
		store:   store,
		breaker: NewCircuitBreaker(0, 0, 0),
		tracer:  telemetry.NoopTracer(),
		meter:   telemetry.NoopMeter(),
		logger:  log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Breaker exposes the breaker for health reporting.
func (c *Consumer) Breaker() *CircuitBreaker {
	return c.breaker
}

// Run polls until ctx is cancelled. Cancelling ctx interrupts the long poll
// and the backoff sleep but not a batch already received; that batch runs to
// completion, each message bounded by the message timeout.
func (c *Consumer) Run(ctx context.Context) error {
	ctx = logger.WithComponent(ctx, "consumer")
	c.logger.Infof(ctx, "[Consumer] Started: batch_size=%d, wait=%s", c.cfg.BatchSize, c.cfg.WaitTime)

	for {
		if ctx.Err() != nil {
			c.logger.Infof(ctx, "[Consumer] Context cancelled, exiting")
			return nil
		}
		c.cycle(ctx)
	}
}

// cycle runs one backoff/poll/process round.
func (c *Consumer) cycle(ctx context.Context) {
	// 1. Throttle while the breaker is open
	if delay := c.breaker.Delay(); delay > 0 {
		c.logger.Warnf(ctx, "[Consumer] Circuit breaker open, backing off %s (failures=%d)", delay, c.breaker.Failures())
		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}

	// 2. Poll
	msgs, err := c.queue.Receive(ctx, c.cfg.BatchSize, c.cfg.WaitTime)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		c.meter.ReceiveError()
		c.logger.Warnf(ctx, "[Consumer] Receive error: %v", err)
		if c.breaker.RecordFailure() {
			c.meter.BreakerOpen(true)
			c.logger.Errorf(ctx, "[Consumer] Circuit breaker opened after %d consecutive receive failures", c.breaker.Failures())
		}
		return
	}
	if c.breaker.RecordSuccess() {
		c.meter.BreakerOpen(false)
		c.logger.Infof(ctx, "[Consumer] Circuit breaker closed, queue reachable again")
	}
	c.meter.MessagesReceived(len(msgs))

	// 3. Process sequentially, detached from shutdown
	batchCtx := context.WithoutCancel(ctx)
	for _, msg := range msgs {
		c.handle(batchCtx, msg)
	}

	// 4. Heartbeat
	if c.liveness != nil {
		if err := c.liveness.Mark(); err != nil {
			c.logger.Warnf(ctx, "[Consumer] Write liveness file failed: %v", err)
		}
	}
}

// handle processes one message. Nothing here deletes the message unless the
// order row was written first.
func (c *Consumer) handle(ctx context.Context, msg *queue.Message) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.MessageTimeout)
	defer cancel()

	correlationID := msg.Attribute(queue.AttrCorrelationID)
	ctx = logger.WithMessageID(ctx, msg.ID)
	ctx = logger.WithTraceID(ctx, correlationID)
	ctx = c.tracer.Extract(ctx, msg.Attributes)
	ctx, end := c.tracer.Start(ctx, "order.consume")
	defer end()

	defer func() {
		if r := recover(); r != nil {
			c.meter.MessageFailed(telemetry.ReasonPersist)
			c.logger.Errorf(ctx, "[Consumer] Panic handling message, left in queue: correlation_id=%s, panic=%v", correlationID, r)
		}
	}()

	// 1. Parse
	req, err := parseRequest(msg.Body)
	if err != nil {
		c.meter.MessageFailed(telemetry.ReasonParse)
		c.logger.Errorf(ctx, "[Consumer] Permanent parse failure, message left in queue: correlation_id=%s, receive_count=%d, error=%v",
			correlationID, msg.ReceiveCount, err)
		return
	}
	if correlationID == "" && req.CorrelationID != "" {
		correlationID = req.CorrelationID
		ctx = logger.WithTraceID(ctx, correlationID)
	}
	req.CorrelationID = correlationID

	// 2. Check the owning user right before insert
	exists, err := c.store.UserExists(ctx, req.UserID)
	if err != nil {
		c.meter.MessageFailed(telemetry.ReasonPersist)
		c.logger.Errorf(ctx, "[Consumer] User lookup failed, message left in queue: correlation_id=%s, user_id=%d, error=%v",
			correlationID, req.UserID, err)
		return
	}
	if !exists {
		c.meter.MessageFailed(telemetry.ReasonUnknownUser)
		c.logger.Errorf(ctx, "[Consumer] %v, message left in queue: correlation_id=%s, user_id=%d",
			ErrUnknownUser, correlationID, req.UserID)
		return
	}

	// 3. Insert
	persisted := order.NewPersistedOrder(req, msg.Attributes, c.now())
	if err := c.store.InsertOrder(ctx, persisted); err != nil {
		c.meter.MessageFailed(telemetry.ReasonPersist)
		c.logger.Errorf(ctx, "[Consumer] Insert failed, message left in queue: correlation_id=%s, error=%v", correlationID, err)
		return
	}

	// 4. Delete only after the row exists
	if err := c.queue.Delete(ctx, msg.Handle); err != nil {
		c.meter.MessageFailed(telemetry.ReasonAck)
		c.logger.Errorf(ctx, "[Consumer] Delete failed after insert, redelivery will duplicate order %d: correlation_id=%s, error=%v",
			persisted.ID, correlationID, err)
		return
	}

	c.meter.MessageProcessed()
	c.logger.Infof(ctx, "[Consumer] Order persisted: order_id=%d, user_id=%d, correlation_id=%s",
		persisted.ID, persisted.UserID, correlationID)

	// 5. Best-effort notification
	if c.notifier != nil {
		if err := c.notifier.NotifyCompleted(ctx, persisted); err != nil {
			c.logger.Warnf(ctx, "[Consumer] Publish completion notification failed: order_id=%d, error=%v", persisted.ID, err)
		}
	}
}

func parseRequest(body []byte) (*order.OrderRequest, error) {
	var req order.OrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, fmt.Errorf("decode order request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("invalid order request: %w", err)
	}
	return &req, nil
}
