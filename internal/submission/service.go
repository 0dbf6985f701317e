package submission

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tkersh/echobase-sub003/internal/order"
	"github.com/tkersh/echobase-sub003/pkg/errorutil"
	"github.com/tkersh/echobase-sub003/pkg/logger"
	"github.com/tkersh/echobase-sub003/pkg/queue"
	"github.com/tkersh/echobase-sub003/pkg/telemetry"
)

// OrderData is the field-validated order as received from the caller.
type OrderData struct {
	Product    order.ProductRef
	Quantity   int
	TotalPrice decimal.Decimal
}

// Echo is the accepted order as submitted, without resolved or internal fields.
type Echo struct {
	Product       order.ProductRef `json:"product"`
	Quantity      int              `json:"quantity"`
	TotalPrice    decimal.Decimal  `json:"total_price"`
	CorrelationID string           `json:"correlation_id"`
	CreatedAt     time.Time        `json:"created_at"`
}

// Receipt is returned for an accepted order.
type Receipt struct {
	MessageID string `json:"message_id"`
	Order     Echo   `json:"order"`
}

// ProductResolver fills missing product reference fields.
type ProductResolver interface {
	Resolve(ctx context.Context, ref order.ProductRef) order.ProductRef
}

// Service validates the business rules of an order and hands it to the queue.
type Service struct {
	queue    queue.Client
	maxValue decimal.Decimal
	resolver ProductResolver
	tracer   telemetry.Tracer
	meter    telemetry.Meter
	logger   logger.Logger
	now      func() time.Time
}

// Option configures a Service.
type Option func(s *Service)

// WithResolver enables product resolution for legacy requests.
func WithResolver(r ProductResolver) Option {
	return func(s *Service) { s.resolver = r }
}

// WithTracer injects the trace context into the message attributes.
func WithTracer(t telemetry.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithMeter counts submissions by outcome.
func WithMeter(m telemetry.Meter) Option {
	return func(s *Service) { s.meter = m }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates the submission service.
func NewService(q queue.Client, maxValue decimal.Decimal, log logger.Logger, opts ...Option) *Service {
	s := &Service{
		queue:    q,
		maxValue: maxValue,
		tracer:   telemetry.NoopTracer(),
		meter:    telemetry.NoopMeter(),
		logger:   log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit enqueues an order for principal.
// 1. Re-check the order value rule
// 2. Resolve missing product fields
// 3. Build the message with correlation and trace attributes
// 4. Enqueue once and write the audit line
//
// Business rule violations come back as *order.BusinessRuleError. Queue
// failures come back as retryable *errorutil.Error and are not retried here.
func (s *Service) Submit(ctx context.Context, principal order.Principal, data OrderData, correlationID string) (*Receipt, error) {
	if data.TotalPrice.GreaterThan(s.maxValue) {
		s.meter.OrderSubmitted(telemetry.OutcomeRejected)
		return nil, order.NewOrderTooLargeError()
	}

	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	ctx = logger.WithTraceID(ctx, correlationID)

	product := data.Product
	if s.resolver != nil {
		product = s.resolver.Resolve(ctx, product)
	}

	req := &order.OrderRequest{
		UserID:        principal.UserID,
		UserName:      principal.DisplayName,
		Product:       product,
		Quantity:      data.Quantity,
		TotalPrice:    data.TotalPrice,
		CorrelationID: correlationID,
		CreatedAt:     s.now().UTC(),
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal order request: %w", err)
	}

	attrs := map[string]string{
		queue.AttrCorrelationID: correlationID,
		queue.AttrMessageType:   order.MessageType,
	}
	s.tracer.Inject(ctx, attrs)

	messageID, err := s.queue.Enqueue(ctx, body, attrs)
	if err != nil {
		s.meter.OrderSubmitted(telemetry.OutcomeError)
		s.logger.Errorf(ctx, "[Submission] enqueue failed: user_id=%d, error=%v", principal.UserID, err)
		return nil, errorutil.Retriable("order queue unavailable", err)
	}

	s.meter.OrderSubmitted(telemetry.OutcomeAccepted)
	s.logger.Infof(ctx, "[Audit] order submitted: user_id=%d, user=%s, product=%s, message_id=%s",
		principal.UserID, principal.DisplayName, product.Name, messageID)

	return &Receipt{
		MessageID: messageID,
		Order: Echo{
			Product:       data.Product,
			Quantity:      data.Quantity,
			TotalPrice:    data.TotalPrice,
			CorrelationID: correlationID,
			CreatedAt:     req.CreatedAt,
		},
	}, nil
}
