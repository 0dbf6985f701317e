package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tkersh/echobase-sub003/internal/order"
	"github.com/tkersh/echobase-sub003/internal/readiness"
	"github.com/tkersh/echobase-sub003/internal/submission"
	"github.com/tkersh/echobase-sub003/pkg/errorutil"
	"github.com/tkersh/echobase-sub003/pkg/logger"
)

// Submitter accepts orders; *submission.Service implements it.
type Submitter interface {
	Submit(ctx context.Context, principal order.Principal, data submission.OrderData, correlationID string) (*submission.Receipt, error)
}

// OrderLister lists persisted orders; *mysql.OrderDAO implements it.
type OrderLister interface {
	ListOrdersByUser(ctx context.Context, userID int64) ([]*order.PersistedOrder, error)
}

// StatusReporter reports readiness; *readiness.Reporter implements it.
type StatusReporter interface {
	GetStatus(ctx context.Context) readiness.Status
}

// ProductRequest references the ordered product.
type ProductRequest struct {
	ID   int64  `json:"id" binding:"omitempty,gt=0"`
	Name string `json:"name" binding:"required,max=255"`
	SKU  string `json:"sku" binding:"omitempty,max=64"`
}

// CreateOrderRequest is the body of POST /api/v1/orders.
type CreateOrderRequest struct {
	Product       ProductRequest  `json:"product" binding:"required"`
	Quantity      int             `json:"quantity" binding:"required,gt=0"`
	TotalPrice    decimal.Decimal `json:"total_price" binding:"required,gt=0"`
	CorrelationID string          `json:"correlation_id" binding:"omitempty,max=64"`
}

// OrderHandler serves the order endpoints.
type OrderHandler struct {
	submitter Submitter
	lister    OrderLister
	logger    logger.Logger
}

// NewOrderHandler creates the order handler. lister may be nil.
func NewOrderHandler(s Submitter, l OrderLister, log logger.Logger) *OrderHandler {
	return &OrderHandler{submitter: s, lister: l, logger: log}
}

// Create accepts an order for asynchronous processing.
func (h *OrderHandler) Create(c *gin.Context) {
	var req CreateOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		BadRequestWithValidation(c, err)
		return
	}

	correlationID := req.CorrelationID
	if correlationID == "" {
		correlationID = c.GetHeader(HeaderCorrelationID)
	}

	receipt, err := h.submitter.Submit(c.Request.Context(), principalFrom(c), submission.OrderData{
		Product:    order.ProductRef{ID: req.Product.ID, Name: req.Product.Name, SKU: req.Product.SKU},
		Quantity:   req.Quantity,
		TotalPrice: req.TotalPrice,
	}, correlationID)
	if err != nil {
		h.writeSubmitError(c, err)
		return
	}
	Accepted(c, receipt)
}

func (h *OrderHandler) writeSubmitError(c *gin.Context, err error) {
	var ruleErr *order.BusinessRuleError
	switch {
	case errors.As(err, &ruleErr):
		ErrorWithDetails(c, http.StatusUnprocessableEntity, ruleErr.Message, []ErrorDetail{
			{Field: "total_price", Info: string(ruleErr.Rule)},
		})
	case errorutil.IsRetryable(err):
		c.Header("Retry-After", "1")
		Error(c, http.StatusServiceUnavailable, "service temporarily unavailable, please try again")
	default:
		h.logger.Errorf(c.Request.Context(), "[Submission] unexpected error: %v", err)
		Error(c, http.StatusInternalServerError, "internal error")
	}
}

// List returns the caller's persisted orders, newest first.
func (h *OrderHandler) List(c *gin.Context) {
	if h.lister == nil {
		Error(c, http.StatusNotImplemented, "order history is not available")
		return
	}
	orders, err := h.lister.ListOrdersByUser(c.Request.Context(), principalFrom(c).UserID)
	if err != nil {
		h.logger.Errorf(c.Request.Context(), "[Orders] list failed: %v", err)
		Error(c, http.StatusServiceUnavailable, "service temporarily unavailable, please try again")
		return
	}
	if orders == nil {
		orders = []*order.PersistedOrder{}
	}
	Success(c, gin.H{"orders": orders})
}

// BreakerState exposes the consumer circuit breaker; *worker.CircuitBreaker
// implements it.
type BreakerState interface {
	IsOpen() bool
	Failures() int
}

// HealthHandler serves the probe endpoints.
type HealthHandler struct {
	reporter StatusReporter
	breaker  BreakerState
	started  time.Time
}

// NewHealthHandler creates the probe handler. breaker may be nil when the
// process runs no consumer.
func NewHealthHandler(r StatusReporter, breaker BreakerState) *HealthHandler {
	return &HealthHandler{reporter: r, breaker: breaker, started: time.Now()}
}

// Ready answers 200 when every dependency check passed and 503 otherwise.
func (h *HealthHandler) Ready(c *gin.Context) {
	s := h.reporter.GetStatus(c.Request.Context())
	code := http.StatusOK
	if !s.Healthy() {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, s)
}

// Live answers 200 while the process serves requests. An open breaker is
// reported but does not fail the check: the consumer is backing off, not stuck.
func (h *HealthHandler) Live(c *gin.Context) {
	body := gin.H{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.started).Seconds()),
	}
	if h.breaker != nil {
		body["breaker_open"] = h.breaker.IsOpen()
		body["consecutive_failures"] = h.breaker.Failures()
	}
	c.JSON(http.StatusOK, body)
}
