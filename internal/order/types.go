package order

import (
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MessageType tags queue messages that carry an OrderRequest.
const MessageType = "order.submitted"

// Field-level validation errors raised by OrderRequest.Validate.
var (
	ErrInvalidUserID     = errors.New("user id must be positive")
	ErrMissingProduct    = errors.New("product name cannot be empty")
	ErrInvalidQuantity   = errors.New("quantity must be a positive integer")
	ErrInvalidTotalPrice = errors.New("total price must be positive")
)

// Principal is the authenticated identity submitting an order.
type Principal struct {
	UserID      int64
	DisplayName string
}

// ProductRef identifies the ordered product. ID and SKU are optional for
// legacy clients that only send the display name.
type ProductRef struct {
	ID   int64  `json:"id,omitempty"`
	Name string `json:"name"`
	SKU  string `json:"sku,omitempty"`
}

// OrderRequest is the queue payload. TotalPrice is authoritative as submitted;
// quantity times unit price is never re-derived.
type OrderRequest struct {
	UserID        int64           `json:"user_id"`
	UserName      string          `json:"user_name"`
	Product       ProductRef      `json:"product"`
	Quantity      int             `json:"quantity"`
	TotalPrice    decimal.Decimal `json:"total_price"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
}

// Validate checks the required fields a consumer needs to persist the order.
func (r *OrderRequest) Validate() error {
	if r.UserID <= 0 {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(r.Product.Name) == "" {
		return ErrMissingProduct
	}
	if r.Quantity <= 0 {
		return ErrInvalidQuantity
	}
	if !r.TotalPrice.IsPositive() {
		return ErrInvalidTotalPrice
	}
	return nil
}

// Status of a persisted order. Only the terminal state is modelled.
type Status string

const StatusCompleted Status = "completed"

// PersistedOrder is the row written once per successfully processed message.
type PersistedOrder struct {
	ID            int64             `json:"id"`
	UserID        int64             `json:"user_id"`
	Product       ProductRef        `json:"product"`
	Quantity      int               `json:"quantity"`
	TotalPrice    decimal.Decimal   `json:"total_price"`
	Status        Status            `json:"status"`
	CorrelationID string            `json:"correlation_id"`
	Attributes    map[string]string `json:"-"`
	CreatedAt     time.Time         `json:"created_at"`
}

// NewPersistedOrder builds the completed order for req.
func NewPersistedOrder(req *OrderRequest, attrs map[string]string, now time.Time) *PersistedOrder {
	createdAt := req.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}
	return &PersistedOrder{
		UserID:        req.UserID,
		Product:       req.Product,
		Quantity:      req.Quantity,
		TotalPrice:    req.TotalPrice,
		Status:        StatusCompleted,
		CorrelationID: req.CorrelationID,
		Attributes:    attrs,
		CreatedAt:     createdAt.UTC(),
	}
}

// Product is a catalog entry.
type Product struct {
	ID    int64
	Name  string
	SKU   string
	Price decimal.Decimal
}

// Ref returns the reference an order carries for p.
func (p Product) Ref() ProductRef {
	return ProductRef{ID: p.ID, Name: p.Name, SKU: p.SKU}
}

// NormalizeName folds case and whitespace so "  Blue  Widget" matches "blue widget".
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Rule names a business rule.
type Rule string

const RuleOrderTooLarge Rule = "OrderTooLarge"

// BusinessRuleError is returned as a value when a request breaks a business rule.
type BusinessRuleError struct {
	Rule    Rule
	Message string
}

func (e *BusinessRuleError) Error() string {
	return e.Message
}

// NewOrderTooLargeError builds the violation for totals above the configured maximum.
func NewOrderTooLargeError() *BusinessRuleError {
	return &BusinessRuleError{
		Rule:    RuleOrderTooLarge,
		Message: "order total exceeds the configured maximum",
	}
}
