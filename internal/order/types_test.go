package order

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validRequest() OrderRequest {
	return OrderRequest{
		UserID:     7,
		UserName:   "ada",
		Product:    ProductRef{Name: "Widget"},
		Quantity:   2,
		TotalPrice: decimal.RequireFromString("50.00"),
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(r *OrderRequest)
		want   error
	}{
		{"valid", func(r *OrderRequest) {}, nil},
		{"no user", func(r *OrderRequest) { r.UserID = 0 }, ErrInvalidUserID},
		{"blank product", func(r *OrderRequest) { r.Product.Name = "  " }, ErrMissingProduct},
		{"negative quantity", func(r *OrderRequest) { r.Quantity = -1 }, ErrInvalidQuantity},
		{"zero price", func(r *OrderRequest) { r.TotalPrice = decimal.Zero }, ErrInvalidTotalPrice},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := validRequest()
			tc.mutate(&r)
			err := r.Validate()
			if tc.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tc.want)
		})
	}
}

func TestOrderRequestDecodesLegacyPayload(t *testing.T) {
	// Legacy clients send no product id or sku and a numeric price.
	raw := `{"user_id":3,"user_name":"bob","product":{"name":"Gizmo"},"quantity":1,"total_price":10.5}`

	var r OrderRequest
	require.NoError(t, json.Unmarshal([]byte(raw), &r))
	require.NoError(t, r.Validate())
	assert.Zero(t, r.Product.ID)
	assert.Empty(t, r.Product.SKU)
	assert.True(t, r.TotalPrice.Equal(decimal.RequireFromString("10.5")))
}

func TestNewPersistedOrder(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := validRequest()
	r.CorrelationID = "corr-1"

	p := NewPersistedOrder(&r, map[string]string{"k": "v"}, now)
	assert.Equal(t, StatusCompleted, p.Status)
	assert.Equal(t, now, p.CreatedAt)
	assert.Equal(t, "corr-1", p.CorrelationID)
	assert.Equal(t, "v", p.Attributes["k"])
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "blue widget", NormalizeName("  Blue \t Widget "))
}

func TestBusinessRuleError(t *testing.T) {
	var err error = NewOrderTooLargeError()

	var bre *BusinessRuleError
	require.True(t, errors.As(err, &bre))
	assert.Equal(t, RuleOrderTooLarge, bre.Rule)
	assert.Equal(t, "order total exceeds the configured maximum", err.Error())
}
