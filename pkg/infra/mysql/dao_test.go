package mysql

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/tkersh/echobase-sub003/internal/order"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	// One connection keeps every statement on the same in-memory database.
	db, err := Open(Options{DSN: SQLitePrefix + ":memory:", MaxOpenConns: 1})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&User{}, &Product{}, &Order{}))
	t.Cleanup(func() { _ = Close(db) })
	return db
}

func TestUserExists(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&User{ID: 7, Username: "ada", CreatedAt: time.Now()}).Error)
	dao := NewOrderDAO(db)

	ok, err := dao.UserExists(context.Background(), 7)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = dao.UserExists(context.Background(), 8)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInsertAndListOrders(t *testing.T) {
	db := newTestDB(t)
	dao := NewOrderDAO(db)
	ctx := context.Background()
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	first := &order.PersistedOrder{
		UserID:        7,
		Product:       order.ProductRef{ID: 3, Name: "Widget", SKU: "W-1"},
		Quantity:      2,
		TotalPrice:    decimal.RequireFromString("50.00"),
		Status:        order.StatusCompleted,
		CorrelationID: "corr-a",
		Attributes:    map[string]string{"message_type": "order.submitted"},
		CreatedAt:     created,
	}
	require.NoError(t, dao.InsertOrder(ctx, first))
	assert.NotZero(t, first.ID)

	second := &order.PersistedOrder{
		UserID:     7,
		Product:    order.ProductRef{Name: "Gizmo"},
		Quantity:   1,
		TotalPrice: decimal.RequireFromString("10.50"),
		Status:     order.StatusCompleted,
		CreatedAt:  created.Add(time.Minute),
	}
	require.NoError(t, dao.InsertOrder(ctx, second))

	orders, err := dao.ListOrdersByUser(ctx, 7)
	require.NoError(t, err)
	require.Len(t, orders, 2)

	assert.Equal(t, "Gizmo", orders[0].Product.Name)
	assert.Zero(t, orders[0].Product.ID)
	assert.True(t, orders[0].TotalPrice.Equal(decimal.RequireFromString("10.5")))

	assert.Equal(t, int64(3), orders[1].Product.ID)
	assert.Equal(t, "W-1", orders[1].Product.SKU)
	assert.Equal(t, order.StatusCompleted, orders[1].Status)
	assert.Equal(t, "order.submitted", orders[1].Attributes["message_type"])
	assert.True(t, orders[1].TotalPrice.Equal(decimal.NewFromInt(50)))

	none, err := dao.ListOrdersByUser(ctx, 99)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestListProducts(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, db.Create(&[]Product{
		{Name: "Widget", SKU: "W-1", Price: decimal.RequireFromString("25.00")},
		{Name: "Gizmo", SKU: "G-1", Price: decimal.RequireFromString("10.00")},
	}).Error)

	products, err := NewProductDAO(db).ListProducts(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "Widget", products[0].Name)
	assert.True(t, products[0].Price.Equal(decimal.NewFromInt(25)))
}

func TestPing(t *testing.T) {
	db := newTestDB(t)
	assert.NoError(t, NewOrderDAO(db).Ping(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Error(t, Ping(ctx, db))
}
