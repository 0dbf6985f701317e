package mysql

import (
	"context"
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/tkersh/echobase-sub003/internal/order"
)

// OrderDAO reads users and writes orders.
type OrderDAO struct {
	db *gorm.DB
}

// NewOrderDAO creates an OrderDAO on db.
func NewOrderDAO(db *gorm.DB) *OrderDAO {
	return &OrderDAO{db: db}
}

// UserExists reports whether userID is present in users.
func (dao *OrderDAO) UserExists(ctx context.Context, userID int64) (bool, error) {
	var count int64
	result := dao.db.WithContext(ctx).
		Model(&User{}).
		Where("id = ?", userID).
		Count(&count)
	if result.Error != nil {
		return false, fmt.Errorf("failed to look up user: %w", result.Error)
	}
	return count > 0, nil
}

// InsertOrder writes o and sets its generated id.
func (dao *OrderDAO) InsertOrder(ctx context.Context, o *order.PersistedOrder) error {
	attrs, err := json.Marshal(o.Attributes)
	if err != nil {
		return fmt.Errorf("failed to marshal attributes: %w", err)
	}

	row := &Order{
		UserID:        o.UserID,
		ProductName:   o.Product.Name,
		SKU:           o.Product.SKU,
		Quantity:      o.Quantity,
		TotalPrice:    o.TotalPrice,
		Status:        string(o.Status),
		CorrelationID: o.CorrelationID,
		Attributes:    datatypes.JSON(attrs),
		CreatedAt:     o.CreatedAt,
	}
	if o.Product.ID > 0 {
		id := o.Product.ID
		row.ProductID = &id
	}

	if err := dao.db.WithContext(ctx).Create(row).Error; err != nil {
		return fmt.Errorf("failed to insert order: %w", err)
	}
	o.ID = row.ID
	return nil
}

// ListOrdersByUser returns a user's orders, newest first.
func (dao *OrderDAO) ListOrdersByUser(ctx context.Context, userID int64) ([]*order.PersistedOrder, error) {
	var rows []Order
	result := dao.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC, id DESC").
		Find(&rows)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to list orders: %w", result.Error)
	}

	out := make([]*order.PersistedOrder, 0, len(rows))
	for i := range rows {
		o, err := toDomain(&rows[i])
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func toDomain(row *Order) (*order.PersistedOrder, error) {
	attrs := map[string]string{}
	if len(row.Attributes) > 0 {
		if err := json.Unmarshal(row.Attributes, &attrs); err != nil {
			return nil, fmt.Errorf("failed to unmarshal attributes of order %d: %w", row.ID, err)
		}
	}

	ref := order.ProductRef{Name: row.ProductName, SKU: row.SKU}
	if row.ProductID != nil {
		ref.ID = *row.ProductID
	}

	return &order.PersistedOrder{
		ID:            row.ID,
		UserID:        row.UserID,
		Product:       ref,
		Quantity:      row.Quantity,
		TotalPrice:    row.TotalPrice,
		Status:        order.Status(row.Status),
		CorrelationID: row.CorrelationID,
		Attributes:    attrs,
		CreatedAt:     row.CreatedAt,
	}, nil
}

// Ping checks the connection with SELECT 1.
func (dao *OrderDAO) Ping(ctx context.Context) error {
	return Ping(ctx, dao.db)
}
