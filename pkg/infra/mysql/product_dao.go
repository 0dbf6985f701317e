package mysql

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/tkersh/echobase-sub003/internal/order"
)

// ProductDAO reads the catalog.
type ProductDAO struct {
	db *gorm.DB
}

// NewProductDAO creates a DAO over the products table.
func NewProductDAO(db *gorm.DB) *ProductDAO {
	return &ProductDAO{db: db}
}

// ListProducts loads every product.
func (dao *ProductDAO) ListProducts(ctx context.Context) ([]order.Product, error) {
	var rows []Product
	if err := dao.db.WithContext(ctx).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list products: %w", err)
	}

	products := make([]order.Product, 0, len(rows))
	for _, r := range rows {
		products = append(products, order.Product{
			ID:    r.ID,
			Name:  r.Name,
			SKU:   r.SKU,
			Price: r.Price,
		})
	}
	return products, nil
}
