package mysql

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// User is a row of the users table owned by the account service; the
// pipeline only reads it.
type User struct {
	ID          int64     `gorm:"column:id;primaryKey;autoIncrement"`
	Username    string    `gorm:"column:username;type:varchar(64);uniqueIndex:uk_username;not null"`
	DisplayName string    `gorm:"column:display_name;type:varchar(255)"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
}

// TableName pins the table name.
func (User) TableName() string {
	return "users"
}

// Product is a catalog row.
type Product struct {
	ID    int64           `gorm:"column:id;primaryKey;autoIncrement"`
	Name  string          `gorm:"column:name;type:varchar(255);not null"`
	SKU   string          `gorm:"column:sku;type:varchar(64);index:idx_sku"`
	Price decimal.Decimal `gorm:"column:price;type:decimal(12,2);not null"`
}

func (Product) TableName() string {
	return "products"
}

// Order is a persisted, completed order.
type Order struct {
	ID            int64           `gorm:"column:id;primaryKey;autoIncrement"`
	UserID        int64           `gorm:"column:user_id;not null;index:idx_user_created"`
	ProductID     *int64          `gorm:"column:product_id"`
	ProductName   string          `gorm:"column:product_name;type:varchar(255);not null"`
	SKU           string          `gorm:"column:sku;type:varchar(64)"`
	Quantity      int             `gorm:"column:quantity;not null"`
	TotalPrice    decimal.Decimal `gorm:"column:total_price;type:decimal(12,2);not null"`
	Status        string          `gorm:"column:status;type:varchar(16);not null"`
	CorrelationID string          `gorm:"column:correlation_id;type:varchar(64);index:idx_correlation"`
	Attributes    datatypes.JSON  `gorm:"column:attributes;type:json"`
	CreatedAt     time.Time       `gorm:"column:created_at;not null;index:idx_user_created"`
}

func (Order) TableName() string {
	return "orders"
}
