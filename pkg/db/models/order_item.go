package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// OrderItem snapshots the title and unit price of a product at checkout time.
type OrderItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID        uuid.UUID       `gorm:"column:product_id;type:uuid;not null;index"`
	Product          *Product        `gorm:"foreignKey:ProductID;constraint:OnDelete:RESTRICT"`
	ProductTitle     string          `gorm:"column:product_title;not null"`
	UnitPrice        decimal.Decimal `gorm:"column:unit_price;type:numeric(10,2);not null"`
	Quantity         int             `gorm:"column:quantity;not null"`
	RefundedQuantity int             `gorm:"column:refunded_quantity;not null;default:0"`
}

func (OrderItem) TableName() string { return "order_items" }

func (i *OrderItem) BeforeCreate(tx *gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	return nil
}

// LineTotal is the unit price multiplied by the ordered quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}
