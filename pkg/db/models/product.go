package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emberandwick/storefront-backend/pkg/enums"
)

// Product is a single catalog entry. Candles and wax melts share the table
// and are told apart by Type.
type Product struct {
	ID            uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	Type          enums.ProductType   `gorm:"column:type;type:text;not null"`
	Title         string              `gorm:"column:title;not null"`
	Price         decimal.Decimal     `gorm:"column:price;type:numeric(10,2);not null"`
	DiscountPrice decimal.NullDecimal `gorm:"column:discount_price;type:numeric(10,2)"`
	StockQuantity int                 `gorm:"column:stock_quantity;not null;default:0"`
	IsActive      bool                `gorm:"column:is_active;not null;default:true"`
	CreatedAt     time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Product) TableName() string { return "products" }

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EffectivePrice returns the discount price when it is positive and does not
// exceed the list price, otherwise the list price.
func (p Product) EffectivePrice() decimal.Decimal {
	if p.DiscountPrice.Valid && p.DiscountPrice.Decimal.IsPositive() && p.DiscountPrice.Decimal.LessThanOrEqual(p.Price) {
		return p.DiscountPrice.Decimal
	}
	return p.Price
}

// IsDiscounted reports whether EffectivePrice is below the list price.
func (p Product) IsDiscounted() bool {
	return p.EffectivePrice().LessThan(p.Price)
}
