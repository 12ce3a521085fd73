package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StorePricingSettings is the single row holding store-wide delivery pricing.
type StorePricingSettings struct {
	ID               int                 `gorm:"column:id;primaryKey"`
	DeliveryFee      decimal.Decimal     `gorm:"column:delivery_fee;type:numeric(10,2);not null"`
	FreeDeliveryOver decimal.NullDecimal `gorm:"column:free_delivery_over;type:numeric(10,2)"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (StorePricingSettings) TableName() string { return "store_pricing_settings" }
