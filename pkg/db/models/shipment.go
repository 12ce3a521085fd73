package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Shipment records the carrier hand-off for a paid order.
type Shipment struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID  `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	Carrier           string     `gorm:"column:carrier;not null"`
	TrackingNumber    string     `gorm:"column:tracking_number;not null;default:''"`
	EstimatedDelivery *time.Time `gorm:"column:estimated_delivery;type:date"`
	EmailSentAt       *time.Time `gorm:"column:email_sent_at"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Shipment) TableName() string { return "shipments" }

func (s *Shipment) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
