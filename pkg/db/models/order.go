package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/emberandwick/storefront-backend/pkg/enums"
)

const orderReferenceLength = 10

// Order is the frozen record of a checkout attempt. Customer and money fields
// are copied at creation and never recomputed.
type Order struct {
	ID                  uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	Reference           string            `gorm:"column:reference;not null;uniqueIndex"`
	Status              enums.OrderStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	Email               string            `gorm:"column:email;not null"`
	FullName            string            `gorm:"column:full_name;not null"`
	AddressLine1        string            `gorm:"column:address_line1;not null"`
	AddressLine2        string            `gorm:"column:address_line2;not null;default:''"`
	City                string            `gorm:"column:city;not null"`
	PostalCode          string            `gorm:"column:postal_code;not null"`
	Country             string            `gorm:"column:country;not null"`
	Subtotal            decimal.Decimal   `gorm:"column:subtotal;type:numeric(10,2);not null"`
	DeliveryFee         decimal.Decimal   `gorm:"column:delivery_fee;type:numeric(10,2);not null"`
	Total               decimal.Decimal   `gorm:"column:total;type:numeric(10,2);not null"`
	StripePaymentIntent *string           `gorm:"column:stripe_payment_intent"`
	StripeSessionID     *string           `gorm:"column:stripe_session_id"`
	EmailsSentAt        *time.Time        `gorm:"column:emails_sent_at"`
	RefundedAt          *time.Time        `gorm:"column:refunded_at"`
	Items               []OrderItem       `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT"`
	Shipment            *Shipment         `gorm:"foreignKey:OrderID;constraint:OnDelete:RESTRICT"`
	CreatedAt           time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}

func (Order) TableName() string { return "orders" }

func (o *Order) BeforeCreate(tx *gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Reference == "" {
		o.Reference = NewOrderReference()
	}
	if o.Status == "" {
		o.Status = enums.OrderStatusPending
	}
	return nil
}

// NewOrderReference returns a fresh customer-facing order reference.
func NewOrderReference() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return strings.ToUpper(raw[:orderReferenceLength])
}

// ItemCount sums the quantities across all line items.
func (o Order) ItemCount() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}
