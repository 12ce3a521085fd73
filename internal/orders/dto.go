package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
)

// OrderItemView is the API shape of a frozen order line.
type OrderItemView struct {
	ProductID        uuid.UUID `json:"product_id"`
	Title            string    `json:"title"`
	UnitPrice        string    `json:"unit_price"`
	Quantity         int       `json:"quantity"`
	RefundedQuantity int       `json:"refunded_quantity"`
	LineTotal        string    `json:"line_total"`
}

// ShipmentView is the API shape of a shipment.
type ShipmentView struct {
	Carrier           string     `json:"carrier"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	EstimatedDelivery *string    `json:"estimated_delivery,omitempty"`
	EmailSentAt       *time.Time `json:"email_sent_at,omitempty"`
}

// OrderView is the API shape of an order with its lines and shipment.
type OrderView struct {
	ID           uuid.UUID       `json:"id"`
	Reference    string          `json:"reference"`
	Status       string          `json:"status"`
	Email        string          `json:"email"`
	FullName     string          `json:"full_name"`
	AddressLine1 string          `json:"address_line1"`
	AddressLine2 string          `json:"address_line2,omitempty"`
	City         string          `json:"city"`
	PostalCode   string          `json:"postal_code"`
	Country      string          `json:"country"`
	Subtotal     string          `json:"subtotal"`
	DeliveryFee  string          `json:"delivery_fee"`
	Total        string          `json:"total"`
	ItemCount    int             `json:"item_count"`
	Items        []OrderItemView `json:"items"`
	Shipment     *ShipmentView   `json:"shipment,omitempty"`
	EmailsSentAt *time.Time      `json:"emails_sent_at,omitempty"`
	RefundedAt   *time.Time      `json:"refunded_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// NewOrderView renders money with two decimal places.
func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		ID:           order.ID,
		Reference:    order.Reference,
		Status:       order.Status.String(),
		Email:        order.Email,
		FullName:     order.FullName,
		AddressLine1: order.AddressLine1,
		AddressLine2: order.AddressLine2,
		City:         order.City,
		PostalCode:   order.PostalCode,
		Country:      order.Country,
		Subtotal:     order.Subtotal.StringFixed(2),
		DeliveryFee:  order.DeliveryFee.StringFixed(2),
		Total:        order.Total.StringFixed(2),
		ItemCount:    order.ItemCount(),
		Items:        make([]OrderItemView, 0, len(order.Items)),
		EmailsSentAt: order.EmailsSentAt,
		RefundedAt:   order.RefundedAt,
		CreatedAt:    order.CreatedAt,
		UpdatedAt:    order.UpdatedAt,
	}
	for _, item := range order.Items {
		view.Items = append(view.Items, OrderItemView{
			ProductID:        item.ProductID,
			Title:            item.ProductTitle,
			UnitPrice:        item.UnitPrice.StringFixed(2),
			Quantity:         item.Quantity,
			RefundedQuantity: item.RefundedQuantity,
			LineTotal:        item.LineTotal().StringFixed(2),
		})
	}
	if order.Shipment != nil {
		view.Shipment = &ShipmentView{
			Carrier:        order.Shipment.Carrier,
			TrackingNumber: order.Shipment.TrackingNumber,
			EmailSentAt:    order.Shipment.EmailSentAt,
		}
		if eta := order.Shipment.EstimatedDelivery; eta != nil {
			formatted := eta.Format(time.DateOnly)
			view.Shipment.EstimatedDelivery = &formatted
		}
	}
	return view
}
