package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for the order ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	CreateItems(ctx context.Context, items []models.OrderItem) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByReference(ctx context.Context, reference string) (*models.Order, error)
	SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error
	MarkPaid(ctx context.Context, id uuid.UUID, paymentReference string) (bool, error)
	MarkEmailsSent(ctx context.Context, id uuid.UUID, at time.Time) error
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, extra map[string]any) (bool, error)
	UpsertShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error)
	MarkShipmentEmailed(ctx context.Context, orderID uuid.UUID, at time.Time) error
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	FindPaidWithoutEmails(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// Notifier delivers order emails.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, order *models.Order) error
	SendAdminOrderNotification(ctx context.Context, order *models.Order) error
	SendShippingNotification(ctx context.Context, order *models.Order) error
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}
