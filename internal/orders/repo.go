package orders

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
)

const defaultScanLimit = 100

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(order).Error
}

func (r *repository) CreateItems(ctx context.Context, items []models.OrderItem) error {
	if len(items) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Omit(clause.Associations).Create(&items).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	return r.findOne(ctx, "id = ?", id)
}

func (r *repository) FindByReference(ctx context.Context, reference string) (*models.Order, error) {
	return r.findOne(ctx, "reference = ?", strings.ToUpper(strings.TrimSpace(reference)))
}

func (r *repository) findOne(ctx context.Context, query string, arg any) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("product_title ASC")
		}).
		Preload("Shipment").
		Where(query, arg).
		First(&order).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) SetStripeSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"stripe_session_id": sessionID,
			"updated_at":        time.Now().UTC(),
		}).Error
}

// MarkPaid moves a payable order to paid and records the payment reference.
// It reports false when the order was not in a payable status, which is how
// redelivered notifications are told apart from the first one.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, paymentReference string) (bool, error) {
	updates := map[string]any{
		"status":     enums.OrderStatusPaid,
		"updated_at": time.Now().UTC(),
	}
	if ref := strings.TrimSpace(paymentReference); ref != "" {
		updates["stripe_payment_intent"] = ref
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, enums.PayableOrderStatuses()).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkEmailsSent(ctx context.Context, id uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"emails_sent_at": at,
			"updated_at":     time.Now().UTC(),
		}).Error
}

// UpdateStatus applies to only when the current status is one of from.
func (r *repository) UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, extra map[string]any) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": time.Now().UTC(),
	}
	for k, v := range extra {
		updates[k] = v
	}
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) UpsertShipment(ctx context.Context, shipment *models.Shipment) (*models.Shipment, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "order_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"carrier", "tracking_number", "estimated_delivery"}),
		}).
		Create(shipment).
		Error
	if err != nil {
		return nil, err
	}

	var stored models.Shipment
	if err := r.db.WithContext(ctx).Where("order_id = ?", shipment.OrderID).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (r *repository) MarkShipmentEmailed(ctx context.Context, orderID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Shipment{}).
		Where("order_id = ?", orderID).
		Update("email_sent_at", at).
		Error
}

func (r *repository) FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.OrderStatusPending, cutoff).
		Order("created_at ASC").
		Limit(scanLimit(limit)).
		Find(&rows).
		Error
	return rows, err
}

func (r *repository) FindPaidWithoutEmails(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error) {
	var rows []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items").
		Preload("Shipment").
		Where("status = ? AND emails_sent_at IS NULL AND updated_at < ?", enums.OrderStatusPaid, cutoff).
		Order("updated_at ASC").
		Limit(scanLimit(limit)).
		Find(&rows).
		Error
	return rows, err
}

func scanLimit(limit int) int {
	if limit <= 0 {
		return defaultScanLimit
	}
	return limit
}
