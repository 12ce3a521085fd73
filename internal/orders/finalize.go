package orders

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/emberandwick/storefront-backend/internal/products"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
)

// Outcome describes what a payment confirmation did to the ledger.
type Outcome string

const (
	// OutcomePaid means this call moved the order to paid.
	OutcomePaid Outcome = "paid"
	// OutcomeAlreadyProcessed means an earlier delivery already confirmed the order.
	OutcomeAlreadyProcessed Outcome = "already_processed"
	// OutcomeIgnored means no order matched the notification.
	OutcomeIgnored Outcome = "ignored"
)

const (
	emailKindConfirmation = "confirmation"
	emailKindAdminOrder   = "admin_order"
)

// FinalizerParams groups the collaborators of Finalizer.
type FinalizerParams struct {
	Tx       txRunner
	Orders   Repository
	Products products.Repository
	Notifier Notifier
	Logger   *logger.Logger
	Metrics  *metrics.OrderMetrics
	Now      func() time.Time
}

// Finalizer confirms paid orders: status, stock and confirmation emails.
type Finalizer struct {
	tx       txRunner
	orders   Repository
	products products.Repository
	notifier Notifier
	logg     *logger.Logger
	metrics  *metrics.OrderMetrics
	now      func() time.Time
}

// NewFinalizer validates and wires the finalizer.
func NewFinalizer(params FinalizerParams) (*Finalizer, error) {
	if params.Tx == nil {
		return nil, errors.New("transaction runner required")
	}
	if params.Orders == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Products == nil {
		return nil, errors.New("products repository required")
	}
	if params.Notifier == nil {
		return nil, errors.New("notifier required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Finalizer{
		tx:       params.Tx,
		orders:   params.Orders,
		products: params.Products,
		notifier: params.Notifier,
		logg:     params.Logger,
		metrics:  params.Metrics,
		now:      now,
	}, nil
}

type oversold struct {
	productID   uuid.UUID
	productType enums.ProductType
	ordered     int
	available   int
}

// HandlePaymentCompleted applies a payment confirmation. It is safe to call
// repeatedly for the same order: only the call that moves the order to paid
// adjusts stock and sends the confirmation. A missing order is not an error.
// Email failures are logged and leave emails_sent_at unset.
func (f *Finalizer) HandlePaymentCompleted(ctx context.Context, orderID uuid.UUID, paymentReference string) (Outcome, error) {
	ctx = f.logg.WithOrderID(ctx, orderID.String())

	var (
		order    *models.Order
		outcome  Outcome
		shortage []oversold
	)
	err := f.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := f.orders.WithTx(tx)

		loaded, err := repo.FindByID(ctx, orderID)
		if err != nil {
			if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
				outcome = OutcomeIgnored
				return nil
			}
			return fmt.Errorf("load order: %w", err)
		}

		transitioned, err := repo.MarkPaid(ctx, orderID, paymentReference)
		if err != nil {
			return fmt.Errorf("mark order paid: %w", err)
		}
		if !transitioned {
			outcome = OutcomeAlreadyProcessed
			return nil
		}

		shortage, err = f.decrementStock(ctx, f.products.WithTx(tx), loaded.Items)
		if err != nil {
			return err
		}
		order = loaded
		outcome = OutcomePaid
		return nil
	})
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "finalize order payment")
	}

	switch outcome {
	case OutcomeIgnored:
		f.logg.Warn(ctx, "payment confirmation for unknown order ignored")
		return outcome, nil
	case OutcomeAlreadyProcessed:
		f.logg.Info(ctx, "payment confirmation already applied")
		return outcome, nil
	}

	order.Status = enums.OrderStatusPaid
	if paymentReference != "" {
		ref := paymentReference
		order.StripePaymentIntent = &ref
	}
	ctx = f.logg.WithField(ctx, "order_reference", order.Reference)
	f.metrics.OrderPaid()
	for _, s := range shortage {
		f.metrics.StockOversold(s.productType.String(), s.ordered-s.available)
		f.logg.Warn(f.logg.WithFields(ctx, map[string]any{
			"product_id":   s.productID.String(),
			"product_type": s.productType.String(),
			"ordered":      s.ordered,
			"available":    s.available,
		}), "stock oversold; clamped to zero")
	}
	f.logg.Info(ctx, "order marked paid")

	if _, err := f.SendConfirmation(ctx, order, false); err != nil {
		f.logg.Error(ctx, "order confirmation email failed; left for retry", err)
	}
	return OutcomePaid, nil
}

// decrementStock locks the ordered products in id order and subtracts the
// aggregated quantities, never going below zero.
func (f *Finalizer) decrementStock(ctx context.Context, repo products.Repository, items []models.OrderItem) ([]oversold, error) {
	wanted := map[uuid.UUID]int{}
	for _, item := range items {
		wanted[item.ProductID] += item.Quantity
	}
	if len(wanted) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(wanted))
	for id := range wanted {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	locked, err := repo.LockByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lock products: %w", err)
	}

	var shortage []oversold
	for _, product := range locked {
		qty := wanted[product.ID]
		next := product.StockQuantity - qty
		if next < 0 {
			shortage = append(shortage, oversold{
				productID:   product.ID,
				productType: product.Type,
				ordered:     qty,
				available:   product.StockQuantity,
			})
			next = 0
		}
		if err := repo.SetStock(ctx, product.ID, next); err != nil {
			return nil, fmt.Errorf("update stock for %s: %w", product.ID, err)
		}
	}
	return shortage, nil
}

// SendConfirmation emails the customer about a paid order and stamps
// emails_sent_at, then notifies the store admins. emails_sent_at tracks the
// customer email only: an admin failure is logged and counted but never
// causes the customer email to be sent again. Unless force is set, an order
// already stamped is skipped and false is returned.
func (f *Finalizer) SendConfirmation(ctx context.Context, order *models.Order, force bool) (bool, error) {
	if order == nil {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "order required")
	}
	if order.EmailsSentAt != nil && !force {
		return false, nil
	}

	if err := f.notifier.SendOrderConfirmation(ctx, order); err != nil {
		f.metrics.EmailDispatched(emailKindConfirmation, metrics.OutcomeFailure)
		return false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send order confirmation")
	}
	f.metrics.EmailDispatched(emailKindConfirmation, metrics.OutcomeSuccess)

	sentAt := f.now().UTC()
	stampErr := f.orders.MarkEmailsSent(ctx, order.ID, sentAt)
	if stampErr == nil {
		order.EmailsSentAt = &sentAt
		f.logg.Info(ctx, "order confirmation sent")
	}

	f.notifyAdmins(ctx, order)

	if stampErr != nil {
		return true, pkgerrors.Wrap(pkgerrors.CodeDependency, stampErr, "record confirmation email")
	}
	return true, nil
}

func (f *Finalizer) notifyAdmins(ctx context.Context, order *models.Order) {
	if err := f.notifier.SendAdminOrderNotification(ctx, order); err != nil {
		f.metrics.EmailDispatched(emailKindAdminOrder, metrics.OutcomeFailure)
		f.logg.Error(ctx, "admin order notification failed", err)
		return
	}
	f.metrics.EmailDispatched(emailKindAdminOrder, metrics.OutcomeSuccess)
}
