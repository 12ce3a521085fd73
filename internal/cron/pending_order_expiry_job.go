package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

const expiryBatchSize = 200

type pendingOrderStore interface {
	FindPendingBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, from []enums.OrderStatus, to enums.OrderStatus, extra map[string]any) (bool, error)
}

// PendingOrderExpiryJobParams configure the pending order expiry job.
type PendingOrderExpiryJobParams struct {
	Logger *logger.Logger
	Orders pendingOrderStore
	TTL    time.Duration
}

// NewPendingOrderExpiryJob builds the job that fails checkouts whose payment
// never arrived.
func NewPendingOrderExpiryJob(params PendingOrderExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TTL <= 0 {
		return nil, fmt.Errorf("pending order ttl must be positive")
	}
	return &pendingOrderExpiryJob{
		logg:   params.Logger,
		orders: params.Orders,
		ttl:    params.TTL,
		now:    time.Now,
	}, nil
}

type pendingOrderExpiryJob struct {
	logg   *logger.Logger
	orders pendingOrderStore
	ttl    time.Duration
	now    func() time.Time
}

func (j *pendingOrderExpiryJob) Name() string { return "pending-order-expiry" }

func (j *pendingOrderExpiryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	rows, err := j.orders.FindPendingBefore(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return fmt.Errorf("query stale pending orders: %w", err)
	}

	var errs error
	expired := 0
	for _, order := range rows {
		// A payment notification may land between the scan and the update;
		// the status guard leaves such orders alone.
		changed, err := j.orders.UpdateStatus(ctx, order.ID,
			[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusFailed, nil)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("expire order %s: %w", order.ID, err))
			continue
		}
		if changed {
			expired++
			j.logg.Info(j.logg.WithOrderID(ctx, order.ID.String()), "pending order expired")
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"scanned": len(rows), "expired": expired})
	j.logg.Info(logCtx, "pending order expiry complete")
	return errs
}
