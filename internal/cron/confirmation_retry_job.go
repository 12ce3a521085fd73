package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

const (
	defaultRetryDelay = 5 * time.Minute
	retryBatchSize    = 50
)

type unconfirmedOrderReader interface {
	FindPaidWithoutEmails(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type confirmationSender interface {
	SendConfirmation(ctx context.Context, order *models.Order, force bool) (bool, error)
}

// ConfirmationRetryJobParams configure the confirmation email retry job.
type ConfirmationRetryJobParams struct {
	Logger *logger.Logger
	Orders unconfirmedOrderReader
	Sender confirmationSender
	Delay  time.Duration
}

// NewConfirmationRetryJob builds the job that sends confirmation emails for
// paid orders whose dispatch never completed.
func NewConfirmationRetryJob(params ConfirmationRetryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Sender == nil {
		return nil, fmt.Errorf("confirmation sender required")
	}
	delay := params.Delay
	if delay <= 0 {
		delay = defaultRetryDelay
	}
	return &confirmationRetryJob{
		logg:   params.Logger,
		orders: params.Orders,
		sender: params.Sender,
		delay:  delay,
		now:    time.Now,
	}, nil
}

type confirmationRetryJob struct {
	logg   *logger.Logger
	orders unconfirmedOrderReader
	sender confirmationSender
	delay  time.Duration
	now    func() time.Time
}

func (j *confirmationRetryJob) Name() string { return "confirmation-email-retry" }

func (j *confirmationRetryJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.delay)
	rows, err := j.orders.FindPaidWithoutEmails(ctx, cutoff, retryBatchSize)
	if err != nil {
		return fmt.Errorf("query unconfirmed orders: %w", err)
	}

	var errs error
	sent := 0
	for i := range rows {
		order := &rows[i]
		orderCtx := j.logg.WithOrderID(ctx, order.ID.String())
		ok, err := j.sender.SendConfirmation(orderCtx, order, false)
		if err != nil {
			j.logg.Error(orderCtx, "confirmation retry failed", err)
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.Reference, err))
			continue
		}
		if ok {
			sent++
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{"scanned": len(rows), "sent": sent})
	j.logg.Info(logCtx, "confirmation retry complete")
	return errs
}
