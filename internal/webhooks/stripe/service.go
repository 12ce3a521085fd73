package stripewebhook

import (
	"context"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/internal/orders"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	pkgstripe "github.com/emberandwick/storefront-backend/pkg/stripe"
)

// Result names what a notification did, for logs and metrics.
type Result string

const (
	ResultPaid             Result = "paid"
	ResultAlreadyProcessed Result = "already_processed"
	ResultMarkedFailed     Result = "marked_failed"
	ResultDeferred         Result = "deferred"
	ResultIgnored          Result = "ignored"
)

type paymentFinalizer interface {
	HandlePaymentCompleted(ctx context.Context, orderID uuid.UUID, paymentReference string) (orders.Outcome, error)
}

type basketClearer interface {
	Clear(ctx context.Context, sessionID string) error
}

type ServiceParams struct {
	Finalizer paymentFinalizer
	Orders    orders.Repository
	Baskets   basketClearer
	Logger    *logger.Logger
}

// Service applies verified checkout notifications to the order ledger.
type Service struct {
	finalizer paymentFinalizer
	orders    orders.Repository
	baskets   basketClearer
	logg      *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Finalizer == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "finalizer required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repository required")
	}
	if params.Baskets == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "basket store required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		finalizer: params.Finalizer,
		orders:    params.Orders,
		baskets:   params.Baskets,
		logg:      params.Logger,
	}, nil
}

// HandleNotification routes a verified notification. Notifications that do
// not identify a known order are ignored without error; only infrastructure
// failures are returned so the gateway redelivers.
func (s *Service) HandleNotification(ctx context.Context, n pkgstripe.Notification) (Result, error) {
	ctx = s.logg.WithEvent(ctx, n.EventID, n.EventType)

	switch n.EventType {
	case pkgstripe.EventCheckoutSessionCompleted:
		if n.AwaitingPayment() {
			s.logg.Info(ctx, "checkout completed without captured funds; waiting for async payment")
			return ResultDeferred, nil
		}
		return s.completePayment(ctx, n)
	case pkgstripe.EventCheckoutSessionAsyncPaymentSucceeded:
		return s.completePayment(ctx, n)
	case pkgstripe.EventCheckoutSessionAsyncPaymentFailed, pkgstripe.EventCheckoutSessionExpired:
		return s.failPayment(ctx, n)
	default:
		s.logg.Debug(ctx, "unhandled payment event type")
		return ResultIgnored, nil
	}
}

func (s *Service) completePayment(ctx context.Context, n pkgstripe.Notification) (Result, error) {
	orderID, ok, err := s.resolveOrder(ctx, n)
	if err != nil || !ok {
		return ResultIgnored, err
	}

	outcome, err := s.finalizer.HandlePaymentCompleted(ctx, orderID, n.PaymentReference)
	if err != nil {
		return "", err
	}

	var result Result
	switch outcome {
	case orders.OutcomePaid:
		result = ResultPaid
	case orders.OutcomeAlreadyProcessed:
		result = ResultAlreadyProcessed
	default:
		return ResultIgnored, nil
	}

	if session := n.BasketSession(); session != "" {
		if err := s.baskets.Clear(ctx, session); err != nil {
			s.logg.Error(ctx, "failed to clear basket after payment", err)
		}
	}
	return result, nil
}

func (s *Service) failPayment(ctx context.Context, n pkgstripe.Notification) (Result, error) {
	orderID, ok, err := s.resolveOrder(ctx, n)
	if err != nil || !ok {
		return ResultIgnored, err
	}
	ctx = s.logg.WithOrderID(ctx, orderID.String())

	changed, err := s.orders.UpdateStatus(ctx, orderID,
		[]enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusFailed, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
	}
	if !changed {
		s.logg.Info(ctx, "payment failure ignored; order is not pending")
		return ResultIgnored, nil
	}
	s.logg.Info(ctx, "order marked failed")
	return ResultMarkedFailed, nil
}

// resolveOrder reads the order id from the metadata, falling back to the
// order reference. ok is false when neither identifies an order.
func (s *Service) resolveOrder(ctx context.Context, n pkgstripe.Notification) (uuid.UUID, bool, error) {
	if raw := n.OrderID(); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id, true, nil
		}
		s.logg.Warn(s.logg.WithField(ctx, "metadata_order_id", raw), "payment event carries an invalid order id")
	}

	reference := n.OrderReference()
	if reference == "" {
		s.logg.Warn(ctx, "payment event has no order metadata; ignored")
		return uuid.Nil, false, nil
	}
	order, err := s.orders.FindByReference(ctx, reference)
	if err != nil {
		if pkgerrors.IsCode(err, pkgerrors.CodeNotFound) {
			s.logg.Warn(s.logg.WithField(ctx, "order_reference", reference), "payment event for unknown order; ignored")
			return uuid.Nil, false, nil
		}
		return uuid.Nil, false, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "look up order by reference")
	}
	return order.ID, true, nil
}
