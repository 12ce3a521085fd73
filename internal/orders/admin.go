package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/pkg/db/models"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
)

// Action names an administrative order operation.
type Action string

const (
	ActionMarkShipped        Action = "mark-shipped"
	ActionMarkRefunded       Action = "mark-refunded"
	ActionMarkFailed         Action = "mark-failed"
	ActionResendConfirmation Action = "resend-confirmation"
	ActionResendShipping     Action = "resend-shipping"
)

var validActions = []Action{
	ActionMarkShipped,
	ActionMarkRefunded,
	ActionMarkFailed,
	ActionResendConfirmation,
	ActionResendShipping,
}

// ParseAction converts raw input into an Action.
func ParseAction(value string) (Action, error) {
	for _, candidate := range validActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown action %q", value))
}

// MaxBatchSize bounds how many orders one bulk request may touch.
const MaxBatchSize = 200

const emailKindShipping = "shipping"

// ResultOutcome classifies one action applied to one order.
type ResultOutcome string

const (
	ResultSucceeded ResultOutcome = "succeeded"
	ResultSkipped   ResultOutcome = "skipped"
	ResultFailed    ResultOutcome = "failed"
)

// ActionResult reports what an action did to one order.
type ActionResult struct {
	OrderID uuid.UUID     `json:"order_id"`
	Outcome ResultOutcome `json:"outcome"`
	Reason  string        `json:"reason,omitempty"`
}

// BatchResult collects per-order results in request order.
type BatchResult struct {
	Action    Action         `json:"action"`
	Results   []ActionResult `json:"results"`
	Succeeded int            `json:"succeeded"`
	Skipped   int            `json:"skipped"`
	Failed    int            `json:"failed"`
}

// ShipmentInput carries carrier hand-off details.
type ShipmentInput struct {
	Carrier           string
	TrackingNumber    string
	EstimatedDelivery *time.Time
}

// AdminParams groups the collaborators of AdminService.
type AdminParams struct {
	Orders    Repository
	Finalizer *Finalizer
	Notifier  Notifier
	Logger    *logger.Logger
	Metrics   *metrics.OrderMetrics
	Now       func() time.Time
}

// AdminService implements operator actions on orders.
type AdminService struct {
	orders    Repository
	finalizer *Finalizer
	notifier  Notifier
	logg      *logger.Logger
	metrics   *metrics.OrderMetrics
	now       func() time.Time
}

// NewAdminService validates and wires the admin service.
func NewAdminService(params AdminParams) (*AdminService, error) {
	if params.Orders == nil {
		return nil, errors.New("orders repository required")
	}
	if params.Finalizer == nil {
		return nil, errors.New("finalizer required")
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
	return &AdminService{
		orders:    params.Orders,
		finalizer: params.Finalizer,
		notifier:  params.Notifier,
		logg:      params.Logger,
		metrics:   params.Metrics,
		now:       now,
	}, nil
}

// Get returns an order with its items and shipment.
func (s *AdminService) Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	return s.orders.FindByID(ctx, orderID)
}

// UpsertShipment creates or replaces the shipment details of a paid order.
func (s *AdminService) UpsertShipment(ctx context.Context, orderID uuid.UUID, input ShipmentInput) (*models.Shipment, error) {
	carrier := strings.TrimSpace(input.Carrier)
	if carrier == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "carrier is required")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusShipped {
		return nil, stateConflict(order, "shipments can only be recorded for paid orders")
	}
	shipment, err := s.orders.UpsertShipment(ctx, &models.Shipment{
		OrderID:           orderID,
		Carrier:           carrier,
		TrackingNumber:    strings.TrimSpace(input.TrackingNumber),
		EstimatedDelivery: input.EstimatedDelivery,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save shipment")
	}
	return shipment, nil
}

// Apply runs a single action. Skips are reported through the result; refusals
// and delivery failures are returned as errors.
func (s *AdminService) Apply(ctx context.Context, action Action, orderID uuid.UUID) (ActionResult, error) {
	return s.apply(ctx, action, orderID, false)
}

// RunBatch applies action to every id and reports each outcome. It never
// stops early: one failing order does not affect the others.
func (s *AdminService) RunBatch(ctx context.Context, action Action, orderIDs []uuid.UUID) (BatchResult, error) {
	if _, err := ParseAction(string(action)); err != nil {
		return BatchResult{}, err
	}
	if len(orderIDs) == 0 {
		return BatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, "order_ids must not be empty")
	}
	if len(orderIDs) > MaxBatchSize {
		return BatchResult{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("at most %d orders per batch", MaxBatchSize))
	}

	out := BatchResult{Action: action, Results: make([]ActionResult, 0, len(orderIDs))}
	seen := map[uuid.UUID]struct{}{}
	for _, id := range orderIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		result, err := s.apply(ctx, action, id, true)
		if err != nil {
			result = ActionResult{OrderID: id, Outcome: ResultFailed, Reason: failureReason(err)}
			s.logg.Warn(s.logg.WithOrderID(ctx, id.String()), fmt.Sprintf("bulk %s failed: %v", action, err))
		}
		switch result.Outcome {
		case ResultSucceeded:
			out.Succeeded++
		case ResultSkipped:
			out.Skipped++
		default:
			out.Failed++
		}
		out.Results = append(out.Results, result)
	}
	return out, nil
}

func (s *AdminService) apply(ctx context.Context, action Action, orderID uuid.UUID, bulk bool) (ActionResult, error) {
	ctx = s.logg.WithFields(ctx, map[string]any{"order_id": orderID.String(), "action": string(action)})
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return ActionResult{}, err
	}

	var skipReason string
	switch action {
	case ActionMarkShipped:
		skipReason, err = s.markShipped(ctx, order, bulk)
	case ActionMarkRefunded:
		skipReason, err = s.markRefunded(ctx, order)
	case ActionMarkFailed:
		skipReason, err = s.markFailed(ctx, order)
	case ActionResendConfirmation:
		err = s.resendConfirmation(ctx, order)
	case ActionResendShipping:
		skipReason, err = s.resendShipping(ctx, order, bulk)
	default:
		err = pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown action %q", action))
	}
	if err != nil {
		return ActionResult{}, err
	}
	if skipReason != "" {
		s.logg.Info(ctx, "admin action skipped: "+skipReason)
		return ActionResult{OrderID: orderID, Outcome: ResultSkipped, Reason: skipReason}, nil
	}
	s.logg.Info(ctx, "admin action applied")
	return ActionResult{OrderID: orderID, Outcome: ResultSucceeded}, nil
}

// markShipped requires a shipment, moves paid orders to shipped and sends the
// shipping email. Bulk runs skip orders that were already emailed.
func (s *AdminService) markShipped(ctx context.Context, order *models.Order, bulk bool) (string, error) {
	if order.Shipment == nil {
		if bulk {
			return "order has no shipment", nil
		}
		return "", stateConflict(order, "order has no shipment")
	}
	if bulk && order.Shipment.EmailSentAt != nil {
		return "shipping email already sent", nil
	}

	switch order.Status {
	case enums.OrderStatusShipped:
	case enums.OrderStatusPaid:
		ok, err := s.orders.UpdateStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPaid}, enums.OrderStatusShipped, nil)
		if err != nil {
			return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order shipped")
		}
		if !ok {
			return "", stateConflict(order, "order changed status concurrently")
		}
		order.Status = enums.OrderStatusShipped
	default:
		return "", stateConflict(order, "only paid orders can be shipped")
	}
	return "", s.sendShipping(ctx, order)
}

func (s *AdminService) markRefunded(ctx context.Context, order *models.Order) (string, error) {
	if order.Status == enums.OrderStatusRefunded {
		return "order already refunded", nil
	}
	if !order.Status.CanTransitionTo(enums.OrderStatusRefunded) {
		return "", stateConflict(order, "only paid or shipped orders can be refunded")
	}
	refundedAt := s.now().UTC()
	ok, err := s.orders.UpdateStatus(ctx, order.ID,
		[]enums.OrderStatus{enums.OrderStatusPaid, enums.OrderStatusShipped},
		enums.OrderStatusRefunded,
		map[string]any{"refunded_at": refundedAt},
	)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order refunded")
	}
	if !ok {
		return "", stateConflict(order, "order changed status concurrently")
	}
	order.Status = enums.OrderStatusRefunded
	order.RefundedAt = &refundedAt
	return "", nil
}

func (s *AdminService) markFailed(ctx context.Context, order *models.Order) (string, error) {
	if order.Status == enums.OrderStatusFailed {
		return "order already failed", nil
	}
	if !order.Status.CanTransitionTo(enums.OrderStatusFailed) {
		return "", stateConflict(order, "only pending orders can be marked failed")
	}
	ok, err := s.orders.UpdateStatus(ctx, order.ID, []enums.OrderStatus{enums.OrderStatusPending}, enums.OrderStatusFailed, nil)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order failed")
	}
	if !ok {
		return "", stateConflict(order, "order changed status concurrently")
	}
	order.Status = enums.OrderStatusFailed
	return "", nil
}

func (s *AdminService) resendConfirmation(ctx context.Context, order *models.Order) error {
	if order.Status != enums.OrderStatusPaid && order.Status != enums.OrderStatusShipped {
		return stateConflict(order, "confirmation can only be sent for paid orders")
	}
	_, err := s.finalizer.SendConfirmation(ctx, order, true)
	return err
}

func (s *AdminService) resendShipping(ctx context.Context, order *models.Order, bulk bool) (string, error) {
	if order.Shipment == nil {
		if bulk {
			return "order has no shipment", nil
		}
		return "", stateConflict(order, "order has no shipment")
	}
	return "", s.sendShipping(ctx, order)
}

func (s *AdminService) sendShipping(ctx context.Context, order *models.Order) error {
	if err := s.notifier.SendShippingNotification(ctx, order); err != nil {
		s.metrics.EmailDispatched(emailKindShipping, metrics.OutcomeFailure)
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "send shipping email")
	}
	s.metrics.EmailDispatched(emailKindShipping, metrics.OutcomeSuccess)

	sentAt := s.now().UTC()
	if err := s.orders.MarkShipmentEmailed(ctx, order.ID, sentAt); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record shipping email")
	}
	order.Shipment.EmailSentAt = &sentAt
	return nil
}

func stateConflict(order *models.Order, message string) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, message).
		WithDetails(map[string]any{"status": order.Status.String()})
}

func failureReason(err error) string {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Message()
	}
	return err.Error()
}
