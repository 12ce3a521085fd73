package controllers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/api/responses"
	"github.com/emberandwick/storefront-backend/api/validators"
	internalorders "github.com/emberandwick/storefront-backend/internal/orders"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

const (
	maxCarrierLength  = 100
	maxTrackingLength = 100
)

type AdminOrderService interface {
	Get(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	UpsertShipment(ctx context.Context, orderID uuid.UUID, input internalorders.ShipmentInput) (*models.Shipment, error)
	Apply(ctx context.Context, action internalorders.Action, orderID uuid.UUID) (internalorders.ActionResult, error)
	RunBatch(ctx context.Context, action internalorders.Action, orderIDs []uuid.UUID) (internalorders.BatchResult, error)
}

type shipmentRequest struct {
	Carrier           string `json:"carrier" validate:"required,notblank,max=100"`
	TrackingNumber    string `json:"tracking_number" validate:"max=100"`
	EstimatedDelivery string `json:"estimated_delivery" validate:"omitempty,datetime=2006-01-02"`
}

type bulkActionRequest struct {
	Action   string   `json:"action" validate:"required"`
	OrderIDs []string `json:"order_ids" validate:"required,min=1,max=200,dive,uuid"`
}

type actionResponse struct {
	Result internalorders.ActionResult `json:"result"`
	Order  internalorders.OrderView    `json:"order"`
}

// AdminOrderDetail returns one order with its line snapshots and shipment.
func AdminOrderDetail(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin order service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// AdminUpsertShipment records or replaces the order's carrier hand-off.
func AdminUpsertShipment(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin order service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload shipmentRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := internalorders.ShipmentInput{
			Carrier:        validators.SanitizeString(payload.Carrier, maxCarrierLength),
			TrackingNumber: validators.SanitizeString(payload.TrackingNumber, maxTrackingLength),
		}
		if eta := strings.TrimSpace(payload.EstimatedDelivery); eta != "" {
			parsed, err := time.Parse(time.DateOnly, eta)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid estimated_delivery"))
				return
			}
			input.EstimatedDelivery = &parsed
		}

		if _, err := svc.UpsertShipment(r.Context(), orderID, input); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, internalorders.NewOrderView(order))
	}
}

// AdminOrderAction applies the action named in the path to one order.
func AdminOrderAction(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin order service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := internalorders.ParseAction(chi.URLParam(r, "action"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Apply(r.Context(), action, orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		order, err := svc.Get(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, actionResponse{Result: result, Order: internalorders.NewOrderView(order)})
	}
}

// AdminBulkOrders applies one action to many orders and reports per-order
// outcomes. Individual failures do not fail the request.
func AdminBulkOrders(svc AdminOrderService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "admin order service unavailable"))
			return
		}
		var payload bulkActionRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := internalorders.ParseAction(strings.TrimSpace(payload.Action))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ids := make([]uuid.UUID, 0, len(payload.OrderIDs))
		for _, raw := range payload.OrderIDs {
			id, err := uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order id"))
				return
			}
			ids = append(ids, id)
		}

		result, err := svc.RunBatch(r.Context(), action, ids)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}
