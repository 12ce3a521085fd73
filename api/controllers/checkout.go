package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/api/middleware"
	"github.com/emberandwick/storefront-backend/api/responses"
	"github.com/emberandwick/storefront-backend/api/validators"
	"github.com/emberandwick/storefront-backend/internal/basket"
	checkoutsvc "github.com/emberandwick/storefront-backend/internal/checkout"
	"github.com/emberandwick/storefront-backend/pkg/db/models"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

type BasketReader interface {
	Get(ctx context.Context, sessionID string) (basket.Basket, error)
}

type checkoutResponse struct {
	OrderID        uuid.UUID       `json:"order_id"`
	Reference      string          `json:"reference"`
	SessionID      string          `json:"session_id"`
	CheckoutURL    string          `json:"checkout_url"`
	PublishableKey string          `json:"publishable_key"`
	Totals         pricingResponse `json:"totals"`
}

type checkoutStatusResponse struct {
	OrderID   uuid.UUID `json:"order_id"`
	Reference string    `json:"reference"`
	Status    string    `json:"status"`
	Email     string    `json:"email"`
	ItemCount int       `json:"item_count"`
	Total     string    `json:"total"`
}

// Checkout turns the session basket into a pending order and returns the
// hosted payment page to redirect to.
func Checkout(svc checkoutsvc.Service, baskets BasketReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil || baskets == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var customer checkoutsvc.CustomerInfo
		if err := validators.DecodeJSONBody(r, &customer); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		sessionID := middleware.BasketSessionFromContext(r.Context())
		items, err := baskets.Get(r.Context(), sessionID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Start(r.Context(), sessionID, items, customer)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, checkoutResponse{
			OrderID:        result.OrderID,
			Reference:      result.Reference,
			SessionID:      result.SessionID,
			CheckoutURL:    result.CheckoutURL,
			PublishableKey: result.PublishableKey,
			Totals:         newPricingResponse(result.Pricing),
		})
	}
}

// CheckoutStatus lets the success page poll the order its session created.
func CheckoutStatus(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}
		order, err := svc.Status(r.Context(), middleware.BasketSessionFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newCheckoutStatusResponse(order))
	}
}

func newCheckoutStatusResponse(order *models.Order) checkoutStatusResponse {
	return checkoutStatusResponse{
		OrderID:   order.ID,
		Reference: order.Reference,
		Status:    order.Status.String(),
		Email:     order.Email,
		ItemCount: order.ItemCount(),
		Total:     money(order.Total),
	}
}
