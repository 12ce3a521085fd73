package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/emberandwick/storefront-backend/api/middleware"
	"github.com/emberandwick/storefront-backend/api/responses"
	"github.com/emberandwick/storefront-backend/api/validators"
	"github.com/emberandwick/storefront-backend/internal/basket"
	"github.com/emberandwick/storefront-backend/internal/pricing"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

type BasketService interface {
	Quote(ctx context.Context, sessionID string) (*basket.Quote, error)
	Add(ctx context.Context, sessionID string, productID uuid.UUID, qty int) (basket.Basket, error)
	Update(ctx context.Context, sessionID string, productID uuid.UUID, qty int) (basket.Basket, error)
	Remove(ctx context.Context, sessionID string, productID uuid.UUID) (basket.Basket, error)
}

type addBasketItemRequest struct {
	ProductID string `json:"product_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"gt=0"`
}

type updateBasketItemRequest struct {
	Quantity int `json:"quantity"`
}

type basketLineResponse struct {
	ProductID  uuid.UUID `json:"product_id"`
	Title      string    `json:"title"`
	UnitPrice  string    `json:"unit_price"`
	Quantity   int       `json:"quantity"`
	LineTotal  string    `json:"line_total"`
	Discounted bool      `json:"discounted"`
}

type pricingResponse struct {
	Items                    []basketLineResponse `json:"items"`
	ItemCount                int                  `json:"item_count"`
	Subtotal                 string               `json:"subtotal"`
	DeliveryFee              string               `json:"delivery_fee"`
	FreeDeliveryApplied      bool                 `json:"free_delivery_applied"`
	Total                    string               `json:"total"`
	RemainingForFreeDelivery *string              `json:"remaining_for_free_delivery"`
	DroppedProductIDs        []uuid.UUID          `json:"dropped_product_ids,omitempty"`
}

func newPricingResponse(snap pricing.Snapshot) pricingResponse {
	resp := pricingResponse{
		Items:               make([]basketLineResponse, 0, len(snap.LineItems)),
		ItemCount:           snap.ItemCount,
		Subtotal:            money(snap.Subtotal),
		DeliveryFee:         money(snap.DeliveryFee),
		FreeDeliveryApplied: snap.FreeDeliveryApplied,
		Total:               money(snap.FinalTotal),
		DroppedProductIDs:   snap.DroppedProductIDs,
	}
	for _, line := range snap.LineItems {
		resp.Items = append(resp.Items, basketLineResponse{
			ProductID:  line.ProductID,
			Title:      line.Title,
			UnitPrice:  money(line.UnitPrice),
			Quantity:   line.Quantity,
			LineTotal:  money(line.LineTotal),
			Discounted: line.Discounted,
		})
	}
	if snap.RemainingForFreeDelivery != nil {
		remaining := money(*snap.RemainingForFreeDelivery)
		resp.RemainingForFreeDelivery = &remaining
	}
	return resp
}

func money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// GetBasket returns the session basket priced against the live catalog.
func GetBasket(svc BasketService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}
		writeQuote(w, r, svc, logg)
	}
}

// AddBasketItem adds quantity of a product to the session basket.
func AddBasketItem(svc BasketService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}
		var payload addBasketItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		productID, err := uuid.Parse(payload.ProductID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid product id"))
			return
		}
		sessionID := middleware.BasketSessionFromContext(r.Context())
		if _, err := svc.Add(r.Context(), sessionID, productID, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeQuote(w, r, svc, logg)
	}
}

// UpdateBasketItem sets a line's quantity; zero or less removes it.
func UpdateBasketItem(svc BasketService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var payload updateBasketItemRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID := middleware.BasketSessionFromContext(r.Context())
		if _, err := svc.Update(r.Context(), sessionID, productID, payload.Quantity); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeQuote(w, r, svc, logg)
	}
}

func RemoveBasketItem(svc BasketService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "basket service unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		sessionID := middleware.BasketSessionFromContext(r.Context())
		if _, err := svc.Remove(r.Context(), sessionID, productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeQuote(w, r, svc, logg)
	}
}

func writeQuote(w http.ResponseWriter, r *http.Request, svc BasketService, logg *logger.Logger) {
	quote, err := svc.Quote(r.Context(), middleware.BasketSessionFromContext(r.Context()))
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, newPricingResponse(quote.Pricing))
}
