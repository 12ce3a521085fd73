package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/api/responses"
	"github.com/emberandwick/storefront-backend/api/validators"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

type ProductDeleter interface {
	Delete(ctx context.Context, id uuid.UUID) error
}

// AdminDeleteProduct removes a product that no order line references.
func AdminDeleteProduct(repo ProductDeleter, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if repo == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "products repository unavailable"))
			return
		}
		productID, err := validators.ParseUUIDParam(r, "productId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := repo.Delete(r.Context(), productID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
