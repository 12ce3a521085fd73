package middleware

import (
	"net/http"
	"slices"

	"github.com/emberandwick/storefront-backend/api/responses"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	pkgerrors "github.com/emberandwick/storefront-backend/pkg/errors"
	"github.com/emberandwick/storefront-backend/pkg/logger"
)

// RequireRole admits only operators holding one of the allowed roles. It must
// run after Auth.
func RequireRole(logg *logger.Logger, allowed ...enums.OperatorRole) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			op, ok := OperatorFromContext(r.Context())
			switch {
			case !ok:
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "operator context missing"))
			case !slices.Contains(allowed, op.Role):
				responses.WriteError(r.Context(), logg, w,
					pkgerrors.Newf(pkgerrors.CodeForbidden, "role %q may not perform this action", op.Role))
			default:
				next.ServeHTTP(w, r)
			}
		})
	}
}
