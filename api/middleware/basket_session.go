package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/emberandwick/storefront-backend/pkg/logger"
)

// BasketCookieName names the cookie carrying the anonymous basket session.
const BasketCookieName = "sf_basket"

// BasketSession makes sure every shopper request carries a basket session id,
// issuing a new cookie when the browser has none or sends a malformed one.
func BasketSession(ttl time.Duration, secure bool, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := ""
			if cookie, err := r.Cookie(BasketCookieName); err == nil {
				if parsed, parseErr := uuid.Parse(strings.TrimSpace(cookie.Value)); parseErr == nil {
					sessionID = parsed.String()
				}
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			http.SetCookie(w, &http.Cookie{
				Name:     BasketCookieName,
				Value:    sessionID,
				Path:     "/",
				MaxAge:   int(ttl.Seconds()),
				HttpOnly: true,
				Secure:   secure,
				SameSite: http.SameSiteLaxMode,
			})

			ctx := WithBasketSession(r.Context(), sessionID)
			if logg != nil {
				ctx = logg.WithField(ctx, "basket_session", sessionID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
