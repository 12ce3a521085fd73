package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const corsMaxAgeSeconds = 300

// CORS lets the storefront frontends call the API with the basket cookie and
// read the correlation and replay headers.
func CORS(origins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", IdempotencyKeyHeader, requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader, IdempotentReplayHeader, "Retry-After"},
		AllowCredentials: true,
		MaxAge:           corsMaxAgeSeconds,
	}).Handler
}
