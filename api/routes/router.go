package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/emberandwick/storefront-backend/api/controllers"
	webhookcontrollers "github.com/emberandwick/storefront-backend/api/controllers/webhooks"
	"github.com/emberandwick/storefront-backend/api/middleware"
	checkoutsvc "github.com/emberandwick/storefront-backend/internal/checkout"
	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/enums"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
)

// basketAPI is the basket service as both the basket and checkout handlers see it.
type basketAPI interface {
	controllers.BasketService
	controllers.BasketReader
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisP controllers.Pinger,
	idempotencyStore middleware.IdempotencyStore,
	metricsHandler http.Handler,
	orderMetrics *metrics.OrderMetrics,
	basketService basketAPI,
	checkoutService checkoutsvc.Service,
	adminOrders controllers.AdminOrderService,
	productsRepo controllers.ProductDeleter,
	stripeVerifier webhookcontrollers.NotificationVerifier,
	stripeWebhookService webhookcontrollers.StripeWebhookService,
	stripeWebhookGuard webhookcontrollers.WebhookGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.App.CORSOrigins),
	)

	idempotency := middleware.Idempotency(idempotencyStore, cfg.Checkout.IdempotencyTTL, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, map[string]controllers.Pinger{"db": dbP, "redis": redisP}, logg))
	})
	if metricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", metricsHandler)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/webhooks/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeVerifier, stripeWebhookGuard, orderMetrics, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.BasketSession(cfg.Checkout.BasketTTL, cfg.App.IsProd(), logg))

			r.Route("/basket", func(r chi.Router) {
				r.Get("/", controllers.GetBasket(basketService, logg))
				r.Post("/items", controllers.AddBasketItem(basketService, logg))
				r.Put("/items/{productId}", controllers.UpdateBasketItem(basketService, logg))
				r.Delete("/items/{productId}", controllers.RemoveBasketItem(basketService, logg))
			})
			r.With(idempotency).Post("/checkout", controllers.Checkout(checkoutService, basketService, logg))
			r.Get("/checkout/status", controllers.CheckoutStatus(checkoutService, logg))
		})
	})

	r.Route("/api/admin/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.OperatorRoleAdmin, enums.OperatorRoleViewer))
			r.Get("/orders/{orderId}", controllers.AdminOrderDetail(adminOrders, logg))
		})

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.OperatorRoleAdmin))
			r.Use(idempotency)
			r.Post("/orders/bulk", controllers.AdminBulkOrders(adminOrders, logg))
			r.Post("/orders/{orderId}/shipment", controllers.AdminUpsertShipment(adminOrders, logg))
			r.Post("/orders/{orderId}/{action}", controllers.AdminOrderAction(adminOrders, logg))
			r.Delete("/products/{productId}", controllers.AdminDeleteProduct(productsRepo, logg))
		})
	})

	return r
}
