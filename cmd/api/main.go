package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/emberandwick/storefront-backend/api/routes"
	"github.com/emberandwick/storefront-backend/internal/basket"
	"github.com/emberandwick/storefront-backend/internal/checkout"
	"github.com/emberandwick/storefront-backend/internal/notifications"
	"github.com/emberandwick/storefront-backend/internal/orders"
	"github.com/emberandwick/storefront-backend/internal/pricing"
	"github.com/emberandwick/storefront-backend/internal/products"
	stripewebhook "github.com/emberandwick/storefront-backend/internal/webhooks/stripe"
	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/db"
	"github.com/emberandwick/storefront-backend/pkg/env"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/mailer"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
	"github.com/emberandwick/storefront-backend/pkg/migrate"
	"github.com/emberandwick/storefront-backend/pkg/redis"
	pkgstripe "github.com/emberandwick/storefront-backend/pkg/stripe"
)

const (
	shutdownTimeout   = 15 * time.Second
	readHeaderTimeout = 10 * time.Second
	webhookGuardScope = "stripe-webhook"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.ApplyOnBoot(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	ordersRepo := orders.NewRepository(dbClient.DB())
	productsRepo := products.NewRepository(dbClient.DB())

	fallbackPricing, err := pricing.SettingsFromConfig(cfg.Pricing)
	if err != nil {
		exitOn(logg, "invalid pricing config", err)
	}
	pricingEngine, err := pricing.NewEngine(productsRepo, products.NewPricingSettingsRepository(dbClient.DB()), fallbackPricing)
	if err != nil {
		exitOn(logg, "failed to create pricing engine", err)
	}

	basketStore, err := basket.NewRedisStore(redisClient, cfg.Checkout.BasketTTL)
	if err != nil {
		exitOn(logg, "failed to create basket store", err)
	}
	basketService, err := basket.NewService(basket.ServiceParams{
		Store:    basketStore,
		Products: productsRepo,
		Pricing:  pricingEngine,
	})
	if err != nil {
		exitOn(logg, "failed to create basket service", err)
	}

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		exitOn(logg, "failed to create stripe client", err)
	}

	sender, err := mailer.New(cfg.Mail, logg)
	if err != nil {
		exitOn(logg, "failed to create mail sender", err)
	}
	dispatcher, err := notifications.NewDispatcher(sender, notifications.Config{
		StoreName:       cfg.App.StoreName,
		SiteURL:         cfg.App.SiteURL,
		AdminRecipients: cfg.Mail.AdminRecipients,
	}, logg)
	if err != nil {
		exitOn(logg, "failed to create notification dispatcher", err)
	}

	finalizer, err := orders.NewFinalizer(orders.FinalizerParams{
		Tx:       dbClient,
		Orders:   ordersRepo,
		Products: productsRepo,
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  orderMetrics,
	})
	if err != nil {
		exitOn(logg, "failed to create order finalizer", err)
	}
	adminOrders, err := orders.NewAdminService(orders.AdminParams{
		Orders:    ordersRepo,
		Finalizer: finalizer,
		Notifier:  dispatcher,
		Logger:    logg,
		Metrics:   orderMetrics,
	})
	if err != nil {
		exitOn(logg, "failed to create admin order service", err)
	}

	checkoutService, err := checkout.NewService(checkout.ServiceParams{
		Tx:          dbClient,
		Orders:      ordersRepo,
		Products:    productsRepo,
		Pricing:     pricingEngine,
		Gateway:     stripeClient,
		Baskets:     basketStore,
		Logger:      logg,
		Metrics:     orderMetrics,
		SiteURL:     cfg.App.SiteURL,
		SuccessPath: cfg.Checkout.SuccessPath,
		CancelPath:  cfg.Checkout.CancelPath,
	})
	if err != nil {
		exitOn(logg, "failed to create checkout service", err)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Finalizer: finalizer,
		Orders:    ordersRepo,
		Baskets:   basketStore,
		Logger:    logg,
	})
	if err != nil {
		exitOn(logg, "failed to create stripe webhook service", err)
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Checkout.WebhookIdempotencyTTL, webhookGuardScope)
	if err != nil {
		exitOn(logg, "failed to create stripe webhook guard", err)
	}

	addr := ":" + env.Get("PORT", cfg.App.Port)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": env.InstanceID(),
		"stripe":   stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: readHeaderTimeout,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			redisClient,
			metrics.Handler(registry),
			orderMetrics,
			basketService,
			checkoutService,
			adminOrders,
			productsRepo,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "graceful shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down")
	}
}

func exitOn(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
