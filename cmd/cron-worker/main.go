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

	"github.com/emberandwick/storefront-backend/internal/cron"
	"github.com/emberandwick/storefront-backend/internal/notifications"
	"github.com/emberandwick/storefront-backend/internal/orders"
	"github.com/emberandwick/storefront-backend/internal/products"
	"github.com/emberandwick/storefront-backend/pkg/config"
	"github.com/emberandwick/storefront-backend/pkg/db"
	"github.com/emberandwick/storefront-backend/pkg/env"
	"github.com/emberandwick/storefront-backend/pkg/logger"
	"github.com/emberandwick/storefront-backend/pkg/mailer"
	"github.com/emberandwick/storefront-backend/pkg/metrics"
	"github.com/emberandwick/storefront-backend/pkg/migrate"
	"github.com/emberandwick/storefront-backend/pkg/redis"
)

const (
	serviceName     = "cron-worker"
	shutdownTimeout = 5 * time.Second
)

func main() {
	boot := logger.New(logger.Options{ServiceName: serviceName})
	if err := godotenv.Load(); err != nil {
		boot.Warn(context.Background(), ".env file not found, relying on environment")
	}
	cfg, err := config.Load()
	if err != nil {
		exitOn(boot, "failed to load config", err)
	}
	cfg.Service.Kind = serviceName

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	bootCtx := context.Background()

	dbClient, err := db.New(bootCtx, cfg.DB, logg)
	if err != nil {
		exitOn(logg, "failed to bootstrap database", err)
	}
	defer closeQuietly(logg, "database", dbClient.Close)
	if err := migrate.ApplyOnBoot(bootCtx, cfg, logg, dbClient); err != nil {
		exitOn(logg, "failed to run dev migrations", err)
	}

	redisClient, err := redis.New(bootCtx, cfg.Redis, logg)
	if err != nil {
		exitOn(logg, "failed to bootstrap redis", err)
	}
	defer closeQuietly(logg, "redis", redisClient.Close)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	cronMetrics := metrics.NewCronJobMetrics(registry)
	orderMetrics := metrics.NewOrderMetrics(registry)

	// A crashed holder frees the lock by the next tick.
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceName, cfg.App.Env), cfg.Cron.Interval)
	if err != nil {
		exitOn(logg, "failed to create cron lock", err)
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

	ordersRepo := orders.NewRepository(dbClient.DB())
	finalizer, err := orders.NewFinalizer(orders.FinalizerParams{
		Tx:       dbClient,
		Orders:   ordersRepo,
		Products: products.NewRepository(dbClient.DB()),
		Notifier: dispatcher,
		Logger:   logg,
		Metrics:  orderMetrics,
	})
	if err != nil {
		exitOn(logg, "failed to create order finalizer", err)
	}

	expiryJob, err := cron.NewPendingOrderExpiryJob(cron.PendingOrderExpiryJobParams{
		Logger: logg,
		Orders: ordersRepo,
		TTL:    cfg.Checkout.PendingOrderTTL,
	})
	if err != nil {
		exitOn(logg, "failed to create pending order expiry job", err)
	}
	retryJob, err := cron.NewConfirmationRetryJob(cron.ConfirmationRetryJobParams{
		Logger: logg,
		Orders: ordersRepo,
		Sender: finalizer,
		Delay:  cfg.Checkout.EmailRetryDelay,
	})
	if err != nil {
		exitOn(logg, "failed to create confirmation retry job", err)
	}
	jobs, err := cron.NewRegistry(expiryJob, retryJob)
	if err != nil {
		exitOn(logg, "failed to register cron jobs", err)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   jobs,
		Lock:       lock,
		Metrics:    cronMetrics,
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	if err != nil {
		exitOn(logg, "failed to create cron service", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    env.InstanceID(),
		"interval":    cfg.Cron.Interval.String(),
	})

	metricsServer := &http.Server{
		Addr:              cfg.Cron.MetricsAddr,
		Handler:           metrics.Handler(registry),
		ReadHeaderTimeout: shutdownTimeout,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics listener stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shutting down gracefully")
}

func closeQuietly(logg *logger.Logger, what string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logg.Error(context.Background(), "error closing "+what, err)
	}
}

func exitOn(logg *logger.Logger, msg string, err error) {
	logg.Error(context.Background(), msg, err)
	os.Exit(1)
}
