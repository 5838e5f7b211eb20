package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/spooky-styles/orders-service/internal/clients"
	"github.com/spooky-styles/orders-service/internal/config"
	"github.com/spooky-styles/orders-service/internal/events"
	"github.com/spooky-styles/orders-service/internal/handlers"
	"github.com/spooky-styles/orders-service/internal/repository"
	"github.com/spooky-styles/orders-service/internal/server"
	"github.com/spooky-styles/orders-service/internal/service"
	"github.com/spooky-styles/orders-service/internal/webhook"

	_ "github.com/lib/pq"
)

func main() {
	cfg := config.Load()

	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()
	logger = logger.With(zap.String("service", "orders-service"))

	store, err := repository.Open(cfg.Database, logger)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer store.Close()

	if err := store.RunMigrations(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	orderCache := repository.NewRedisOrderCache(cfg.Redis, logger)

	eventPublisher := events.NewKafkaPublisher(cfg.Kafka, logger)
	defer eventPublisher.Close()

	paymentClient := clients.NewHTTPPaymentClient(cfg.Provider, logger)
	notificationClient := clients.NewHTTPNotificationClient(cfg.NotificationService, logger)

	pricer := service.NewPricer(cfg.Pricing)

	reconciler := service.NewReconciliationEngine(
		store,
		store,
		pricer,
		eventPublisher,
		notificationClient,
		logger,
	)

	paymentService := service.NewPaymentService(paymentClient, store, pricer, reconciler, logger)
	orderService := service.NewOrderService(store, orderCache, eventPublisher, logger)

	verifier := webhook.NewVerifier(cfg.Provider.WebhookSecret, cfg.Provider.SignatureTolerance)

	h := handlers.NewHandlers(paymentService, orderService, reconciler, verifier, store, logger)

	srv := server.New(h, cfg)

	go func() {
		logger.Info("server starting", zap.Int("port", cfg.Server.Port))
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exited")
}
