package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/javery-app/javery-backend/internal/notifications"
	"github.com/javery-app/javery-backend/internal/users"
	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/metrics"
	"github.com/javery-app/javery-backend/pkg/outbox/idempotency"
	"github.com/javery-app/javery-backend/pkg/outbox/registry"
	"github.com/javery-app/javery-backend/pkg/pubsub"
	"github.com/javery-app/javery-backend/pkg/push"
	"github.com/javery-app/javery-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = "worker"

	logg = logger.New(logger.OptionsFor("worker", cfg.App))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})

	store, _, err := docstore.Open(ctx, cfg, logg)
	requireResource(ctx, logg, "document store", err)
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing document store", err)
		}
	}()

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	defer func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing pubsub", err)
		}
	}()

	eventRegistry, err := registry.NewEventRegistry(cfg.PubSub)
	requireResource(ctx, logg, "event registry", err)
	tracker, err := idempotency.NewManager(redisClient, cfg.Eventing.IdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)
	userRepo, err := users.NewRepository(store, logg)
	requireResource(ctx, logg, "users repository", err)

	dispatcher, err := notifications.NewDispatcher(
		userRepo,
		push.NewClient(cfg.Push),
		logg,
		metrics.NewNotificationMetrics(prometheus.DefaultRegisterer),
	)
	requireResource(ctx, logg, "notification dispatcher", err)
	handlers := registry.NewHandlers()
	dispatcher.Register(handlers)

	consumer, err := notifications.NewConsumer(pubsubClient.NotificationSubscription(), eventRegistry, handlers, tracker, logg)
	requireResource(ctx, logg, "notification consumer", err)

	service, err := NewService(ServiceParams{
		Config:               cfg,
		Logger:               logg,
		Store:                store,
		Redis:                redisClient,
		PubSub:               pubsubClient,
		NotificationConsumer: consumer,
	})
	requireResource(ctx, logg, "worker service", err)

	logg.Info(ctx, "starting worker")
	go func() {
		if err := metrics.Serve(ctx, cfg.Metrics.Addr, prometheus.DefaultGatherer, logg); err != nil {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}
	logg.Info(ctx, "worker shutting down gracefully")
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to bootstrap "+resource, err)
	os.Exit(1)
}
