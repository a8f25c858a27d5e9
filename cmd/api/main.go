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

	"github.com/javery-app/javery-backend/api/routes"
	"github.com/javery-app/javery-backend/internal/address"
	"github.com/javery-app/javery-backend/internal/cart"
	"github.com/javery-app/javery-backend/internal/orders"
	"github.com/javery-app/javery-backend/internal/products"
	"github.com/javery-app/javery-backend/internal/sellers"
	"github.com/javery-app/javery-backend/internal/users"
	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/docstore"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/metrics"
	"github.com/javery-app/javery-backend/pkg/migrate"
	"github.com/javery-app/javery-backend/pkg/outbox"
	"github.com/javery-app/javery-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

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

	logg = logger.New(logger.OptionsFor("api", cfg.App))

	store, sqlClient, err := docstore.Open(context.Background(), cfg, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap document store", err)
		os.Exit(1)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logg.Error(context.Background(), "error closing document store", err)
		}
	}()

	if sqlClient != nil {
		if err := migrate.MaybeRunDev(context.Background(), cfg, logg, sqlClient, store.(migrate.SchemaEnsurer)); err != nil {
			logg.Error(context.Background(), "failed to run dev migrations", err)
			os.Exit(1)
		}
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

	orderService, err := orders.NewService(store, outbox.NewService(logg), logg,
		orders.WithDeliveryTimeout(cfg.Orders.DeliveryTimeout),
		orders.WithMetrics(metrics.NewOrderMetrics(prometheus.DefaultRegisterer)),
	)
	requireService(logg, "orders", err)
	cartService, err := cart.NewService(store)
	requireService(logg, "cart", err)
	addressService, err := address.NewService(store, logg)
	requireService(logg, "address", err)
	sellerService, err := sellers.NewService(store)
	requireService(logg, "sellers", err)
	productService, err := products.NewService(store)
	requireService(logg, "products", err)
	userRepo, err := users.NewRepository(store, logg)
	requireService(logg, "users", err)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"addr":   addr,
		"driver": cfg.Store.Driver,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:    cfg,
			Logger:    logg,
			Store:     store,
			Redis:     redisClient,
			Orders:    orderService,
			Cart:      cartService,
			Addresses: addressService,
			Sellers:   sellerService,
			Products:  productService,
			Users:     userRepo,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
		logg.Info(ctx, "api server shut down gracefully")
	}
}

func requireService(logg *logger.Logger, name string, err error) {
	if err == nil {
		return
	}
	logg.Error(context.Background(), "failed to create "+name+" service", err)
	os.Exit(1)
}
