package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/javery-app/javery-backend/internal/notifications"
	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/logger"
	"github.com/javery-app/javery-backend/pkg/metrics"
)

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Config               *config.Config
	Logger               *logger.Logger
	Store                pinger
	Redis                pinger
	PubSub               pinger
	NotificationConsumer *notifications.Consumer
}

// Service runs the notification consumer next to the metrics endpoint.
type Service struct {
	cfg                  *config.Config
	logg                 *logger.Logger
	deps                 map[string]pinger
	notificationConsumer *notifications.Consumer
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Store == nil {
		return nil, errors.New("document store is required")
	}
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.PubSub == nil {
		return nil, errors.New("pubsub client is required")
	}
	if params.NotificationConsumer == nil {
		return nil, errors.New("notification consumer is required")
	}
	return &Service{
		cfg:  params.Config,
		logg: params.Logger,
		deps: map[string]pinger{
			"store":  params.Store,
			"redis":  params.Redis,
			"pubsub": params.PubSub,
		},
		notificationConsumer: params.NotificationConsumer,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	for _, name := range []string{"store", "redis", "pubsub"} {
		if err := s.deps[name].Ping(ctx); err != nil {
			s.logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
			return fmt.Errorf("%s ping failed: %w", name, err)
		}
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	go func() {
		errCh <- s.notificationConsumer.Run(ctx)
	}()
	go func() {
		if err := metrics.Serve(ctx, s.cfg.Metrics.Addr, nil, s.logg); err != nil {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logg.Info(ctx, "worker context canceled")
		return ctx.Err()
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			s.logg.Error(ctx, "worker component stopped unexpectedly", err)
		}
		return err
	}
}
