package migrate

import (
	"context"
	"fmt"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/logger"
)

// SchemaEnsurer creates a store schema without goose.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// MaybeRunDev prepares the SQL document store in dev when auto-migrate is
// enabled. Postgres runs the goose migrations; sqlite lets the store create
// its own table.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client, store SchemaEnsurer) error {
	if !cfg.Store.IsSQL() || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "driver": cfg.Store.Driver})

	if client.Dialect() != config.StoreDriverPostgres {
		logg.Info(ctx, "ensuring sqlite document schema")
		return store.EnsureSchema(ctx)
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	logg.Info(logg.WithField(ctx, "dir", DefaultDir), "running goose migrations (dev auto-run)")
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}
	logg.Info(ctx, "goose migrations completed")
	return nil
}
