package docstore

import (
	"context"
	"fmt"

	"github.com/javery-app/javery-backend/pkg/config"
	"github.com/javery-app/javery-backend/pkg/db"
	"github.com/javery-app/javery-backend/pkg/logger"
)

// Open builds the store selected by cfg.Store.Driver. For SQL drivers the
// underlying client is returned too so callers can run migrations; it is
// nil for Firestore. Closing the store closes the client.
func Open(ctx context.Context, cfg *config.Config, logg *logger.Logger) (Store, *db.Client, error) {
	if cfg.Store.IsSQL() {
		client, err := db.New(ctx, cfg.DB, logg)
		if err != nil {
			return nil, nil, fmt.Errorf("bootstrap database: %w", err)
		}
		store, err := NewSQL(client)
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, client, nil
	}

	store, err := NewFirestore(ctx, cfg.GCP, cfg.Firestore, logg)
	if err != nil {
		return nil, nil, err
	}
	return store, nil, nil
}
