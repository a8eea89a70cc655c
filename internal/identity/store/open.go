package store

import (
	"context"
	"database/sql"
	"fmt"

	"walletid/internal/identity/ports"
	"walletid/internal/platform/config"
	"walletid/internal/platform/database"
)

// Open connects the backend named by cfg.Driver and makes sure its schema
// exists. The returned *sql.DB is nil for the in-memory store; callers close
// it on shutdown.
func Open(ctx context.Context, cfg config.StoreConfig) (ports.Store, *sql.DB, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := database.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		s := NewPostgresStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db, nil
	case config.DriverSQLite:
		db, err := database.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		s := NewSQLiteStore(db)
		if err := s.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db, nil
	case config.DriverMemory, "":
		return NewInMemoryStore(), nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
