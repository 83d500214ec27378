package store

import (
	"context"
	"database/sql"
	"fmt"

	"frontdesk/internal/common/config"
	"frontdesk/internal/common/database"
	"frontdesk/internal/common/logger"
)

// Opened bundles the selected Store with the handles behind it.
type Opened struct {
	Store    Store
	Postgres *database.PostgresClient // nil in local mode
	Local    *sql.DB                  // nil in remote mode
}

// Open builds the Store selected by store.mode. The Postgres pool is opened
// lazily; callers ping it with their own retry policy.
func Open(ctx context.Context, cfg *config.Config, log logger.Logger) (*Opened, error) {
	o := &Opened{}

	if cfg.Store.Mode == config.StoreModeRemote || cfg.Store.Mode == config.StoreModeMirrored {
		pg, err := database.NewPostgres(cfg.Database.Postgres)
		if err != nil {
			return nil, err
		}
		o.Postgres = pg
	}

	if cfg.Store.Mode == config.StoreModeLocal || cfg.Store.Mode == config.StoreModeMirrored {
		db, err := database.OpenSQLite(ctx, cfg.Database.SQLite)
		if err != nil {
			_ = o.Close()
			return nil, fmt.Errorf("open local store: %w", err)
		}
		o.Local = db
	}

	switch cfg.Store.Mode {
	case config.StoreModeRemote:
		o.Store = NewSQLStore(o.Postgres.DB, database.DialectPostgres, "postgres")
	case config.StoreModeLocal:
		o.Store = NewSQLStore(o.Local, database.DialectSQLite, "sqlite")
	case config.StoreModeMirrored:
		o.Store = NewMirroredStore(
			NewSQLStore(o.Postgres.DB, database.DialectPostgres, "postgres"),
			NewSQLStore(o.Local, database.DialectSQLite, "sqlite"),
			log,
		)
	default:
		_ = o.Close()
		return nil, fmt.Errorf("unknown store mode %q", cfg.Store.Mode)
	}
	return o, nil
}

func (o *Opened) Close() error {
	var firstErr error
	if o.Postgres != nil {
		if err := o.Postgres.Close(); err != nil {
			firstErr = err
		}
	}
	if o.Local != nil {
		if err := o.Local.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
