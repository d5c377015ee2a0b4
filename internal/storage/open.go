package storage

import (
	"context"
	"fmt"

	"github.com/mehmetcc/storefront/internal/config"
	"github.com/mehmetcc/storefront/internal/database"
	"go.uber.org/zap"
)

// Open builds the durable storage selected by cfg.StorageConfig.Driver. The
// returned close func releases the underlying connection, if any. SQL drivers
// are migrated before use.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Storage, func() error, error) {
	noop := func() error { return nil }

	switch cfg.StorageConfig.Driver {
	case config.StorageMemory:
		return NewMemoryStore(), noop, nil
	case config.StorageFile:
		s, err := NewFileStore(cfg.StorageConfig.Path, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, noop, nil
	case config.StorageSQLite, config.StoragePostgres:
		db, err := database.Init(ctx, cfg.StorageConfig, cfg.DbConfig)
		if err != nil {
			return nil, nil, err
		}
		dialect := database.Dialect(cfg.StorageConfig.Driver)
		database.SetMigrationLogger(logger)
		if err := database.Migrate(ctx, db, dialect); err != nil {
			_ = db.Close()
			return nil, nil, fmt.Errorf("migrate storage: %w", err)
		}
		s, err := NewSQLStore(db, dialect, logger)
		if err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return s, db.Close, nil
	case config.StorageRedis:
		s, err := NewRedisStore(ctx, cfg.RedisConfig.URL, cfg.RedisConfig.Prefix, logger)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.StorageConfig.Driver)
	}
}
