package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/mehmetcc/storefront/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Init opens the database behind the configured SQL storage driver and checks
// that it is reachable.
func Init(ctx context.Context, storage *config.StorageConfig, db *config.DbConfig) (*sql.DB, error) {
	var driver, dsn string
	switch storage.Driver {
	case config.StoragePostgres:
		if db.DSN == "" {
			return nil, fmt.Errorf("POSTGRES_DSN is not set")
		}
		driver, dsn = "pgx", db.DSN
	case config.StorageSQLite:
		driver, dsn = "sqlite", storage.Path
	default:
		return nil, fmt.Errorf("storage driver %q is not backed by a database", storage.Driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, err
	}
	conn.SetMaxOpenConns(db.MaxOpenConns)
	conn.SetMaxIdleConns(db.MaxIdleConns)
	conn.SetConnMaxLifetime(db.MaxConnLifetime)
	if storage.Driver == config.StorageSQLite {
		// sqlite serializes writers, a single connection avoids SQLITE_BUSY
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return conn, nil
}

// Dialect returns the goose/storage dialect for a storage driver.
func Dialect(driver string) string {
	if driver == config.StorageSQLite {
		return "sqlite3"
	}
	return "postgres"
}
