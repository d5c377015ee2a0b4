package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite3"
)

type sqlQueries struct {
	get    string
	upsert string
	delete string
	clear  string
}

var dialectQueries = map[string]sqlQueries{
	DialectPostgres: {
		get: `
						SELECT storage_value FROM client_storage WHERE storage_key = $1
						`,
		upsert: `
						INSERT INTO client_storage (storage_key, storage_value, updated_at)
						VALUES ($1, $2, CURRENT_TIMESTAMP)
						ON CONFLICT (storage_key) DO UPDATE
						SET storage_value = EXCLUDED.storage_value, updated_at = CURRENT_TIMESTAMP
						`,
		delete: `
						DELETE FROM client_storage WHERE storage_key = $1
						`,
		clear: `
						DELETE FROM client_storage
						`,
	},
	DialectSQLite: {
		get: `
						SELECT storage_value FROM client_storage WHERE storage_key = ?
						`,
		upsert: `
						INSERT INTO client_storage (storage_key, storage_value, updated_at)
						VALUES (?, ?, CURRENT_TIMESTAMP)
						ON CONFLICT (storage_key) DO UPDATE
						SET storage_value = excluded.storage_value, updated_at = CURRENT_TIMESTAMP
						`,
		delete: `
						DELETE FROM client_storage WHERE storage_key = ?
						`,
		clear: `
						DELETE FROM client_storage
						`,
	},
}

// SQLStore persists keys in the client_storage table created by the embedded
// migrations. It serves both the postgres and the sqlite drivers.
type SQLStore struct {
	db      *sql.DB
	dialect string
	q       sqlQueries
	logger  *zap.Logger
}

func NewSQLStore(db *sql.DB, dialect string, logger *zap.Logger) (*SQLStore, error) {
	q, ok := dialectQueries[dialect]
	if !ok {
		return nil, fmt.Errorf("%w: sql dialect %q", ErrUnknownDriver, dialect)
	}
	return &SQLStore{db: db, dialect: dialect, q: q, logger: logger}, nil
}

func (s *SQLStore) Get(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, s.q.get, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, s.classify("get", err)
	}
	return v, true, nil
}

func (s *SQLStore) Set(ctx context.Context, key, value string) error {
	return s.SetAll(ctx, map[string]string{key: value})
}

func (s *SQLStore) SetAll(ctx context.Context, values map[string]string) error {
	if err := validateKeys(values); err != nil {
		return err
	}
	return s.inTx(ctx, "set", func(tx *sql.Tx) error {
		for k, v := range values {
			if _, err := tx.ExecContext(ctx, s.q.upsert, k, v); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Remove(ctx context.Context, keys ...string) error {
	return s.inTx(ctx, "remove", func(tx *sql.Tx) error {
		for _, k := range keys {
			if _, err := tx.ExecContext(ctx, s.q.delete, k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *SQLStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.q.clear); err != nil {
		return s.classify("clear", err)
	}
	return nil
}

func (s *SQLStore) inTx(ctx context.Context, op string, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(op, err)
	}
	defer func() {
		_ = tx.Rollback()
	}()
	if err := fn(tx); err != nil {
		return s.classify(op, err)
	}
	if err := tx.Commit(); err != nil {
		return s.classify(op, err)
	}
	return nil
}

func (s *SQLStore) classify(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.logger.Warn("storage operation canceled/timed out", zap.String("op", op), zap.Error(err))
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == pgerrcode.UndefinedTable {
			return fmt.Errorf("%w: %s", ErrNotMigrated, pgErr.Message)
		}
		s.logger.Error("postgres error",
			zap.String("op", op),
			zap.String("code", pgErr.Code),
			zap.String("msg", pgErr.Message),
			zap.String("detail", pgErr.Detail),
		)
		return err
	}

	// sqlite reports a missing table only through its message
	if strings.Contains(strings.ToLower(err.Error()), "no such table") {
		return fmt.Errorf("%w: %v", ErrNotMigrated, err)
	}

	s.logger.Error("storage driver error", zap.String("op", op), zap.String("dialect", s.dialect), zap.Error(err))
	return err
}
