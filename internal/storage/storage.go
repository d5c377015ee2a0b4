package storage

import (
	"context"
	"errors"
)

// Keys used by the storefront client in durable storage.
const (
	KeyAccessToken  = "accessToken"
	KeyRefreshToken = "refreshToken"
	KeyLanguage     = "language"
	KeyCart         = "cart"
	KeyDeviceID     = "deviceId"
	KeyReturnURL    = "returnUrl"
)

var (
	ErrNotMigrated   = errors.New("storage table does not exist, run migrations")
	ErrUnknownDriver = errors.New("unknown storage driver")
	ErrEmptyKey      = errors.New("storage key must not be empty")
)

// Storage is a string key-value store that survives restarts (or, for the
// memory implementation, the lifetime of the process).
//
// SetAll and Remove apply all of their keys or none of them.
type Storage interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
	SetAll(ctx context.Context, values map[string]string) error
	Remove(ctx context.Context, keys ...string) error
	Clear(ctx context.Context) error
}

func validateKeys[T any](values map[string]T) error {
	for k := range values {
		if k == "" {
			return ErrEmptyKey
		}
	}
	return nil
}
