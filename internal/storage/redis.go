package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore namespaces every key under "<prefix>:".
type RedisStore struct {
	rdb    *redis.Client
	prefix string
	logger *zap.Logger
}

func NewRedisStore(ctx context.Context, redisURL, prefix string, logger *zap.Logger) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	opts.MaxRetries = 3
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 2 * time.Second
	opts.WriteTimeout = 2 * time.Second
	opts.PoolSize = 10

	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return &RedisStore{rdb: rdb, prefix: prefix, logger: logger}, nil
}

func (r *RedisStore) key(k string) string {
	return r.prefix + ":" + k
}

func (r *RedisStore) Get(ctx context.Context, key string) (string, bool, error) {
	v, err := r.rdb.Get(ctx, r.key(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		r.logger.Warn("redis_get", zap.String("key", key), zap.Error(err))
		return "", false, err
	}
	return v, true, nil
}

func (r *RedisStore) Set(ctx context.Context, key, value string) error {
	return r.SetAll(ctx, map[string]string{key: value})
}

func (r *RedisStore) SetAll(ctx context.Context, values map[string]string) error {
	if err := validateKeys(values); err != nil {
		return err
	}
	pairs := make([]any, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, r.key(k), v)
	}
	if err := r.rdb.MSet(ctx, pairs...).Err(); err != nil {
		r.logger.Warn("redis_mset", zap.Int("keys", len(values)), zap.Error(err))
		return err
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = r.key(k)
	}
	if err := r.rdb.Del(ctx, full...).Err(); err != nil {
		r.logger.Warn("redis_del", zap.Strings("keys", keys), zap.Error(err))
		return err
	}
	return nil
}

func (r *RedisStore) Clear(ctx context.Context) error {
	iter := r.rdb.Scan(ctx, 0, r.prefix+":*", 100).Iterator()
	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return err
	}
	if len(batch) == 0 {
		return nil
	}
	return r.rdb.Del(ctx, batch...).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}
