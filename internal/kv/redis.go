package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

var _ Store = (*RedisStore)(nil)

// RedisStore is a [Store] backed by Redis string keys, optionally under a
// common key prefix.
type RedisStore struct {
	rdb    goredis.UniversalClient
	prefix string
}

// RedisOption configures a [RedisStore].
type RedisOption func(*RedisStore)

// WithKeyPrefix namespaces every key, e.g. "orbit:".
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) {
		s.prefix = prefix
	}
}

// NewRedisStore wraps an existing client.
func NewRedisStore(rdb goredis.UniversalClient, opts ...RedisOption) *RedisStore {
	s := &RedisStore{rdb: rdb}
	for _, o := range opts {
		o(s)
	}
	return s
}

// DialRedis connects to addr, verifies the connection with PING and returns
// a [RedisStore].
func DialRedis(ctx context.Context, addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		Password:    password,
		DB:          db,
		DialTimeout: 5 * time.Second,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("kv: redis ping: %w", err)
	}
	return NewRedisStore(rdb, opts...), nil
}

// Get implements [Store].
func (s *RedisStore) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := s.rdb.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("kv: redis get %q: %w", key, err)
	}
	return v, nil
}

// Set implements [Store].
func (s *RedisStore) Set(ctx context.Context, key string, value []byte) error {
	if err := s.rdb.Set(ctx, s.prefix+key, value, 0).Err(); err != nil {
		return fmt.Errorf("kv: redis set %q: %w", key, err)
	}
	return nil
}

// Delete implements [Store].
func (s *RedisStore) Delete(ctx context.Context, key string) error {
	if err := s.rdb.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("kv: redis del %q: %w", key, err)
	}
	return nil
}

// Ping implements [Pinger].
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

// Close closes the underlying client.
func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
