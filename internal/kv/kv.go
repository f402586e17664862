// Package kv is the key-value persistence layer behind user preferences,
// lesson progress and the user identity.
//
// It plays the role browser localStorage plays for the web client: small
// string keys mapped to small serialised values. Four backends are provided:
// [MemoryStore] (tests, ephemeral sessions), [FileStore] (single JSON file on
// disk), [PostgresStore] and [RedisStore] (shared storage for deployments
// where several terminals serve the same learners).
package kv

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the key has no value.
var ErrNotFound = errors.New("kv: key not found")

// Store is implemented by every backend. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the value stored under key or [ErrNotFound].
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
}

// Pinger is implemented by backends that can report reachability. It is used
// for the readiness probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ping checks s when it implements [Pinger] and succeeds otherwise.
func Ping(ctx context.Context, s Store) error {
	if p, ok := s.(Pinger); ok {
		return p.Ping(ctx)
	}
	return nil
}
