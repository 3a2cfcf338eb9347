// Package kv defines the durable key/value contract behind the warm cache
// tier and session durability: get/put/delete plus prefix scan, with
// store-side expiry cleanup.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by Get when no row exists for the key.
var ErrNotFound = errors.New("kv: key not found")

// Store is the durable key/value contract. Implementations must be safe for
// concurrent use. ExpiresAt is advisory: Get still returns expired rows (the
// cache decides whether a stale value is servable) and DeleteExpired reclaims
// them.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte, expiresAt time.Time) error
	Delete(ctx context.Context, key string) error
	Scan(ctx context.Context, prefix string, fn func(key string, value []byte) error) error
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
	Close() error
}
