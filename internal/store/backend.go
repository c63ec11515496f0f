package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by backends for missing or expired keys. It never
// leaves this package: Store reports misses as a false return.
var ErrNotFound = errors.New("store: key not found")

// Backend is a TTL-aware byte store. Keys are "<kind>:<key>"; backends may add
// their own namespace prefix.
type Backend interface {
	Name() string
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Get(ctx context.Context, key string) ([]byte, error)
	// Keys lists live keys starting with prefix, sorted.
	Keys(ctx context.Context, prefix string) ([]string, error)
	// Del removes key and returns ErrNotFound if it was absent.
	Del(ctx context.Context, key string) error
	Ping(ctx context.Context) error
	Close() error
}
