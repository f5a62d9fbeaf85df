// Package cache stores synthesized clip audio keyed by the clip cache key so
// identical synthesis requests are served without a backend round trip.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get for an unknown key.
var ErrNotFound = errors.New("cache: key not found")

// Store is a byte cache. Implementations must be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Close() error
}
