// Package storage reads and writes the recorded clips kept in object storage.
package storage

import "context"

// ObjectStore fetches and stores whole objects addressed by bucket and key.
// Implementations must be safe for concurrent use. A missing object is
// reported as an error wrapping os.ErrNotExist.
type ObjectStore interface {
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Put(ctx context.Context, bucket, key string, data []byte) error
	Exists(ctx context.Context, bucket, key string) (bool, error)
}
