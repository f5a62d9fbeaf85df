package storage

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// Local implements ObjectStore on the local filesystem. Buckets map to
// directories under the root.
type Local struct {
	root string
}

// NewLocal creates a Local store rooted at dir, creating it if needed.
func NewLocal(dir string) (*Local, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, err
	}
	return &Local{root: abs}, nil
}

func (l *Local) resolve(bucket, key string) string {
	return filepath.Join(l.root, bucket, filepath.FromSlash(key))
}

// Get reads the whole file.
func (l *Local) Get(_ context.Context, bucket, key string) ([]byte, error) {
	return os.ReadFile(l.resolve(bucket, key))
}

// Put writes data, creating parent directories as needed.
func (l *Local) Put(_ context.Context, bucket, key string, data []byte) error {
	full := l.resolve(bucket, key)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	return os.WriteFile(full, data, 0o644)
}

// Exists reports whether the file exists.
func (l *Local) Exists(_ context.Context, bucket, key string) (bool, error) {
	_, err := os.Stat(l.resolve(bucket, key))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

var _ ObjectStore = (*Local)(nil)
