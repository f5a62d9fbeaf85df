package clip

import (
	"bytes"
	"context"
	"errors"

	"ai-media-hub-service/internal/cache"
	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
)

// CachedClip serves a cacheable clip from a cache.Store and writes the output
// of successful runs back to it.
type CachedClip struct {
	Task
	store   cache.Store
	metrics *metrics.Metrics
}

// WithCache wraps task with store. Tasks without a cache key, and a nil
// store, return task unchanged.
func WithCache(task Task, store cache.Store) Task {
	if store == nil {
		return task
	}
	if _, ok := task.Key(); !ok {
		return task
	}
	return &CachedClip{Task: task, store: store, metrics: metrics.DefaultMetrics}
}

// Run implements Task.
func (c *CachedClip) Run(ctx context.Context, onChunk ChunkFunc) error {
	key, _ := c.Task.Key()
	logger := logging.WithClip(string(c.Task.Kind()), key)

	data, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.metrics.RecordCacheLookup(true)
		logger.Debug().Int("bytes", len(data)).Msg("Serving clip from cache")
		onChunk(data)
		return nil
	case !errors.Is(err, cache.ErrNotFound):
		logger.Warn().Err(err).Msg("Cache lookup failed")
	}
	c.metrics.RecordCacheLookup(false)

	var all bytes.Buffer
	err = c.Task.Run(ctx, func(chunk []byte) {
		all.Write(chunk)
		onChunk(chunk)
	})
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, key, all.Bytes()); err != nil {
		logger.Warn().Err(err).Msg("Failed to store clip in cache")
	}
	return nil
}
