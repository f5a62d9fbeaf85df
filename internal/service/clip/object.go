package clip

import (
	"context"
	"fmt"
	"time"

	"ai-media-hub-service/internal/observability/metrics"
	"ai-media-hub-service/internal/storage"
)

// ObjectClip plays a recording kept in object storage. The whole object is
// fetched, decoded and emitted as one PCM chunk.
type ObjectClip struct {
	Bucket  string
	Object  string
	store   storage.ObjectStore
	extract ExtractFunc
	metrics *metrics.Metrics
}

// NewObjectClip creates a clip for bucket/object. A nil extract uses
// ExtractPCM.
func NewObjectClip(bucket, object string, store storage.ObjectStore, extract ExtractFunc) *ObjectClip {
	if extract == nil {
		extract = ExtractPCM
	}
	return &ObjectClip{
		Bucket:  bucket,
		Object:  object,
		store:   store,
		extract: extract,
		metrics: metrics.DefaultMetrics,
	}
}

// ParseObjectClip parses "{bucket=<b>}<object key>".
func ParseObjectClip(path string, store storage.ObjectStore, extract ExtractFunc) (*ObjectClip, error) {
	vars, err := ParseVars(path)
	if err != nil {
		return nil, err
	}
	bucket, ok := vars.Get("bucket")
	if !ok || bucket == "" {
		return nil, fmt.Errorf("%w: bucket missing in %q", ErrMissingVars, path)
	}
	return NewObjectClip(bucket, vars.Suffix, store, extract), nil
}

// Kind implements Task.
func (c *ObjectClip) Kind() Kind { return KindObject }

// Key implements Task. Stored recordings are not cached.
func (c *ObjectClip) Key() (string, bool) { return "", false }

// Run fetches and decodes the object.
func (c *ObjectClip) Run(ctx context.Context, onChunk ChunkFunc) (err error) {
	start := time.Now()
	var size int
	defer func() { observe(c.metrics, KindObject, start, size, err) }()

	data, err := c.store.Get(ctx, c.Bucket, c.Object)
	if err != nil {
		return err
	}
	pcm, err := c.extract(data)
	if err != nil {
		return fmt.Errorf("extract pcm from %s/%s: %w", c.Bucket, c.Object, err)
	}
	size = len(pcm)
	onChunk(pcm)
	return nil
}
