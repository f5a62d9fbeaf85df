package clip

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
	"ai-media-hub-service/internal/service/synth"
)

// ErrAlreadyRun is returned when a composite is run a second time.
var ErrAlreadyRun = errors.New("composite clip already ran")

// Descriptor is one element of a composite descriptor list. A present bucket
// selects the object storage path regardless of the type tag.
type Descriptor struct {
	Type   *string `json:"t,omitempty"`
	Bucket *string `json:"b,omitempty"`
	Object *string `json:"p,omitempty"`
	Voice  *string `json:"v,omitempty"`
	Text   *string `json:"x,omitempty"`
}

func (d Descriptor) String() string {
	deref := func(s *string) string {
		if s == nil {
			return "<nil>"
		}
		return *s
	}
	return fmt.Sprintf("{t:%s b:%s p:%s v:%s}", deref(d.Type), deref(d.Bucket), deref(d.Object), deref(d.Voice))
}

// ParseDescriptors extracts the JSON array between the first '[' and the
// following ']' of path.
func ParseDescriptors(path string) ([]Descriptor, error) {
	left := strings.IndexByte(path, '[')
	if left == -1 {
		return nil, fmt.Errorf("%w: %q", ErrMissingVars, path)
	}
	right := strings.IndexByte(path[left:], ']')
	if right == -1 {
		return nil, fmt.Errorf("%w: %q", ErrMissingVars, path)
	}
	var descs []Descriptor
	if err := json.Unmarshal([]byte(path[left:left+right+1]), &descs); err != nil {
		return nil, fmt.Errorf("parse composite descriptors: %w", err)
	}
	return descs, nil
}

// Composite concatenates its clips behind one streaming WAV header. Clips
// run strictly one after another. A failed clip is skipped and the next one
// starts; cancelling ctx aborts the run.
type Composite struct {
	descs   []Descriptor
	factory *Factory
	metrics *metrics.Metrics
	ran     atomic.Bool
}

// Descriptors returns the parsed descriptor list.
func (c *Composite) Descriptors() []Descriptor {
	return append([]Descriptor(nil), c.descs...)
}

// Kind implements Task.
func (c *Composite) Kind() Kind { return KindComposite }

// Key implements Task. Composites are not cached as a whole.
func (c *Composite) Key() (string, bool) { return "", false }

// Run implements Task. It can be called once.
func (c *Composite) Run(ctx context.Context, onChunk ChunkFunc) error {
	if !c.ran.CompareAndSwap(false, true) {
		return ErrAlreadyRun
	}
	logger := logging.WithComponent("composite")
	start := time.Now()

	onChunk(StreamingHeader())

	var played, skipped, failed int
	for i, d := range c.descs {
		if err := ctx.Err(); err != nil {
			c.metrics.RecordComposite("aborted")
			return err
		}
		task, ok := c.factory.forDescriptor(d)
		if !ok {
			logger.Info().Int("index", i).Stringer("descriptor", d).Msg("Unsupported clip descriptor, skipping")
			skipped++
			continue
		}
		if err := task.Run(ctx, onChunk); err != nil {
			if ctx.Err() != nil {
				c.metrics.RecordComposite("aborted")
				return ctx.Err()
			}
			failed++
			logger.Warn().Err(err).Int("index", i).Stringer("descriptor", d).Msg("Clip failed, continuing with next")
			logging.Capture(err, map[string]string{"component": "composite", "clipKind": string(task.Kind())})
			continue
		}
		played++
	}

	c.metrics.RecordComposite("success")
	logger.Info().
		Int("played", played).
		Int("skipped", skipped).
		Int("failed", failed).
		Dur("elapsed", time.Since(start)).
		Msg("Composite complete")
	return nil
}

// compositeCosy lowers the volume of voice-clone clips inside a composite.
func compositeCosy(p *synth.Params) {
	v := CompositeCosyVolume
	p.Volume = &v
}
