// Package clip produces the audio segments of a response: stored recordings,
// synthesized speech, voice-clone speech and composites of those.
//
// A Task produces a finite, non-restartable sequence of PCM chunks. Run
// delivers every chunk to onChunk in order and returns once the task is
// finished; a nil error means success. DoneFunc adapts that to callers that
// want a single completion callback.
package clip

import (
	"context"
	"time"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
	"ai-media-hub-service/internal/stream"
)

// Kind names a clip variant.
type Kind string

const (
	KindObject    Kind = "object"
	KindTTS       Kind = "tts"
	KindCosy      Kind = "cosy"
	KindComposite Kind = "composite"
)

// ChunkFunc receives audio in production order.
type ChunkFunc func(chunk []byte)

// DoneFunc receives the outcome of a task exactly once.
type DoneFunc func(ok bool)

// Task is one clip.
type Task interface {
	// Kind returns the clip variant.
	Kind() Kind

	// Key returns the cache key of the clip. Clips that must not be cached
	// report false.
	Key() (string, bool)

	// Run produces the clip. It blocks until every chunk was delivered.
	Run(ctx context.Context, onChunk ChunkFunc) error
}

// Start runs task on a new goroutine and calls onDone exactly once after the
// last chunk was delivered.
func Start(ctx context.Context, task Task, onChunk ChunkFunc, onDone DoneFunc) {
	go func() {
		err := task.Run(ctx, onChunk)
		onDone(err == nil)
	}()
}

// Pipe runs task into buf and marks the buffer complete when the task ends,
// whatever the outcome. Chunks are appended in production order.
func Pipe(ctx context.Context, task Task, buf *stream.Buffer) error {
	return pipe(ctx, task, buf, metrics.DefaultMetrics)
}

func pipe(ctx context.Context, task Task, buf *stream.Buffer, m *metrics.Metrics) error {
	id := buf.Identity()
	logger := logging.WithStream(id.SessionID, id.ContentID, id.PlayIdx)

	defer buf.MarkComplete()
	start := time.Now()
	err := task.Run(ctx, func(chunk []byte) {
		if aerr := buf.Append(chunk); aerr != nil {
			logger.Warn().Err(aerr).Msg("Dropping chunk for completed buffer")
			return
		}
		m.RecordBufferAppend(len(chunk))
	})
	if err != nil {
		logger.Warn().Err(err).Str("clipKind", string(task.Kind())).Msg("Clip failed while streaming")
		return err
	}
	logger.Debug().
		Str("clipKind", string(task.Kind())).
		Int64("bytes", buf.Buffered()).
		Dur("elapsed", time.Since(start)).
		Msg("Clip streamed")
	return nil
}

// counter wraps a ChunkFunc to count produced bytes.
type counter struct {
	next  ChunkFunc
	bytes int
}

func (c *counter) emit(chunk []byte) {
	c.bytes += len(chunk)
	c.next(chunk)
}

// observe records the outcome of one clip run.
func observe(m *metrics.Metrics, kind Kind, start time.Time, bytes int, err error) {
	m.RecordClip(string(kind), err == nil, bytes, time.Since(start).Seconds())
}
