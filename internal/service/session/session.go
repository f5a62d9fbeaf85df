// Package session implements the per-call state machine: transcriber
// acquisition and release, idle detection, barge-in and hang-up.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/stt"
)

// Errors returned by Session.
var (
	ErrNoTranscriber = errors.New("session has no transcriber")
	ErrClosed        = errors.New("session is closed")
)

// Options configures a Session.
type Options struct {
	// SendDelay, when positive, sends audio to the transcriber after this
	// delay from a dedicated goroutine instead of inline.
	SendDelay time.Duration
	Metrics   *metrics.Metrics
}

// Session owns at most one transcriber drawn from an account pool.
//
// State transitions:
//
//	IDLE → TRANSCRIPTION_REQUESTED → TRANSCRIPTION_STARTED → CLOSED
//
// requested and started are latches: the first caller to flip one owns its
// side effect, later callers see it flipped and do nothing. StopAndClose
// releases the transcriber at most once.
type Session struct {
	id        string
	pool      *agent.Pool[stt.Provider]
	metrics   *metrics.Metrics
	createdAt time.Time

	requested atomic.Bool
	started   atomic.Bool
	closed    atomic.Bool

	// mu guards the transcriber reference and the release section.
	mu          sync.Mutex
	lease       *agent.Lease[stt.Provider]
	transcriber stt.Adapter
	released    bool

	delay *delayedSender
}

// New creates a session that draws transcribers from pool.
func New(id string, pool *agent.Pool[stt.Provider], opts Options) *Session {
	m := opts.Metrics
	if m == nil {
		m = metrics.DefaultMetrics
	}
	s := &Session{
		id:        id,
		pool:      pool,
		metrics:   m,
		createdAt: time.Now(),
	}
	if opts.SendDelay > 0 {
		s.delay = newDelayedSender(opts.SendDelay, s.sendNow)
	}
	m.RecordSessionStart()
	return s
}

// ID returns the transport level id of the session.
func (s *Session) ID() string { return s.id }

// State derives the lifecycle state from the latches.
func (s *Session) State() State {
	switch {
	case s.closed.Load():
		return StateClosed
	case s.started.Load():
		return StateStarted
	case s.requested.Load():
		return StateRequested
	default:
		return StateIdle
	}
}

// IsTranscriptionStarted reports whether the provider ever acknowledged the
// transcription.
func (s *Session) IsTranscriptionStarted() bool { return s.started.Load() }

// StartTranscription acquires a transcriber and starts it with cb. Only the
// first call does anything; later calls return false and no error.
func (s *Session) StartTranscription(ctx context.Context, cb stt.Callback) (bool, error) {
	if !s.requested.CompareAndSwap(false, true) {
		return false, nil
	}
	logger := logging.WithSession(s.id)

	if s.pool == nil {
		return true, ErrNoTranscriber
	}
	lease, err := s.pool.Acquire()
	if err != nil {
		return true, fmt.Errorf("acquire transcriber: %w", err)
	}
	adapter, err := lease.Client().NewAdapter(ctx)
	if err != nil {
		lease.Release()
		return true, fmt.Errorf("open transcriber on %s: %w", lease.Name(), err)
	}

	s.mu.Lock()
	if s.released || s.closed.Load() {
		s.mu.Unlock()
		_ = adapter.Close()
		lease.Release()
		return true, ErrClosed
	}
	s.lease = lease
	s.transcriber = adapter
	s.mu.Unlock()

	logger.Info().Str("account", lease.Name()).Msg("Transcription requested")

	if err := adapter.Start(ctx, &startedCallback{Callback: cb, session: s}); err != nil {
		s.StopAndClose(ctx)
		return true, fmt.Errorf("start transcriber on %s: %w", lease.Name(), err)
	}
	return true, nil
}

// TranscriptionStarted latches the started state and marks the lease
// connected. Calls after the first are no-ops.
func (s *Session) TranscriptionStarted() {
	if !s.started.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	lease := s.lease
	s.mu.Unlock()
	if lease != nil {
		lease.MarkConnected()
	}
	s.metrics.RecordTranscriptionStarted()
	logger := logging.WithSession(s.id)
	logger.Info().Msg("Transcription started")
}

// Transmit forwards caller audio to the transcriber, inline or through the
// delayed sender.
func (s *Session) Transmit(ctx context.Context, audio []byte) error {
	s.mu.Lock()
	tr := s.transcriber
	s.mu.Unlock()
	if tr == nil {
		return ErrNoTranscriber
	}
	if s.delay != nil {
		if !s.delay.schedule(tr, audio) {
			return ErrClosed
		}
		return nil
	}
	return tr.SendAudio(ctx, audio)
}

func (s *Session) sendNow(to stt.Adapter, audio []byte) {
	if err := to.SendAudio(context.Background(), audio); err != nil {
		logger := logging.WithSession(s.id)
		logger.Warn().Err(err).Msg("Delayed audio send failed")
	}
}

// StopAndClose asks the transcriber to flush, closes it and returns its
// account slot. Only the first call releases anything. Stop and close
// errors are logged and swallowed so the counters always converge.
func (s *Session) StopAndClose(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	logger := logging.WithSession(s.id)
	if s.lease == nil {
		s.released = true
		logger.Debug().Msg("Transcriber already released, ignore")
		s.metrics.RecordStopAndClose("noop")
		return
	}
	lease, tr := s.lease, s.transcriber
	s.lease, s.transcriber = nil, nil
	s.released = true

	if s.delay != nil {
		s.delay.close()
	}

	start := time.Now()
	if err := tr.Stop(ctx); err != nil {
		logger.Warn().Err(err).Msg("Transcriber stop failed")
	}
	logger.Info().Dur("latency", time.Since(start)).Msg("Transcriber stopped")
	if err := tr.Close(); err != nil {
		logger.Warn().Err(err).Msg("Transcriber close failed")
	}

	lease.Release()
	s.metrics.RecordStopAndClose("released")
}

// Close releases the transcriber and stops the delayed sender. It is
// idempotent.
func (s *Session) Close(ctx context.Context) {
	s.close(ctx)
}

// close reports whether this call closed the session.
func (s *Session) close(ctx context.Context) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	s.StopAndClose(ctx)
	if s.delay != nil {
		s.delay.close()
	}
	s.metrics.RecordSessionEnd(time.Since(s.createdAt).Seconds())
	logger := logging.WithSession(s.id)
	logger.Info().Msg("Session closed")
	return true
}

// startedCallback latches the session started before forwarding OnStarted.
type startedCallback struct {
	stt.Callback
	session *Session
}

func (c *startedCallback) OnStarted() {
	c.session.TranscriptionStarted()
	c.Callback.OnStarted()
}
