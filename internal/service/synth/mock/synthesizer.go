// Package mock provides an in-process synthesizer for tests and local runs
// without backend credentials. It renders text into deterministic PCM so
// callers can predict the exact output.
package mock

import (
	"context"
	"errors"
	"sync"

	"ai-media-hub-service/internal/service/synth"
)

// ErrSimulated is the failure reported for texts listed in FailOn.
var ErrSimulated = errors.New("simulated synthesis failure")

// PCM returns the audio the mock produces for text with voice: one 16-bit
// little-endian sample per byte of "voice:text".
func PCM(voice, text string) []byte {
	src := []byte(voice + ":" + text)
	out := make([]byte, 0, len(src)*2)
	for _, b := range src {
		out = append(out, b, 0)
	}
	return out
}

// Synthesizer implements synth.Synthesizer.
type Synthesizer struct {
	// ChunkSize splits the audio of each text into frames. Zero sends one frame.
	ChunkSize int
	// FailOn lists texts whose synthesis fails.
	FailOn map[string]bool
	// RejectStart makes StartStreamingSynthesis fail.
	RejectStart bool

	mu     sync.Mutex
	params []synth.Params
	texts  []string
	active int
}

// New creates a mock synthesizer.
func New() *Synthesizer {
	return &Synthesizer{FailOn: map[string]bool{}}
}

// Params returns the parameters of every started session.
func (m *Synthesizer) Params() []synth.Params {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]synth.Params(nil), m.params...)
}

// Texts returns every text received, in order.
func (m *Synthesizer) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.texts...)
}

// Active returns the number of sessions not yet closed.
func (m *Synthesizer) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// StartStreamingSynthesis starts a mock session.
func (m *Synthesizer) StartStreamingSynthesis(ctx context.Context, params synth.Params, listener synth.Listener) (synth.Stream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	m.params = append(m.params, params)
	if m.RejectStart {
		m.mu.Unlock()
		return nil, &synth.Error{Code: "Rejected", Message: "mock rejected the task"}
	}
	m.active++
	m.mu.Unlock()

	listener(synth.Event{Type: synth.EventStarted})
	return &stream{owner: m, voice: params.Voice, listener: listener}, nil
}

type stream struct {
	owner    *Synthesizer
	voice    string
	listener synth.Listener

	mu     sync.Mutex
	failed error
	done   bool
	closed bool
}

func (s *stream) Send(ctx context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.done {
		return errors.New("mock stream closed")
	}
	s.owner.mu.Lock()
	s.owner.texts = append(s.owner.texts, text)
	fail := s.owner.FailOn[text]
	chunk := s.owner.ChunkSize
	s.owner.mu.Unlock()

	if fail {
		s.failed = ErrSimulated
		return nil
	}
	s.listener(synth.Event{Type: synth.EventSentenceBegin, Sentence: text})
	pcm := PCM(s.voice, text)
	if chunk <= 0 {
		chunk = len(pcm)
	}
	for len(pcm) > 0 {
		n := min(chunk, len(pcm))
		s.listener(synth.Event{Type: synth.EventAudio, Audio: pcm[:n]})
		pcm = pcm[n:]
	}
	s.listener(synth.Event{Type: synth.EventSentenceEnd, Sentence: text})
	return nil
}

func (s *stream) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return s.failed
	}
	s.done = true
	if s.failed != nil {
		s.listener(synth.Event{Type: synth.EventFailed, Err: s.failed})
		return s.failed
	}
	s.listener(synth.Event{Type: synth.EventComplete})
	return nil
}

func (s *stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.owner.mu.Lock()
	s.owner.active--
	s.owner.mu.Unlock()
	return nil
}
