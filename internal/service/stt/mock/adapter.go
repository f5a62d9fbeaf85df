// Package mock provides a scripted STT adapter for tests and local runs
// without cloud credentials. Each audio frame advances the script: the first
// frame of an utterance reports speech begin, every frame reports the next
// partial, and the frame after the last partial reports the final transcript
// followed by end of utterance.
package mock

import (
	"context"
	"errors"
	"sync"

	"ai-media-hub-service/internal/service/stt"
)

// SimulatedUtterance represents a mock utterance with progressive transcripts.
type SimulatedUtterance struct {
	Partials   []string // Progressive partial transcripts
	Final      string   // Final transcript text
	Confidence float64  // Confidence score for final
}

// DefaultUtterances provides sample utterances for simulation.
var DefaultUtterances = []SimulatedUtterance{
	{
		Partials:   []string{"I want", "I want to", "I want to cancel"},
		Final:      "I want to cancel my subscription",
		Confidence: 0.94,
	},
	{
		Partials:   []string{"Yes", "Yes please"},
		Final:      "Yes please go ahead",
		Confidence: 0.97,
	},
	{
		Partials:   []string{"Can you", "Can you help", "Can you help me with"},
		Final:      "Can you help me with my account",
		Confidence: 0.91,
	},
}

// ErrStartRejected is returned by Start when RejectStart is set.
var ErrStartRejected = errors.New("mock stt rejected the session")

// Adapter implements stt.Adapter with scripted responses.
type Adapter struct {
	// Utterances is the script, played in order.
	Utterances []SimulatedUtterance
	// ManualAck holds OnStarted back until Acknowledge is called.
	ManualAck bool
	// RejectStart makes Start fail.
	RejectStart bool
	// StopErr and CloseErr are returned by Stop and Close.
	StopErr  error
	CloseErr error

	mu           sync.Mutex
	cb           stt.Callback
	utterance    int
	partialIndex int
	audioFrames  int
	stops        int
	closes       int
	closed       bool
}

// New creates an adapter playing DefaultUtterances.
func New() *Adapter {
	return &Adapter{Utterances: DefaultUtterances}
}

// Start records the callback and acknowledges the session unless ManualAck
// is set.
func (a *Adapter) Start(_ context.Context, cb stt.Callback) error {
	if a.RejectStart {
		return ErrStartRejected
	}
	a.mu.Lock()
	a.cb = cb
	manual := a.ManualAck
	a.mu.Unlock()
	if !manual {
		cb.OnStarted()
	}
	return nil
}

// Acknowledge reports the session as started.
func (a *Adapter) Acknowledge() {
	a.mu.Lock()
	cb := a.cb
	a.mu.Unlock()
	if cb != nil {
		cb.OnStarted()
	}
}

// SendAudio advances the script by one step.
func (a *Adapter) SendAudio(_ context.Context, _ []byte) error {
	a.mu.Lock()
	if a.closed || a.cb == nil || a.utterance >= len(a.Utterances) {
		a.mu.Unlock()
		return nil
	}
	a.audioFrames++
	cb := a.cb
	utt := a.Utterances[a.utterance]
	idx := a.partialIndex
	a.partialIndex++
	if idx >= len(utt.Partials) {
		a.utterance++
		a.partialIndex = 0
	}
	a.mu.Unlock()

	if idx == 0 {
		cb.OnSpeechBegin()
	}
	if idx < len(utt.Partials) {
		cb.OnPartial(utt.Partials[idx])
		return nil
	}
	cb.OnFinal(utt.Final, utt.Confidence)
	cb.OnEndOfUtterance()
	return nil
}

// Stop counts the call and returns StopErr.
func (a *Adapter) Stop(context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	return a.StopErr
}

// Close marks the adapter closed and returns CloseErr.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.closes++
	a.closed = true
	return a.CloseErr
}

// Stops returns the number of Stop calls.
func (a *Adapter) Stops() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.stops
}

// Closes returns the number of Close calls.
func (a *Adapter) Closes() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closes
}

// AudioFrames returns the number of frames received while open.
func (a *Adapter) AudioFrames() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.audioFrames
}

// Provider hands out mock adapters and remembers them for inspection.
type Provider struct {
	// Configure, when set, adjusts each new adapter.
	Configure func(*Adapter)

	mu       sync.Mutex
	adapters []*Adapter
}

// NewAdapter implements stt.Provider.
func (p *Provider) NewAdapter(context.Context) (stt.Adapter, error) {
	a := New()
	if p.Configure != nil {
		p.Configure(a)
	}
	p.mu.Lock()
	p.adapters = append(p.adapters, a)
	p.mu.Unlock()
	return a, nil
}

// Adapters returns every adapter created so far.
func (p *Provider) Adapters() []*Adapter {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Adapter(nil), p.adapters...)
}
