// Package synth defines the streaming speech synthesis capability consumed by
// synthesis clips.
package synth

import (
	"context"
	"fmt"
)

// Kind selects the synthesis engine family.
type Kind string

const (
	KindTTS  Kind = "tts"
	KindCosy Kind = "cosy"
)

// Output format forced on every synthesis request.
const (
	FormatPCM         = "pcm"
	DefaultSampleRate = 16000
)

// Params configures one synthesis session. Nil pointers leave the backend
// default in place.
type Params struct {
	Voice      string `json:"voice,omitempty"`
	Format     string `json:"format"`
	SampleRate int    `json:"sample_rate"`
	PitchRate  *int   `json:"pitch_rate,omitempty"`
	SpeechRate *int   `json:"speech_rate,omitempty"`
	Volume     *int   `json:"volume,omitempty"`
}

// EventType tags a synthesis event.
type EventType int

const (
	EventStarted EventType = iota
	EventSentenceBegin
	EventSentenceEnd
	EventAudio
	EventComplete
	EventFailed
)

// String returns the string representation of the event type.
func (t EventType) String() string {
	switch t {
	case EventStarted:
		return "STARTED"
	case EventSentenceBegin:
		return "SENTENCE_BEGIN"
	case EventSentenceEnd:
		return "SENTENCE_END"
	case EventAudio:
		return "AUDIO"
	case EventComplete:
		return "COMPLETE"
	case EventFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("EventType(%d)", int(t))
	}
}

// IsTerminal reports whether no further events follow.
func (t EventType) IsTerminal() bool {
	return t == EventComplete || t == EventFailed
}

// Event is delivered to a Listener in backend order.
type Event struct {
	Type     EventType
	Audio    []byte // EventAudio
	Sentence string // EventSentenceBegin, EventSentenceEnd
	Err      error  // EventFailed
}

// Listener receives the events of one synthesis session. It is called from a
// single goroutine and must not block for long.
type Listener func(Event)

// Stream is an established synthesis session.
type Stream interface {
	// Send submits text to synthesize.
	Send(ctx context.Context, text string) error

	// Stop signals that no more text follows and blocks until the backend
	// reports completion or failure.
	Stop(ctx context.Context) error

	// Close releases the connection. It is safe to call more than once.
	Close() error
}

// Synthesizer opens streaming synthesis sessions against one backend account.
type Synthesizer interface {
	StartStreamingSynthesis(ctx context.Context, params Params, listener Listener) (Stream, error)
}

// Error is a failure reported by the backend.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	if e.Code == "" {
		return "synthesis failed: " + e.Message
	}
	return fmt.Sprintf("synthesis failed: %s: %s", e.Code, e.Message)
}
