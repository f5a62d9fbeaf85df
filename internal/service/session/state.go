package session

import "fmt"

// State is the transcription lifecycle state of a session.
type State int

const (
	// StateIdle - No transcription requested yet.
	StateIdle State = iota
	// StateRequested - A transcriber was requested, the provider has not acknowledged it.
	StateRequested
	// StateStarted - The provider acknowledged the transcription.
	StateStarted
	// StateClosed - The transcriber was released. Terminal.
	StateClosed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequested:
		return "TRANSCRIPTION_REQUESTED"
	case StateStarted:
		return "TRANSCRIPTION_STARTED"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal.
func (s State) IsTerminal() bool {
	return s == StateClosed
}
