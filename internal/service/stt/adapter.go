// Package stt defines the interface for Speech-to-Text adapters.
package stt

import "context"

// Callback receives recognition events from the STT provider.
type Callback interface {
	// OnStarted is called once the provider accepted the session.
	OnStarted()

	// OnSpeechBegin is called when the caller starts a new utterance.
	OnSpeechBegin()

	// OnPartial is called when an interim/partial transcript is received.
	OnPartial(text string)

	// OnFinal is called when a final transcript is received.
	OnFinal(text string, confidence float64)

	// OnEndOfUtterance is called when the caller stopped speaking.
	OnEndOfUtterance()

	// OnError is called when an error occurs during transcription.
	OnError(err error)
}

// Adapter defines the interface for STT providers (Google, Azure, AWS, etc.).
type Adapter interface {
	// Start begins a streaming transcription session.
	Start(ctx context.Context, cb Callback) error

	// SendAudio sends audio bytes to the STT provider.
	SendAudio(ctx context.Context, audio []byte) error

	// Stop tells the provider no more audio follows and waits until the
	// pending results were delivered.
	Stop(ctx context.Context) error

	// Close ends the session and releases resources.
	Close() error
}

// Provider opens adapters against one provider account.
type Provider interface {
	NewAdapter(ctx context.Context) (Adapter, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context) (Adapter, error)

// NewAdapter implements Provider.
func (f ProviderFunc) NewAdapter(ctx context.Context) (Adapter, error) {
	return f(ctx)
}
