// Package google provides a Google Cloud Speech-to-Text adapter.
package google

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ai-media-hub-service/internal/service/stt"
)

// Config holds recognition settings.
type Config struct {
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string // LINEAR16, MULAW, ...
	CredentialsFile string // empty uses application default credentials
}

// DefaultConfig returns the settings for 8 kHz telephony audio.
func DefaultConfig() Config {
	return Config{
		LanguageCode:   "en-US",
		SampleRateHz:   8000,
		InterimResults: true,
		AudioEncoding:  "LINEAR16",
	}
}

func parseAudioEncoding(s string) speechpb.RecognitionConfig_AudioEncoding {
	if v, ok := speechpb.RecognitionConfig_AudioEncoding_value[s]; ok && v != int32(speechpb.RecognitionConfig_ENCODING_UNSPECIFIED) {
		return speechpb.RecognitionConfig_AudioEncoding(v)
	}
	return speechpb.RecognitionConfig_LINEAR16
}

// Provider shares one Speech client across the adapters of an account.
type Provider struct {
	client *speech.Client
	cfg    Config
}

// NewProvider creates the Speech client.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	c, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create speech client: %w", err)
	}
	return &Provider{client: c, cfg: cfg}, nil
}

// NewAdapter implements stt.Provider.
func (p *Provider) NewAdapter(_ context.Context) (stt.Adapter, error) {
	return &Adapter{client: p.client, cfg: p.cfg}, nil
}

// Close closes the shared client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Adapter implements stt.Adapter using Google Cloud Speech-to-Text.
type Adapter struct {
	client *speech.Client
	cfg    Config

	mu       sync.Mutex
	stream   speechpb.Speech_StreamingRecognizeClient
	cancel   context.CancelFunc
	cb       stt.Callback
	speaking bool
	done     chan struct{}
}

// Start opens the streaming recognition session, sends the config and starts
// listening for results.
func (a *Adapter) Start(ctx context.Context, cb stt.Callback) error {
	sctx, cancel := context.WithCancel(ctx)
	stream, err := a.client.StreamingRecognize(sctx)
	if err != nil {
		cancel()
		return err
	}

	err = stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:        parseAudioEncoding(a.cfg.AudioEncoding),
					SampleRateHertz: a.cfg.SampleRateHz,
					LanguageCode:    a.cfg.LanguageCode,
				},
				InterimResults: a.cfg.InterimResults,
			},
		},
	})
	if err != nil {
		cancel()
		return err
	}

	a.mu.Lock()
	a.stream = stream
	a.cancel = cancel
	a.cb = cb
	a.done = make(chan struct{})
	a.mu.Unlock()

	go a.listen()
	cb.OnStarted()
	return nil
}

// SendAudio sends audio bytes to Google Speech-to-Text.
func (a *Adapter) SendAudio(_ context.Context, audio []byte) error {
	a.mu.Lock()
	stream := a.stream
	a.mu.Unlock()
	if stream == nil {
		return errors.New("stt: session not started")
	}
	return stream.Send(&speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: audio,
		},
	})
}

// Stop half-closes the stream and waits for the remaining results.
func (a *Adapter) Stop(ctx context.Context) error {
	a.mu.Lock()
	stream, done := a.stream, a.done
	a.mu.Unlock()
	if stream == nil {
		return nil
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the stream.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	return nil
}

// listen receives transcript responses from Google and invokes callbacks.
func (a *Adapter) listen() {
	defer close(a.done)
	for {
		resp, err := a.stream.Recv()
		if err == io.EOF {
			return
		}
		if err != nil {
			if status.Code(err) != codes.Canceled && !errors.Is(err, context.Canceled) {
				a.cb.OnError(err)
			}
			return
		}

		for _, r := range resp.Results {
			if len(r.Alternatives) == 0 {
				continue
			}
			if !a.speaking {
				a.speaking = true
				a.cb.OnSpeechBegin()
			}
			alt := r.Alternatives[0]
			if r.IsFinal {
				a.cb.OnFinal(alt.Transcript, float64(alt.Confidence))
				a.speaking = false
				a.cb.OnEndOfUtterance()
			} else {
				a.cb.OnPartial(alt.Transcript)
			}
		}
		if resp.SpeechEventType == speechpb.StreamingRecognizeResponse_END_OF_SINGLE_UTTERANCE && a.speaking {
			a.speaking = false
			a.cb.OnEndOfUtterance()
		}
	}
}
