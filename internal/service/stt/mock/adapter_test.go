package mock

import (
	"context"
	"errors"
	"sync"
	"testing"
)

// testCallback implements stt.Callback for testing
type testCallback struct {
	mu         sync.Mutex
	started    int
	begins     int
	partials   []string
	finals     []finalResult
	errors     []error
	utterances int
}

type finalResult struct {
	text       string
	confidence float64
}

func (c *testCallback) OnStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *testCallback) OnSpeechBegin() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.begins++
}

func (c *testCallback) OnPartial(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.partials = append(c.partials, text)
}

func (c *testCallback) OnFinal(text string, confidence float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, finalResult{text, confidence})
}

func (c *testCallback) OnEndOfUtterance() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.utterances++
}

func (c *testCallback) OnError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errors = append(c.errors, err)
}

func TestAdapter_Start(t *testing.T) {
	adapter := New()
	cb := &testCallback{}

	if err := adapter.Start(context.Background(), cb); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cb.started != 1 {
		t.Errorf("expected OnStarted once, got %d", cb.started)
	}
}

func TestAdapter_ManualAck(t *testing.T) {
	adapter := New()
	adapter.ManualAck = true
	cb := &testCallback{}
	_ = adapter.Start(context.Background(), cb)
	if cb.started != 0 {
		t.Fatal("OnStarted called before Acknowledge")
	}
	adapter.Acknowledge()
	if cb.started != 1 {
		t.Errorf("expected OnStarted after Acknowledge, got %d", cb.started)
	}
}

func TestAdapter_RejectStart(t *testing.T) {
	adapter := New()
	adapter.RejectStart = true
	if err := adapter.Start(context.Background(), &testCallback{}); !errors.Is(err, ErrStartRejected) {
		t.Errorf("err = %v, want ErrStartRejected", err)
	}
}

func TestAdapter_Script(t *testing.T) {
	adapter := &Adapter{Utterances: []SimulatedUtterance{
		{Partials: []string{"a", "a b"}, Final: "a b c", Confidence: 0.9},
		{Partials: []string{"x"}, Final: "x y", Confidence: 0.8},
	}}
	cb := &testCallback{}
	_ = adapter.Start(context.Background(), cb)

	for i := 0; i < 10; i++ {
		if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
			t.Fatalf("SendAudio: %v", err)
		}
	}

	if cb.begins != 2 {
		t.Errorf("speech begins = %d, want 2", cb.begins)
	}
	if len(cb.partials) != 3 {
		t.Errorf("partials = %v", cb.partials)
	}
	if len(cb.finals) != 2 || cb.finals[0].text != "a b c" || cb.finals[1].text != "x y" {
		t.Errorf("finals = %v", cb.finals)
	}
	if cb.utterances != 2 {
		t.Errorf("utterances = %d, want 2", cb.utterances)
	}
	if adapter.AudioFrames() != 5 {
		t.Errorf("frames consumed = %d, want 5", adapter.AudioFrames())
	}
}

func TestAdapter_StopAndClose(t *testing.T) {
	adapter := New()
	adapter.StopErr = errors.New("flush failed")
	_ = adapter.Start(context.Background(), &testCallback{})

	if err := adapter.Stop(context.Background()); err == nil {
		t.Error("expected StopErr")
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	_ = adapter.Close()
	if adapter.Stops() != 1 || adapter.Closes() != 2 {
		t.Errorf("stops=%d closes=%d", adapter.Stops(), adapter.Closes())
	}
}

func TestAdapter_SendAudio_AfterClose(t *testing.T) {
	adapter := New()
	cb := &testCallback{}
	_ = adapter.Start(context.Background(), cb)
	_ = adapter.Close()

	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cb.partials) != 0 {
		t.Error("partials delivered after close")
	}
}

func TestAdapter_NoCallbackSet(t *testing.T) {
	adapter := New()
	if err := adapter.SendAudio(context.Background(), []byte("audio")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := adapter.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestDefaultUtterances(t *testing.T) {
	for i, utt := range DefaultUtterances {
		if len(utt.Partials) == 0 {
			t.Errorf("utterance %d has no partials", i)
		}
		if utt.Final == "" {
			t.Errorf("utterance %d has empty final", i)
		}
		if utt.Confidence <= 0 || utt.Confidence > 1 {
			t.Errorf("utterance %d has invalid confidence %f", i, utt.Confidence)
		}
	}
}

func TestProvider(t *testing.T) {
	p := &Provider{Configure: func(a *Adapter) { a.ManualAck = true }}
	a, err := p.NewAdapter(context.Background())
	if err != nil {
		t.Fatalf("NewAdapter: %v", err)
	}
	if !a.(*Adapter).ManualAck {
		t.Error("Configure not applied")
	}
	if len(p.Adapters()) != 1 {
		t.Errorf("adapters = %d", len(p.Adapters()))
	}
}
