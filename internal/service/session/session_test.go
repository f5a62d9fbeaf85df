package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/stt"
	"ai-media-hub-service/internal/service/stt/mock"
)

// recordingCallback implements stt.Callback.
type recordingCallback struct {
	mu      sync.Mutex
	started int
	finals  []string
}

func (c *recordingCallback) OnStarted() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.started++
}

func (c *recordingCallback) OnSpeechBegin()    {}
func (c *recordingCallback) OnPartial(string)  {}
func (c *recordingCallback) OnEndOfUtterance() {}
func (c *recordingCallback) OnError(error)     {}

func (c *recordingCallback) OnFinal(text string, _ float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.finals = append(c.finals, text)
}

func newSTTPool(p stt.Provider, maxConnections int64) (*agent.Pool[stt.Provider], *agent.Handle[stt.Provider]) {
	h := agent.NewHandle[stt.Provider]("asr-1", maxConnections, p)
	return agent.NewPool("asr", []*agent.Handle[stt.Provider]{h}), h
}

func assertCounters(t *testing.T, h *agent.Handle[stt.Provider], connections, connected int64) {
	t.Helper()
	if got := h.Connections(); got != connections {
		t.Errorf("connections = %d, want %d", got, connections)
	}
	if got := h.Connected(); got != connected {
		t.Errorf("connected = %d, want %d", got, connected)
	}
}

func TestStartTranscriptionOnce(t *testing.T) {
	provider := &mock.Provider{}
	pool, h := newSTTPool(provider, 0)
	s := New("sess-1", pool, Options{})
	cb := &recordingCallback{}

	first, err := s.StartTranscription(context.Background(), cb)
	if err != nil || !first {
		t.Fatalf("first start = %v, %v", first, err)
	}
	second, err := s.StartTranscription(context.Background(), cb)
	if err != nil || second {
		t.Fatalf("second start = %v, %v", second, err)
	}

	if len(provider.Adapters()) != 1 {
		t.Errorf("adapters opened = %d, want 1", len(provider.Adapters()))
	}
	if cb.started != 1 {
		t.Errorf("OnStarted forwarded %d times, want 1", cb.started)
	}
	if s.State() != StateStarted {
		t.Errorf("state = %v, want %v", s.State(), StateStarted)
	}
	assertCounters(t, h, 1, 1)

	s.Close(context.Background())
	assertCounters(t, h, 0, 0)
	if s.State() != StateClosed {
		t.Errorf("state = %v, want %v", s.State(), StateClosed)
	}
}

func TestStateTransitions(t *testing.T) {
	provider := &mock.Provider{Configure: func(a *mock.Adapter) { a.ManualAck = true }}
	pool, h := newSTTPool(provider, 0)
	s := New("sess-1", pool, Options{})

	if s.State() != StateIdle {
		t.Fatalf("initial state = %v", s.State())
	}
	if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	if s.State() != StateRequested {
		t.Errorf("state = %v, want %v", s.State(), StateRequested)
	}
	assertCounters(t, h, 1, 0)

	provider.Adapters()[0].Acknowledge()
	if s.State() != StateStarted {
		t.Errorf("state = %v, want %v", s.State(), StateStarted)
	}
	assertCounters(t, h, 1, 1)

	// a duplicate acknowledgement is ignored
	provider.Adapters()[0].Acknowledge()
	assertCounters(t, h, 1, 1)
}

func TestStopAndCloseConcurrent(t *testing.T) {
	provider := &mock.Provider{}
	pool, h := newSTTPool(provider, 0)
	s := New("sess-1", pool, Options{})
	if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.StopAndClose(context.Background())
		}()
	}
	wg.Wait()

	assertCounters(t, h, 0, 0)
	a := provider.Adapters()[0]
	if a.Stops() != 1 || a.Closes() != 1 {
		t.Errorf("stops=%d closes=%d, want 1 and 1", a.Stops(), a.Closes())
	}
}

func TestConnectedOnlyReleasedWhenStarted(t *testing.T) {
	provider := &mock.Provider{Configure: func(a *mock.Adapter) { a.ManualAck = true }}
	pool, h := newSTTPool(provider, 0)

	// a second session keeps the connected counter above zero so an
	// unbalanced decrement would show
	other := New("sess-0", pool, Options{})
	if _, err := other.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	provider.Adapters()[0].Acknowledge()

	s := New("sess-1", pool, Options{})
	if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	assertCounters(t, h, 2, 1)

	s.Close(context.Background())
	assertCounters(t, h, 1, 1)

	// a late acknowledgement after release changes nothing
	provider.Adapters()[1].Acknowledge()
	assertCounters(t, h, 1, 1)

	other.Close(context.Background())
	assertCounters(t, h, 0, 0)
}

func TestStopAndCloseSwallowsErrors(t *testing.T) {
	provider := &mock.Provider{Configure: func(a *mock.Adapter) {
		a.StopErr = errors.New("flush failed")
		a.CloseErr = errors.New("connection reset")
	}}
	pool, h := newSTTPool(provider, 0)
	s := New("sess-1", pool, Options{})
	if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}

	s.StopAndClose(context.Background())
	s.StopAndClose(context.Background())
	assertCounters(t, h, 0, 0)
}

func TestStartTranscriptionErrors(t *testing.T) {
	t.Run("no capacity", func(t *testing.T) {
		pool, h := newSTTPool(&mock.Provider{}, 1)
		a := New("sess-a", pool, Options{})
		if _, err := a.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
			t.Fatalf("StartTranscription: %v", err)
		}
		b := New("sess-b", pool, Options{})
		_, err := b.StartTranscription(context.Background(), &recordingCallback{})
		if !errors.Is(err, agent.ErrNoCapacity) {
			t.Errorf("err = %v, want ErrNoCapacity", err)
		}
		b.Close(context.Background())
		assertCounters(t, h, 1, 1)
		a.Close(context.Background())
		assertCounters(t, h, 0, 0)
	})

	t.Run("rejected", func(t *testing.T) {
		provider := &mock.Provider{Configure: func(a *mock.Adapter) { a.RejectStart = true }}
		pool, h := newSTTPool(provider, 0)
		s := New("sess-1", pool, Options{})
		_, err := s.StartTranscription(context.Background(), &recordingCallback{})
		if !errors.Is(err, mock.ErrStartRejected) {
			t.Errorf("err = %v, want ErrStartRejected", err)
		}
		assertCounters(t, h, 0, 0)
		if provider.Adapters()[0].Closes() != 1 {
			t.Error("rejected transcriber was not closed")
		}
	})

	t.Run("no pool", func(t *testing.T) {
		s := New("sess-1", nil, Options{})
		if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); !errors.Is(err, ErrNoTranscriber) {
			t.Errorf("err = %v, want ErrNoTranscriber", err)
		}
	})

	t.Run("closed", func(t *testing.T) {
		pool, h := newSTTPool(&mock.Provider{}, 0)
		s := New("sess-1", pool, Options{})
		s.Close(context.Background())
		if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); !errors.Is(err, ErrClosed) {
			t.Errorf("err = %v, want ErrClosed", err)
		}
		assertCounters(t, h, 0, 0)
	})
}

func TestTransmit(t *testing.T) {
	provider := &mock.Provider{}
	pool, _ := newSTTPool(provider, 0)
	s := New("sess-1", pool, Options{})
	cb := &recordingCallback{}

	if err := s.Transmit(context.Background(), []byte{1, 2}); !errors.Is(err, ErrNoTranscriber) {
		t.Errorf("err = %v, want ErrNoTranscriber", err)
	}
	if _, err := s.StartTranscription(context.Background(), cb); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	// the default script needs four frames for its first utterance
	for i := 0; i < 4; i++ {
		if err := s.Transmit(context.Background(), []byte{1, 2}); err != nil {
			t.Fatalf("Transmit: %v", err)
		}
	}
	if len(cb.finals) != 1 || cb.finals[0] != mock.DefaultUtterances[0].Final {
		t.Errorf("finals = %v", cb.finals)
	}
	s.Close(context.Background())
}

func TestDelayedTransmit(t *testing.T) {
	provider := &mock.Provider{}
	pool, _ := newSTTPool(provider, 0)
	s := New("sess-1", pool, Options{SendDelay: 20 * time.Millisecond})
	defer s.Close(context.Background())

	if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	if err := s.Transmit(context.Background(), []byte{1, 2}); err != nil {
		t.Fatalf("Transmit: %v", err)
	}
	a := provider.Adapters()[0]
	if a.AudioFrames() != 0 {
		t.Fatal("frame sent before the delay elapsed")
	}

	deadline := time.Now().Add(2 * time.Second)
	for a.AudioFrames() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("delayed frame never sent")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCloseDropsDelayedFrames(t *testing.T) {
	provider := &mock.Provider{}
	pool, _ := newSTTPool(provider, 0)
	s := New("sess-1", pool, Options{SendDelay: time.Hour})

	if _, err := s.StartTranscription(context.Background(), &recordingCallback{}); err != nil {
		t.Fatalf("StartTranscription: %v", err)
	}
	for i := 0; i < 3; i++ {
		if err := s.Transmit(context.Background(), []byte{1, 2}); err != nil {
			t.Fatalf("Transmit: %v", err)
		}
	}
	s.Close(context.Background())

	if got := provider.Adapters()[0].AudioFrames(); got != 0 {
		t.Errorf("frames sent after close = %d, want 0", got)
	}
	if err := s.Transmit(context.Background(), []byte{1, 2}); !errors.Is(err, ErrNoTranscriber) {
		t.Errorf("err = %v, want ErrNoTranscriber", err)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state    State
		want     string
		terminal bool
	}{
		{StateIdle, "IDLE", false},
		{StateRequested, "TRANSCRIPTION_REQUESTED", false},
		{StateStarted, "TRANSCRIPTION_STARTED", false},
		{StateClosed, "CLOSED", true},
		{State(99), "UNKNOWN(99)", false},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", int(tt.state), got, tt.want)
		}
		if got := tt.state.IsTerminal(); got != tt.terminal {
			t.Errorf("State(%d).IsTerminal() = %v, want %v", int(tt.state), got, tt.terminal)
		}
	}
}
