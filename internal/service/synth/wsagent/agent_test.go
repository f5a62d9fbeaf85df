package wsagent

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"ai-media-hub-service/internal/service/synth"
)

// fakeBackend speaks the control protocol: it answers run-task with
// task-started, echoes every continue-task text as a binary frame framed by
// sentence events, and answers finish-task with task-finished.
type fakeBackend struct {
	t        *testing.T
	failRun  bool
	failText string

	mu       sync.Mutex
	params   *synth.Params
	auth     string
	appKey   string
	received []string
}

func (f *fakeBackend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	f.auth = r.Header.Get("Authorization")
	f.appKey = r.Header.Get("X-App-Key")
	f.mu.Unlock()

	up := websocket.Upgrader{}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		f.t.Errorf("upgrade: %v", err)
		return
	}
	defer conn.Close()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		switch req.Type {
		case msgRunTask:
			f.mu.Lock()
			f.params = req.Params
			f.mu.Unlock()
			if f.failRun {
				_ = conn.WriteJSON(response{Type: msgTaskFailed, TaskID: req.TaskID, Code: "InvalidVoice", Message: "unknown voice"})
				return
			}
			_ = conn.WriteJSON(response{Type: msgTaskStarted, TaskID: req.TaskID})
		case msgContinueTask:
			f.mu.Lock()
			f.received = append(f.received, req.Text)
			f.mu.Unlock()
			if req.Text == f.failText {
				_ = conn.WriteJSON(response{Type: msgTaskFailed, TaskID: req.TaskID, Message: "engine error"})
				return
			}
			_ = conn.WriteJSON(response{Type: msgSentenceBegin, TaskID: req.TaskID, Text: req.Text})
			_ = conn.WriteMessage(websocket.BinaryMessage, []byte(req.Text))
			_ = conn.WriteJSON(response{Type: msgSentenceEnd, TaskID: req.TaskID, Text: req.Text})
		case msgFinishTask:
			_ = conn.WriteJSON(response{Type: msgTaskFinished, TaskID: req.TaskID})
		}
	}
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

type recorder struct {
	mu     sync.Mutex
	events []synth.Event
}

func (r *recorder) listen(ev synth.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) types() []synth.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]synth.EventType, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Type
	}
	return out
}

func TestStreamingSynthesis(t *testing.T) {
	backend := &fakeBackend{t: t}
	srv := httptest.NewServer(backend)
	defer srv.Close()

	agent := New(synth.KindTTS, "acct-1", Config{URL: wsURL(srv), Token: "secret", AppKey: "app"})
	rec := &recorder{}
	pitch := 20
	params := synth.Params{Voice: "voiceA", Format: synth.FormatPCM, SampleRate: synth.DefaultSampleRate, PitchRate: &pitch}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s, err := agent.StartStreamingSynthesis(ctx, params, rec.listen)
	if err != nil {
		t.Fatalf("StartStreamingSynthesis: %v", err)
	}
	defer s.Close()

	if err := s.Send(ctx, "hi"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := s.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	want := []synth.EventType{
		synth.EventStarted,
		synth.EventSentenceBegin,
		synth.EventAudio,
		synth.EventSentenceEnd,
		synth.EventComplete,
	}
	got := rec.types()
	if len(got) != len(want) {
		t.Fatalf("events = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("event[%d] = %v, want %v", i, got[i], want[i])
		}
	}
	if string(rec.events[2].Audio) != "hi" {
		t.Errorf("audio = %q, want %q", rec.events[2].Audio, "hi")
	}

	backend.mu.Lock()
	defer backend.mu.Unlock()
	if backend.auth != "Bearer secret" {
		t.Errorf("Authorization = %q", backend.auth)
	}
	if backend.appKey != "app" {
		t.Errorf("X-App-Key = %q", backend.appKey)
	}
	if backend.params == nil || backend.params.Voice != "voiceA" || backend.params.SampleRate != 16000 {
		t.Errorf("params = %+v", backend.params)
	}
	if backend.params != nil && (backend.params.PitchRate == nil || *backend.params.PitchRate != 20) {
		t.Errorf("pitch rate not forwarded: %+v", backend.params)
	}
}

func TestStartRejected(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{t: t, failRun: true})
	defer srv.Close()

	agent := New(synth.KindCosy, "acct-1", Config{URL: wsURL(srv)})
	_, err := agent.StartStreamingSynthesis(context.Background(), synth.Params{}, func(synth.Event) {})
	var serr *synth.Error
	if !errors.As(err, &serr) {
		t.Fatalf("err = %v, want *synth.Error", err)
	}
	if serr.Code != "InvalidVoice" {
		t.Errorf("Code = %q", serr.Code)
	}
}

func TestStopReportsFailure(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{t: t, failText: "bad"})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rec := &recorder{}
	s, err := New(synth.KindTTS, "acct-1", Config{URL: wsURL(srv)}).StartStreamingSynthesis(ctx, synth.Params{}, rec.listen)
	if err != nil {
		t.Fatalf("StartStreamingSynthesis: %v", err)
	}
	defer s.Close()

	_ = s.Send(ctx, "bad")
	if err := s.Stop(ctx); err == nil {
		t.Fatal("Stop returned nil after backend failure")
	}
	types := rec.types()
	if types[len(types)-1] != synth.EventFailed {
		t.Errorf("last event = %v, want FAILED", types[len(types)-1])
	}
}

func TestDialFailure(t *testing.T) {
	agent := New(synth.KindTTS, "acct-1", Config{URL: "ws://127.0.0.1:1/nowhere", HandshakeTimeout: time.Second})
	if _, err := agent.StartStreamingSynthesis(context.Background(), synth.Params{}, func(synth.Event) {}); err == nil {
		t.Fatal("expected dial error")
	}
}

func TestSendAfterClose(t *testing.T) {
	srv := httptest.NewServer(&fakeBackend{t: t})
	defer srv.Close()

	s, err := New(synth.KindTTS, "acct-1", Config{URL: wsURL(srv)}).StartStreamingSynthesis(context.Background(), synth.Params{}, func(synth.Event) {})
	if err != nil {
		t.Fatalf("StartStreamingSynthesis: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Logf("Close: %v", err)
	}
	_ = s.Close()
	if err := s.Send(context.Background(), "late"); !errors.Is(err, ErrStreamClosed) {
		t.Errorf("Send after Close err = %v, want ErrStreamClosed", err)
	}
}
