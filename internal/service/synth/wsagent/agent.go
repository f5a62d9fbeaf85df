// Package wsagent implements synth.Synthesizer over a websocket streaming
// synthesis API. Control messages are JSON text frames; audio arrives as
// binary frames.
package wsagent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/service/synth"
)

// Message types of the control protocol.
const (
	msgRunTask       = "run-task"
	msgContinueTask  = "continue-task"
	msgFinishTask    = "finish-task"
	msgTaskStarted   = "task-started"
	msgSentenceBegin = "sentence-begin"
	msgSentenceEnd   = "sentence-end"
	msgTaskFinished  = "task-finished"
	msgTaskFailed    = "task-failed"
)

// ErrStreamClosed is returned when sending on a closed stream.
var ErrStreamClosed = errors.New("synthesis stream closed")

// Config holds the connection settings of one backend account.
type Config struct {
	URL              string
	Token            string
	AppKey           string
	Model            string
	HandshakeTimeout time.Duration
}

// Agent opens synthesis sessions for one account.
type Agent struct {
	cfg    Config
	kind   synth.Kind
	dialer *websocket.Dialer
	logger zerolog.Logger
}

// New creates an agent for the given account.
func New(kind synth.Kind, account string, cfg Config) *Agent {
	timeout := cfg.HandshakeTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Agent{
		cfg:    cfg,
		kind:   kind,
		dialer: &websocket.Dialer{HandshakeTimeout: timeout},
		logger: logging.WithAgent(string(kind), account),
	}
}

type request struct {
	Type   string        `json:"type"`
	TaskID string        `json:"task_id"`
	Kind   synth.Kind    `json:"kind,omitempty"`
	Model  string        `json:"model,omitempty"`
	Params *synth.Params `json:"params,omitempty"`
	Text   string        `json:"text,omitempty"`
}

type response struct {
	Type    string `json:"type"`
	TaskID  string `json:"task_id"`
	Text    string `json:"text,omitempty"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

// StartStreamingSynthesis dials the backend, submits the task parameters and
// waits for the task to be accepted. Events for the task, including the
// started event, are delivered to listener from a read goroutine.
func (a *Agent) StartStreamingSynthesis(ctx context.Context, params synth.Params, listener synth.Listener) (synth.Stream, error) {
	header := http.Header{}
	if a.cfg.Token != "" {
		header.Set("Authorization", "Bearer "+a.cfg.Token)
	}
	if a.cfg.AppKey != "" {
		header.Set("X-App-Key", a.cfg.AppKey)
	}

	conn, _, err := a.dialer.DialContext(ctx, a.cfg.URL, header)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to synthesis backend: %w", err)
	}

	s := &stream{
		conn:     conn,
		taskID:   uuid.NewString(),
		listener: listener,
		started:  make(chan error, 1),
		done:     make(chan struct{}),
		closed:   make(chan struct{}),
		logger:   a.logger,
	}
	s.logger = s.logger.With().Str("taskId", s.taskID).Logger()

	run := request{Type: msgRunTask, TaskID: s.taskID, Kind: a.kind, Model: a.cfg.Model, Params: &params}
	if err := s.write(run); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to submit synthesis task: %w", err)
	}

	s.wg.Add(1)
	go s.readLoop()

	select {
	case err := <-s.started:
		if err != nil {
			s.Close()
			return nil, err
		}
	case <-ctx.Done():
		s.Close()
		return nil, ctx.Err()
	}
	return s, nil
}

type stream struct {
	conn     *websocket.Conn
	taskID   string
	listener synth.Listener
	logger   zerolog.Logger

	writeMu sync.Mutex

	started     chan error
	startedOnce sync.Once

	// done is closed once a terminal event was delivered.
	done     chan struct{}
	doneOnce sync.Once
	result   error

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

func (s *stream) write(req request) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.conn.WriteJSON(req)
}

// Send submits text for synthesis.
func (s *stream) Send(ctx context.Context, text string) error {
	select {
	case <-s.closed:
		return ErrStreamClosed
	case <-s.done:
		return ErrStreamClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.write(request{Type: msgContinueTask, TaskID: s.taskID, Text: text})
}

// Stop sends finish-task and waits for the terminal event.
func (s *stream) Stop(ctx context.Context) error {
	select {
	case <-s.done:
		return s.result
	default:
	}
	if err := s.write(request{Type: msgFinishTask, TaskID: s.taskID}); err != nil {
		// a broken connection also ends the read loop, which reports the result
		s.logger.Debug().Err(err).Msg("Failed to send finish-task")
	}
	select {
	case <-s.done:
		return s.result
	case <-s.closed:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close closes the connection and waits for the read goroutine to exit.
func (s *stream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		s.writeMu.Lock()
		_ = s.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		s.writeMu.Unlock()
		err = s.conn.Close()
		s.wg.Wait()
	})
	return err
}

func (s *stream) signalStarted(err error) {
	s.startedOnce.Do(func() { s.started <- err })
}

func (s *stream) finish(ev synth.Event) {
	s.doneOnce.Do(func() {
		s.result = ev.Err
		s.listener(ev)
		close(s.done)
	})
}

func (s *stream) readLoop() {
	defer s.wg.Done()

	for {
		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closed:
				err = ErrStreamClosed
			default:
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
					err = errors.New("synthesis backend closed the connection before completion")
				} else {
					err = fmt.Errorf("read error: %w", err)
				}
			}
			s.signalStarted(err)
			s.finish(synth.Event{Type: synth.EventFailed, Err: err})
			return
		}

		if msgType == websocket.BinaryMessage {
			s.listener(synth.Event{Type: synth.EventAudio, Audio: data})
			continue
		}

		var resp response
		if err := json.Unmarshal(data, &resp); err != nil {
			s.logger.Warn().Err(err).Msg("Failed to parse synthesis message")
			continue
		}
		if resp.TaskID != "" && resp.TaskID != s.taskID {
			continue
		}

		switch resp.Type {
		case msgTaskStarted:
			s.listener(synth.Event{Type: synth.EventStarted})
			s.signalStarted(nil)
		case msgSentenceBegin:
			s.listener(synth.Event{Type: synth.EventSentenceBegin, Sentence: resp.Text})
		case msgSentenceEnd:
			s.listener(synth.Event{Type: synth.EventSentenceEnd, Sentence: resp.Text})
		case msgTaskFinished:
			s.finish(synth.Event{Type: synth.EventComplete})
			return
		case msgTaskFailed:
			ferr := &synth.Error{Code: resp.Code, Message: resp.Message}
			s.signalStarted(ferr)
			s.finish(synth.Event{Type: synth.EventFailed, Err: ferr})
			return
		default:
			s.logger.Debug().Str("type", resp.Type).Msg("Ignoring synthesis message")
		}
	}
}
