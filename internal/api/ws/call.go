// Package wsapi serves calls over websocket. Binary messages carry 16 kHz
// 16-bit mono PCM in both directions; text messages carry control events.
package wsapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/session"
	"ai-media-hub-service/internal/service/stt"
)

// Control events.
const (
	EventSession      = "session"
	EventAnswer       = "answer"
	EventHangup       = "hangup"
	EventPlaybackStop = "playback_stop"
	EventError        = "error"
)

const writeTimeout = 5 * time.Second

// Control is a text message exchanged with the caller leg.
type Control struct {
	Event     string `json:"event"`
	SessionID string `json:"sessionId,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Publisher publishes call and clip events.
type Publisher interface {
	session.CallPublisher
	session.ClipPublisher
}

// Config holds the collaborators shared by every call.
type Config struct {
	STT       *agent.Pool[stt.Provider]
	Dialog    session.Dialog
	Factory   session.TaskFactory
	Registry  *session.Registry
	Events    Publisher
	Bucket    string
	WavPath   string
	SendDelay time.Duration
	FrameSize int
}

// Handler upgrades requests to call connections.
type Handler struct {
	base     context.Context
	cfg      Config
	upgrader websocket.Upgrader
}

// NewHandler creates a call handler. Calls in progress are dropped when
// base is done.
func NewHandler(base context.Context, cfg Config) *Handler {
	return &Handler{
		base: base,
		cfg:  cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger := logging.WithComponent("ws")
		logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}
	id := r.URL.Query().Get("sessionId")
	if id == "" {
		id = uuid.NewString()
	}
	ctx, cancel := context.WithCancel(h.base)
	c := &call{id: id, conn: conn, cancel: cancel, logger: logging.WithSession(id)}
	c.run(ctx, h.cfg)
}

// call is one connected caller leg.
type call struct {
	id     string
	conn   *websocket.Conn
	cancel context.CancelFunc
	logger zerolog.Logger

	writeMu sync.Mutex
	conv    *session.Conversation
	player  *session.Player
}

func (c *call) run(ctx context.Context, cfg Config) {
	defer c.cancel()

	sess := session.New(c.id, cfg.STT, session.Options{SendDelay: cfg.SendDelay})
	convCfg := session.ConversationConfig{
		Dialog:   cfg.Dialog,
		Hangup:   c.hangup,
		Bucket:   cfg.Bucket,
		WavPath:  cfg.WavPath,
		Registry: cfg.Registry,
		Events:   cfg.Events,
	}
	playerCfg := session.PlayerConfig{
		SessionID: c.id,
		Factory:   cfg.Factory,
		Sink:      audioSink{c},
		Events:    cfg.Events,
		FrameSize: cfg.FrameSize,
		OnStop: func(playID uint64) {
			c.send(Control{Event: EventPlaybackStop})
			c.conv.NotifyPlaybackStop(ctx, playID)
		},
	}
	c.conv = session.NewConversation(sess, convCfg)
	c.player = session.NewPlayer(ctx, playerCfg)

	defer func() {
		c.player.Close()
		c.conv.Close(context.Background())
		_ = c.conn.Close()
		c.logger.Info().Msg("Call connection closed")
	}()

	go func() {
		<-ctx.Done()
		_ = c.conn.Close()
	}()

	c.logger.Info().Msg("Call connected")
	c.send(Control{Event: EventSession, SessionID: c.id})

	for {
		mt, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Warn().Err(err).Msg("Call connection lost")
			}
			return
		}
		switch mt {
		case websocket.BinaryMessage:
			if err := c.conv.Transmit(ctx, data); err != nil && !errors.Is(err, session.ErrNoTranscriber) {
				c.logger.Warn().Err(err).Msg("Transmit failed")
			}
		case websocket.TextMessage:
			if !c.control(ctx, data) {
				return
			}
		}
	}
}

// control handles a text message and reports whether the call goes on.
func (c *call) control(ctx context.Context, data []byte) bool {
	var msg Control
	if err := json.Unmarshal(data, &msg); err != nil {
		c.send(Control{Event: EventError, Message: "invalid control message"})
		return true
	}
	switch msg.Event {
	case EventAnswer:
		if err := c.conv.NotifyUserAnswer(ctx); err != nil {
			c.send(Control{Event: EventError, Message: err.Error()})
			return true
		}
		if _, err := c.conv.StartListening(ctx); err != nil {
			c.logger.Warn().Err(err).Msg("Transcription unavailable")
			c.send(Control{Event: EventError, Message: err.Error()})
		}
		c.conv.Attach(c.player, c.player.PlayPath)
	case EventHangup:
		c.logger.Info().Msg("Caller hung up")
		return false
	default:
		c.send(Control{Event: EventError, Message: "unknown event " + msg.Event})
	}
	return true
}

// hangup tells the caller leg the assistant hung up and drops the connection.
func (c *call) hangup() {
	c.send(Control{Event: EventHangup})
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "hangup"),
		time.Now().Add(writeTimeout))
	c.writeMu.Unlock()
	c.cancel()
	_ = c.conn.Close()
}

func (c *call) send(msg Control) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	if err := c.write(websocket.TextMessage, data); err != nil {
		c.logger.Debug().Err(err).Str("event", msg.Event).Msg("Control write failed")
	}
}

func (c *call) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(messageType, data)
}

// audioSink writes playback frames as binary messages.
type audioSink struct{ c *call }

func (s audioSink) Write(p []byte) (int, error) {
	if err := s.c.write(websocket.BinaryMessage, p); err != nil {
		return 0, err
	}
	return len(p), nil
}
