package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-media-hub-service/internal/models"
	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/service/clip"
)

// IdleTimeout is the silence after which the dialog is asked for an
// idle-triggered reply.
const IdleTimeout = 5000 * time.Millisecond

// Reply is what the dialog wants the assistant to say next.
type Reply struct {
	VoiceMode    string            `json:"voiceMode"`
	Cps          []clip.Descriptor `json:"cps,omitempty"`
	AISpeechFile string            `json:"ai_speech_file,omitempty"`
	ReplyContent string            `json:"reply_content,omitempty"`
	PauseOnSpeak *bool             `json:"pause_on_speak,omitempty"`
	Hangup       int               `json:"hangup"`
}

func (r *Reply) pauseOnSpeak() bool {
	return r != nil && r.PauseOnSpeak != nil && *r.PauseOnSpeak
}

func (r *Reply) hangup() bool {
	return r != nil && r.Hangup == 1
}

// ReplyRequest asks the dialog for the next reply. SpeechText is empty and
// IdleTime positive for idle-triggered requests.
type ReplyRequest struct {
	SessionID  string
	SpeechText string
	AISpeaking bool
	IdleTime   time.Duration
}

// Dialog decides what the assistant says.
type Dialog interface {
	// ApplySession opens a dialog session and returns its id and opening reply.
	ApplySession(ctx context.Context) (string, *Reply, error)
	// AIReply returns the next reply, or nil when there is nothing to say.
	AIReply(ctx context.Context, req ReplyRequest) (*Reply, error)
}

// Playback is the assistant's audio output as seen by the conversation.
type Playback interface {
	IsPlaying() bool
	// IdleStart returns when playback last went idle, zero if never.
	IdleStart() time.Time
	Pause()
	Resume()
}

// PlayFunc starts playing the clip a playback path names and returns its
// play id, zero when nothing is played.
type PlayFunc func(path string) uint64

// CallPublisher publishes call lifecycle events.
type CallPublisher interface {
	PublishCall(ctx context.Context, event models.CallEvent) error
}

// ConversationConfig holds the collaborators of a Conversation.
type ConversationConfig struct {
	Dialog   Dialog
	Hangup   func()
	Bucket   string
	WavPath  string
	Registry *Registry
	Events   CallPublisher
	// Clock defaults to time.Now.
	Clock func() time.Time
}

// Conversation is a Session that talks with the caller: it asks the dialog
// for replies, plays them, pauses on barge-in and hangs up when told to.
type Conversation struct {
	*Session

	dialog   Dialog
	doHangup func()
	bucket   string
	wavPath  string
	registry *Registry
	events   CallPublisher
	now      func() time.Time

	mu           sync.Mutex
	dialogID     string
	lastReply    *Reply
	replyPlay    uint64 // play id of lastReply's clip
	stoppedPlay  uint64 // play id of the last clip played to its end
	playback     Playback
	play         PlayFunc
	idleStart    time.Time
	userSpeaking bool
}

// NewConversation wraps s.
func NewConversation(s *Session, cfg ConversationConfig) *Conversation {
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &Conversation{
		Session:   s,
		dialog:    cfg.Dialog,
		doHangup:  cfg.Hangup,
		bucket:    cfg.Bucket,
		wavPath:   cfg.WavPath,
		registry:  cfg.Registry,
		events:    cfg.Events,
		now:       now,
		idleStart: now(),
	}
}

// DialogID returns the correlation id assigned by the dialog, empty until
// the user answered.
func (c *Conversation) DialogID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dialogID
}

// LastReply returns the reply currently in effect.
func (c *Conversation) LastReply() *Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastReply
}

func (c *Conversation) logger() *zerolog.Logger {
	l := logging.WithStream(c.ID(), c.DialogID(), "")
	return &l
}

// NotifyUserAnswer opens the dialog session and registers the conversation
// under the dialog id.
func (c *Conversation) NotifyUserAnswer(ctx context.Context) error {
	id, reply, err := c.dialog.ApplySession(ctx)
	if err != nil {
		c.metrics.RecordDialogError("apply_session")
		c.logger().Warn().Err(err).Msg("Apply session failed")
		return fmt.Errorf("apply session: %w", err)
	}
	c.mu.Lock()
	c.dialogID = id
	c.lastReply = reply
	c.mu.Unlock()

	if c.registry != nil {
		c.registry.Add(c)
	}
	c.publish(ctx, models.CallStarted, reply)
	c.logger().Info().Msg("Call started")
	return nil
}

// Attach connects the assistant's playback and plays the reply in effect.
func (c *Conversation) Attach(playback Playback, play PlayFunc) {
	c.mu.Lock()
	c.playback = playback
	c.play = play
	reply := c.lastReply
	c.mu.Unlock()
	if reply != nil {
		c.doPlayback(reply)
	}
}

// CheckIdle asks the dialog for an idle reply when the caller answered,
// nobody speaks and the silence lasted longer than IdleTimeout. It reports
// whether a reply was requested.
func (c *Conversation) CheckIdle(ctx context.Context) bool {
	c.mu.Lock()
	since := c.idleStart
	aiSpeaking := false
	if c.playback != nil {
		if t := c.playback.IdleStart(); t.After(since) {
			since = t
		}
		aiSpeaking = c.playback.IsPlaying()
	}
	idle := c.now().Sub(since)
	id, userSpeaking := c.dialogID, c.userSpeaking
	c.mu.Unlock()

	logger := c.logger()
	logger.Debug().
		Bool("userSpeaking", userSpeaking).
		Bool("aiSpeaking", aiSpeaking).
		Dur("idle", idle).
		Msg("Check idle")

	if id == "" || userSpeaking || aiSpeaking || idle <= IdleTimeout {
		return false
	}
	logger.Info().Dur("idle", idle).Dur("timeout", IdleTimeout).Msg("Idle timeout, asking for reply")

	reply, err := c.dialog.AIReply(ctx, ReplyRequest{SessionID: id, IdleTime: idle})
	switch {
	case err != nil:
		c.metrics.RecordDialogError("ai_reply")
		c.metrics.RecordIdleReply("error")
		logger.Warn().Err(err).Msg("Idle reply failed")
	case reply == nil:
		c.metrics.RecordIdleReply("empty")
		logger.Info().Msg("Idle reply empty, do nothing")
	case c.doPlayback(reply):
		c.metrics.RecordIdleReply("played")
	default:
		c.metrics.RecordIdleReply("ignored")
	}
	return true
}

// NotifySpeechBegin marks the caller speaking and pauses playback when the
// reply in effect allows barge-in.
func (c *Conversation) NotifySpeechBegin() {
	c.mu.Lock()
	c.userSpeaking = true
	pause := c.lastReply.pauseOnSpeak() && c.playback != nil
	playback := c.playback
	c.mu.Unlock()

	if pause {
		playback.Pause()
		c.metrics.RecordBargeIn()
		c.logger().Info().Msg("Caller barged in, playback paused")
	}
}

// NotifySpeechEnd marks the caller silent, restarts the idle timer, resumes
// paused playback and asks the dialog for the reply to text.
func (c *Conversation) NotifySpeechEnd(ctx context.Context, text string) {
	c.mu.Lock()
	c.userSpeaking = false
	c.idleStart = c.now()
	resume := c.lastReply.pauseOnSpeak() && c.playback != nil
	playback := c.playback
	id := c.dialogID
	c.mu.Unlock()

	if resume {
		playback.Resume()
	}
	if id == "" {
		return
	}

	aiSpeaking := playback != nil && playback.IsPlaying()
	reply, err := c.dialog.AIReply(ctx, ReplyRequest{SessionID: id, SpeechText: text, AISpeaking: aiSpeaking})
	if err != nil {
		c.metrics.RecordDialogError("ai_reply")
		c.logger().Warn().Err(err).Msg("Reply failed")
		return
	}
	if reply == nil {
		c.logger().Info().Msg("Reply empty, do nothing")
		return
	}
	c.doPlayback(reply)
}

// NotifyPlaybackStop reports that the clip with playID played to its end.
// It hangs up when that clip is the one of a reply that asked for it; clips
// of earlier replies never do.
func (c *Conversation) NotifyPlaybackStop(ctx context.Context, playID uint64) {
	c.mu.Lock()
	c.stoppedPlay = playID
	hangup := c.lastReply.hangup() && playID != 0 && playID == c.replyPlay
	c.mu.Unlock()
	if hangup {
		c.hangup(ctx)
	}
}

func (c *Conversation) hangup(ctx context.Context) {
	c.metrics.RecordHangup()
	c.publish(ctx, models.CallHangup, nil)
	c.logger().Info().Msg("Reply finished, hanging up")
	if c.doHangup != nil {
		c.doHangup()
	}
}

// Close releases the session and unregisters the conversation.
func (c *Conversation) Close(ctx context.Context) {
	if !c.Session.close(ctx) {
		return
	}
	id := c.DialogID()
	if id == "" {
		return
	}
	if c.registry != nil {
		c.registry.Remove(id)
	}
	c.publish(ctx, models.CallClosed, nil)
}

// PlaybackPath renders the playback path for reply. It returns false for
// voice modes that have no audio.
func PlaybackPath(reply *Reply, bucket, wavPath string) (string, bool) {
	switch reply.VoiceMode {
	case "cp":
		cps, err := json.Marshal(reply.Cps)
		if err != nil {
			return "", false
		}
		return "type=cp," + string(cps), true
	case "wav":
		return fmt.Sprintf("{bucket=%s}%s%s", bucket, wavPath, reply.AISpeechFile), true
	case "tts":
		return fmt.Sprintf("{type=tts,text=%s}tts.wav", clip.EscapeUnicode(reply.ReplyContent)), true
	default:
		return "", false
	}
}

// doPlayback plays reply and makes it the reply in effect. Replies without
// audio are ignored.
func (c *Conversation) doPlayback(reply *Reply) bool {
	path, ok := PlaybackPath(reply, c.bucket, c.wavPath)
	if !ok {
		c.logger().Info().Str("voiceMode", reply.VoiceMode).Msg("Unknown reply, ignore")
		return false
	}
	c.mu.Lock()
	play := c.play
	if play == nil {
		c.mu.Unlock()
		c.logger().Warn().Msg("No playback attached, reply dropped")
		return false
	}
	c.lastReply = reply
	c.replyPlay = 0
	c.mu.Unlock()

	c.logger().Info().Str("voiceMode", reply.VoiceMode).Str("path", path).Msg("Playing reply")
	id := play(path)

	c.mu.Lock()
	// a clip may finish before play returns its id
	finished := false
	if c.lastReply == reply {
		c.replyPlay = id
		finished = id != 0 && c.stoppedPlay == id
	}
	c.mu.Unlock()
	if finished && reply.hangup() {
		c.hangup(context.Background())
	}
	return true
}

// StartListening starts transcription with callbacks that drive the
// conversation. ctx bounds the dialog requests made from those callbacks.
func (c *Conversation) StartListening(ctx context.Context) (bool, error) {
	return c.StartTranscription(ctx, &listener{conv: c, ctx: ctx})
}

// listener turns transcriber events into conversation events.
type listener struct {
	conv *Conversation
	ctx  context.Context

	mu   sync.Mutex
	text string
}

func (l *listener) OnStarted() {}

func (l *listener) OnSpeechBegin() {
	l.conv.NotifySpeechBegin()
}

func (l *listener) OnPartial(text string) {
	l.conv.logger().Debug().Str("text", text).Msg("Partial transcript")
}

func (l *listener) OnFinal(text string, confidence float64) {
	l.mu.Lock()
	if l.text == "" {
		l.text = text
	} else {
		l.text += " " + text
	}
	l.mu.Unlock()
	l.conv.logger().Info().Str("text", text).Float64("confidence", confidence).Msg("Final transcript")
}

func (l *listener) OnEndOfUtterance() {
	l.mu.Lock()
	text := l.text
	l.text = ""
	l.mu.Unlock()
	l.conv.NotifySpeechEnd(l.ctx, text)
}

func (l *listener) OnError(err error) {
	l.conv.logger().Error().Err(err).Msg("Transcriber error")
	logging.Capture(err, map[string]string{"session": l.conv.ID(), "component": "stt"})
}

func (c *Conversation) publish(ctx context.Context, eventType string, reply *Reply) {
	if c.events == nil {
		return
	}
	ev := models.CallEvent{
		EventType: eventType,
		SessionID: c.DialogID(),
		Timestamp: c.now().UnixMilli(),
	}
	if reply != nil {
		ev.VoiceMode = reply.VoiceMode
	}
	if eventType == models.CallClosed {
		ev.DurationMs = time.Since(c.createdAt).Milliseconds()
	}
	if err := c.events.PublishCall(ctx, ev); err != nil {
		c.logger().Warn().Err(err).Str("eventType", eventType).Msg("Publish call event failed")
	}
}
