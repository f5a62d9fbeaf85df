package session

import (
	"context"
	"errors"
	"io"
	"strconv"
	"sync"
	"time"

	"ai-media-hub-service/internal/models"
	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/service/clip"
	"ai-media-hub-service/internal/stream"
)

// DefaultFrameSize is 20 ms of 16 kHz 16-bit mono PCM.
const DefaultFrameSize = 640

// BytesPerSecond is the playback rate of 16 kHz 16-bit mono PCM.
const BytesPerSecond = 32000

// playTime returns how long n bytes of PCM take to play.
func playTime(n int) time.Duration {
	return time.Duration(n) * time.Second / BytesPerSecond
}

// TaskFactory builds the clip a playback path names.
type TaskFactory interface {
	FromPath(path string) (clip.Task, error)
}

// ClipPublisher publishes clip outcome events.
type ClipPublisher interface {
	PublishClip(ctx context.Context, event models.ClipEvent) error
}

// PlayerConfig holds the collaborators of a Player.
type PlayerConfig struct {
	SessionID string
	Factory   TaskFactory
	// Sink receives the audio in frames of FrameSize bytes.
	Sink   io.Writer
	Events ClipPublisher
	// OnStop runs with the play id of a clip that was played to its end.
	OnStop    func(playID uint64)
	FrameSize int
}

// Player plays one clip at a time into a sink. Each clip is produced into a
// stream.Buffer by one goroutine and drained into the sink by another at the
// real-time rate, so IsPlaying holds while the caller still hears the clip
// and Pause stops the next frame. A new Play supersedes the current one.
type Player struct {
	ctx       context.Context
	sessionID string
	factory   TaskFactory
	sink      io.Writer
	events    ClipPublisher
	onStop    func(playID uint64)
	frameSize int

	mu        sync.Mutex
	playing   bool
	idleStart time.Time
	resumed   chan struct{} // non-nil while paused
	cancel    context.CancelFunc
	gen       uint64
	playIdx   uint64

	wg sync.WaitGroup
}

// NewPlayer creates a player. Playback stops when ctx is done.
func NewPlayer(ctx context.Context, cfg PlayerConfig) *Player {
	frame := cfg.FrameSize
	if frame <= 0 {
		frame = DefaultFrameSize
	}
	return &Player{
		ctx:       ctx,
		sessionID: cfg.SessionID,
		factory:   cfg.Factory,
		sink:      cfg.Sink,
		events:    cfg.Events,
		onStop:    cfg.OnStop,
		frameSize: frame,
	}
}

// Play starts playing the clip path names, stopping the current one.
func (p *Player) Play(path string) error {
	_, err := p.start(path)
	return err
}

// PlayPath is Play returning the play id of the started clip, zero when it
// could not be built. It is usable as a PlayFunc.
func (p *Player) PlayPath(path string) uint64 {
	id, _ := p.start(path)
	return id
}

func (p *Player) start(path string) (uint64, error) {
	task, err := p.factory.FromPath(path)
	if err != nil {
		logger := logging.WithSession(p.sessionID)
		logger.Warn().Err(err).Str("path", path).Msg("Cannot build clip for playback")
		return 0, err
	}

	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	ctx, cancel := context.WithCancel(p.ctx)
	p.cancel = cancel
	p.gen++
	gen := p.gen
	p.playIdx++
	idx := p.playIdx
	p.playing = true
	p.mu.Unlock()

	buf := stream.NewBuffer(stream.Identity{
		Path:      path,
		SessionID: p.sessionID,
		ContentID: string(task.Kind()),
		PlayIdx:   strconv.FormatUint(idx, 10),
	})

	p.wg.Add(2)
	go func() {
		defer p.wg.Done()
		start := time.Now()
		err := clip.Pipe(ctx, task, buf)
		p.publishClip(task, buf.Buffered(), start, err)
	}()
	go func() {
		defer p.wg.Done()
		p.finish(gen, idx, p.pump(ctx, buf))
	}()
	return idx, nil
}

// pump copies buf into the sink frame by frame at the playback rate,
// holding back while paused. A frame read while the pump waited on the
// producer is held too if Pause arrived meanwhile. pump returns after the
// last frame finished playing and reports whether the clip played to its
// end.
func (p *Player) pump(ctx context.Context, buf *stream.Buffer) bool {
	frame := make([]byte, p.frameSize)
	var due time.Time
	for {
		if err := p.waitResumed(ctx); err != nil {
			return false
		}
		n, err := buf.Read(frame)
		if ctx.Err() != nil {
			return false
		}
		if n > 0 {
			if werr := p.waitResumed(ctx); werr != nil {
				return false
			}
			if now := time.Now(); due.Before(now) {
				// first frame, or resuming after a pause or a producer stall
				due = now
			}
			if _, werr := p.sink.Write(frame[:n]); werr != nil {
				logger := logging.WithSession(p.sessionID)
				logger.Warn().Err(werr).Msg("Playback sink write failed")
				return false
			}
			due = due.Add(playTime(n))
			if werr := sleepUntil(ctx, due); werr != nil {
				return false
			}
		}
		if errors.Is(err, io.EOF) {
			return true
		}
	}
}

func sleepUntil(ctx context.Context, t time.Time) error {
	d := time.Until(t)
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Player) finish(gen, playID uint64, completed bool) {
	p.mu.Lock()
	if gen != p.gen {
		// superseded by a newer Play
		p.mu.Unlock()
		return
	}
	p.playing = false
	p.idleStart = time.Now()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.mu.Unlock()

	if completed && p.onStop != nil {
		p.onStop(playID)
	}
}

func (p *Player) waitResumed(ctx context.Context) error {
	p.mu.Lock()
	ch := p.resumed
	p.mu.Unlock()
	if ch == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-ch:
		return nil
	}
}

// IsPlaying implements Playback.
func (p *Player) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing
}

// IdleStart implements Playback.
func (p *Player) IdleStart() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idleStart
}

// Pause holds back further frames until Resume.
func (p *Player) Pause() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumed == nil {
		p.resumed = make(chan struct{})
	}
}

// Resume releases a paused player.
func (p *Player) Resume() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.resumed != nil {
		close(p.resumed)
		p.resumed = nil
	}
}

// Paused reports whether the player is paused.
func (p *Player) Paused() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.resumed != nil
}

// Stop cancels the current clip without running OnStop.
func (p *Player) Stop() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	p.gen++
	if p.playing {
		p.playing = false
		p.idleStart = time.Now()
	}
	p.mu.Unlock()
}

// Close stops playback and waits for its goroutines.
func (p *Player) Close() {
	p.Stop()
	p.wg.Wait()
}

func (p *Player) publishClip(task clip.Task, bytes int64, start time.Time, err error) {
	if p.events == nil {
		return
	}
	ev := models.ClipEvent{
		EventType:  models.ClipCompleted,
		SessionID:  p.sessionID,
		Kind:       string(task.Kind()),
		Bytes:      bytes,
		Timestamp:  time.Now().UnixMilli(),
		DurationMs: time.Since(start).Milliseconds(),
	}
	if key, ok := task.Key(); ok {
		ev.CacheKey = key
	}
	if err != nil {
		ev.EventType = models.ClipFailed
		ev.Error = err.Error()
	}
	if perr := p.events.PublishClip(p.ctx, ev); perr != nil {
		logger := logging.WithSession(p.sessionID)
		logger.Warn().Err(perr).Msg("Publish clip event failed")
	}
}
