package clip

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/synth"
)

// Volume applied to voice-clone requests, and the lower volume used when a
// voice-clone clip is part of a composite.
const (
	CosyVolume          = 100
	CompositeCosyVolume = 50
)

// SynthesisRequest describes one synthesized clip.
type SynthesisRequest struct {
	Kind       synth.Kind
	Voice      string
	PitchRate  string // raw value; empty when absent
	SpeechRate string
	Text       string // decoded
	Cache      bool

	hasVoice, hasPitch, hasSpeed bool
}

// ParseSynthesisRequest parses "{voice=..,pitch_rate=..,speech_rate=..,
// cache=..,text=<escaped>}suffix". Text is required.
func ParseSynthesisRequest(kind synth.Kind, path string) (SynthesisRequest, error) {
	vars, err := ParseVars(path)
	if err != nil {
		return SynthesisRequest{}, err
	}
	text, ok := vars.Get("text")
	if !ok {
		return SynthesisRequest{}, fmt.Errorf("%w: %q", ErrMissingText, path)
	}
	req := SynthesisRequest{
		Kind:  kind,
		Text:  UnescapeUnicode(text),
		Cache: vars.Bool("cache", false),
	}
	req.Voice, req.hasVoice = vars.Get("voice")
	req.PitchRate, req.hasPitch = vars.Get("pitch_rate")
	req.SpeechRate, req.hasSpeed = vars.Get("speech_rate")
	return req, nil
}

// NewSynthesisRequest builds a request from already decoded fields. An empty
// voice leaves the backend default in place.
func NewSynthesisRequest(kind synth.Kind, voice, text string) SynthesisRequest {
	return SynthesisRequest{Kind: kind, Voice: voice, Text: text, hasVoice: voice != ""}
}

// CacheKey returns "tts-" followed by the hex MD5 of
// "voice:pitch_rate:speech_rate:text". Absent fields are rendered as "null".
// Requests not marked cacheable have no key.
func (r SynthesisRequest) CacheKey() (string, bool) {
	if !r.Cache {
		return "", false
	}
	field := func(v string, ok bool) string {
		if !ok {
			return "null"
		}
		return v
	}
	src := field(r.Voice, r.hasVoice) + ":" +
		field(r.PitchRate, r.hasPitch) + ":" +
		field(r.SpeechRate, r.hasSpeed) + ":" +
		r.Text
	sum := md5.Sum([]byte(src))
	return "tts-" + hex.EncodeToString(sum[:]), true
}

// Params returns the backend parameters: PCM at 16 kHz, with the optional
// voice and rates. Rates that do not parse as integers are left unset.
func (r SynthesisRequest) Params() synth.Params {
	p := synth.Params{
		Format:     synth.FormatPCM,
		SampleRate: synth.DefaultSampleRate,
	}
	if r.Voice != "" {
		p.Voice = r.Voice
	}
	if n, err := strconv.Atoi(r.PitchRate); err == nil {
		p.PitchRate = &n
	}
	if n, err := strconv.Atoi(r.SpeechRate); err == nil {
		p.SpeechRate = &n
	}
	if r.Kind == synth.KindCosy {
		v := CosyVolume
		p.Volume = &v
	}
	return p
}

// Pool hands out leases on synthesis accounts.
type Pool interface {
	Acquire() (*agent.Lease[synth.Synthesizer], error)
}

// SynthesisClip streams one synthesis session. It serves both the TTS and
// the voice-clone engines; the request kind selects the engine family.
type SynthesisClip struct {
	req       SynthesisRequest
	pool      Pool
	configure func(*synth.Params)
	metrics   *metrics.Metrics
	logger    zerolog.Logger
}

// NewSynthesisClip creates a clip for req drawing accounts from pool.
// configure, when set, adjusts the parameters after the defaults are applied.
func NewSynthesisClip(req SynthesisRequest, pool Pool, configure func(*synth.Params)) *SynthesisClip {
	key, _ := req.CacheKey()
	return &SynthesisClip{
		req:       req,
		pool:      pool,
		configure: configure,
		metrics:   metrics.DefaultMetrics,
		logger:    logging.WithClip(string(req.Kind), key),
	}
}

// Request returns the clip request.
func (c *SynthesisClip) Request() SynthesisRequest { return c.req }

// Kind implements Task.
func (c *SynthesisClip) Kind() Kind { return Kind(c.req.Kind) }

// Key implements Task.
func (c *SynthesisClip) Key() (string, bool) { return c.req.CacheKey() }

// Run acquires an account, synthesizes the text once and forwards every audio
// frame in arrival order. The lease is released on every path.
func (c *SynthesisClip) Run(ctx context.Context, onChunk ChunkFunc) (err error) {
	start := time.Now()
	out := &counter{next: onChunk}
	defer func() { observe(c.metrics, c.Kind(), start, out.bytes, err) }()

	lease, err := c.pool.Acquire()
	if err != nil {
		return fmt.Errorf("acquire %s account: %w", c.req.Kind, err)
	}
	defer lease.Release()
	logger := c.logger.With().Str("account", lease.Name()).Logger()

	params := c.req.Params()
	if c.configure != nil {
		c.configure(&params)
	}

	var (
		mu      sync.Mutex
		failure error
		frames  int
	)
	listener := func(ev synth.Event) {
		switch ev.Type {
		case synth.EventAudio:
			frames++
			out.emit(ev.Audio)
		case synth.EventFailed:
			mu.Lock()
			failure = ev.Err
			mu.Unlock()
			logger.Warn().Err(ev.Err).Msg("Synthesis failed")
		case synth.EventStarted:
			logger.Info().Str("text", c.req.Text).Msg("Synthesis started")
		default:
			logger.Debug().Str("event", ev.Type.String()).Str("sentence", ev.Sentence).Msg("Synthesis event")
		}
	}

	s, err := lease.Client().StartStreamingSynthesis(ctx, params, listener)
	if err != nil {
		return fmt.Errorf("start synthesis: %w", err)
	}
	defer func() {
		if cerr := s.Close(); cerr != nil {
			logger.Debug().Err(cerr).Msg("Failed to close synthesis stream")
		}
	}()
	lease.MarkConnected()

	if err := s.Send(ctx, c.req.Text); err != nil {
		return fmt.Errorf("send text: %w", err)
	}
	if err := s.Stop(ctx); err != nil {
		return fmt.Errorf("complete synthesis: %w", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if failure != nil {
		return failure
	}
	logger.Info().
		Int("frames", frames).
		Int("bytes", out.bytes).
		Dur("elapsed", time.Since(start)).
		Msg("Synthesis complete")
	return nil
}
