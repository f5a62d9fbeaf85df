package clip

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/synth"
	"ai-media-hub-service/internal/service/synth/mock"
)

func TestParseSynthesisRequest(t *testing.T) {
	req, err := ParseSynthesisRequest(synth.KindCosy, "{type=cosy,voice=v1,pitch_rate=10,speech_rate=-20,cache=true,text=\\u4f60\\u597d}x.wav")
	if err != nil {
		t.Fatalf("ParseSynthesisRequest: %v", err)
	}
	if req.Text != "\u4f60\u597d" {
		t.Errorf("Text = %q", req.Text)
	}
	if req.Voice != "v1" || req.PitchRate != "10" || req.SpeechRate != "-20" || !req.Cache {
		t.Errorf("request = %+v", req)
	}
	key, ok := req.CacheKey()
	if !ok || key != "tts-a1b83f7023c39f9e1e039a0410399b8a" {
		t.Errorf("CacheKey = %q, %v", key, ok)
	}
}

func TestParseSynthesisRequestErrors(t *testing.T) {
	tests := []struct {
		path string
		want error
	}{
		{"tts.wav", ErrMissingVars},
		{"{voice=v1}tts.wav", ErrMissingText},
	}
	for _, tt := range tests {
		if _, err := ParseSynthesisRequest(synth.KindTTS, tt.path); !errors.Is(err, tt.want) {
			t.Errorf("ParseSynthesisRequest(%q) err = %v, want %v", tt.path, err, tt.want)
		}
	}
}

func TestCacheKey(t *testing.T) {
	base := "{voice=voiceA,cache=true,text=hi}a.wav"
	req, _ := ParseSynthesisRequest(synth.KindTTS, base)
	key, ok := req.CacheKey()
	if !ok {
		t.Fatal("cacheable request has no key")
	}
	if key != "tts-a1c4e5821dcba67bf620d3f012a35455" {
		t.Errorf("CacheKey = %q", key)
	}

	same, _ := ParseSynthesisRequest(synth.KindCosy, "{text=hi,cache=true,voice=voiceA}other.wav")
	if k, _ := same.CacheKey(); k != key {
		t.Errorf("identical fields produced %q, want %q", k, key)
	}

	variants := []string{
		"{voice=voiceB,cache=true,text=hi}a.wav",
		"{voice=voiceA,pitch_rate=1,cache=true,text=hi}a.wav",
		"{voice=voiceA,speech_rate=1,cache=true,text=hi}a.wav",
		"{voice=voiceA,cache=true,text=ho}a.wav",
	}
	for _, v := range variants {
		r, _ := ParseSynthesisRequest(synth.KindTTS, v)
		if k, _ := r.CacheKey(); k == key {
			t.Errorf("%q shares key with base request", v)
		}
	}

	off, _ := ParseSynthesisRequest(synth.KindTTS, "{voice=voiceA,cache=false,text=hi}a.wav")
	if _, ok := off.CacheKey(); ok {
		t.Error("cache=false request has a key")
	}
	def, _ := ParseSynthesisRequest(synth.KindTTS, "{voice=voiceA,text=hi}a.wav")
	if _, ok := def.CacheKey(); ok {
		t.Error("request without cache flag has a key")
	}
}

func TestSynthesisParams(t *testing.T) {
	req, _ := ParseSynthesisRequest(synth.KindCosy, "{voice=v,pitch_rate=5,speech_rate=abc,text=x}")
	p := req.Params()
	if p.Format != synth.FormatPCM || p.SampleRate != 16000 {
		t.Errorf("format = %s/%d", p.Format, p.SampleRate)
	}
	if p.PitchRate == nil || *p.PitchRate != 5 {
		t.Errorf("PitchRate = %v", p.PitchRate)
	}
	if p.SpeechRate != nil {
		t.Errorf("invalid speech rate should stay unset, got %d", *p.SpeechRate)
	}
	if p.Volume == nil || *p.Volume != CosyVolume {
		t.Errorf("cosy Volume = %v", p.Volume)
	}

	tts, _ := ParseSynthesisRequest(synth.KindTTS, "{text=x}")
	if tts.Params().Volume != nil {
		t.Error("tts requests should not set volume")
	}
}

func TestSynthesisClipRun(t *testing.T) {
	pool, m := newMockPool("tts")
	m.ChunkSize = 3
	c := NewSynthesisClip(NewSynthesisRequest(synth.KindTTS, "voiceA", "hello"), pool, nil)

	chunks, onChunk := collect()
	if err := c.Run(context.Background(), onChunk); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got, want := join(*chunks), mock.PCM("voiceA", "hello"); !bytes.Equal(got, want) {
		t.Errorf("audio = %v, want %v", got, want)
	}
	if len(*chunks) < 2 {
		t.Errorf("expected several frames, got %d", len(*chunks))
	}
	if texts := m.Texts(); len(texts) != 1 || texts[0] != "hello" {
		t.Errorf("texts sent = %v", texts)
	}
	if m.Active() != 0 {
		t.Errorf("stream left open: active = %d", m.Active())
	}
	assertIdle(t, pool)
}

func TestSynthesisClipConfigure(t *testing.T) {
	pool, m := newMockPool("cosy")
	c := NewSynthesisClip(NewSynthesisRequest(synth.KindCosy, "v", "x"), pool, compositeCosy)
	if err := c.Run(context.Background(), func([]byte) {}); err != nil {
		t.Fatalf("Run: %v", err)
	}
	params := m.Params()
	if len(params) != 1 || params[0].Volume == nil || *params[0].Volume != CompositeCosyVolume {
		t.Errorf("params = %+v", params)
	}
}

func TestSynthesisClipFailures(t *testing.T) {
	tests := []struct {
		name  string
		setup func(m *mock.Synthesizer)
	}{
		{"backend failure", func(m *mock.Synthesizer) { m.FailOn["boom"] = true }},
		{"start rejected", func(m *mock.Synthesizer) { m.RejectStart = true }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pool, m := newMockPool("tts")
			tt.setup(m)
			c := NewSynthesisClip(NewSynthesisRequest(synth.KindTTS, "v", "boom"), pool, nil)
			if err := c.Run(context.Background(), func([]byte) {}); err == nil {
				t.Fatal("Run returned nil")
			}
			assertIdle(t, pool)
		})
	}
}

func TestSynthesisClipNoCapacity(t *testing.T) {
	pool := agent.NewPool[synth.Synthesizer]("tts", nil)
	c := NewSynthesisClip(NewSynthesisRequest(synth.KindTTS, "v", "x"), pool, nil)
	if err := c.Run(context.Background(), func([]byte) {}); !errors.Is(err, agent.ErrNoCapacity) {
		t.Errorf("err = %v, want ErrNoCapacity", err)
	}
}

func assertIdle(t *testing.T, pool *agent.Pool[synth.Synthesizer]) {
	t.Helper()
	for _, s := range pool.Stats() {
		if s.Connections != 0 || s.Connected != 0 {
			t.Errorf("%s: connections=%d connected=%d after run", s.Name, s.Connections, s.Connected)
		}
	}
}
