package clip

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"ai-media-hub-service/internal/service/synth/mock"
)

func newTestFactory(t *testing.T) (*Factory, *fakeStore, *mock.Synthesizer, *mock.Synthesizer) {
	t.Helper()
	store := newFakeStore()
	ttsPool, tts := newMockPool("tts")
	cosyPool, cosy := newMockPool("cosy")
	return &Factory{Store: store, TTS: ttsPool, Cosy: cosyPool}, store, tts, cosy
}

func TestCompositeStorageThenSynthesis(t *testing.T) {
	f, store, tts, _ := newTestFactory(t)
	wavData := encodeWAV(t, 16000, 1, []int{1, 2, 3})
	_ = store.Put(context.Background(), "bkt", "a.wav", wavData)

	c, err := f.NewComposite(`rms://{type=cp}[{"b":"bkt","p":"a.wav"},{"t":"tts","v":"voiceA","x":"\u0068\u0069"}],tail`)
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}

	chunks, onChunk := collect()
	if err := c.Run(context.Background(), onChunk); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var want []byte
	want = append(want, StreamingHeader()...)
	want = append(want, pcm16(1, 2, 3)...)
	want = append(want, mock.PCM("voiceA", "hi")...)
	if got := join(*chunks); !bytes.Equal(got, want) {
		t.Errorf("output = %v\nwant     %v", got, want)
	}
	if !bytes.Equal((*chunks)[0], StreamingHeader()) {
		t.Error("first chunk is not the streaming header")
	}
	if texts := tts.Texts(); len(texts) != 1 || texts[0] != "hi" {
		t.Errorf("synthesized texts = %v, want [hi]", texts)
	}
}

func TestCompositeDispatch(t *testing.T) {
	f, store, tts, cosy := newTestFactory(t)
	_ = store.Put(context.Background(), "bkt", "x.wav", encodeWAV(t, 16000, 1, []int{7}))

	// bucket wins over the type tag, unknown types are skipped
	c, err := f.NewComposite(`[{"t":"tts","b":"bkt","p":"x.wav"},{"t":"weird","x":"nope"},{},{"t":"cosy","v":"clone","x":"yo"}]`)
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}
	chunks, onChunk := collect()
	if err := c.Run(context.Background(), onChunk); err != nil {
		t.Fatalf("Run: %v", err)
	}

	var want []byte
	want = append(want, StreamingHeader()...)
	want = append(want, pcm16(7)...)
	want = append(want, mock.PCM("clone", "yo")...)
	if got := join(*chunks); !bytes.Equal(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
	if len(tts.Texts()) != 0 {
		t.Errorf("tts used for bucket descriptor: %v", tts.Texts())
	}
	params := cosy.Params()
	if len(params) != 1 || params[0].Volume == nil || *params[0].Volume != CompositeCosyVolume {
		t.Errorf("cosy params = %+v", params)
	}
}

func TestCompositeSkipsFailedClips(t *testing.T) {
	f, _, tts, _ := newTestFactory(t)
	tts.FailOn["bad"] = true

	c, err := f.NewComposite(`[{"b":"bkt","p":"missing.wav"},{"t":"tts","v":"v","x":"bad"},{"t":"tts","v":"v","x":"good"}]`)
	if err != nil {
		t.Fatalf("NewComposite: %v", err)
	}
	chunks, onChunk := collect()
	if err := c.Run(context.Background(), onChunk); err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := append(StreamingHeader(), mock.PCM("v", "good")...)
	if got := join(*chunks); !bytes.Equal(got, want) {
		t.Errorf("output = %v, want %v", got, want)
	}
}

func TestCompositeCancelled(t *testing.T) {
	f, _, tts, _ := newTestFactory(t)
	c, _ := f.NewComposite(`[{"t":"tts","v":"v","x":"a"},{"t":"tts","v":"v","x":"b"}]`)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	chunks, onChunk := collect()
	if err := c.Run(ctx, onChunk); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(*chunks) != 1 {
		t.Errorf("chunks = %d, want only the header", len(*chunks))
	}
	if len(tts.Texts()) != 0 {
		t.Errorf("clips ran after cancellation: %v", tts.Texts())
	}
}

func TestCompositeRunsOnce(t *testing.T) {
	f, _, _, _ := newTestFactory(t)
	c, _ := f.NewComposite(`[]`)
	if err := c.Run(context.Background(), func([]byte) {}); err != nil {
		t.Fatalf("first Run: %v", err)
	}
	if err := c.Run(context.Background(), func([]byte) {}); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run err = %v, want ErrAlreadyRun", err)
	}
}

func TestParseDescriptors(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantLen int
		wantErr error
	}{
		{"plain", `[{"b":"x","p":"y"}]`, 1, nil},
		{"prefixed", `type=cp,[{"t":"tts"},{"t":"cosy"}]`, 2, nil},
		{"empty", `[]`, 0, nil},
		{"no bracket", `{"b":"x"}`, 0, ErrMissingVars},
		{"unterminated", `[{"b":"x"}`, 0, ErrMissingVars},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			descs, err := ParseDescriptors(tt.path)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseDescriptors: %v", err)
			}
			if len(descs) != tt.wantLen {
				t.Errorf("len = %d, want %d", len(descs), tt.wantLen)
			}
		})
	}

	if _, err := ParseDescriptors(`[{"b":]`); err == nil || errors.Is(err, ErrMissingVars) {
		t.Errorf("invalid JSON err = %v", err)
	}
}

func TestFactoryFromPath(t *testing.T) {
	f, _, _, _ := newTestFactory(t)
	tests := []struct {
		path string
		want Kind
	}{
		{`[{"t":"tts"}]`, KindComposite},
		{`type=cp,[{"t":"tts"}]`, KindComposite},
		{`{type=tts,text=\u0068\u0069}tts.wav`, KindTTS},
		{`{type=cosy,voice=v,text=x}c.wav`, KindCosy},
		{`{bucket=bkt}dir/a.wav`, KindObject},
	}
	for _, tt := range tests {
		task, err := f.FromPath(tt.path)
		if err != nil {
			t.Errorf("FromPath(%q): %v", tt.path, err)
			continue
		}
		if task.Kind() != tt.want {
			t.Errorf("FromPath(%q).Kind() = %s, want %s", tt.path, task.Kind(), tt.want)
		}
	}

	obj, _ := f.FromPath(`{bucket=bkt}dir/a.wav`)
	if oc, ok := obj.(*ObjectClip); !ok || oc.Bucket != "bkt" || oc.Object != "dir/a.wav" {
		t.Errorf("object clip = %+v", obj)
	}

	for _, bad := range []string{"plain.wav", "{type=tts}missing-text.wav", "{voice=x}no-type.wav"} {
		if _, err := f.FromPath(bad); err == nil {
			t.Errorf("FromPath(%q) succeeded", bad)
		}
	}

	noCosy := &Factory{TTS: f.TTS}
	if _, err := noCosy.FromPath(`{type=cosy,text=x}c.wav`); err == nil {
		t.Error("cosy clip built without a cosy pool")
	}
}
