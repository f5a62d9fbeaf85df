package clip

import (
	"bytes"
	"context"
	"testing"

	"ai-media-hub-service/internal/cache"
	"ai-media-hub-service/internal/service/synth"
	"ai-media-hub-service/internal/service/synth/mock"
)

func newTestCache(t *testing.T) *cache.Badger {
	t.Helper()
	c, err := cache.NewBadger(cache.BadgerOptions{InMemory: true})
	if err != nil {
		t.Fatalf("NewBadger: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCachedClipServesSecondRunFromCache(t *testing.T) {
	store := newTestCache(t)
	pool, m := newMockPool("tts")

	req, err := ParseSynthesisRequest(synth.KindTTS, "{voice=v,cache=true,text=hello}a.wav")
	if err != nil {
		t.Fatalf("ParseSynthesisRequest: %v", err)
	}
	want := mock.PCM("v", "hello")

	for i := 0; i < 2; i++ {
		task := WithCache(NewSynthesisClip(req, pool, nil), store)
		chunks, onChunk := collect()
		if err := task.Run(context.Background(), onChunk); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
		if got := join(*chunks); !bytes.Equal(got, want) {
			t.Errorf("run %d audio = %v, want %v", i, got, want)
		}
	}
	if n := len(m.Texts()); n != 1 {
		t.Errorf("backend called %d times, want 1", n)
	}

	key, _ := req.CacheKey()
	cached, err := store.Get(context.Background(), key)
	if err != nil || !bytes.Equal(cached, want) {
		t.Errorf("cache entry = %v, %v", cached, err)
	}
}

func TestWithCacheSkipsUncacheable(t *testing.T) {
	store := newTestCache(t)
	pool, _ := newMockPool("tts")

	plain := NewSynthesisClip(NewSynthesisRequest(synth.KindTTS, "v", "x"), pool, nil)
	if got := WithCache(plain, store); got != Task(plain) {
		t.Error("uncacheable clip was wrapped")
	}
	req, _ := ParseSynthesisRequest(synth.KindTTS, "{cache=true,text=x}")
	cacheable := NewSynthesisClip(req, pool, nil)
	if got := WithCache(cacheable, nil); got != Task(cacheable) {
		t.Error("nil store wrapped the clip")
	}
	if _, ok := WithCache(cacheable, store).(*CachedClip); !ok {
		t.Error("cacheable clip not wrapped")
	}
}

func TestCachedClipDoesNotStoreFailures(t *testing.T) {
	store := newTestCache(t)
	pool, m := newMockPool("tts")
	m.FailOn["oops"] = true

	req, _ := ParseSynthesisRequest(synth.KindTTS, "{cache=true,text=oops}")
	if err := WithCache(NewSynthesisClip(req, pool, nil), store).Run(context.Background(), func([]byte) {}); err == nil {
		t.Fatal("Run returned nil")
	}
	key, _ := req.CacheKey()
	if _, err := store.Get(context.Background(), key); err != cache.ErrNotFound {
		t.Errorf("failed clip was cached: err = %v", err)
	}
}
