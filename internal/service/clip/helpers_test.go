package clip

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/synth"
	"ai-media-hub-service/internal/service/synth/mock"
)

// fakeStore is an in-memory storage.ObjectStore.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (s *fakeStore) Get(_ context.Context, bucket, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	data, ok := s.objects[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", bucket, key, os.ErrNotExist)
	}
	return data, nil
}

func (s *fakeStore) Put(_ context.Context, bucket, key string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[bucket+"/"+key] = data
	return nil
}

func (s *fakeStore) Exists(_ context.Context, bucket, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[bucket+"/"+key]
	return ok, nil
}

func newSynthPool(name string, s synth.Synthesizer) *agent.Pool[synth.Synthesizer] {
	return agent.NewPool(name, []*agent.Handle[synth.Synthesizer]{
		agent.NewHandle[synth.Synthesizer](name+"-1", 0, s),
	})
}

func newMockPool(name string) (*agent.Pool[synth.Synthesizer], *mock.Synthesizer) {
	m := mock.New()
	return newSynthPool(name, m), m
}

// encodeWAV renders interleaved 16-bit samples as a WAV file.
func encodeWAV(t *testing.T, rate, channels int, samples []int) []byte {
	t.Helper()
	path := filepath.Join(t.TempDir(), "clip.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	enc := wav.NewEncoder(f, rate, 16, channels, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: channels, SampleRate: rate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := enc.Close(); err != nil {
		t.Fatalf("close encoder: %v", err)
	}
	f.Close()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return data
}

// pcm16 renders samples as little-endian 16-bit PCM.
func pcm16(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

// collect returns a ChunkFunc that records chunks.
func collect() (*[][]byte, ChunkFunc) {
	var mu sync.Mutex
	chunks := [][]byte{}
	return &chunks, func(c []byte) {
		mu.Lock()
		defer mu.Unlock()
		chunks = append(chunks, c)
	}
}

func join(chunks [][]byte) []byte {
	var out []byte
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}
