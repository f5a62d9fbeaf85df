package clip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestStreamingHeader(t *testing.T) {
	h := StreamingHeader()
	if len(h) != HeaderSize {
		t.Fatalf("len = %d, want %d", len(h), HeaderSize)
	}

	le := binary.LittleEndian
	checks := []struct {
		name string
		got  any
		want any
	}{
		{"RIFF", string(h[0:4]), "RIFF"},
		{"chunk size", le.Uint32(h[4:8]), uint32(2147483583)},
		{"WAVE", string(h[8:12]), "WAVE"},
		{"fmt", string(h[12:16]), "fmt "},
		{"subchunk1 size", le.Uint32(h[16:20]), uint32(16)},
		{"audio format", le.Uint16(h[20:22]), uint16(1)},
		{"channels", le.Uint16(h[22:24]), uint16(1)},
		{"sample rate", le.Uint32(h[24:28]), uint32(16000)},
		{"byte rate", le.Uint32(h[28:32]), uint32(32000)},
		{"block align", le.Uint16(h[32:34]), uint16(2)},
		{"bits per sample", le.Uint16(h[34:36]), uint16(16)},
		{"data", string(h[36:40]), "data"},
		{"data size", le.Uint32(h[40:44]), uint32(2147483547)},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.name, c.got, c.want)
		}
	}

	// callers get their own copy
	h[0] = 'X'
	if StreamingHeader()[0] != 'R' {
		t.Error("StreamingHeader shares its backing array")
	}
}

func TestExtractPCM(t *testing.T) {
	samples := []int{0, 1000, -1000, 32767, -32768}
	data := encodeWAV(t, 16000, 1, samples)

	got, err := ExtractPCM(data)
	if err != nil {
		t.Fatalf("ExtractPCM: %v", err)
	}
	want := pcm16(0, 1000, -1000, 32767, -32768)
	if !bytes.Equal(got, want) {
		t.Errorf("ExtractPCM = %v, want %v", got, want)
	}
}

func TestExtractPCMDownmixesStereo(t *testing.T) {
	data := encodeWAV(t, 16000, 2, []int{100, 300, -200, -400})
	got, err := ExtractPCM(data)
	if err != nil {
		t.Fatalf("ExtractPCM: %v", err)
	}
	if want := pcm16(200, -300); !bytes.Equal(got, want) {
		t.Errorf("ExtractPCM = %v, want %v", got, want)
	}
}

func TestExtractPCMResamples(t *testing.T) {
	samples := make([]int, 8000)
	data := encodeWAV(t, 8000, 1, samples)
	got, err := ExtractPCM(data)
	if err != nil {
		t.Fatalf("ExtractPCM: %v", err)
	}
	if len(got)%2 != 0 {
		t.Errorf("odd PCM length %d", len(got))
	}
	if len(got) <= len(samples)*2 {
		t.Errorf("resampled length %d not longer than source %d", len(got), len(samples)*2)
	}
}

func TestExtractPCMRejectsGarbage(t *testing.T) {
	if _, err := ExtractPCM([]byte("definitely not a wav file, just some bytes")); !errors.Is(err, ErrNotWAV) {
		t.Errorf("err = %v, want ErrNotWAV", err)
	}
}

func TestWriteWAVRoundTrip(t *testing.T) {
	want := pcm16(0, 12, -12, 32767, -32768, 5)
	f, err := os.Create(filepath.Join(t.TempDir(), "out.wav"))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	defer f.Close()
	if err := WriteWAV(f, want); err != nil {
		t.Fatalf("WriteWAV: %v", err)
	}
	data, err := os.ReadFile(f.Name())
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	got, err := ExtractPCM(data)
	if err != nil {
		t.Fatalf("ExtractPCM: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Errorf("round trip = %v, want %v", got, want)
	}
}
