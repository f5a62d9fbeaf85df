package clip

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"

	"ai-media-hub-service/internal/service/synth"
)

// HeaderSize is the size of the synthetic WAV header.
const HeaderSize = 44

// Placeholder sizes advertised by the streaming header so a consumer that
// cannot handle chunked transfer sees one very large finished file.
const (
	streamingChunkSize = 2147483583
	streamingDataSize  = 2147483547
)

// wavHeader is the canonical 44-byte RIFF/WAVE header of a mono PCM file.
type wavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

var streamingHeader = func() []byte {
	h := wavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     streamingChunkSize,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   1,
		SampleRate:    synth.DefaultSampleRate,
		ByteRate:      synth.DefaultSampleRate * 2,
		BlockAlign:    2,
		BitsPerSample: 16,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: streamingDataSize,
	}
	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, h); err != nil {
		panic(err)
	}
	return buf.Bytes()
}()

// StreamingHeader returns a fresh copy of the 44-byte header that prefixes
// every composite stream: 16 kHz, mono, 16-bit PCM with oversized lengths.
func StreamingHeader() []byte {
	return bytes.Clone(streamingHeader)
}

// ExtractFunc turns a complete container file into raw PCM.
type ExtractFunc func(data []byte) ([]byte, error)

// ErrNotWAV is returned by ExtractPCM for data that is not a RIFF/WAVE file.
var ErrNotWAV = errors.New("not a valid WAV file")

// ExtractPCM decodes a WAV file into 16 kHz mono 16-bit little-endian PCM.
// Multi-channel input is downmixed and other sample rates are resampled.
func ExtractPCM(data []byte) ([]byte, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, ErrNotWAV
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to decode WAV: %w", err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	shift := int(dec.BitDepth) - 16
	if dec.BitDepth != 8 && shift < 0 {
		return nil, fmt.Errorf("unsupported bit depth %d", dec.BitDepth)
	}

	frames := len(buf.Data) / channels
	mono := make([]int16, frames)
	for i := 0; i < frames; i++ {
		sum := 0
		for c := 0; c < channels; c++ {
			s := buf.Data[i*channels+c]
			if dec.BitDepth == 8 {
				s = (s - 128) << 8
			} else {
				s >>= shift
			}
			sum += s
		}
		mono[i] = int16(sum / channels)
	}

	if rate := buf.Format.SampleRate; rate != synth.DefaultSampleRate && rate > 0 {
		mono, err = resample(mono, rate, synth.DefaultSampleRate)
		if err != nil {
			return nil, err
		}
	}

	out := make([]byte, len(mono)*2)
	for i, s := range mono {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out, nil
}

func resample(samples []int16, from, to int) ([]int16, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(from),
		OutputRate: float64(to),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resampler: %w", err)
	}
	input := make([]float64, len(samples))
	for i, s := range samples {
		input[i] = float64(s) / 32768.0
	}
	output, err := r.Process(input)
	if err != nil {
		return nil, fmt.Errorf("resample error: %w", err)
	}
	out := make([]int16, len(output))
	for i, s := range output {
		switch {
		case s > 1.0:
			out[i] = 32767
		case s < -1.0:
			out[i] = -32768
		default:
			out[i] = int16(s * 32767.0)
		}
	}
	return out, nil
}

// WriteWAV writes 16 kHz mono 16-bit little-endian PCM as a complete WAV
// file with exact lengths.
func WriteWAV(w io.WriteSeeker, pcm []byte) error {
	samples := make([]int, len(pcm)/2)
	for i := range samples {
		samples[i] = int(int16(binary.LittleEndian.Uint16(pcm[i*2:])))
	}
	enc := wav.NewEncoder(w, synth.DefaultSampleRate, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: synth.DefaultSampleRate},
		Data:           samples,
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode WAV: %w", err)
	}
	return enc.Close()
}
