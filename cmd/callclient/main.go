// Command callclient places a call against the websocket call endpoint: it
// answers, streams a WAV file as caller audio in real time and records what
// the assistant says into another WAV file.
package main

import (
	"encoding/json"
	"flag"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	wsapi "ai-media-hub-service/internal/api/ws"
	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/service/clip"
)

// 20 ms of 16 kHz 16-bit mono audio
const (
	frameSize     = 640
	frameInterval = 20 * time.Millisecond
)

func main() {
	audioFile := flag.String("audio", "testdata/caller.wav", "Path to the caller WAV file")
	serverURL := flag.String("server", "ws://localhost:8080/v1/calls", "Call endpoint URL")
	outFile := flag.String("out", "assistant.wav", "Where to write the assistant audio")
	linger := flag.Duration("linger", 5*time.Second, "How long to listen after the caller audio ends")
	flag.Parse()

	cfg := logging.DefaultConfig()
	cfg.Format = "console"
	logging.Init(cfg)

	data, err := os.ReadFile(*audioFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read audio file")
	}
	pcm, err := clip.ExtractPCM(data)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to decode audio file")
	}

	conn, _, err := websocket.DefaultDialer.Dial(*serverURL, nil)
	if err != nil {
		log.Fatal().Err(err).Str("server", *serverURL).Msg("Failed to connect")
	}
	defer conn.Close()
	log.Info().Str("server", *serverURL).Msg("Connected")

	var (
		mu       sync.Mutex
		received []byte
		done     = make(chan struct{})
	)
	go func() {
		defer close(done)
		for {
			mt, msg, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if mt == websocket.BinaryMessage {
				mu.Lock()
				received = append(received, msg...)
				mu.Unlock()
				continue
			}
			var ctl wsapi.Control
			if json.Unmarshal(msg, &ctl) != nil {
				continue
			}
			log.Info().Str("event", ctl.Event).Str("sessionId", ctl.SessionID).Str("message", ctl.Message).Msg("Control event")
			if ctl.Event == wsapi.EventHangup {
				return
			}
		}
	}()

	answer, _ := json.Marshal(wsapi.Control{Event: wsapi.EventAnswer})
	if err := conn.WriteMessage(websocket.TextMessage, answer); err != nil {
		log.Fatal().Err(err).Msg("Failed to answer")
	}

	start := time.Now()
	frames := 0
	ticker := time.NewTicker(frameInterval)
stream:
	for off := 0; off < len(pcm); off += frameSize {
		select {
		case <-done:
			break stream
		case <-ticker.C:
		}
		if err := conn.WriteMessage(websocket.BinaryMessage, pcm[off:min(off+frameSize, len(pcm))]); err != nil {
			log.Warn().Err(err).Msg("Failed to send audio")
			break stream
		}
		frames++
	}
	ticker.Stop()
	log.Info().Int("frames", frames).Dur("elapsed", time.Since(start)).Msg("Finished streaming caller audio")

	select {
	case <-done:
	case <-time.After(*linger):
		hangup, _ := json.Marshal(wsapi.Control{Event: wsapi.EventHangup})
		_ = conn.WriteMessage(websocket.TextMessage, hangup)
		select {
		case <-done:
		case <-time.After(5 * time.Second):
		}
	}

	mu.Lock()
	audio := received
	mu.Unlock()
	f, err := os.Create(*outFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create output file")
	}
	defer f.Close()
	if err := clip.WriteWAV(f, audio); err != nil {
		log.Fatal().Err(err).Msg("Failed to write output file")
	}
	log.Info().Int("bytes", len(audio)).Str("out", *outFile).Msg("Call finished")
}
