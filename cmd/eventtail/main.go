// Command eventtail prints the call and clip events the service publishes.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-media-hub-service/internal/models"
	"ai-media-hub-service/internal/observability/logging"
)

func main() {
	brokers := flag.String("brokers", "localhost:9092", "Kafka brokers (comma-separated)")
	topicCall := flag.String("topic-call", "media.call.events", "Call event topic")
	topicClip := flag.String("topic-clip", "media.clip.events", "Clip event topic")
	since := flag.Duration("since", time.Hour, "Replay events newer than this")
	flag.Parse()

	cfg := logging.DefaultConfig()
	cfg.Format = "console"
	logging.Init(cfg)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var wg sync.WaitGroup
	for _, topic := range []string{*topicCall, *topicClip} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			consume(ctx, strings.Split(*brokers, ","), topic, *since)
		}(topic)
	}
	log.Info().Str("brokers", *brokers).Strs("topics", []string{*topicCall, *topicClip}).Msg("Tailing events")
	wg.Wait()
}

func consume(ctx context.Context, brokers []string, topic string, since time.Duration) {
	// partition reader without a consumer group so tailing never commits offsets
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   brokers,
		Topic:     topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer reader.Close()

	if err := reader.SetOffsetAt(ctx, time.Now().Add(-since)); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Cannot seek, reading from the start")
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Warn().Err(err).Str("topic", topic).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}
		printEvent(topic, msg)
	}
}

func printEvent(topic string, msg kafka.Message) {
	var head struct {
		EventType string `json:"eventType"`
	}
	if err := json.Unmarshal(msg.Value, &head); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("Undecodable event")
		return
	}

	switch head.EventType {
	case models.CallStarted, models.CallHangup, models.CallClosed:
		var ev models.CallEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Warn().Err(err).Msg("Bad call event")
			return
		}
		log.Info().
			Str("event", ev.EventType).
			Str("session", ev.SessionID).
			Str("voiceMode", ev.VoiceMode).
			Int64("durationMs", ev.DurationMs).
			Msg("Call")
	case models.ClipCompleted, models.ClipFailed:
		var ev models.ClipEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			log.Warn().Err(err).Msg("Bad clip event")
			return
		}
		log.Info().
			Str("event", ev.EventType).
			Str("session", ev.SessionID).
			Str("kind", ev.Kind).
			Str("cacheKey", ev.CacheKey).
			Int64("bytes", ev.Bytes).
			Int64("durationMs", ev.DurationMs).
			Str("error", ev.Error).
			Msg("Clip")
	default:
		log.Info().Str("topic", topic).Str("event", head.EventType).RawJSON("payload", msg.Value).Msg("Event")
	}
}
