// Package events provides event publishing functionality.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"

	"ai-media-hub-service/internal/models"
	"ai-media-hub-service/internal/observability/metrics"
)

// Publisher publishes call and clip events to separate Kafka topics.
type Publisher struct {
	writerCall *kafka.Writer
	writerClip *kafka.Writer
	principal  string
	topicCall  string
	topicClip  string
	enabled    bool
	metrics    *metrics.Metrics
}

// Config holds Kafka publisher configuration.
type Config struct {
	Brokers   []string
	TopicCall string
	TopicClip string
	Principal string
	Enabled   bool
}

// New creates a new Kafka event publisher with separate topics for call and clip events.
func New(cfg *Config) *Publisher {
	m := metrics.DefaultMetrics

	if cfg == nil {
		log.Info().Msg("Kafka disabled (nil config), using log-only mode")
		return &Publisher{
			enabled: false,
			metrics: m,
		}
	}

	if !cfg.Enabled || len(cfg.Brokers) == 0 {
		log.Info().Msg("Kafka disabled, using log-only mode")
		return &Publisher{
			principal: cfg.Principal,
			topicCall: cfg.TopicCall,
			topicClip: cfg.TopicClip,
			enabled:   false,
			metrics:   m,
		}
	}

	// Longer timeouts for DNS resolution in Kubernetes
	dialer := &kafka.Dialer{
		Timeout:   10 * time.Second,
		DualStack: true,
	}

	transport := &kafka.Transport{
		Dial: dialer.DialFunc,
	}

	log.Info().
		Strs("brokers", cfg.Brokers).
		Str("topicCall", cfg.TopicCall).
		Str("topicClip", cfg.TopicClip).
		Str("principal", cfg.Principal).
		Msg("Kafka publisher initialized")

	return &Publisher{
		writerCall: newWriter(cfg.Brokers, cfg.TopicCall, transport),
		writerClip: newWriter(cfg.Brokers, cfg.TopicClip, transport),
		principal:  cfg.Principal,
		topicCall:  cfg.TopicCall,
		topicClip:  cfg.TopicClip,
		enabled:    true,
		metrics:    m,
	}
}

func newWriter(brokers []string, topic string, transport *kafka.Transport) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		WriteTimeout: 10 * time.Second,
		RequiredAcks: kafka.RequireOne,
		Transport:    transport,
	}
}

// PublishCall publishes a call lifecycle event keyed by session id.
func (p *Publisher) PublishCall(ctx context.Context, event models.CallEvent) error {
	return p.publish(ctx, p.writerCall, p.topicCall, event.EventType, event.SessionID, event)
}

// PublishClip publishes a clip outcome event keyed by session id, or by
// cache key when the clip does not belong to a session.
func (p *Publisher) PublishClip(ctx context.Context, event models.ClipEvent) error {
	key := event.SessionID
	if key == "" {
		key = event.CacheKey
	}
	return p.publish(ctx, p.writerClip, p.topicClip, event.EventType, key, event)
}

func (p *Publisher) publish(ctx context.Context, writer *kafka.Writer, topic, eventType, key string, event any) error {
	start := time.Now()

	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to marshal event")
		return err
	}

	log.Debug().
		Str("principal", p.principal).
		Str("topic", topic).
		Str("key", key).
		RawJSON("payload", payload).
		Msg("Publishing event")

	// If Kafka is disabled, just log
	if !p.enabled || writer == nil {
		p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
		return nil
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: []kafka.Header{
			{Key: "eventType", Value: []byte(eventType)},
			{Key: "principal", Value: []byte(p.principal)},
		},
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		log.Error().
			Err(err).
			Str("topic", topic).
			Str("key", key).
			Msg("Failed to write to Kafka")
		p.metrics.RecordKafkaPublish(topic, eventType, err, time.Since(start).Seconds())
		return err
	}

	p.metrics.RecordKafkaPublish(topic, eventType, nil, time.Since(start).Seconds())
	return nil
}

// Close closes both Kafka writers.
func (p *Publisher) Close() error {
	var err error
	if p.writerCall != nil {
		if e := p.writerCall.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing call writer")
			err = e
		}
	}
	if p.writerClip != nil {
		if e := p.writerClip.Close(); e != nil {
			log.Error().Err(e).Msg("Error closing clip writer")
			err = e
		}
	}
	return err
}
