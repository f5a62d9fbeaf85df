// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ai_media_hub"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Session metrics
	SessionsTotal         prometheus.Counter
	SessionsActive        prometheus.Gauge
	SessionDuration       prometheus.Histogram
	TranscriptionsStarted prometheus.Counter
	StopAndClose          *prometheus.CounterVec

	// Conversation metrics
	IdleReplies   *prometheus.CounterVec
	BargeInPauses prometheus.Counter
	Hangups       prometheus.Counter
	DialogErrors  *prometheus.CounterVec

	// Agent pool metrics
	AgentConnections *prometheus.GaugeVec
	AgentConnected   *prometheus.GaugeVec
	AgentRejected    *prometheus.CounterVec

	// Clip metrics
	ClipsTotal    *prometheus.CounterVec
	ClipBytes     *prometheus.CounterVec
	ClipLatency   *prometheus.HistogramVec
	CompositeRuns *prometheus.CounterVec

	// Cache metrics
	CacheLookups *prometheus.CounterVec

	// Stream buffer metrics
	BufferBytes prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// gRPC metrics
	GRPCRequests *prometheus.CounterVec
	GRPCLatency  *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics. It registers with
// the default registry, so it may only be called once per process.
func NewMetrics() *Metrics {
	return &Metrics{
		// Session metrics
		SessionsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of call sessions created",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently registered call sessions",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of call sessions in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		TranscriptionsStarted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcriptions_started_total",
			Help:      "Total number of transcriptions acknowledged by the backend",
		}),
		StopAndClose: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stop_and_close_total",
			Help:      "Stop-and-close invocations by outcome",
		}, []string{"outcome"}),

		// Conversation metrics
		IdleReplies: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "idle_replies_total",
			Help:      "Idle-triggered dialog lookups by result",
		}, []string{"result"}),
		BargeInPauses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "barge_in_pauses_total",
			Help:      "Total number of playbacks paused by caller speech",
		}),
		Hangups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "hangups_total",
			Help:      "Total number of calls hung up after a final reply",
		}),
		DialogErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dialog_errors_total",
			Help:      "Total number of dialog API errors",
		}, []string{"operation"}),

		// Agent pool metrics
		AgentConnections: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_connections",
			Help:      "In-flight allocations per backend account",
		}, []string{"pool", "account"}),
		AgentConnected: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_connected",
			Help:      "Established backend sessions per backend account",
		}, []string{"pool", "account"}),
		AgentRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_rejected_total",
			Help:      "Acquire attempts rejected because every account was at capacity",
		}, []string{"pool"}),

		// Clip metrics
		ClipsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clips_total",
			Help:      "Total number of clips run by kind and result",
		}, []string{"kind", "result"}),
		ClipBytes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "clip_bytes_total",
			Help:      "PCM bytes produced by clips",
		}, []string{"kind"}),
		ClipLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "clip_duration_seconds",
			Help:      "Time to produce a clip in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"kind"}),
		CompositeRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "composite_runs_total",
			Help:      "Composite stream runs by result",
		}, []string{"result"}),

		// Cache metrics
		CacheLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_lookups_total",
			Help:      "Clip cache lookups by result",
		}, []string{"result"}),

		// Stream buffer metrics
		BufferBytes: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "buffer_bytes_total",
			Help:      "Total bytes appended to stream buffers",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// gRPC metrics
		GRPCRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grpc_requests_total",
			Help:      "Total number of gRPC calls by method and status code",
		}, []string{"method", "code"}),
		GRPCLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "grpc_request_duration_seconds",
			Help:      "gRPC call duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
	}
}

// RecordSessionStart records a new session being registered.
func (m *Metrics) RecordSessionStart() {
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session being closed.
func (m *Metrics) RecordSessionEnd(durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordTranscriptionStarted records a backend acknowledging transcription.
func (m *Metrics) RecordTranscriptionStarted() {
	m.TranscriptionsStarted.Inc()
}

// RecordStopAndClose records a stop-and-close call. outcome is one of
// released, noop or error.
func (m *Metrics) RecordStopAndClose(outcome string) {
	m.StopAndClose.WithLabelValues(outcome).Inc()
}

// RecordIdleReply records an idle-triggered dialog lookup.
func (m *Metrics) RecordIdleReply(result string) {
	m.IdleReplies.WithLabelValues(result).Inc()
}

// RecordBargeIn records a playback paused by caller speech.
func (m *Metrics) RecordBargeIn() {
	m.BargeInPauses.Inc()
}

// RecordHangup records a call being hung up.
func (m *Metrics) RecordHangup() {
	m.Hangups.Inc()
}

// RecordDialogError records a failed dialog API call.
func (m *Metrics) RecordDialogError(operation string) {
	m.DialogErrors.WithLabelValues(operation).Inc()
}

// SetAgentLoad publishes the current counters of one backend account.
func (m *Metrics) SetAgentLoad(pool, account string, connections, connected int64) {
	m.AgentConnections.WithLabelValues(pool, account).Set(float64(connections))
	m.AgentConnected.WithLabelValues(pool, account).Set(float64(connected))
}

// RecordAgentRejected records an acquire that found no capacity.
func (m *Metrics) RecordAgentRejected(pool string) {
	m.AgentRejected.WithLabelValues(pool).Inc()
}

// RecordClip records a finished clip.
func (m *Metrics) RecordClip(kind string, success bool, bytes int, durationSeconds float64) {
	result := "success"
	if !success {
		result = "failure"
	}
	m.ClipsTotal.WithLabelValues(kind, result).Inc()
	m.ClipBytes.WithLabelValues(kind).Add(float64(bytes))
	m.ClipLatency.WithLabelValues(kind).Observe(durationSeconds)
}

// RecordComposite records a finished composite run.
func (m *Metrics) RecordComposite(result string) {
	m.CompositeRuns.WithLabelValues(result).Inc()
}

// RecordCacheLookup records a clip cache lookup.
func (m *Metrics) RecordCacheLookup(hit bool) {
	if hit {
		m.CacheLookups.WithLabelValues("hit").Inc()
		return
	}
	m.CacheLookups.WithLabelValues("miss").Inc()
}

// RecordBufferAppend records bytes appended to a stream buffer.
func (m *Metrics) RecordBufferAppend(bytes int) {
	m.BufferBytes.Add(float64(bytes))
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordGRPC records a finished gRPC call.
func (m *Metrics) RecordGRPC(method, code string, durationSeconds float64) {
	m.GRPCRequests.WithLabelValues(method, code).Inc()
	m.GRPCLatency.WithLabelValues(method).Observe(durationSeconds)
}
