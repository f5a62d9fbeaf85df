// Package config loads the service configuration from the environment and
// the backend accounts from a YAML file.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Service       ServiceConfig
	Kafka         KafkaConfig
	Observability ObservabilityConfig
	Storage       StorageConfig
	Cache         CacheConfig
	Session       SessionConfig
	STT           STTConfig
	Synth         SynthConfig
	Dialog        DialogConfig
	AgentsFile    string
}

// ServiceConfig holds service identity and listener ports.
type ServiceConfig struct {
	Name      string
	Principal string
	GRPCPort  string
	HTTPPort  string
}

// KafkaConfig holds Kafka publisher configuration.
type KafkaConfig struct {
	Enabled   bool
	Brokers   []string
	TopicCall string
	TopicClip string
	Principal string
}

// ObservabilityConfig holds logging and error reporting configuration.
type ObservabilityConfig struct {
	LogLevel    string
	LogFormat   string
	SentryDSN   string
	Environment string
}

// StorageConfig selects the object store holding recorded prompts.
type StorageConfig struct {
	Backend     string // local or s3
	LocalDir    string
	Bucket      string
	WavPath     string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
	S3PathStyle bool
}

// CacheConfig configures the synthesized clip cache.
type CacheConfig struct {
	Enabled  bool
	Dir      string
	InMemory bool
	TTL      time.Duration
}

// SessionConfig holds per-call settings.
type SessionConfig struct {
	IdleCheckInterval time.Duration
	SendDelay         time.Duration // zero sends caller audio inline
	FrameSize         int
}

// STTConfig holds speech recognition settings.
type STTConfig struct {
	Provider        string // mock or google
	LanguageCode    string
	SampleRateHz    int32
	InterimResults  bool
	AudioEncoding   string
	CredentialsFile string
}

// SynthConfig selects the synthesis backend.
type SynthConfig struct {
	Provider         string // mock or ws
	HandshakeTimeout time.Duration
}

// DialogConfig locates the dialog API.
type DialogConfig struct {
	URL     string // empty uses the built-in echo dialog
	Timeout time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() *Config {
	principal := envOrDefault("SERVICE_PRINCIPAL", "svc-media-hub")
	return &Config{
		Service: ServiceConfig{
			Name:      envOrDefault("SERVICE_NAME", "ai-media-hub-service"),
			Principal: principal,
			GRPCPort:  envOrDefault("GRPC_PORT", "50051"),
			HTTPPort:  envOrDefault("HTTP_PORT", "8080"),
		},
		Kafka: KafkaConfig{
			Enabled:   envOrDefaultBool("KAFKA_ENABLED", false),
			Brokers:   envOrDefaultList("KAFKA_BROKERS", nil),
			TopicCall: envOrDefault("KAFKA_TOPIC_CALL", "media.call.events"),
			TopicClip: envOrDefault("KAFKA_TOPIC_CLIP", "media.clip.events"),
			Principal: envOrDefault("KAFKA_PRINCIPAL", principal),
		},
		Observability: ObservabilityConfig{
			LogLevel:    envOrDefault("LOG_LEVEL", "info"),
			LogFormat:   envOrDefault("LOG_FORMAT", "json"),
			SentryDSN:   envOrDefault("SENTRY_DSN", ""),
			Environment: envOrDefault("ENVIRONMENT", "development"),
		},
		Storage: StorageConfig{
			Backend:     envOrDefault("STORAGE_BACKEND", "local"),
			LocalDir:    envOrDefault("STORAGE_LOCAL_DIR", "./data/objects"),
			Bucket:      envOrDefault("STORAGE_BUCKET", "prompts"),
			WavPath:     envOrDefault("STORAGE_WAV_PATH", ""),
			S3Region:    envOrDefault("S3_REGION", "us-east-1"),
			S3Endpoint:  envOrDefault("S3_ENDPOINT", ""),
			S3AccessKey: envOrDefault("S3_ACCESS_KEY", ""),
			S3SecretKey: envOrDefault("S3_SECRET_KEY", ""),
			S3PathStyle: envOrDefaultBool("S3_PATH_STYLE", false),
		},
		Cache: CacheConfig{
			Enabled:  envOrDefaultBool("CACHE_ENABLED", true),
			Dir:      envOrDefault("CACHE_DIR", ""),
			InMemory: envOrDefaultBool("CACHE_IN_MEMORY", true),
			TTL:      envOrDefaultDuration("CACHE_TTL", 24*time.Hour),
		},
		Session: SessionConfig{
			IdleCheckInterval: envOrDefaultDuration("SESSION_IDLE_CHECK_INTERVAL", time.Second),
			SendDelay:         envOrDefaultDuration("SESSION_SEND_DELAY", 0),
			FrameSize:         envOrDefaultInt("SESSION_FRAME_SIZE", 640),
		},
		STT: STTConfig{
			Provider:        envOrDefault("STT_PROVIDER", "mock"),
			LanguageCode:    envOrDefault("STT_LANGUAGE_CODE", "en-US"),
			SampleRateHz:    int32(envOrDefaultInt("STT_SAMPLE_RATE_HZ", 8000)),
			InterimResults:  envOrDefaultBool("STT_INTERIM_RESULTS", true),
			AudioEncoding:   envOrDefault("STT_AUDIO_ENCODING", "LINEAR16"),
			CredentialsFile: envOrDefault("GOOGLE_APPLICATION_CREDENTIALS", ""),
		},
		Synth: SynthConfig{
			Provider:         envOrDefault("SYNTH_PROVIDER", "mock"),
			HandshakeTimeout: envOrDefaultDuration("SYNTH_HANDSHAKE_TIMEOUT", 10*time.Second),
		},
		Dialog: DialogConfig{
			URL:     envOrDefault("DIALOG_URL", ""),
			Timeout: envOrDefaultDuration("DIALOG_TIMEOUT", 5*time.Second),
		},
		AgentsFile: envOrDefault("AGENTS_FILE", ""),
	}
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envOrDefaultInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func envOrDefaultBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func envOrDefaultDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func envOrDefaultList(key string, def []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
