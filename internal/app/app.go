package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	grpcapi "ai-media-hub-service/internal/api/grpc"
	httpapi "ai-media-hub-service/internal/api/http"
	wsapi "ai-media-hub-service/internal/api/ws"
	"ai-media-hub-service/internal/cache"
	"ai-media-hub-service/internal/config"
	"ai-media-hub-service/internal/events"
	"ai-media-hub-service/internal/observability"
	"ai-media-hub-service/internal/observability/logging"
	"ai-media-hub-service/internal/observability/metrics"
	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/clip"
	"ai-media-hub-service/internal/service/session"
	"ai-media-hub-service/internal/service/stt"
	"ai-media-hub-service/internal/service/synth"
)

// Application holds process-wide state for the service.
type Application struct {
	StartupTime time.Time
	Logger      zerolog.Logger
	Cfg         *config.Config

	Registry  *session.Registry
	Factory   *clip.Factory
	Publisher *events.Publisher
	STT       *agent.Pool[stt.Provider]
	TTS       *agent.Pool[synth.Synthesizer]
	Cosy      *agent.Pool[synth.Synthesizer]

	cache   cache.Store
	closers []func() error

	ready  atomic.Bool
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	grpc *grpcapi.Server
	http *observability.Server
}

// New initialises logging and error reporting and builds every component
// from cfg.
func New(cfg *config.Config) (*Application, error) {
	logging.Init(logging.Config{
		Level:      cfg.Observability.LogLevel,
		Format:     cfg.Observability.LogFormat,
		TimeFormat: time.RFC3339,
	})
	a := &Application{
		Cfg: cfg,
		Logger: log.With().
			Str("service", cfg.Service.Name).
			Str("component", "application").
			Logger(),
		Registry: session.NewRegistry(),
	}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	if cfg.Observability.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         cfg.Observability.SentryDSN,
			Environment: cfg.Observability.Environment,
			ServerName:  cfg.Service.Name,
		}); err != nil {
			a.Logger.Warn().Err(err).Msg("Sentry init failed")
		} else {
			a.Logger.Info().Msg("Sentry initialized")
		}
	}

	if err := a.build(); err != nil {
		a.closeAll()
		return nil, err
	}
	a.Logger.Info().Msg("AI media hub service application created")
	return a, nil
}

func (a *Application) build() error {
	cfg := a.Cfg
	agents, err := config.LoadAgents(cfg.AgentsFile)
	if err != nil {
		return err
	}

	store, err := newObjectStore(cfg.Storage)
	if err != nil {
		return err
	}
	c, err := newCache(cfg.Cache)
	if err != nil {
		return err
	}
	if c != nil {
		a.cache = c
		a.closers = append(a.closers, c.Close)
	}

	a.TTS = newSynthPool(synth.KindTTS, cfg.Synth, agents.TTS)
	a.Cosy = newSynthPool(synth.KindCosy, cfg.Synth, agents.Cosy)
	sttPool, closeSTT, err := newSTTPool(a.ctx, cfg.STT, agents.ASR)
	if err != nil {
		return err
	}
	a.STT = sttPool
	if closeSTT != nil {
		a.closers = append(a.closers, closeSTT)
	}

	a.Factory = &clip.Factory{
		Store:   store,
		Extract: clip.ExtractPCM,
		TTS:     a.TTS,
		Cosy:    a.Cosy,
		Cache:   a.cache,
	}
	a.Publisher = events.New(&events.Config{
		Enabled:   cfg.Kafka.Enabled,
		Brokers:   cfg.Kafka.Brokers,
		TopicCall: cfg.Kafka.TopicCall,
		TopicClip: cfg.Kafka.TopicClip,
		Principal: cfg.Kafka.Principal,
	})
	a.closers = append(a.closers, a.Publisher.Close)

	calls := wsapi.NewHandler(a.ctx, wsapi.Config{
		STT:       a.STT,
		Dialog:    newDialog(cfg.Dialog),
		Factory:   a.Factory,
		Registry:  a.Registry,
		Events:    a.Publisher,
		Bucket:    cfg.Storage.Bucket,
		WavPath:   cfg.Storage.WavPath,
		SendDelay: cfg.Session.SendDelay,
		FrameSize: cfg.Session.FrameSize,
	})
	router := httpapi.NewRouter(httpapi.Deps{
		Registry: a.Registry,
		Pools:    []httpapi.PoolStats{a.STT, a.TTS, a.Cosy},
		Clips:    a.Factory,
		Calls:    calls,
		Ready:    a.ready.Load,
	})
	a.http = observability.NewServer(":"+cfg.Service.HTTPPort, router)
	a.grpc = grpcapi.New(metrics.DefaultMetrics)
	return nil
}

// Start begins serving traffic and runs the idle checker.
func (a *Application) Start() error {
	startLogger := a.Logger.With().
		Str("method", "Start").
		Logger()

	lis, err := net.Listen("tcp", ":"+a.Cfg.Service.GRPCPort)
	if err != nil {
		return fmt.Errorf("listen grpc: %w", err)
	}
	a.grpc.Serve(lis)
	a.http.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.Registry.RunIdleChecks(a.ctx, a.Cfg.Session.IdleCheckInterval)
	}()

	a.StartupTime = time.Now().UTC()
	a.grpc.SetServing(true)
	a.ready.Store(true)
	startLogger.Info().
		Time("startupTime", a.StartupTime).
		Str("grpcPort", a.Cfg.Service.GRPCPort).
		Str("httpPort", a.Cfg.Service.HTTPPort).
		Msg("AI media hub service starting")
	return nil
}

// Shutdown stops serving, drops the calls in progress and releases the
// backends.
func (a *Application) Shutdown(ctx context.Context) {
	shutdownLogger := a.Logger.With().
		Str("method", "Shutdown").
		Logger()
	shutdownLogger.Info().Msg("AI media hub service shutting down")

	a.ready.Store(false)
	a.grpc.SetServing(false)
	if err := a.http.Shutdown(ctx); err != nil {
		shutdownLogger.Warn().Err(err).Msg("HTTP shutdown failed")
	}
	a.cancel()
	a.grpc.Stop()
	a.wg.Wait()
	a.closeAll()
	sentry.Flush(2 * time.Second)
}

func (a *Application) closeAll() {
	a.cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn().Err(err).Msg("Close failed")
		}
	}
	a.closers = nil
}
