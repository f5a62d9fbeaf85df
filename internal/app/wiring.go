package app

import (
	"context"
	"fmt"

	"ai-media-hub-service/internal/cache"
	"ai-media-hub-service/internal/config"
	"ai-media-hub-service/internal/service/agent"
	"ai-media-hub-service/internal/service/clip"
	"ai-media-hub-service/internal/service/dialog"
	"ai-media-hub-service/internal/service/session"
	"ai-media-hub-service/internal/service/stt"
	"ai-media-hub-service/internal/service/stt/google"
	sttmock "ai-media-hub-service/internal/service/stt/mock"
	"ai-media-hub-service/internal/service/synth"
	synthmock "ai-media-hub-service/internal/service/synth/mock"
	"ai-media-hub-service/internal/service/synth/wsagent"
	"ai-media-hub-service/internal/storage"
)

func newObjectStore(cfg config.StorageConfig) (storage.ObjectStore, error) {
	switch cfg.Backend {
	case "s3":
		client := storage.NewS3Client(storage.S3Config{
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			UsePathStyle: cfg.S3PathStyle,
		})
		return storage.NewS3(client), nil
	case "local", "":
		return storage.NewLocal(cfg.LocalDir)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newSynthPool builds the pool of kind. The ws provider dials every
// configured account; otherwise, or when no account is configured, a single
// in-process mock account serves the pool.
func newSynthPool(kind synth.Kind, cfg config.SynthConfig, accounts []config.Account) *agent.Pool[synth.Synthesizer] {
	var handles []*agent.Handle[synth.Synthesizer]
	if cfg.Provider == "ws" {
		for _, acc := range accounts {
			client := wsagent.New(kind, acc.Name, wsagent.Config{
				URL:              acc.URL,
				Token:            acc.Token,
				AppKey:           acc.AppKey,
				Model:            acc.Model,
				HandshakeTimeout: cfg.HandshakeTimeout,
			})
			handles = append(handles, agent.NewHandle[synth.Synthesizer](acc.Name, acc.MaxConnections, client))
		}
	}
	if len(handles) == 0 {
		handles = append(handles, agent.NewHandle[synth.Synthesizer](string(kind)+"-mock", 0, synthmock.New()))
	}
	return agent.NewPool(string(kind), handles)
}

// newSTTPool builds the transcriber pool. Every ASR account shares one
// Google client and caps its own connections. The returned func closes the
// client, nil for the mock.
func newSTTPool(ctx context.Context, cfg config.STTConfig, accounts []config.Account) (*agent.Pool[stt.Provider], func() error, error) {
	var (
		provider stt.Provider
		closer   func() error
	)
	switch cfg.Provider {
	case "google":
		p, err := google.NewProvider(ctx, google.Config{
			LanguageCode:    cfg.LanguageCode,
			SampleRateHz:    cfg.SampleRateHz,
			InterimResults:  cfg.InterimResults,
			AudioEncoding:   cfg.AudioEncoding,
			CredentialsFile: cfg.CredentialsFile,
		})
		if err != nil {
			return nil, nil, err
		}
		provider, closer = p, p.Close
	case "mock", "":
		provider = &sttmock.Provider{}
		cfg.Provider = "mock"
	default:
		return nil, nil, fmt.Errorf("unknown stt provider %q", cfg.Provider)
	}

	var handles []*agent.Handle[stt.Provider]
	for _, acc := range accounts {
		handles = append(handles, agent.NewHandle(acc.Name, acc.MaxConnections, provider))
	}
	if len(handles) == 0 {
		handles = append(handles, agent.NewHandle(cfg.Provider+"-default", 0, provider))
	}
	return agent.NewPool("asr", handles), closer, nil
}

func newDialog(cfg config.DialogConfig) session.Dialog {
	if cfg.URL == "" {
		return dialog.NewEcho()
	}
	return dialog.NewClient(cfg.URL, cfg.Timeout)
}

// NewClipFactory builds a clip factory from cfg for tools that render clips
// outside the service. The returned func releases the cache.
func NewClipFactory(cfg *config.Config) (*clip.Factory, storage.ObjectStore, func(), error) {
	agents, err := config.LoadAgents(cfg.AgentsFile)
	if err != nil {
		return nil, nil, nil, err
	}
	store, err := newObjectStore(cfg.Storage)
	if err != nil {
		return nil, nil, nil, err
	}
	f := &clip.Factory{
		Store:   store,
		Extract: clip.ExtractPCM,
		TTS:     newSynthPool(synth.KindTTS, cfg.Synth, agents.TTS),
		Cosy:    newSynthPool(synth.KindCosy, cfg.Synth, agents.Cosy),
	}
	release := func() {}
	c, err := newCache(cfg.Cache)
	if err != nil {
		return nil, nil, nil, err
	}
	if c != nil {
		f.Cache = c
		release = func() { _ = c.Close() }
	}
	return f, store, release, nil
}

// newCache opens the clip cache, nil when disabled.
func newCache(cfg config.CacheConfig) (*cache.Badger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	return cache.NewBadger(cache.BadgerOptions{
		Dir:      cfg.Dir,
		InMemory: cfg.InMemory,
		TTL:      cfg.TTL,
	})
}
