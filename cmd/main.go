package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog/log"

	"ai-media-hub-service/internal/app"
	"ai-media-hub-service/internal/config"
	"ai-media-hub-service/internal/observability/logging"
)

func main() {
	cfg := config.Load()

	application, err := app.New(cfg)
	if err != nil {
		fatal(err, "Failed to build application")
	}
	if err := application.Start(); err != nil {
		fatal(err, "Failed to start application")
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	application.Shutdown(ctx)
}

func fatal(err error, msg string) {
	logging.Capture(err, map[string]string{"component": "startup"})
	sentry.Flush(2 * time.Second)
	log.Fatal().Err(err).Msg(msg)
}
