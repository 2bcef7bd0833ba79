package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"caption-ingress-service/internal/app"
	"caption-ingress-service/internal/config"
	httpapi "caption-ingress-service/internal/http"
	"caption-ingress-service/internal/observability"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Startup failed")
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Service.HTTPPort,
		Handler:           httpapi.NewRouter(application.Manager),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// No write timeout: the events endpoint streams indefinitely.
		IdleTimeout: 120 * time.Second,
	}

	obs := observability.NewServer(":" + cfg.Observability.MetricsPort)
	obs.Start()

	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Caption ingress API listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutdown signal received")

	// Drain sessions first so event streams end and no caption text is
	// lost, then stop the listeners.
	application.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	if err := obs.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability server shutdown error")
	}
}
