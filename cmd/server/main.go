package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/sFinOe/Video-Conference-App/internal/registry"
	"github.com/sFinOe/Video-Conference-App/internal/server"
	"github.com/sFinOe/Video-Conference-App/internal/signaling"
)

func main() {
	w := zerolog.ConsoleWriter{Out: os.Stdout}
	log := zerolog.New(w).With().Timestamp().Logger()

	cfg, err := server.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		log = log.Level(level)
	}

	reg := registry.New()
	hub := signaling.NewHub(reg, log)
	go hub.Run()

	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: server.NewRouter(hub, cfg, log),
	}

	go func() {
		log.Info().Str("addr", cfg.ListenAddr).Msg("starting signaling server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit
	log.Info().Msg("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}

	hub.Stop()
	log.Info().Msg("server exited")
}
