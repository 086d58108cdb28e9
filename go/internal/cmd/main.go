package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/scribble/go/internal/bridge"
	"github.com/mcdev12/scribble/go/internal/gateway"
	"github.com/mcdev12/scribble/go/internal/room"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	// Setup logging
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := loadConfig(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Server.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Info().
		Str("port", cfg.Server.Port).
		Bool("bridge_enabled", cfg.Bridge.Enabled).
		Msg("starting scribble engine")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Room registry drives every per-room timer off this clock.
	registry := room.NewRegistry(cfg.RoomConfig(), clockwork.NewRealClock())

	svc := gateway.NewService(registry, gateway.DefaultConnectionConfig())

	// Optional cross-instance delta relay.
	var relay *bridge.Bridge
	if cfg.Bridge.Enabled {
		relay, err = bridge.New(cfg.BridgeConfig(), registry)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create bridge")
		}
		go func() {
			if err := relay.Start(ctx); err != nil {
				log.Error().Err(err).Msg("bridge failed")
			}
		}()
	}

	server := setupServer(cfg, svc)

	go func() {
		log.Info().Str("addr", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if relay != nil {
		if err := relay.Stop(); err != nil {
			log.Error().Err(err).Msg("bridge shutdown failed")
		}
	}
	registry.Close()

	log.Info().Msg("shutdown complete")
}
