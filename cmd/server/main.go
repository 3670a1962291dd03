package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/termgate/termgate/internal/audit"
	"github.com/termgate/termgate/internal/bridge"
	"github.com/termgate/termgate/internal/config"
	"github.com/termgate/termgate/internal/hoststore"
	"github.com/termgate/termgate/internal/server"
	"github.com/termgate/termgate/internal/terminal"
	"github.com/termgate/termgate/internal/worker"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Setup logger
	setupLogger(cfg)

	log.Info().
		Str("version", cfg.Version).
		Str("env", cfg.Env).
		Msg("Starting termgate")

	store := hoststore.New(cfg.HostStoreURL, cfg.HostStoreToken)

	// Audit trail: asynq over Redis when configured, otherwise discard.
	var recorder audit.Recorder = audit.NopRecorder{}
	var w *worker.Worker
	if cfg.RedisAddr != "" {
		asynqRecorder := audit.NewAsynqRecorder(cfg.RedisAddr)
		defer asynqRecorder.Close()
		recorder = asynqRecorder

		w = worker.New(cfg.RedisAddr, store)
		w.Start()
	}

	registry := bridge.NewRegistry()
	opts := bridge.Options{
		Connector:       &terminal.SSHConnector{DialTimeout: cfg.SSHDialTimeout},
		Recorder:        recorder,
		Credentials:     store,
		AuthWaitTimeout: cfg.AuthWaitTimeout,
		IdleTimeout:     cfg.IdleTimeout,
	}
	if cfg.AllowLocalShell {
		log.Warn().Msg("Local shell connector enabled; gateway host shell is exposed")
		opts.LocalConnector = &terminal.LocalConnector{}
	}
	gateway := bridge.NewGateway(registry, opts)

	janitorCtx, stopJanitor := context.WithCancel(context.Background())
	defer stopJanitor()
	gateway.StartJanitor(janitorCtx)

	srv := server.New(cfg, gateway, store)

	// Start server in goroutine
	go func() {
		addr := fmt.Sprintf(":%d", cfg.Port)
		log.Info().Str("addr", addr).Msg("HTTP server listening")

		if err := srv.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if w != nil {
		w.Shutdown()
	}

	log.Info().Msg("Server exited")
}

func setupLogger(cfg *config.Config) {
	// Set log level
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	// Pretty logging for development
	if cfg.Env == "development" && cfg.LogFormat == "pretty" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}
