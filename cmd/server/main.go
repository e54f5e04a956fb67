// Package main is the entry point of the phaselock server.
//
// Startup order:
// 1. Load configuration from environment variables (.env supported)
// 2. Initialize logging
// 3. Wire dependencies (run store, engine, queue, archive, scheduler)
// 4. Start the work processor, the scheduler and the HTTP server
// 5. Wait for a shutdown signal and stop everything in reverse order
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/phaselock/internal/config"
	"github.com/aristath/phaselock/internal/di"
	"github.com/aristath/phaselock/internal/server"
	"github.com/aristath/phaselock/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.LogPretty,
	})
	logger.SetGlobalLogger(log)

	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting phaselock")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	// Closing the run store checkpoints its WAL
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
		Container: container,
	})

	go container.Processor.Run()
	log.Info().Msg("Work processor started")

	if _, err := container.RunService.Resume(); err != nil {
		log.Error().Err(err).Msg("Failed to resume unfinished runs")
	}

	container.Scheduler.Start()

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the scheduler first so no maintenance pass is queued behind a
	// stopped processor.
	container.Scheduler.Stop()
	log.Info().Msg("Scheduler stopped")

	// Cancels the running job; queued runs stay pending in the store
	container.Processor.Stop()
	log.Info().Msg("Work processor stopped")

	log.Info().Msg("Server stopped")
}
