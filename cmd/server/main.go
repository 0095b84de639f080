package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/folio/internal/config"
	"github.com/aristath/folio/internal/di"
	"github.com/aristath/folio/internal/modules/refresh"
	"github.com/aristath/folio/internal/server"
	"github.com/aristath/folio/pkg/logger"
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
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().
		Str("data_dir", cfg.DataDir).
		Str("market_timezone", cfg.Market.Timezone).
		Msg("Starting folio")

	container, _, err := di.Wire(cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	srv := server.New(server.Config{
		Log:       log,
		Container: container,
		DataDir:   cfg.DataDir,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	container.WorkProcessor.Start()
	container.Scheduler.Start()

	// Catch up on anything missed while the process was down
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 30*time.Second)
	if res, err := container.RefreshCoordinator.ScheduleIfNeeded(startupCtx, "startup", refresh.ScheduleOptions{
		AllowCatchUp: cfg.Refresh.AllowCatchUp,
	}); err != nil {
		log.Warn().Err(err).Msg("Startup refresh check failed")
	} else {
		log.Info().Str("decision", res.Decision).Msg("Startup refresh check")
	}
	startupCancel()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	container.Scheduler.Stop()
	log.Info().Msg("Scheduler stopped")

	// Stopping the processor cancels an in-flight refresh; its deferred
	// cleanup still releases the refresh lock.
	container.WorkProcessor.Stop()
	log.Info().Msg("Work processor stopped")

	log.Info().Msg("Server stopped")
}
