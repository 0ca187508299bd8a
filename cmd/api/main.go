package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/orvale/backend/internal/config"
	"github.com/orvale/backend/internal/database"
	"github.com/orvale/backend/internal/handlers"
	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/services"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	// Setup structured logging
	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	if os.Getenv("ENVIRONMENT") == "development" {
		logger = logger.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	log.Logger = logger

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}

	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	logger.Info().
		Str("environment", cfg.Environment).
		Str("db_driver", cfg.DBDriver).
		Int("api_port", cfg.APIPort).
		Bool("redis_enabled", cfg.RedisEnabled()).
		Msg("starting orvale backend")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	if err := models.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}
	logger.Info().Msg("database migrations completed")

	rdb, err := database.ConnectRedis(ctx, cfg)
	if err != nil {
		// Redis only backs the settings cache and presence fan-out
		logger.Warn().Err(err).Msg("redis unavailable, continuing without cache")
		rdb = nil
	}
	cache := database.NewCache(rdb)

	m := metrics.New()
	store := settings.NewStore(db, cache, logger)

	backups := services.NewBackupService(db, store, services.NewSnapshotEngine(db, cfg),
		services.BackupConfig{AppRoot: cfg.AppRoot, DatabaseFile: cfg.DatabaseFile()}, m, logger)
	backupScheduler := services.NewBackupSchedulerService(backups, store, cfg.BackupInterval, m, logger)
	cleanup := services.NewRetentionCleanupService(db, cfg.CleanupLocation(), cfg.CleanupStepTimeout, m, logger)

	var notifier services.PresenceNotifier
	if n := services.NewRedisPresenceNotifier(cache); n != nil {
		notifier = n
	}
	presence := services.NewPresenceService(db, store, notifier, cfg.PresenceInterval, m, logger)
	tickets := services.NewTicketSequenceService(db, cfg.TicketLocation(), m, logger)

	schedulers := &services.Schedulers{
		Backup:   backupScheduler,
		Cleanup:  cleanup,
		Presence: presence,
		Log:      logger,
	}
	schedulers.StartAll(ctx)

	app := handlers.NewApp(handlers.Deps{
		Backups:         backups,
		BackupScheduler: backupScheduler,
		Cleanup:         cleanup,
		Presence:        presence,
		Tickets:         tickets,
		Settings:        store,
		Zones: map[string]*time.Location{
			"cleanup": cfg.CleanupLocation(),
			"tickets": cfg.TicketLocation(),
		},
		Metrics: m,
		APIKey:  cfg.APIKey,
		Log:     logger,
	})

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-quit
		logger.Info().Msg("shutting down")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logger.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	addr := fmt.Sprintf(":%d", cfg.APIPort)
	logger.Info().Str("addr", addr).Msg("ops API listening")
	if err := app.Listen(addr); err != nil {
		logger.Error().Err(err).Msg("server stopped")
	}

	schedulers.StopAll()
	database.Close(db, rdb)
	logger.Info().Msg("shutdown complete")
}
