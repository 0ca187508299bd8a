package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/middleware"
	"github.com/orvale/backend/internal/services"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
)

// Deps are the services exposed over HTTP
type Deps struct {
	Backups         *services.BackupService
	BackupScheduler *services.BackupSchedulerService
	Cleanup         *services.RetentionCleanupService
	Presence        *services.PresenceService
	Tickets         *services.TicketSequenceService
	Settings        *settings.Store
	Zones           map[string]*time.Location
	Metrics         *metrics.Metrics
	APIKey          string
	Log             zerolog.Logger
}

// NewApp builds the fiber app with every route registered
func NewApp(deps Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "orvale-backend",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			return c.Status(code).JSON(fiber.Map{
				"success": false,
				"message": err.Error(),
			})
		},
	})

	app.Use(middleware.Recovery(deps.Log))
	app.Use(middleware.Logger(deps.Log))
	app.Use(middleware.CORS())

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ok",
			"schedulers": fiber.Map{
				"backup":   deps.BackupScheduler.IsRunning(),
				"cleanup":  deps.Cleanup.IsRunning(),
				"presence": deps.Presence.IsRunning(),
			},
		})
	})
	app.Get("/metrics", adaptor.HTTPHandler(deps.Metrics.Handler()))

	backup := NewBackupHandler(deps.Backups, deps.BackupScheduler)
	cleanup := NewCleanupHandler(deps.Cleanup)
	presence := NewPresenceHandler(deps.Presence)
	ticket := NewTicketHandler(deps.Tickets)
	settingsHandler := NewSettingsHandler(deps.Settings, deps.Presence, deps.Zones)

	api := app.Group("/api", middleware.APIKeyRequired(deps.APIKey), middleware.RateLimiter(120, time.Minute))

	api.Get("/backups", backup.List)
	api.Get("/backups/stats", backup.Stats)
	api.Post("/backups", backup.Create)
	api.Post("/backups/cleanup", backup.Cleanup)
	api.Post("/backups/:filename/restore", backup.Restore)
	api.Delete("/backups/:filename", backup.Delete)
	api.Get("/backups/scheduler", backup.SchedulerStatus)
	api.Post("/backups/scheduler/run", backup.RunScheduler)

	api.Post("/cleanup/run", cleanup.Run)
	api.Get("/cleanup/stats", cleanup.Stats)
	api.Get("/cleanup/status", cleanup.Status)

	api.Get("/presence", presence.List)
	api.Post("/presence/reload", presence.Reload)
	api.Get("/presence/:userId", presence.Get)
	api.Post("/presence/:userId/activity", presence.Activity)
	api.Put("/presence/:userId/status", presence.SetManual)
	api.Delete("/presence/:userId/status", presence.Reset)

	api.Post("/tickets/:team/next", ticket.NextNumber)
	api.Get("/tickets/:team/current", ticket.Current)

	api.Get("/settings", settingsHandler.List)
	api.Put("/settings/:key", settingsHandler.Update)
	api.Get("/server-time", settingsHandler.GetServerTime)

	return app
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func notFound(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func serverError(c *fiber.Ctx, message string, err error) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"message": message + ": " + err.Error(),
	})
}
