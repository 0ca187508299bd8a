package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/orvale/backend/internal/services"
)

type CleanupHandler struct {
	cleanup *services.RetentionCleanupService
}

func NewCleanupHandler(cleanup *services.RetentionCleanupService) *CleanupHandler {
	return &CleanupHandler{cleanup: cleanup}
}

// Run runs the nightly cleanup now
func (h *CleanupHandler) Run(c *fiber.Ctx) error {
	stats, err := h.cleanup.RunNow(c.UserContext())
	if err != nil {
		return serverError(c, "Cleanup failed", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// Stats returns recent cleanup statistics
func (h *CleanupHandler) Stats(c *fiber.Ctx) error {
	history, err := h.cleanup.History(c.UserContext(), c.QueryInt("limit", 30))
	if err != nil {
		return serverError(c, "Failed to read cleanup stats", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    history,
	})
}

// Status reports the cleanup scheduler
func (h *CleanupHandler) Status(c *fiber.Ctx) error {
	latest, err := h.cleanup.LatestStats(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to read cleanup stats", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"scheduler": h.cleanup.Status(),
			"latest":    latest,
		},
	})
}
