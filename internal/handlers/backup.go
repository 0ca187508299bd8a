package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/orvale/backend/internal/middleware"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/services"
)

type BackupHandler struct {
	backups   *services.BackupService
	scheduler *services.BackupSchedulerService
}

func NewBackupHandler(backups *services.BackupService, scheduler *services.BackupSchedulerService) *BackupHandler {
	return &BackupHandler{backups: backups, scheduler: scheduler}
}

// List returns all backups, newest first
func (h *BackupHandler) List(c *fiber.Ctx) error {
	backups, err := h.backups.ListBackups(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to list backups", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    backups,
	})
}

// Stats returns a summary of the backup directory
func (h *BackupHandler) Stats(c *fiber.Ctx) error {
	stats, err := h.backups.GetBackupStats(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to read backup stats", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    stats,
	})
}

// Create creates a manual backup
func (h *BackupHandler) Create(c *fiber.Ctx) error {
	rec, err := h.backups.CreateBackup(c.UserContext(), models.BackupTypeManual, middleware.GetActor(c))
	if err != nil {
		return serverError(c, "Backup failed", err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Backup created successfully",
		"data":    rec,
	})
}

// Restore replaces the live database with a backup
func (h *BackupHandler) Restore(c *fiber.Ctx) error {
	filename := c.Params("filename")

	res, err := h.backups.RestoreFromBackup(c.UserContext(), filename, middleware.GetActor(c))
	if err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, services.ErrInvalidBackupName):
			status = fiber.StatusBadRequest
		case errors.Is(err, services.ErrBackupNotFound):
			status = fiber.StatusNotFound
		case errors.Is(err, services.ErrChecksumMismatch):
			status = fiber.StatusUnprocessableEntity
		}
		resp := fiber.Map{
			"success": false,
			"message": err.Error(),
		}
		var rerr *services.RestoreError
		if errors.As(err, &rerr) {
			resp["step"] = rerr.Step
		}
		return c.Status(status).JSON(resp)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Database restored successfully",
		"data":    res,
	})
}

// Delete removes a backup file
func (h *BackupHandler) Delete(c *fiber.Ctx) error {
	err := h.backups.DeleteBackup(c.UserContext(), c.Params("filename"))
	switch {
	case errors.Is(err, services.ErrInvalidBackupName):
		return badRequest(c, err.Error())
	case errors.Is(err, services.ErrBackupNotFound):
		return notFound(c, "Backup not found")
	case err != nil:
		return serverError(c, "Failed to delete backup", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Backup deleted successfully",
	})
}

// Cleanup applies the retention policy now
func (h *BackupHandler) Cleanup(c *fiber.Ctx) error {
	res, err := h.backups.CleanupOldBackups(c.UserContext())
	if err != nil {
		return serverError(c, "Backup cleanup failed", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    res,
	})
}

// RunScheduler runs one automatic backup cycle synchronously
func (h *BackupHandler) RunScheduler(c *fiber.Ctx) error {
	res := h.scheduler.RunNow(c.UserContext())
	return c.JSON(fiber.Map{
		"success": res.Error == "",
		"data":    res,
	})
}

// SchedulerStatus reports the automatic backup scheduler
func (h *BackupHandler) SchedulerStatus(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.scheduler.Status(),
	})
}
