package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/services"
)

type PresenceHandler struct {
	presence *services.PresenceService
}

func NewPresenceHandler(presence *services.PresenceService) *PresenceHandler {
	return &PresenceHandler{presence: presence}
}

// ManualStatusRequest sets a pinned status
type ManualStatusRequest struct {
	Status  models.PresenceStatus `json:"status"`
	Message string                `json:"message"`
}

// List returns all presence records
func (h *PresenceHandler) List(c *fiber.Ctx) error {
	records, err := h.presence.ListPresence(c.UserContext())
	if err != nil {
		return serverError(c, "Failed to list presence", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    records,
	})
}

// Get returns one user's presence
func (h *PresenceHandler) Get(c *fiber.Ctx) error {
	p, err := h.presence.GetPresence(c.UserContext(), c.Params("userId"))
	if errors.Is(err, services.ErrPresenceNotFound) {
		return notFound(c, "Presence not found")
	}
	if err != nil {
		return serverError(c, "Failed to read presence", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    p,
	})
}

// Activity records user activity
func (h *PresenceHandler) Activity(c *fiber.Ctx) error {
	if err := h.presence.UpdateUserActivity(c.UserContext(), c.Params("userId")); err != nil {
		if errors.Is(err, services.ErrEmptyUser) {
			return badRequest(c, err.Error())
		}
		return serverError(c, "Failed to update activity", err)
	}
	return h.Get(c)
}

// SetManual pins a manual status
func (h *PresenceHandler) SetManual(c *fiber.Ctx) error {
	var req ManualStatusRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "Invalid request body")
	}

	err := h.presence.SetManualStatus(c.UserContext(), c.Params("userId"), req.Status, req.Message)
	if errors.Is(err, services.ErrInvalidStatus) || errors.Is(err, services.ErrEmptyUser) {
		return badRequest(c, err.Error())
	}
	if err != nil {
		return serverError(c, "Failed to set status", err)
	}
	return h.Get(c)
}

// Reset returns the user to automatic presence
func (h *PresenceHandler) Reset(c *fiber.Ctx) error {
	if err := h.presence.ResetToAutomatic(c.UserContext(), c.Params("userId")); err != nil {
		if errors.Is(err, services.ErrEmptyUser) {
			return badRequest(c, err.Error())
		}
		return serverError(c, "Failed to reset status", err)
	}
	return h.Get(c)
}

// Reload re-reads the presence thresholds
func (h *PresenceHandler) Reload(c *fiber.Ctx) error {
	if err := h.presence.ReloadSettings(c.UserContext()); err != nil {
		return serverError(c, "Failed to reload settings", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data":    h.presence.Settings(),
	})
}
