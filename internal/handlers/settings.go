package handlers

import (
	"encoding/json"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/orvale/backend/internal/services"
	"github.com/orvale/backend/internal/settings"
)

type SettingsHandler struct {
	store    *settings.Store
	presence *services.PresenceService
	zones    map[string]*time.Location
}

func NewSettingsHandler(store *settings.Store, presence *services.PresenceService, zones map[string]*time.Location) *SettingsHandler {
	return &SettingsHandler{store: store, presence: presence, zones: zones}
}

// UpdateSettingRequest carries any JSON value
type UpdateSettingRequest struct {
	Value json.RawMessage `json:"value"`
}

// List returns the effective backup and presence settings
func (h *SettingsHandler) List(c *fiber.Ctx) error {
	ctx := c.UserContext()
	backup, err := h.store.BackupSettings(ctx)
	if err != nil {
		return serverError(c, "Failed to load backup settings", err)
	}
	presence, err := h.store.PresenceSettings(ctx)
	if err != nil {
		return serverError(c, "Failed to load presence settings", err)
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"backup":   backup,
			"presence": presence,
		},
	})
}

// Update stores one setting. Presence thresholds take effect immediately.
func (h *SettingsHandler) Update(c *fiber.Ctx) error {
	key := c.Params("key")
	if !settings.IsKnownKey(key) {
		return badRequest(c, "Unknown setting: "+key)
	}

	var req UpdateSettingRequest
	if err := c.BodyParser(&req); err != nil || len(req.Value) == 0 {
		return badRequest(c, "Invalid request body")
	}
	var value interface{}
	if err := json.Unmarshal(req.Value, &value); err != nil {
		return badRequest(c, "Invalid setting value")
	}

	if err := h.store.Set(c.UserContext(), key, value); err != nil {
		return serverError(c, "Failed to save setting", err)
	}
	if settings.IsPresenceKey(key) && h.presence != nil {
		if err := h.presence.ReloadSettings(c.UserContext()); err != nil {
			return serverError(c, "Setting saved but presence reload failed", err)
		}
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Setting updated successfully",
	})
}

// GetServerTime returns the current time in each scheduling timezone
func (h *SettingsHandler) GetServerTime(c *fiber.Ctx) error {
	now := time.Now()
	zones := fiber.Map{}
	for name, loc := range h.zones {
		zones[name] = fiber.Map{
			"timezone": loc.String(),
			"time":     now.In(loc).Format(time.RFC3339),
		}
	}
	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"utc":   now.UTC().Format(time.RFC3339),
			"zones": zones,
		},
	})
}
