package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	HeaderAPIKey = "X-API-Key"
	HeaderActor  = "X-Actor"

	localsActor  = "actor"
	defaultActor = "api"
)

// APIKeyRequired protects operational routes with a shared key. An empty key
// disables the check.
func APIKeyRequired(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if key != "" {
			got := c.Get(HeaderAPIKey)
			if got == "" {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"message": "Missing API key",
				})
			}
			if subtle.ConstantTimeCompare([]byte(got), []byte(key)) != 1 {
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"message": "Invalid API key",
				})
			}
		}

		actor := strings.TrimSpace(c.Get(HeaderActor))
		if actor == "" {
			actor = defaultActor
		}
		c.Locals(localsActor, actor)
		return c.Next()
	}
}

// GetActor returns the caller recorded by APIKeyRequired
func GetActor(c *fiber.Ctx) string {
	if actor, ok := c.Locals(localsActor).(string); ok && actor != "" {
		return actor
	}
	return defaultActor
}
