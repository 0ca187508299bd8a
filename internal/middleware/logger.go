package middleware

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
)

// RateLimitEntry tracks request count per IP
type RateLimitEntry struct {
	Count     int
	ResetTime time.Time
}

// Logger middleware for request logging
func Logger(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		status := c.Response().StatusCode()
		event := log.Info()
		if status >= fiber.StatusInternalServerError {
			event = log.Error()
		}
		event.
			Int("status", status).
			Dur("duration", time.Since(start)).
			Str("ip", c.IP()).
			Str("method", c.Method()).
			Str("path", c.Path()).
			Msg("request")

		return err
	}
}

// CORS middleware for cross-origin requests
func CORS() fiber.Handler {
	return func(c *fiber.Ctx) error {
		c.Set("Access-Control-Allow-Origin", "*")
		c.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, X-API-Key, X-Actor")
		c.Set("Access-Control-Max-Age", "86400")

		if c.Method() == fiber.MethodOptions {
			return c.SendStatus(fiber.StatusNoContent)
		}

		return c.Next()
	}
}

type rateLimiter struct {
	mu          sync.Mutex
	entries     map[string]*RateLimitEntry
	maxRequests int
	window      time.Duration
	nextSweep   time.Time
}

func newRateLimiter(maxRequests int, window time.Duration) *rateLimiter {
	return &rateLimiter{
		entries:     make(map[string]*RateLimitEntry),
		maxRequests: maxRequests,
		window:      window,
	}
}

// allow counts a request from ip and reports whether it is within the limit,
// plus the time left in the current window
func (l *rateLimiter) allow(ip string, now time.Time) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.After(l.nextSweep) {
		l.sweep(now)
		l.nextSweep = now.Add(l.window)
	}

	entry, exists := l.entries[ip]
	if !exists || now.After(entry.ResetTime) {
		l.entries[ip] = &RateLimitEntry{Count: 1, ResetTime: now.Add(l.window)}
		return true, l.window
	}
	if entry.Count >= l.maxRequests {
		return false, entry.ResetTime.Sub(now)
	}
	entry.Count++
	return true, entry.ResetTime.Sub(now)
}

// sweep drops entries whose window has closed
func (l *rateLimiter) sweep(now time.Time) {
	for ip, entry := range l.entries {
		if now.After(entry.ResetTime) {
			delete(l.entries, ip)
		}
	}
}

func (l *rateLimiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// RateLimiter allows maxRequests per IP in each window
func RateLimiter(maxRequests int, window time.Duration) fiber.Handler {
	limiter := newRateLimiter(maxRequests, window)

	return func(c *fiber.Ctx) error {
		ok, remaining := limiter.allow(c.IP(), time.Now())
		if !ok {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"message": "Rate limit exceeded. Try again in " + strconv.Itoa(int(remaining.Seconds())) + " seconds",
			})
		}
		return c.Next()
	}
}

// Recovery middleware to recover from panics
func Recovery(log zerolog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().Interface("panic", r).Str("path", c.Path()).Msg("panic recovered")
				err = c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
					"success": false,
					"message": "Internal server error",
				})
			}
		}()
		return c.Next()
	}
}
