package middleware

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAPIKeyRequired(t *testing.T) {
	app := fiber.New()
	app.Use(APIKeyRequired("k"))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetActor(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(HeaderAPIKey, "k")
	req.Header.Set(HeaderActor, "alice")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "alice", string(body))
}

func TestAPIKeyRequired_EmptyKeyAllowsAll(t *testing.T) {
	app := fiber.New()
	app.Use(APIKeyRequired(""))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendString(GetActor(c)) })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, "api", string(body))
}

func TestRateLimiter(t *testing.T) {
	app := fiber.New()
	app.Use(RateLimiter(2, time.Minute))
	app.Get("/", func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
		codes = append(codes, resp.StatusCode)
	}
	assert.Equal(t, []int{200, 200, 429}, codes)
}

func TestRateLimiter_DropsExpiredClients(t *testing.T) {
	l := newRateLimiter(2, time.Minute)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		ok, _ := l.allow("10.0.0."+strconv.Itoa(i), start)
		require.True(t, ok)
	}
	assert.Equal(t, 100, l.size())

	ok, _ := l.allow("10.0.1.1", start.Add(2*time.Minute))
	assert.True(t, ok)
	assert.Equal(t, 1, l.size())
}

func TestRateLimiter_WindowResets(t *testing.T) {
	l := newRateLimiter(1, time.Minute)
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	ok, _ := l.allow("10.0.0.1", start)
	assert.True(t, ok)
	ok, remaining := l.allow("10.0.0.1", start.Add(20*time.Second))
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, remaining)
	ok, _ = l.allow("10.0.0.1", start.Add(61*time.Second))
	assert.True(t, ok)
}

func TestRecovery(t *testing.T) {
	app := fiber.New()
	app.Use(Recovery(zerolog.Nop()))
	app.Get("/", func(c *fiber.Ctx) error { panic("boom") })

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}
