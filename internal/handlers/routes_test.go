package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/orvale/backend/internal/database"
	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/services"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "secret"

func newTestApp(t *testing.T) *fiber.App {
	t.Helper()
	root := t.TempDir()
	dbPath := filepath.Join(root, "data", "orvale.db")
	db, err := database.OpenSQLite(dbPath)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { database.Close(db, nil) })

	log := zerolog.Nop()
	m := metrics.New()
	store := settings.NewStore(db, nil, log)
	require.NoError(t, store.Set(context.Background(), settings.KeyBackupLocation, filepath.Join(root, "backups")))

	backups := services.NewBackupService(db, store, services.NewSQLiteEngine(db, dbPath),
		services.BackupConfig{AppRoot: root, DatabaseFile: dbPath}, m, log)

	return NewApp(Deps{
		Backups:         backups,
		BackupScheduler: services.NewBackupSchedulerService(backups, store, time.Hour, m, log),
		Cleanup:         services.NewRetentionCleanupService(db, time.UTC, time.Minute, m, log),
		Presence:        services.NewPresenceService(db, store, nil, time.Minute, m, log),
		Tickets:         services.NewTicketSequenceService(db, time.UTC, m, log),
		Settings:        store,
		Zones:           map[string]*time.Location{"cleanup": time.UTC},
		Metrics:         m,
		APIKey:          testAPIKey,
		Log:             log,
	})
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("X-API-Key", testAPIKey)
	req.Header.Set("X-Actor", "alice")
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]interface{}{}
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out))
	}
	return resp.StatusCode, out
}

func TestAPI_RequiresKey(t *testing.T) {
	app := newTestApp(t)

	req := httptest.NewRequest(http.MethodGet, "/api/backups", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest(http.MethodGet, "/api/backups", nil)
	req.Header.Set("X-API-Key", "wrong")
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAPI_HealthAndMetricsAreOpen(t *testing.T) {
	app := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_BackupLifecycle(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/backups", "")
	require.Equal(t, http.StatusCreated, status, body)
	data := body["data"].(map[string]interface{})
	filename := data["filename"].(string)

	status, body = do(t, app, http.MethodGet, "/api/backups", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)

	status, body = do(t, app, http.MethodPost, "/api/backups/"+filename+"/restore", "")
	require.Equal(t, http.StatusOK, status, body)

	status, body = do(t, app, http.MethodPost, "/api/backups/..%2Forvale.db/restore", "")
	assert.Equal(t, http.StatusBadRequest, status, body)

	status, _ = do(t, app, http.MethodDelete, "/api/backups/"+filename, "")
	assert.Equal(t, http.StatusOK, status)
	status, _ = do(t, app, http.MethodDelete, "/api/backups/"+filename, "")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestAPI_PresenceAndTickets(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodPut, "/api/presence/u1/status", `{"status":"busy","message":"focus"}`)
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, "busy", body["data"].(map[string]interface{})["status"])

	status, _ = do(t, app, http.MethodPut, "/api/presence/u1/status", `{"status":"idle"}`)
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = do(t, app, http.MethodDelete, "/api/presence/u1/status", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "online", body["data"].(map[string]interface{})["status"])

	status, _ = do(t, app, http.MethodGet, "/api/presence/nobody", "")
	assert.Equal(t, http.StatusNotFound, status)

	status, body = do(t, app, http.MethodPost, "/api/tickets/ITTS_Region7/next", "")
	require.Equal(t, http.StatusCreated, status)
	number := body["data"].(map[string]interface{})["ticket_number"].(string)
	assert.Regexp(t, `^R7-\d{6}-001$`, number)

	status, body = do(t, app, http.MethodGet, "/api/tickets/ITTS_Region7/current", "")
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["data"].(map[string]interface{})["last_sequence"])
}

func TestAPI_CleanupRun(t *testing.T) {
	app := newTestApp(t)

	status, body := do(t, app, http.MethodPost, "/api/cleanup/run", "")
	require.Equal(t, http.StatusOK, status, body)

	status, body = do(t, app, http.MethodGet, "/api/cleanup/stats", "")
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["data"], 1)
}

func TestAPI_SettingsUpdate(t *testing.T) {
	app := newTestApp(t)

	status, _ := do(t, app, http.MethodPut, "/api/settings/idleTimeoutMinutes", `{"value":5}`)
	require.Equal(t, http.StatusOK, status)

	status, body := do(t, app, http.MethodGet, "/api/settings", "")
	require.Equal(t, http.StatusOK, status)
	presence := body["data"].(map[string]interface{})["presence"].(map[string]interface{})
	assert.Equal(t, float64(5), presence["idleTimeoutMinutes"])

	status, _ = do(t, app, http.MethodPut, "/api/settings/jwtSecret", `{"value":"x"}`)
	assert.Equal(t, http.StatusBadRequest, status)
}
