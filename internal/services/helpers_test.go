package services

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/orvale/backend/internal/database"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/settings"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) (*gorm.DB, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "data", "orvale.db")
	db, err := database.OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, models.AutoMigrate(db))
	t.Cleanup(func() { database.Close(db, nil) })
	return db, path
}

// staticSettings serves fixed settings
type staticSettings struct {
	mu       sync.Mutex
	backup   settings.BackupSettings
	presence settings.PresenceSettings
	err      error
}

func newStaticSettings() *staticSettings {
	return &staticSettings{
		backup:   settings.DefaultBackupSettings(),
		presence: settings.DefaultPresenceSettings(),
	}
}

func (s *staticSettings) BackupSettings(context.Context) (settings.BackupSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backup, s.err
}

func (s *staticSettings) PresenceSettings(context.Context) (settings.PresenceSettings, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presence, s.err
}

// failingEngine fails every snapshot and records restore calls
type failingEngine struct {
	mu       sync.Mutex
	restores int
}

func (e *failingEngine) Name() string { return "failing" }

func (e *failingEngine) Snapshot(context.Context, string) error {
	return errors.New("snapshot unavailable")
}

func (e *failingEngine) Restore(context.Context, string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.restores++
	return nil
}

// recordingOffsite captures off-site uploads
type recordingOffsite struct {
	mu       sync.Mutex
	uploads  []string
	prunes   int
	failWith error
}

func (r *recordingOffsite) Upload(_ context.Context, _ settings.FTPSettings, _, filename string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.uploads = append(r.uploads, filename)
	return r.failWith
}

func (r *recordingOffsite) Prune(context.Context, settings.FTPSettings, time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.prunes++
	return 0, r.failWith
}

// fixedClock returns a settable clock
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}
