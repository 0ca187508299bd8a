package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "data/orvale.db", cfg.DBPath)
	assert.Equal(t, 8080, cfg.APIPort)
	assert.Equal(t, 24*time.Hour, cfg.BackupInterval)
	assert.Equal(t, time.Minute, cfg.PresenceInterval)
	assert.Equal(t, "America/Los_Angeles", cfg.CleanupTimezone)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "Postgres")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("REDIS_HOST", "cache.internal")
	t.Setenv("BACKUP_INTERVAL", "12h")
	t.Setenv("CLEANUP_TIMEZONE", "Europe/Berlin")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, 12*time.Hour, cfg.BackupInterval)
	assert.Equal(t, "Europe/Berlin", cfg.CleanupLocation().String())
	assert.Empty(t, cfg.DatabaseFile())
}

func TestLoad_InvalidDriver(t *testing.T) {
	t.Setenv("DB_DRIVER", "mysql")
	_, err := Load()
	assert.Error(t, err)
}

func TestLoad_InvalidTimezone(t *testing.T) {
	t.Setenv("CLEANUP_TIMEZONE", "Mars/Olympus_Mons")
	_, err := Load()
	assert.Error(t, err)
}

func TestResolvePath(t *testing.T) {
	root := t.TempDir()
	cfg := &Config{AppRoot: root, DBDriver: DriverSQLite, DBPath: "data/orvale.db"}

	assert.Equal(t, filepath.Join(root, "backups"), cfg.ResolvePath("backups"))
	assert.Equal(t, "/var/backups/orvale", cfg.ResolvePath("/var/backups/orvale"))
	assert.Equal(t, filepath.Join(root, "data", "orvale.db"), cfg.DatabaseFile())
}
