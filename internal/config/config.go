package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/kelseyhightower/envconfig"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds process configuration loaded from environment variables.
// Behavioral settings that admins change at runtime (retention, thresholds)
// live in the settings store instead.
type Config struct {
	// General
	Environment string `envconfig:"ENVIRONMENT" default:"production"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	AppRoot     string `envconfig:"APP_ROOT" default:"."`

	// API
	APIPort int    `envconfig:"API_PORT" default:"8080"`
	APIKey  string `envconfig:"API_KEY"`

	// Database
	DBDriver   string `envconfig:"DB_DRIVER" default:"sqlite"`
	DBPath     string `envconfig:"DB_PATH" default:"data/orvale.db"`
	DBHost     string `envconfig:"DB_HOST" default:"localhost"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"orvale"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"orvale"`

	// Redis (empty host disables the settings cache and presence fan-out)
	RedisHost     string `envconfig:"REDIS_HOST"`
	RedisPort     int    `envconfig:"REDIS_PORT" default:"6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`

	// Schedulers
	BackupInterval     time.Duration `envconfig:"BACKUP_INTERVAL" default:"24h"`
	CleanupTimezone    string        `envconfig:"CLEANUP_TIMEZONE" default:"America/Los_Angeles"`
	CleanupStepTimeout time.Duration `envconfig:"CLEANUP_STEP_TIMEOUT" default:"5m"`
	PresenceInterval   time.Duration `envconfig:"PRESENCE_INTERVAL" default:"1m"`
	TicketTimezone     string        `envconfig:"TICKET_TIMEZONE" default:"America/Los_Angeles"`
}

// Load reads the environment and validates the result.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("processing env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot express in tags.
func (c *Config) Validate() error {
	c.DBDriver = strings.ToLower(strings.TrimSpace(c.DBDriver))
	switch c.DBDriver {
	case DriverSQLite:
		if c.DBPath == "" {
			return fmt.Errorf("DB_PATH is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DBHost == "" || c.DBName == "" {
			return fmt.Errorf("DB_HOST and DB_NAME are required for the postgres driver")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	if c.BackupInterval <= 0 {
		return fmt.Errorf("BACKUP_INTERVAL must be positive")
	}
	if c.PresenceInterval <= 0 {
		return fmt.Errorf("PRESENCE_INTERVAL must be positive")
	}
	if _, err := time.LoadLocation(c.CleanupTimezone); err != nil {
		return fmt.Errorf("invalid CLEANUP_TIMEZONE %q: %w", c.CleanupTimezone, err)
	}
	if _, err := time.LoadLocation(c.TicketTimezone); err != nil {
		return fmt.Errorf("invalid TICKET_TIMEZONE %q: %w", c.TicketTimezone, err)
	}
	return nil
}

// IsDevelopment reports whether console logging should be used.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// RedisEnabled returns true if a Redis host is configured.
func (c *Config) RedisEnabled() bool {
	return c.RedisHost != ""
}

// DatabaseFile returns the absolute path of the live SQLite file, or "" for
// drivers without one.
func (c *Config) DatabaseFile() string {
	if c.DBDriver != DriverSQLite {
		return ""
	}
	return c.ResolvePath(c.DBPath)
}

// ResolvePath resolves p against AppRoot unless it is already absolute.
func (c *Config) ResolvePath(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	root, err := filepath.Abs(c.AppRoot)
	if err != nil {
		root = c.AppRoot
	}
	return filepath.Join(root, p)
}

// CleanupLocation returns the parsed cleanup timezone.
func (c *Config) CleanupLocation() *time.Location {
	loc, err := time.LoadLocation(c.CleanupTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TicketLocation returns the parsed ticket-numbering timezone.
func (c *Config) TicketLocation() *time.Location {
	loc, err := time.LoadLocation(c.TicketTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
