// Package settings reads and writes runtime settings stored as JSON values in
// the system_settings table, with an optional Redis read-through cache.
package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/orvale/backend/internal/database"
	"github.com/orvale/backend/internal/models"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Setting keys
const (
	KeyAutoBackupEnabled   = "autoBackupEnabled"
	KeyBackupRetentionDays = "backupRetentionDays"
	KeyBackupLocation      = "backupLocation"
	KeyBackupFTPEnabled    = "backupFtpEnabled"
	KeyBackupFTPHost       = "backupFtpHost"
	KeyBackupFTPPort       = "backupFtpPort"
	KeyBackupFTPUsername   = "backupFtpUsername"
	KeyBackupFTPPassword   = "backupFtpPassword"
	KeyBackupFTPPath       = "backupFtpPath"

	KeyIdleTimeoutMinutes        = "idleTimeoutMinutes"
	KeyAwayTimeoutMinutes        = "awayTimeoutMinutes"
	KeyOfflineTimeoutMinutes     = "offlineTimeoutMinutes"
	KeyEnableAutoPresenceUpdates = "enableAutoPresenceUpdates"
)

var presenceKeys = map[string]bool{
	KeyIdleTimeoutMinutes:        true,
	KeyAwayTimeoutMinutes:        true,
	KeyOfflineTimeoutMinutes:     true,
	KeyEnableAutoPresenceUpdates: true,
}

var backupKeys = map[string]bool{
	KeyAutoBackupEnabled:   true,
	KeyBackupRetentionDays: true,
	KeyBackupLocation:      true,
	KeyBackupFTPEnabled:    true,
	KeyBackupFTPHost:       true,
	KeyBackupFTPPort:       true,
	KeyBackupFTPUsername:   true,
	KeyBackupFTPPassword:   true,
	KeyBackupFTPPath:       true,
}

// IsKnownKey reports whether key is read by any service
func IsKnownKey(key string) bool {
	return backupKeys[key] || presenceKeys[key]
}

// IsPresenceKey reports whether key is a presence threshold
func IsPresenceKey(key string) bool {
	return presenceKeys[key]
}

// BackupSettings controls the backup lifecycle
type BackupSettings struct {
	AutoBackupEnabled   bool   `json:"autoBackupEnabled"`
	BackupRetentionDays int    `json:"backupRetentionDays"`
	BackupLocation      string `json:"backupLocation"`

	FTP FTPSettings `json:"ftp"`
}

// FTPSettings configure the optional off-site copy of each backup
type FTPSettings struct {
	Enabled  bool   `json:"enabled"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
	Path     string `json:"path"`
}

// DefaultBackupSettings returns the settings used when nothing is stored
func DefaultBackupSettings() BackupSettings {
	return BackupSettings{
		AutoBackupEnabled:   true,
		BackupRetentionDays: 30,
		BackupLocation:      "backups",
		FTP: FTPSettings{
			Port: 21,
			Path: "/backups",
		},
	}
}

// PresenceSettings are the inactivity thresholds for automatic presence
type PresenceSettings struct {
	IdleTimeoutMinutes        int  `json:"idleTimeoutMinutes"`
	AwayTimeoutMinutes        int  `json:"awayTimeoutMinutes"`
	OfflineTimeoutMinutes     int  `json:"offlineTimeoutMinutes"`
	EnableAutoPresenceUpdates bool `json:"enableAutoPresenceUpdates"`
}

// DefaultPresenceSettings returns the thresholds used when nothing is stored
func DefaultPresenceSettings() PresenceSettings {
	return PresenceSettings{
		IdleTimeoutMinutes:        10,
		AwayTimeoutMinutes:        30,
		OfflineTimeoutMinutes:     60,
		EnableAutoPresenceUpdates: true,
	}
}

// Source is the read side used by the services
type Source interface {
	BackupSettings(ctx context.Context) (BackupSettings, error)
	PresenceSettings(ctx context.Context) (PresenceSettings, error)
}

// Store is the system_settings table plus cache
type Store struct {
	db    *gorm.DB
	cache *database.Cache
	log   zerolog.Logger
}

// NewStore creates a settings store. cache may be nil.
func NewStore(db *gorm.DB, cache *database.Cache, log zerolog.Logger) *Store {
	return &Store{
		db:    db,
		cache: cache,
		log:   log.With().Str("component", "settings").Logger(),
	}
}

// Get decodes the JSON value stored under key into dest. found is false
// when the key has never been set.
func (s *Store) Get(ctx context.Context, key string, dest interface{}) (bool, error) {
	var raw string
	if err := s.cache.Get(ctx, database.CacheKeySettings+key, &raw); err == nil {
		return true, json.Unmarshal([]byte(raw), dest)
	}

	var row models.SystemSetting
	err := s.db.WithContext(ctx).Where(&models.SystemSetting{Key: key}).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load setting %s: %w", key, err)
	}

	if err := s.cache.Set(ctx, database.CacheKeySettings+key, row.Value, database.CacheTTLSettings); err != nil {
		s.log.Debug().Err(err).Str("key", key).Msg("settings cache write failed")
	}
	if err := json.Unmarshal([]byte(row.Value), dest); err != nil {
		return true, fmt.Errorf("decode setting %s: %w", key, err)
	}
	return true, nil
}

// Set stores value as JSON under key
func (s *Store) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode setting %s: %w", key, err)
	}

	row := models.SystemSetting{Key: key, Value: string(data), UpdatedAt: time.Now().UTC()}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return fmt.Errorf("save setting %s: %w", key, err)
	}

	if err := s.cache.Delete(ctx, database.CacheKeySettings+key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("settings cache invalidation failed")
	}
	return nil
}

// getOr decodes key into dest, leaving dest untouched when the key is
// missing or malformed. Malformed values are logged, not fatal.
func (s *Store) getOr(ctx context.Context, key string, dest interface{}) error {
	_, err := s.Get(ctx, key, dest)
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		s.log.Warn().Err(err).Str("key", key).Msg("ignoring malformed setting")
		return nil
	}
	return err
}

// BackupSettings loads the backup settings, falling back to defaults per key
func (s *Store) BackupSettings(ctx context.Context) (BackupSettings, error) {
	out := DefaultBackupSettings()
	fields := []struct {
		key  string
		dest interface{}
	}{
		{KeyAutoBackupEnabled, &out.AutoBackupEnabled},
		{KeyBackupRetentionDays, &out.BackupRetentionDays},
		{KeyBackupLocation, &out.BackupLocation},
		{KeyBackupFTPEnabled, &out.FTP.Enabled},
		{KeyBackupFTPHost, &out.FTP.Host},
		{KeyBackupFTPPort, &out.FTP.Port},
		{KeyBackupFTPUsername, &out.FTP.Username},
		{KeyBackupFTPPassword, &out.FTP.Password},
		{KeyBackupFTPPath, &out.FTP.Path},
	}
	for _, f := range fields {
		if err := s.getOr(ctx, f.key, f.dest); err != nil {
			return out, err
		}
	}

	if out.BackupRetentionDays < 1 {
		out.BackupRetentionDays = 1
	}
	if out.BackupLocation == "" {
		out.BackupLocation = DefaultBackupSettings().BackupLocation
	}
	if out.FTP.Port <= 0 {
		out.FTP.Port = 21
	}
	return out, nil
}

// PresenceSettings loads presence thresholds, falling back to defaults per key
func (s *Store) PresenceSettings(ctx context.Context) (PresenceSettings, error) {
	out := DefaultPresenceSettings()
	fields := []struct {
		key  string
		dest interface{}
	}{
		{KeyIdleTimeoutMinutes, &out.IdleTimeoutMinutes},
		{KeyAwayTimeoutMinutes, &out.AwayTimeoutMinutes},
		{KeyOfflineTimeoutMinutes, &out.OfflineTimeoutMinutes},
		{KeyEnableAutoPresenceUpdates, &out.EnableAutoPresenceUpdates},
	}
	for _, f := range fields {
		if err := s.getOr(ctx, f.key, f.dest); err != nil {
			return out, err
		}
	}
	return out, nil
}
