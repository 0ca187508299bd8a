package services

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/blake2b"
	"gorm.io/gorm"
)

const backupFilePrefix = "orvale_backup_"

var backupNamePattern = regexp.MustCompile(`^orvale_backup_(manual|automatic)_[0-9A-Za-z-]+\.db$`)

// BackupRecord describes one backup file on disk
type BackupRecord struct {
	Filename  string            `json:"filename"`
	Path      string            `json:"path"`
	Size      int64             `json:"size"`
	CreatedAt time.Time         `json:"created_at"`
	Type      models.BackupType `json:"type"`
	Checksum  string            `json:"checksum,omitempty"`
}

// CleanupResult reports a retention pass. Errors holds one entry per file
// that could not be removed.
type CleanupResult struct {
	DeletedCount int      `json:"deleted_count"`
	Errors       []string `json:"errors"`
}

// RestoreResult reports a completed restore
type RestoreResult struct {
	Restored     string       `json:"restored"`
	SafetyBackup BackupRecord `json:"safety_backup"`
	RestoredBy   string       `json:"restored_by"`
	RestoredAt   time.Time    `json:"restored_at"`
}

// BackupStats summarizes the backup directory
type BackupStats struct {
	TotalBackups     int        `json:"total_backups"`
	ManualBackups    int        `json:"manual_backups"`
	AutomaticBackups int        `json:"automatic_backups"`
	TotalSize        int64      `json:"total_size"`
	OldestBackup     *time.Time `json:"oldest_backup"`
	NewestBackup     *time.Time `json:"newest_backup"`
	Location         string     `json:"location"`
}

// BackupConfig locates files the backup service works with
type BackupConfig struct {
	// AppRoot anchors relative backup locations
	AppRoot string
	// DatabaseFile is the live database file used for the copy fallback.
	// Empty for servers without a local file.
	DatabaseFile string
}

// BackupService creates, lists, prunes and restores database backups
type BackupService struct {
	db       *gorm.DB
	settings settings.Source
	engine   SnapshotEngine
	offsite  OffsiteStore
	cfg      BackupConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
	remove   func(name string) error

	// serializes operations that write into the backup directory or replace
	// the live database
	mu sync.Mutex
}

// NewBackupService creates a backup service
func NewBackupService(db *gorm.DB, src settings.Source, engine SnapshotEngine, cfg BackupConfig, m *metrics.Metrics, log zerolog.Logger) *BackupService {
	log = log.With().Str("component", "backup").Logger()
	return &BackupService{
		db:       db,
		settings: src,
		engine:   engine,
		offsite:  NewFTPStore(log),
		cfg:      cfg,
		metrics:  m,
		log:      log,
		now:      time.Now,
		remove:   os.Remove,
	}
}

func (s *BackupService) resolveDir(location string) string {
	if filepath.IsAbs(location) {
		return location
	}
	root, err := filepath.Abs(s.cfg.AppRoot)
	if err != nil {
		root = s.cfg.AppRoot
	}
	return filepath.Join(root, location)
}

// backupDir reads the current settings and returns the resolved directory
func (s *BackupService) backupDir(ctx context.Context) (string, settings.BackupSettings, error) {
	bs, err := s.settings.BackupSettings(ctx)
	if err != nil {
		return "", bs, fmt.Errorf("load backup settings: %w", err)
	}
	return s.resolveDir(bs.BackupLocation), bs, nil
}

// backupTimestamp renders t like 2025-01-15T10-30-00-123Z
func backupTimestamp(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	return strings.NewReplacer(":", "-", ".", "-").Replace(ts)
}

// uniqueBackupName returns the first free name for t, adding a -N suffix on
// collision. Any Lstat error other than not-exist is returned.
func uniqueBackupName(dir string, backupType models.BackupType, t time.Time) (string, error) {
	base := backupFilePrefix + string(backupType) + "_" + backupTimestamp(t)
	name := base + ".db"
	for i := 1; ; i++ {
		_, err := os.Lstat(filepath.Join(dir, name))
		if errors.Is(err, fs.ErrNotExist) {
			return name, nil
		}
		if err != nil {
			return "", fmt.Errorf("check backup name %s: %w", name, err)
		}
		name = fmt.Sprintf("%s-%d.db", base, i)
	}
}

func backupTypeFromName(name string) models.BackupType {
	if strings.HasPrefix(name, backupFilePrefix+string(models.BackupTypeAutomatic)+"_") {
		return models.BackupTypeAutomatic
	}
	return models.BackupTypeManual
}

// validateBackupName rejects anything that is not a bare backup filename
func validateBackupName(filename string) error {
	if filename == "" || filepath.Base(filename) != filename || !backupNamePattern.MatchString(filename) {
		return fmt.Errorf("%w: %q", ErrInvalidBackupName, filename)
	}
	return nil
}

func fileChecksum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h, err := blake2b.New256(nil)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CreateBackup snapshots the database into the backup directory and records
// the result in the audit log.
func (s *BackupService) CreateBackup(ctx context.Context, backupType models.BackupType, triggeredBy string) (*BackupRecord, error) {
	if !backupType.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidBackupType, backupType)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.createLocked(ctx, backupType, triggeredBy)
	if err != nil {
		s.metrics.RecordBackup(string(backupType), "failure", 0)
		s.log.Error().Err(err).Str("type", string(backupType)).Str("triggered_by", triggeredBy).Msg("backup failed")
		return nil, err
	}
	s.metrics.RecordBackup(string(backupType), "success", rec.Size)
	return rec, nil
}

func (s *BackupService) createLocked(ctx context.Context, backupType models.BackupType, triggeredBy string) (*BackupRecord, error) {
	dir, bs, err := s.backupDir(ctx)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	now := s.now().UTC()
	filename, err := uniqueBackupName(dir, backupType, now)
	if err != nil {
		return nil, err
	}
	finalPath := filepath.Join(dir, filename)
	tmp := filepath.Join(dir, ".orvale_backup_tmp_"+uuid.NewString()+".db")

	if err := s.snapshot(ctx, tmp); err != nil {
		os.Remove(tmp)
		return nil, err
	}
	if err := os.Rename(tmp, finalPath); err != nil {
		os.Remove(tmp)
		return nil, fmt.Errorf("move backup into place: %w", err)
	}

	info, err := os.Stat(finalPath)
	if err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("stat backup: %w", err)
	}
	sum, err := fileChecksum(finalPath)
	if err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("checksum backup: %w", err)
	}

	entry := models.BackupLog{
		Filename:    filename,
		FilePath:    finalPath,
		FileSize:    info.Size(),
		BackupType:  backupType,
		TriggeredBy: triggeredBy,
		Status:      models.BackupStatusCompleted,
		Checksum:    sum,
		CreatedAt:   now,
	}
	if err := s.db.WithContext(ctx).Create(&entry).Error; err != nil {
		os.Remove(finalPath)
		return nil, fmt.Errorf("record backup: %w", err)
	}

	rec := &BackupRecord{
		Filename:  filename,
		Path:      finalPath,
		Size:      info.Size(),
		CreatedAt: info.ModTime(),
		Type:      backupType,
		Checksum:  sum,
	}

	s.log.Info().
		Str("file", filename).
		Int64("size", rec.Size).
		Str("type", string(backupType)).
		Str("triggered_by", triggeredBy).
		Msg("backup created")

	if bs.FTP.Enabled && s.offsite != nil {
		if err := s.offsite.Upload(ctx, bs.FTP, finalPath, filename); err != nil {
			s.log.Warn().Err(err).Str("file", filename).Msg("off-site copy failed")
		}
	}

	return rec, nil
}

// snapshot writes the database to dest with the engine's native primitive,
// falling back to a raw copy of the live database file.
func (s *BackupService) snapshot(ctx context.Context, dest string) error {
	var result *multierror.Error

	if s.engine != nil {
		err := s.engine.Snapshot(ctx, dest)
		if err == nil {
			return nil
		}
		result = multierror.Append(result, fmt.Errorf("%s snapshot: %w", s.engine.Name(), err))
		os.Remove(dest)
		s.log.Warn().Err(err).Str("engine", s.engine.Name()).Msg("native snapshot failed, falling back to file copy")
	}

	if s.cfg.DatabaseFile == "" {
		result = multierror.Append(result, ErrNoSnapshotFallback)
		return result.ErrorOrNil()
	}
	if err := copyFile(s.cfg.DatabaseFile, dest); err != nil {
		os.Remove(dest)
		result = multierror.Append(result, fmt.Errorf("file copy: %w", err))
		return result.ErrorOrNil()
	}
	return nil
}

// ListBackups returns every backup in the configured directory, newest first.
// A missing directory yields an empty list.
func (s *BackupService) ListBackups(ctx context.Context) ([]BackupRecord, error) {
	dir, _, err := s.backupDir(ctx)
	if err != nil {
		return nil, err
	}
	return s.listDir(dir)
}

func (s *BackupService) listDir(dir string) ([]BackupRecord, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []BackupRecord{}, nil
		}
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	backups := make([]BackupRecord, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !backupNamePattern.MatchString(name) {
			continue
		}

		path := filepath.Join(dir, name)
		info, err := os.Stat(path)
		if err != nil {
			s.log.Warn().Err(err).Str("file", name).Msg("skipping unreadable backup")
			continue
		}
		if info.IsDir() {
			continue
		}

		backups = append(backups, BackupRecord{
			Filename:  name,
			Path:      path,
			Size:      info.Size(),
			CreatedAt: info.ModTime(),
			Type:      backupTypeFromName(name),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// CleanupOldBackups deletes backups older than the retention period. A file
// that cannot be removed is reported and the pass continues.
func (s *BackupService) CleanupOldBackups(ctx context.Context) (CleanupResult, error) {
	result := CleanupResult{Errors: []string{}}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, bs, err := s.backupDir(ctx)
	if err != nil {
		return result, err
	}
	backups, err := s.listDir(dir)
	if err != nil {
		return result, err
	}

	cutoff := s.now().AddDate(0, 0, -bs.BackupRetentionDays)
	for _, b := range backups {
		if !b.CreatedAt.Before(cutoff) {
			continue
		}
		if err := s.remove(b.Path); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", b.Filename, err))
			s.log.Warn().Err(err).Str("file", b.Filename).Msg("failed to delete old backup")
			continue
		}
		result.DeletedCount++
		s.log.Info().Str("file", b.Filename).Msg("deleted old backup")
	}
	s.metrics.RecordBackupsDeleted(result.DeletedCount)

	if bs.FTP.Enabled && s.offsite != nil {
		if n, err := s.offsite.Prune(ctx, bs.FTP, cutoff); err != nil {
			s.log.Warn().Err(err).Msg("off-site cleanup failed")
		} else if n > 0 {
			s.log.Info().Int("deleted", n).Msg("pruned off-site backups")
		}
	}

	s.log.Info().
		Int("deleted", result.DeletedCount).
		Int("errors", len(result.Errors)).
		Int("retention_days", bs.BackupRetentionDays).
		Msg("backup retention complete")
	return result, nil
}

// RestoreFromBackup replaces the live database with the named backup. A
// manual safety backup of the current state is taken first; if it cannot be
// created the live database is left untouched.
func (s *BackupService) RestoreFromBackup(ctx context.Context, filename, restoredBy string) (*RestoreResult, error) {
	if err := validateBackupName(filename); err != nil {
		return nil, &RestoreError{Step: "validate", Filename: filename, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, _, err := s.backupDir(ctx)
	if err != nil {
		return nil, &RestoreError{Step: "settings", Filename: filename, Err: err}
	}
	path := filepath.Join(dir, filename)

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			err = ErrBackupNotFound
		}
		return nil, &RestoreError{Step: "locate", Filename: filename, Err: err}
	}

	if err := s.verifyChecksum(ctx, filename, path); err != nil {
		return nil, &RestoreError{Step: "verify", Filename: filename, Err: err}
	}

	safety, err := s.createLocked(ctx, models.BackupTypeManual, "restore:"+restoredBy)
	if err != nil {
		s.metrics.RecordBackup(string(models.BackupTypeManual), "failure", 0)
		return nil, &RestoreError{Step: "safety_backup", Filename: filename, Err: err}
	}
	s.metrics.RecordBackup(string(models.BackupTypeManual), "success", safety.Size)

	var safetyLog models.BackupLog
	if err := s.db.WithContext(ctx).Where(&models.BackupLog{Filename: safety.Filename}).First(&safetyLog).Error; err != nil {
		return nil, &RestoreError{Step: "safety_backup", Filename: filename, Err: err}
	}

	if s.engine == nil {
		return nil, &RestoreError{Step: "restore", Filename: filename, Err: errors.New("no restore engine configured")}
	}
	s.log.Warn().Str("file", filename).Str("restored_by", restoredBy).Str("safety_backup", safety.Filename).Msg("restoring database")
	if err := s.engine.Restore(ctx, path); err != nil {
		return nil, &RestoreError{Step: "restore", Filename: filename, Err: err}
	}

	now := s.now().UTC()
	s.recordRestore(ctx, safetyLog, models.BackupLog{
		Filename:    filename,
		FilePath:    path,
		FileSize:    info.Size(),
		BackupType:  backupTypeFromName(filename),
		TriggeredBy: restoredBy,
		Status:      models.BackupStatusRestored,
		CreatedAt:   now,
	})

	s.log.Info().Str("file", filename).Str("restored_by", restoredBy).Msg("database restored")
	return &RestoreResult{
		Restored:     filename,
		SafetyBackup: *safety,
		RestoredBy:   restoredBy,
		RestoredAt:   now,
	}, nil
}

// verifyChecksum compares the file against the checksum logged when it was
// created. Files without a logged checksum pass.
func (s *BackupService) verifyChecksum(ctx context.Context, filename, path string) error {
	var entry models.BackupLog
	err := s.db.WithContext(ctx).
		Where(&models.BackupLog{Filename: filename, Status: models.BackupStatusCompleted}).
		Order("id DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if entry.Checksum == "" {
		return nil
	}

	sum, err := fileChecksum(path)
	if err != nil {
		return err
	}
	if sum != entry.Checksum {
		return ErrChecksumMismatch
	}
	return nil
}

// recordRestore writes the audit rows into the database that is live after
// the restore, which predates the safety backup's own log row.
func (s *BackupService) recordRestore(ctx context.Context, safety, restored models.BackupLog) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.BackupLog{}).Where(&models.BackupLog{Filename: safety.Filename}).Count(&count).Error; err != nil {
		s.log.Error().Err(err).Msg("failed to check safety backup log after restore")
	} else if count == 0 {
		safety.ID = 0
		if err := db.Create(&safety).Error; err != nil {
			s.log.Error().Err(err).Str("file", safety.Filename).Msg("failed to re-record safety backup")
		}
	}

	if err := db.Create(&restored).Error; err != nil {
		s.log.Error().Err(err).Str("file", restored.Filename).Msg("failed to record restore")
	}
}

// DeleteBackup removes a single backup file
func (s *BackupService) DeleteBackup(ctx context.Context, filename string) error {
	if err := validateBackupName(filename); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir, _, err := s.backupDir(ctx)
	if err != nil {
		return err
	}
	path := filepath.Join(dir, filename)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ErrBackupNotFound
		}
		return fmt.Errorf("delete backup: %w", err)
	}

	s.log.Info().Str("file", filename).Msg("backup deleted")
	return nil
}

// GetBackupStats summarizes the backups currently on disk
func (s *BackupService) GetBackupStats(ctx context.Context) (BackupStats, error) {
	dir, _, err := s.backupDir(ctx)
	if err != nil {
		return BackupStats{}, err
	}
	backups, err := s.listDir(dir)
	if err != nil {
		return BackupStats{}, err
	}

	stats := BackupStats{TotalBackups: len(backups), Location: dir}
	for _, b := range backups {
		stats.TotalSize += b.Size
		if b.Type == models.BackupTypeAutomatic {
			stats.AutomaticBackups++
		} else {
			stats.ManualBackups++
		}
	}
	if len(backups) > 0 {
		newest := backups[0].CreatedAt
		oldest := backups[len(backups)-1].CreatedAt
		stats.NewestBackup = &newest
		stats.OldestBackup = &oldest
	}
	return stats, nil
}

// LastAutomaticBackup returns the newest automatic backup, or nil. Files on
// disk are checked as well as the log, since a restore replaces the log with
// the restored snapshot's copy.
func (s *BackupService) LastAutomaticBackup(ctx context.Context) (*BackupRecord, error) {
	var newest *BackupRecord

	backups, err := s.ListBackups(ctx)
	if err != nil {
		return nil, err
	}
	for i := range backups {
		if backups[i].Type == models.BackupTypeAutomatic {
			newest = &backups[i]
			break
		}
	}

	var entry models.BackupLog
	err = s.db.WithContext(ctx).
		Where(&models.BackupLog{BackupType: models.BackupTypeAutomatic, Status: models.BackupStatusCompleted}).
		Order("created_at DESC").
		First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return newest, nil
	}
	if err != nil {
		return nil, err
	}
	if newest == nil || entry.CreatedAt.After(newest.CreatedAt) {
		newest = &BackupRecord{
			Filename:  entry.Filename,
			Path:      entry.FilePath,
			Size:      entry.FileSize,
			CreatedAt: entry.CreatedAt,
			Type:      entry.BackupType,
			Checksum:  entry.Checksum,
		}
	}
	return newest, nil
}
