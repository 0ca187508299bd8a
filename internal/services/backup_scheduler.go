package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/scheduler"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
)

const (
	backupSchedulerName = "backup"
	backupTriggeredBy   = "system_scheduler"
	backupMinGap        = 24 * time.Hour
)

// BackupCycleResult is the outcome of one scheduler cycle
type BackupCycleResult struct {
	RunID     string         `json:"run_id"`
	StartedAt time.Time      `json:"started_at"`
	Skipped   string         `json:"skipped,omitempty"`
	Backup    *BackupRecord  `json:"backup,omitempty"`
	Cleanup   *CleanupResult `json:"cleanup,omitempty"`
	Error     string         `json:"error,omitempty"`
}

// BackupSchedulerStatus reports the timer and the last cycle
type BackupSchedulerStatus struct {
	scheduler.Status
	LastCycle *BackupCycleResult `json:"last_cycle,omitempty"`
}

// BackupSchedulerService creates an automatic backup on a fixed interval and
// applies retention afterwards
type BackupSchedulerService struct {
	backups  *BackupService
	settings settings.Source
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
	timer    *scheduler.RecurringTimer

	mu   sync.Mutex
	last *BackupCycleResult
}

// NewBackupSchedulerService creates a stopped backup scheduler
func NewBackupSchedulerService(backups *BackupService, src settings.Source, interval time.Duration, m *metrics.Metrics, log zerolog.Logger) *BackupSchedulerService {
	s := &BackupSchedulerService{
		backups:  backups,
		settings: src,
		metrics:  m,
		log:      log.With().Str("component", "backup_scheduler").Logger(),
		now:      time.Now,
	}
	s.timer = scheduler.NewRecurringTimer(backupSchedulerName, scheduler.Every(interval), s.cycle,
		scheduler.WithRunImmediately(),
		scheduler.WithLogger(s.log),
	)
	return s
}

// Start arms the scheduler. The first cycle runs immediately.
func (s *BackupSchedulerService) Start() bool {
	started := s.timer.Start()
	if started {
		s.log.Info().Msg("backup scheduler started")
	}
	return started
}

// Stop cancels the next cycle, waiting for a running one to finish
func (s *BackupSchedulerService) Stop() {
	s.timer.Stop()
}

// IsRunning reports whether the scheduler is armed
func (s *BackupSchedulerService) IsRunning() bool {
	return s.timer.IsRunning()
}

// Status returns the timer state and the last cycle outcome
func (s *BackupSchedulerService) Status() BackupSchedulerStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := BackupSchedulerStatus{Status: s.timer.Status()}
	if s.last != nil {
		last := *s.last
		st.LastCycle = &last
	}
	return st
}

// RunNow runs one cycle synchronously
func (s *BackupSchedulerService) RunNow(ctx context.Context) BackupCycleResult {
	return s.runCycle(ctx)
}

func (s *BackupSchedulerService) cycle(ctx context.Context) {
	s.runCycle(ctx)
}

func (s *BackupSchedulerService) runCycle(ctx context.Context) BackupCycleResult {
	res := BackupCycleResult{RunID: uuid.NewString(), StartedAt: s.now().UTC()}
	defer func() {
		s.mu.Lock()
		s.last = &res
		s.mu.Unlock()
	}()

	bs, err := s.settings.BackupSettings(ctx)
	if err != nil {
		s.fail(&res, "settings", err)
		return res
	}
	if !bs.AutoBackupEnabled {
		res.Skipped = "automatic backups disabled"
		s.log.Debug().Msg("automatic backups disabled, skipping")
		return res
	}

	last, err := s.backups.LastAutomaticBackup(ctx)
	if err != nil {
		s.fail(&res, "check", err)
		return res
	}
	if last != nil && s.now().Sub(last.CreatedAt) < backupMinGap {
		res.Skipped = "automatic backup already created in the last 24h"
		s.log.Info().Str("last_backup", last.Filename).Time("created_at", last.CreatedAt).Msg("recent automatic backup exists, skipping")
		return res
	}

	rec, err := s.backups.CreateBackup(ctx, models.BackupTypeAutomatic, backupTriggeredBy)
	if err != nil {
		s.fail(&res, "create", err)
		return res
	}
	res.Backup = rec

	cleanup, err := s.backups.CleanupOldBackups(ctx)
	if err != nil {
		s.fail(&res, "cleanup", err)
		return res
	}
	res.Cleanup = &cleanup
	if len(cleanup.Errors) > 0 {
		s.metrics.RecordCycleError(backupSchedulerName, "cleanup")
	}

	s.log.Info().Str("run_id", res.RunID).Str("file", rec.Filename).Int("deleted", cleanup.DeletedCount).Msg("automatic backup cycle complete")
	return res
}

func (s *BackupSchedulerService) fail(res *BackupCycleResult, step string, err error) {
	res.Error = err.Error()
	s.metrics.RecordCycleError(backupSchedulerName, step)
	s.log.Error().Err(err).Str("run_id", res.RunID).Str("step", step).Msg("automatic backup cycle failed")
}
