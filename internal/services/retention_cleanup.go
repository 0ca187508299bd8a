package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/scheduler"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const retentionSchedulerName = "retention_cleanup"

// RetentionCleanupService runs the nightly chat data cleanup at local
// midnight and records one stats row per day
type RetentionCleanupService struct {
	db          *gorm.DB
	steps       []CleanupStep
	loc         *time.Location
	stepTimeout time.Duration
	metrics     *metrics.Metrics
	log         zerolog.Logger
	now         func() time.Time
	timer       *scheduler.RecurringTimer

	// one cleanup pass at a time
	runMu sync.Mutex
}

// NewRetentionCleanupService creates a stopped cleanup scheduler. A nil loc
// schedules against UTC.
func NewRetentionCleanupService(db *gorm.DB, loc *time.Location, stepTimeout time.Duration, m *metrics.Metrics, log zerolog.Logger) *RetentionCleanupService {
	if loc == nil {
		loc = time.UTC
	}
	if stepTimeout <= 0 {
		stepTimeout = 5 * time.Minute
	}
	s := &RetentionCleanupService{
		db:          db,
		steps:       DefaultCleanupSteps(),
		loc:         loc,
		stepTimeout: stepTimeout,
		metrics:     m,
		log:         log.With().Str("component", "retention_cleanup").Logger(),
		now:         time.Now,
	}
	s.timer = scheduler.NewRecurringTimer(retentionSchedulerName, scheduler.AtMidnight(loc), s.nightly,
		scheduler.WithLogger(s.log),
	)
	return s
}

// Start arms the midnight timer
func (s *RetentionCleanupService) Start() bool {
	started := s.timer.Start()
	if started {
		next := scheduler.NextMidnight(s.now(), s.loc)
		s.log.Info().Str("timezone", s.loc.String()).Time("next_run", next).Msg("retention cleanup scheduled")
	}
	return started
}

// Stop cancels the next run, waiting for a running pass to finish
func (s *RetentionCleanupService) Stop() {
	s.timer.Stop()
}

// IsRunning reports whether the scheduler is armed
func (s *RetentionCleanupService) IsRunning() bool {
	return s.timer.IsRunning()
}

// Status returns the timer state
func (s *RetentionCleanupService) Status() scheduler.Status {
	return s.timer.Status()
}

func (s *RetentionCleanupService) nightly(ctx context.Context) {
	if _, err := s.RunNow(ctx); err != nil {
		s.log.Error().Err(err).Msg("nightly cleanup failed")
	}
}

// RunNow runs every step once and stores the day's stats. Step failures are
// logged and counted as zero; only a failure to store the stats is returned.
func (s *RetentionCleanupService) RunNow(ctx context.Context) (*models.CleanupStats, error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	start := time.Now()
	now := s.now().UTC()
	stats := &models.CleanupStats{
		CleanupDate: now.In(s.loc).Format("2006-01-02"),
		CreatedAt:   now,
	}

	s.log.Info().Str("date", stats.CleanupDate).Msg("starting retention cleanup")

	for _, step := range s.steps {
		n, err := s.runStep(ctx, step, now)
		if err != nil {
			s.metrics.RecordCycleError(retentionSchedulerName, step.Name)
			s.log.Error().Err(err).Str("step", step.Name).Msg("cleanup step failed")
			n = 0
		} else if n > 0 {
			s.log.Info().Str("step", step.Name).Int64("count", n).Msg("cleanup step complete")
		}
		s.metrics.RecordCleanupStep(step.Name, n)
		applyStepCount(stats, step.Name, n)
		stats.TotalItemsCleaned += n
	}

	elapsed := time.Since(start)
	stats.CleanupDurationMs = elapsed.Milliseconds()
	s.metrics.ObserveCleanup(elapsed.Seconds())

	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cleanup_date"}},
		UpdateAll: true,
	}).Create(stats).Error
	if err != nil {
		return stats, fmt.Errorf("store cleanup stats: %w", err)
	}

	s.log.Info().
		Int64("total", stats.TotalItemsCleaned).
		Int64("duration_ms", stats.CleanupDurationMs).
		Msg("retention cleanup complete")
	return stats, nil
}

func (s *RetentionCleanupService) runStep(ctx context.Context, step CleanupStep, now time.Time) (n int64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("step panicked: %v", r)
		}
	}()

	stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
	defer cancel()

	err = s.db.WithContext(stepCtx).Transaction(func(tx *gorm.DB) error {
		var runErr error
		n, runErr = step.Run(stepCtx, tx, now)
		return runErr
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func applyStepCount(stats *models.CleanupStats, step string, n int64) {
	switch step {
	case StepAbandonedSessions:
		stats.AbandonedSessions = n
	case StepOrphanedMessages:
		stats.OrphanedMessages = n
	case StepStalePresence:
		stats.StalePresence = n
	case StepExpiredRecovery:
		stats.ExpiredRecovery = n
	case StepArchivedSessions:
		stats.ArchivedSessions = n
	}
}

// LatestStats returns the most recent stats row, or nil when cleanup has
// never run
func (s *RetentionCleanupService) LatestStats(ctx context.Context) (*models.CleanupStats, error) {
	var stats []models.CleanupStats
	if err := s.db.WithContext(ctx).Order("cleanup_date DESC").Limit(1).Find(&stats).Error; err != nil {
		return nil, err
	}
	if len(stats) == 0 {
		return nil, nil
	}
	return &stats[0], nil
}

// History returns up to limit stats rows, newest first
func (s *RetentionCleanupService) History(ctx context.Context, limit int) ([]models.CleanupStats, error) {
	if limit <= 0 || limit > 365 {
		limit = 30
	}
	var stats []models.CleanupStats
	err := s.db.WithContext(ctx).Order("cleanup_date DESC").Limit(limit).Find(&stats).Error
	return stats, err
}
