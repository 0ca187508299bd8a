package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/orvale/backend/internal/database"
	"github.com/orvale/backend/internal/metrics"
	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/scheduler"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	presenceSchedulerName = "presence"
	PresenceChannel       = "orvale:presence"
)

// PresenceChange describes one status transition
type PresenceChange struct {
	UserID string                `json:"user_id"`
	From   models.PresenceStatus `json:"from"`
	To     models.PresenceStatus `json:"to"`
	Manual bool                  `json:"manual"`
	At     time.Time             `json:"at"`
}

// PresenceNotifier receives presence transitions for fan-out to clients
type PresenceNotifier interface {
	PresenceChanged(ctx context.Context, change PresenceChange) error
}

// RedisPresenceNotifier publishes transitions on a Redis channel
type RedisPresenceNotifier struct {
	cache *database.Cache
}

// NewRedisPresenceNotifier returns nil when cache is nil
func NewRedisPresenceNotifier(cache *database.Cache) *RedisPresenceNotifier {
	if cache == nil {
		return nil
	}
	return &RedisPresenceNotifier{cache: cache}
}

func (n *RedisPresenceNotifier) PresenceChanged(ctx context.Context, change PresenceChange) error {
	return n.cache.Publish(ctx, PresenceChannel, change)
}

// TargetStatus maps inactivity to an automatic status. The thresholds are
// checked from the longest down, so a long gap lands on offline directly.
func TargetStatus(inactive time.Duration, cfg settings.PresenceSettings) models.PresenceStatus {
	switch {
	case inactive >= time.Duration(cfg.OfflineTimeoutMinutes)*time.Minute:
		return models.PresenceOffline
	case inactive >= time.Duration(cfg.AwayTimeoutMinutes)*time.Minute:
		return models.PresenceAway
	case inactive >= time.Duration(cfg.IdleTimeoutMinutes)*time.Minute:
		return models.PresenceIdle
	default:
		return models.PresenceOnline
	}
}

// PresenceService derives automatic presence from inactivity once a minute
// and handles explicit status changes
type PresenceService struct {
	db       *gorm.DB
	settings settings.Source
	notifier PresenceNotifier
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
	timer    *scheduler.RecurringTimer

	mu  sync.RWMutex
	cfg settings.PresenceSettings
}

// NewPresenceService creates a stopped presence evaluator. notifier may be nil.
func NewPresenceService(db *gorm.DB, src settings.Source, notifier PresenceNotifier, interval time.Duration, m *metrics.Metrics, log zerolog.Logger) *PresenceService {
	if interval <= 0 {
		interval = time.Minute
	}
	s := &PresenceService{
		db:       db,
		settings: src,
		metrics:  m,
		log:      log.With().Str("component", "presence").Logger(),
		now:      time.Now,
		notifier: notifier,
		cfg:      settings.DefaultPresenceSettings(),
	}
	s.timer = scheduler.NewRecurringTimer(presenceSchedulerName, scheduler.Every(interval), s.tick,
		scheduler.WithLogger(s.log),
	)
	return s
}

// Start loads the thresholds and arms the evaluator
func (s *PresenceService) Start(ctx context.Context) bool {
	if s.timer.IsRunning() {
		return false
	}
	if err := s.ReloadSettings(ctx); err != nil {
		s.log.Warn().Err(err).Msg("using default presence thresholds")
	}
	return s.timer.Start()
}

// Stop cancels the next tick
func (s *PresenceService) Stop() {
	s.timer.Stop()
}

// IsRunning reports whether the evaluator is armed
func (s *PresenceService) IsRunning() bool {
	return s.timer.IsRunning()
}

// Status returns the timer state
func (s *PresenceService) Status() scheduler.Status {
	return s.timer.Status()
}

// ReloadSettings re-reads the thresholds from the settings store
func (s *PresenceService) ReloadSettings(ctx context.Context) error {
	cfg, err := s.settings.PresenceSettings(ctx)
	if err != nil {
		return fmt.Errorf("load presence settings: %w", err)
	}
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()

	s.log.Info().
		Int("idle", cfg.IdleTimeoutMinutes).
		Int("away", cfg.AwayTimeoutMinutes).
		Int("offline", cfg.OfflineTimeoutMinutes).
		Bool("enabled", cfg.EnableAutoPresenceUpdates).
		Msg("presence settings loaded")
	return nil
}

// Settings returns the thresholds in use
func (s *PresenceService) Settings() settings.PresenceSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *PresenceService) tick(ctx context.Context) {
	if _, err := s.Tick(ctx); err != nil {
		s.metrics.RecordCycleError(presenceSchedulerName, "tick")
		s.log.Error().Err(err).Msg("presence tick failed")
	}
}

// Tick evaluates every automatic, non-offline record once and returns the
// number of records whose status changed
func (s *PresenceService) Tick(ctx context.Context) (int, error) {
	cfg := s.Settings()
	if !cfg.EnableAutoPresenceUpdates {
		return 0, nil
	}

	var records []models.UserPresence
	err := s.db.WithContext(ctx).
		Where("status <> ? AND is_manual = ?", models.PresenceOffline, false).
		Find(&records).Error
	if err != nil {
		return 0, err
	}

	now := s.now().UTC()
	changed := 0
	for _, p := range records {
		if p.Status.IsManual() {
			continue
		}
		target := TargetStatus(now.Sub(p.LastActive), cfg)
		if target == p.Status {
			continue
		}

		res := s.db.WithContext(ctx).Model(&models.UserPresence{}).
			Where("user_id = ? AND status = ? AND is_manual = ?", p.UserID, p.Status, false).
			Updates(map[string]interface{}{"status": target, "updated_at": now})
		if res.Error != nil {
			s.log.Warn().Err(res.Error).Str("user_id", p.UserID).Msg("failed to update presence")
			continue
		}
		if res.RowsAffected == 0 {
			// changed underneath us by a user action
			continue
		}
		changed++
		s.changed(ctx, PresenceChange{UserID: p.UserID, From: p.Status, To: target, At: now})
	}

	if changed > 0 {
		s.log.Debug().Int("changed", changed).Msg("presence tick complete")
	}
	return changed, nil
}

func (s *PresenceService) changed(ctx context.Context, change PresenceChange) {
	s.metrics.RecordPresenceTransition(string(change.From), string(change.To))
	if s.notifier == nil {
		return
	}
	if err := s.notifier.PresenceChanged(ctx, change); err != nil {
		s.log.Warn().Err(err).Str("user_id", change.UserID).Msg("failed to publish presence change")
	}
}

func (s *PresenceService) current(ctx context.Context, userID string) (models.PresenceStatus, bool, error) {
	var p models.UserPresence
	err := s.db.WithContext(ctx).Where(&models.UserPresence{UserID: userID}).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.PresenceOffline, false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p.Status, true, nil
}

// UpdateUserActivity marks the user active now. Automatic users return to
// online; a manual status is kept.
func (s *PresenceService) UpdateUserActivity(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUser
	}

	before, _, err := s.current(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	rec := models.UserPresence{
		UserID:     userID,
		Status:     models.PresenceOnline,
		LastActive: now,
		UpdatedAt:  now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"last_active": now,
			"updated_at":  now,
			"status":      gorm.Expr("CASE WHEN user_presence.is_manual THEN user_presence.status ELSE ? END", models.PresenceOnline),
		}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("update activity: %w", err)
	}

	if before != models.PresenceOnline && !before.IsManual() {
		s.changed(ctx, PresenceChange{UserID: userID, From: before, To: models.PresenceOnline, At: now})
	}
	return nil
}

// SetManualStatus pins a manual status until the user resets it
func (s *PresenceService) SetManualStatus(ctx context.Context, userID string, status models.PresenceStatus, message string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUser
	}
	if !status.IsManual() {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	before, _, err := s.current(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	rec := models.UserPresence{
		UserID:        userID,
		Status:        status,
		StatusMessage: message,
		IsManual:      true,
		LastActive:    now,
		UpdatedAt:     now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "status_message", "is_manual", "last_active", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("set manual status: %w", err)
	}

	if before != status {
		s.changed(ctx, PresenceChange{UserID: userID, From: before, To: status, Manual: true, At: now})
	}
	return nil
}

// ResetToAutomatic clears a manual status and puts the user back online
func (s *PresenceService) ResetToAutomatic(ctx context.Context, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ErrEmptyUser
	}

	before, _, err := s.current(ctx, userID)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	rec := models.UserPresence{
		UserID:     userID,
		Status:     models.PresenceOnline,
		IsManual:   false,
		LastActive: now,
		UpdatedAt:  now,
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "status_message", "is_manual", "last_active", "updated_at"}),
	}).Create(&rec).Error
	if err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}

	if before != models.PresenceOnline {
		s.changed(ctx, PresenceChange{UserID: userID, From: before, To: models.PresenceOnline, At: now})
	}
	return nil
}

// GetPresence returns one user's presence record
func (s *PresenceService) GetPresence(ctx context.Context, userID string) (*models.UserPresence, error) {
	var p models.UserPresence
	err := s.db.WithContext(ctx).Where(&models.UserPresence{UserID: userID}).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrPresenceNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPresence returns every presence record ordered by user id
func (s *PresenceService) ListPresence(ctx context.Context) ([]models.UserPresence, error) {
	var records []models.UserPresence
	err := s.db.WithContext(ctx).Order("user_id").Find(&records).Error
	return records, err
}
