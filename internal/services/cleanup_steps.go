package services

import (
	"context"
	"time"

	"github.com/orvale/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Cleanup step names, also used as stats columns and metric labels
const (
	StepAbandonedSessions = "abandoned_sessions"
	StepOrphanedMessages  = "orphaned_messages"
	StepStalePresence     = "stale_presence"
	StepExpiredRecovery   = "expired_recovery"
	StepArchivedSessions  = "archived_sessions"
)

const (
	abandonAfter      = 24 * time.Hour
	recoveryGraceDays = 7
	archiveAfterDays  = 30
	archiveBatchSize  = 500
)

// CleanupStep is one unit of nightly cleanup. Run executes inside its own
// transaction and returns the number of items affected.
type CleanupStep struct {
	Name string
	Run  func(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error)
}

// DefaultCleanupSteps returns the nightly steps in execution order
func DefaultCleanupSteps() []CleanupStep {
	return []CleanupStep{
		{Name: StepAbandonedSessions, Run: markAbandonedSessions},
		{Name: StepOrphanedMessages, Run: deleteOrphanedMessages},
		{Name: StepStalePresence, Run: stalePresenceNoop},
		{Name: StepExpiredRecovery, Run: deleteExpiredRecovery},
		{Name: StepArchivedSessions, Run: archiveOldSessions},
	}
}

var (
	openStatuses   = []models.ChatSessionStatus{models.ChatStatusWaiting, models.ChatStatusActive}
	closedStatuses = []models.ChatSessionStatus{models.ChatStatusEnded, models.ChatStatusAbandoned}
)

// markAbandonedSessions closes waiting or active sessions older than a day
// with no activity and no messages in the last day
func markAbandonedSessions(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	cutoff := now.Add(-abandonAfter)
	res := tx.WithContext(ctx).Exec(`
		UPDATE chat_sessions
		SET status = ?, ended_at = ?
		WHERE status IN ?
		AND created_at < ?
		AND (last_activity_at IS NULL OR last_activity_at < ?)
		AND NOT EXISTS (
			SELECT 1 FROM chat_messages m
			WHERE m.session_id = chat_sessions.id AND m.created_at >= ?
		)
	`, models.ChatStatusAbandoned, now, openStatuses, cutoff, cutoff, cutoff)
	return res.RowsAffected, res.Error
}

func deleteOrphanedMessages(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	res := tx.WithContext(ctx).Exec(`
		DELETE FROM chat_messages
		WHERE session_id NOT IN (SELECT id FROM chat_sessions)
	`)
	return res.RowsAffected, res.Error
}

// stalePresenceNoop keeps the stats column stable. Presence decay is owned
// by the presence service.
func stalePresenceNoop(context.Context, *gorm.DB, time.Time) (int64, error) {
	return 0, nil
}

// deleteExpiredRecovery purges recovery tokens that expired, whose session
// closed more than a week ago, or whose session is gone
func deleteExpiredRecovery(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	closedBefore := now.AddDate(0, 0, -recoveryGraceDays)
	res := tx.WithContext(ctx).Exec(`
		DELETE FROM chat_session_recovery
		WHERE expires_at < ?
		OR session_id NOT IN (SELECT id FROM chat_sessions)
		OR session_id IN (
			SELECT id FROM chat_sessions
			WHERE status IN ? AND COALESCE(ended_at, created_at) < ?
		)
	`, now, closedStatuses, closedBefore)
	return res.RowsAffected, res.Error
}

type sessionMessageCount struct {
	SessionID string
	Count     int64
}

// archiveOldSessions copies closed sessions older than 30 days into the
// archive and removes exactly those ids from the live table
func archiveOldSessions(ctx context.Context, tx *gorm.DB, now time.Time) (int64, error) {
	db := tx.WithContext(ctx)
	cutoff := now.AddDate(0, 0, -archiveAfterDays)
	var total int64

	for {
		var sessions []models.ChatSession
		err := db.Where("status IN ? AND COALESCE(ended_at, created_at) < ?", closedStatuses, cutoff).
			Order("id").
			Limit(archiveBatchSize).
			Find(&sessions).Error
		if err != nil {
			return total, err
		}
		if len(sessions) == 0 {
			return total, nil
		}

		ids := make([]string, len(sessions))
		for i, cs := range sessions {
			ids[i] = cs.ID
		}

		var counts []sessionMessageCount
		err = db.Model(&models.ChatMessage{}).
			Select("session_id, COUNT(*) AS count").
			Where("session_id IN ?", ids).
			Group("session_id").
			Scan(&counts).Error
		if err != nil {
			return total, err
		}
		byID := make(map[string]int64, len(counts))
		for _, c := range counts {
			byID[c.SessionID] = c.Count
		}

		archives := make([]models.ChatSessionArchive, len(sessions))
		for i, cs := range sessions {
			archives[i] = archiveFromSession(cs, byID[cs.ID], now)
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&archives).Error; err != nil {
			return total, err
		}

		res := db.Where("id IN ?", ids).Delete(&models.ChatSession{})
		if res.Error != nil {
			return total, res.Error
		}
		total += res.RowsAffected

		if len(sessions) < archiveBatchSize {
			return total, nil
		}
	}
}

func archiveFromSession(cs models.ChatSession, messages int64, now time.Time) models.ChatSessionArchive {
	end := cs.CreatedAt
	switch {
	case cs.EndedAt != nil:
		end = *cs.EndedAt
	case cs.LastActivityAt != nil:
		end = *cs.LastActivityAt
	}
	duration := int64(end.Sub(cs.CreatedAt).Minutes())
	if duration < 0 {
		duration = 0
	}

	return models.ChatSessionArchive{
		ID:              cs.ID,
		Status:          cs.Status,
		VisitorName:     cs.VisitorName,
		VisitorEmail:    cs.VisitorEmail,
		VisitorIP:       cs.VisitorIP,
		UserAgent:       cs.UserAgent,
		AssignedTo:      cs.AssignedTo,
		CreatedAt:       cs.CreatedAt,
		LastActivityAt:  cs.LastActivityAt,
		EndedAt:         cs.EndedAt,
		MessageCount:    messages,
		DurationMinutes: duration,
		ArchivedAt:      now,
	}
}
