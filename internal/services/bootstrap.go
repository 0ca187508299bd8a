package services

import (
	"context"

	"github.com/rs/zerolog"
)

// Schedulers groups the background services started at boot
type Schedulers struct {
	Backup   *BackupSchedulerService
	Cleanup  *RetentionCleanupService
	Presence *PresenceService
	Log      zerolog.Logger
}

// StartAll starts every scheduler. Schedulers that are already running are
// left alone, so calling it twice arms nothing new.
func (s *Schedulers) StartAll(ctx context.Context) {
	started := 0
	if s.Backup != nil && s.Backup.Start() {
		started++
	}
	if s.Cleanup != nil && s.Cleanup.Start() {
		started++
	}
	if s.Presence != nil && s.Presence.Start(ctx) {
		started++
	}
	s.Log.Info().Int("started", started).Msg("background schedulers started")
}

// StopAll stops every scheduler, waiting for in-flight runs
func (s *Schedulers) StopAll() {
	if s.Presence != nil {
		s.Presence.Stop()
	}
	if s.Cleanup != nil {
		s.Cleanup.Stop()
	}
	if s.Backup != nil {
		s.Backup.Stop()
	}
	s.Log.Info().Msg("background schedulers stopped")
}
