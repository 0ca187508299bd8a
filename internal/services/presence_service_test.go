package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/orvale/backend/internal/models"
	"github.com/orvale/backend/internal/settings"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingNotifier struct {
	mu      sync.Mutex
	changes []PresenceChange
}

func (n *recordingNotifier) PresenceChanged(_ context.Context, c PresenceChange) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.changes = append(n.changes, c)
	return nil
}

func newPresenceService(t *testing.T) (*PresenceService, *gorm.DB, *fixedClock, *recordingNotifier) {
	t.Helper()
	db, _ := newTestDB(t)
	clock := &fixedClock{t: time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)}
	notifier := &recordingNotifier{}
	svc := NewPresenceService(db, newStaticSettings(), notifier, time.Minute, nil, zerolog.Nop())
	svc.now = clock.Now
	return svc, db, clock, notifier
}

func seedPresence(t *testing.T, db *gorm.DB, userID string, status models.PresenceStatus, inactive time.Duration, now time.Time, manual bool) {
	t.Helper()
	require.NoError(t, db.Create(&models.UserPresence{
		UserID:     userID,
		Status:     status,
		LastActive: now.Add(-inactive),
		IsManual:   manual,
	}).Error)
}

func presenceOf(t *testing.T, db *gorm.DB, userID string) models.UserPresence {
	t.Helper()
	var p models.UserPresence
	require.NoError(t, db.First(&p, "user_id = ?", userID).Error)
	return p
}

func TestTargetStatus_Thresholds(t *testing.T) {
	cfg := settings.DefaultPresenceSettings()
	cases := []struct {
		inactive time.Duration
		want     models.PresenceStatus
	}{
		{0, models.PresenceOnline},
		{9 * time.Minute, models.PresenceOnline},
		{10 * time.Minute, models.PresenceIdle},
		{29 * time.Minute, models.PresenceIdle},
		{30 * time.Minute, models.PresenceAway},
		{59 * time.Minute, models.PresenceAway},
		{60 * time.Minute, models.PresenceOffline},
		{72 * time.Hour, models.PresenceOffline},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, TargetStatus(tc.inactive, cfg), "inactive=%s", tc.inactive)
	}
}

func TestTick_TransitionsByInactivity(t *testing.T) {
	svc, db, clock, notifier := newPresenceService(t)
	now := clock.Now()
	seedPresence(t, db, "u9", models.PresenceOnline, 9*time.Minute, now, false)
	seedPresence(t, db, "u10", models.PresenceOnline, 10*time.Minute, now, false)
	seedPresence(t, db, "u30", models.PresenceIdle, 30*time.Minute, now, false)
	seedPresence(t, db, "u60", models.PresenceAway, 60*time.Minute, now, false)

	changed, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, changed)

	assert.Equal(t, models.PresenceOnline, presenceOf(t, db, "u9").Status)
	assert.Equal(t, models.PresenceIdle, presenceOf(t, db, "u10").Status)
	assert.Equal(t, models.PresenceAway, presenceOf(t, db, "u30").Status)
	assert.Equal(t, models.PresenceOffline, presenceOf(t, db, "u60").Status)
	assert.Len(t, notifier.changes, 3)
}

func TestTick_JumpsStraightToOffline(t *testing.T) {
	svc, db, clock, notifier := newPresenceService(t)
	seedPresence(t, db, "u", models.PresenceOnline, 2*time.Hour, clock.Now(), false)

	changed, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, changed)
	assert.Equal(t, models.PresenceOffline, presenceOf(t, db, "u").Status)
	require.Len(t, notifier.changes, 1)
	assert.Equal(t, models.PresenceOnline, notifier.changes[0].From)
	assert.Equal(t, models.PresenceOffline, notifier.changes[0].To)
}

func TestTick_ManualStatusIsPinned(t *testing.T) {
	svc, db, clock, _ := newPresenceService(t)
	seedPresence(t, db, "busy", models.PresenceBusy, 24*time.Hour, clock.Now(), true)
	seedPresence(t, db, "meeting-legacy", models.PresenceInMeeting, 24*time.Hour, clock.Now(), false)

	changed, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, models.PresenceBusy, presenceOf(t, db, "busy").Status)
	assert.Equal(t, models.PresenceInMeeting, presenceOf(t, db, "meeting-legacy").Status)
}

func TestTick_DisabledDoesNothing(t *testing.T) {
	svc, db, clock, _ := newPresenceService(t)
	src := newStaticSettings()
	src.presence.EnableAutoPresenceUpdates = false
	svc.settings = src
	require.NoError(t, svc.ReloadSettings(context.Background()))
	seedPresence(t, db, "u", models.PresenceOnline, 2*time.Hour, clock.Now(), false)

	changed, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, models.PresenceOnline, presenceOf(t, db, "u").Status)
}

func TestReloadSettings_AppliesNewThresholds(t *testing.T) {
	svc, db, clock, _ := newPresenceService(t)
	src := newStaticSettings()
	svc.settings = src
	seedPresence(t, db, "u", models.PresenceOnline, 5*time.Minute, clock.Now(), false)

	src.mu.Lock()
	src.presence.IdleTimeoutMinutes = 3
	src.mu.Unlock()
	require.NoError(t, svc.ReloadSettings(context.Background()))
	assert.Equal(t, 3, svc.Settings().IdleTimeoutMinutes)

	_, err := svc.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, models.PresenceIdle, presenceOf(t, db, "u").Status)
}

func TestUpdateUserActivity(t *testing.T) {
	svc, db, clock, notifier := newPresenceService(t)
	ctx := context.Background()

	require.NoError(t, svc.UpdateUserActivity(ctx, "new-user"))
	p := presenceOf(t, db, "new-user")
	assert.Equal(t, models.PresenceOnline, p.Status)
	assert.True(t, p.LastActive.Equal(clock.Now()))

	seedPresence(t, db, "away", models.PresenceAway, 45*time.Minute, clock.Now(), false)
	require.NoError(t, svc.UpdateUserActivity(ctx, "away"))
	assert.Equal(t, models.PresenceOnline, presenceOf(t, db, "away").Status)

	seedPresence(t, db, "caller", models.PresenceInCall, 45*time.Minute, clock.Now(), true)
	require.NoError(t, svc.UpdateUserActivity(ctx, "caller"))
	caller := presenceOf(t, db, "caller")
	assert.Equal(t, models.PresenceInCall, caller.Status)
	assert.True(t, caller.LastActive.Equal(clock.Now()))

	assert.ErrorIs(t, svc.UpdateUserActivity(ctx, "  "), ErrEmptyUser)
	assert.Len(t, notifier.changes, 2)
}

func TestSetManualStatusAndReset(t *testing.T) {
	svc, db, clock, _ := newPresenceService(t)
	ctx := context.Background()

	assert.ErrorIs(t, svc.SetManualStatus(ctx, "u", models.PresenceAway, ""), ErrInvalidStatus)
	assert.ErrorIs(t, svc.SetManualStatus(ctx, "u", models.PresenceStatus("sleeping"), ""), ErrInvalidStatus)

	require.NoError(t, svc.SetManualStatus(ctx, "u", models.PresencePresenting, "quarterly review"))
	p := presenceOf(t, db, "u")
	assert.Equal(t, models.PresencePresenting, p.Status)
	assert.True(t, p.IsManual)
	assert.Equal(t, "quarterly review", p.StatusMessage)

	clock.Set(clock.Now().Add(3 * time.Hour))
	changed, err := svc.Tick(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)

	require.NoError(t, svc.ResetToAutomatic(ctx, "u"))
	p = presenceOf(t, db, "u")
	assert.Equal(t, models.PresenceOnline, p.Status)
	assert.False(t, p.IsManual)
	assert.Empty(t, p.StatusMessage)

	got, err := svc.GetPresence(ctx, "u")
	require.NoError(t, err)
	assert.Equal(t, models.PresenceOnline, got.Status)

	_, err = svc.GetPresence(ctx, "nobody")
	assert.ErrorIs(t, err, ErrPresenceNotFound)
}

func TestPresenceService_StartIsIdempotent(t *testing.T) {
	svc, _, _, _ := newPresenceService(t)
	ctx := context.Background()
	assert.True(t, svc.Start(ctx))
	assert.False(t, svc.Start(ctx))
	svc.Stop()
	assert.False(t, svc.IsRunning())
}
