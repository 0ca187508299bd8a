package models

import (
	"time"
)

// PresenceStatus is a user's availability as shown to other staff
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceIdle    PresenceStatus = "idle"
	PresenceAway    PresenceStatus = "away"
	PresenceOffline PresenceStatus = "offline"

	// Manual statuses are pinned until the user changes them
	PresenceBusy       PresenceStatus = "busy"
	PresenceInCall     PresenceStatus = "in_call"
	PresenceInMeeting  PresenceStatus = "in_meeting"
	PresencePresenting PresenceStatus = "presenting"
)

// IsManual reports whether s can only be set explicitly by the user
func (s PresenceStatus) IsManual() bool {
	switch s {
	case PresenceBusy, PresenceInCall, PresenceInMeeting, PresencePresenting:
		return true
	}
	return false
}

// Valid reports whether s is a known status
func (s PresenceStatus) Valid() bool {
	switch s {
	case PresenceOnline, PresenceIdle, PresenceAway, PresenceOffline:
		return true
	}
	return s.IsManual()
}

// UserPresence is the per-user presence record
type UserPresence struct {
	UserID        string         `json:"user_id" gorm:"column:user_id;primaryKey;size:100"`
	Status        PresenceStatus `json:"status" gorm:"column:status;size:20;not null;default:offline;index"`
	LastActive    time.Time      `json:"last_active" gorm:"column:last_active"`
	StatusMessage string         `json:"status_message" gorm:"column:status_message;size:255"`
	IsManual      bool           `json:"is_manual" gorm:"column:is_manual;default:false"`
	UpdatedAt     time.Time      `json:"updated_at" gorm:"column:updated_at"`
}

func (UserPresence) TableName() string {
	return "user_presence"
}
