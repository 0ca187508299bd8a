package models

import (
	"time"
)

// ChatSessionStatus is the lifecycle state of a live chat session.
// Sessions only move forward: waiting/active -> ended/abandoned.
type ChatSessionStatus string

const (
	ChatStatusWaiting   ChatSessionStatus = "waiting"
	ChatStatusActive    ChatSessionStatus = "active"
	ChatStatusEnded     ChatSessionStatus = "ended"
	ChatStatusAbandoned ChatSessionStatus = "abandoned"
)

// ChatSession represents a live public chat session
type ChatSession struct {
	ID             string            `json:"id" gorm:"column:id;primaryKey;size:64"`
	Status         ChatSessionStatus `json:"status" gorm:"column:status;size:20;not null;index"`
	VisitorName    string            `json:"visitor_name" gorm:"column:visitor_name;size:100"`
	VisitorEmail   string            `json:"visitor_email" gorm:"column:visitor_email;size:255"`
	VisitorIP      string            `json:"visitor_ip" gorm:"column:visitor_ip;size:50"`
	UserAgent      string            `json:"user_agent" gorm:"column:user_agent;size:255"`
	AssignedTo     string            `json:"assigned_to" gorm:"column:assigned_to;size:100"`
	CreatedAt      time.Time         `json:"created_at" gorm:"column:created_at;index"`
	LastActivityAt *time.Time        `json:"last_activity_at" gorm:"column:last_activity_at"`
	EndedAt        *time.Time        `json:"ended_at" gorm:"column:ended_at;index"`
}

func (ChatSession) TableName() string {
	return "chat_sessions"
}

// ChatMessage is a single message inside a chat session
type ChatMessage struct {
	ID         uint      `json:"id" gorm:"column:id;primaryKey"`
	SessionID  string    `json:"session_id" gorm:"column:session_id;size:64;not null;index"`
	SenderType string    `json:"sender_type" gorm:"column:sender_type;size:20"` // visitor, agent, system
	SenderID   string    `json:"sender_id" gorm:"column:sender_id;size:100"`
	Message    string    `json:"message" gorm:"column:message;type:text"`
	CreatedAt  time.Time `json:"created_at" gorm:"column:created_at;index"`
}

func (ChatMessage) TableName() string {
	return "chat_messages"
}

// ChatSessionRecovery lets a disconnected visitor resume a session
type ChatSessionRecovery struct {
	ID            uint      `json:"id" gorm:"column:id;primaryKey"`
	SessionID     string    `json:"session_id" gorm:"column:session_id;size:64;not null;index"`
	RecoveryToken string    `json:"recovery_token" gorm:"column:recovery_token;size:64;uniqueIndex"`
	CreatedAt     time.Time `json:"created_at" gorm:"column:created_at"`
	ExpiresAt     time.Time `json:"expires_at" gorm:"column:expires_at;index"`
}

func (ChatSessionRecovery) TableName() string {
	return "chat_session_recovery"
}

// ChatSessionArchive mirrors ChatSession for reporting after the session
// leaves the live table. The session id is the primary key so a session
// can only be archived once.
type ChatSessionArchive struct {
	ID              string            `json:"id" gorm:"column:id;primaryKey;size:64"`
	Status          ChatSessionStatus `json:"status" gorm:"column:status;size:20"`
	VisitorName     string            `json:"visitor_name" gorm:"column:visitor_name;size:100"`
	VisitorEmail    string            `json:"visitor_email" gorm:"column:visitor_email;size:255"`
	VisitorIP       string            `json:"visitor_ip" gorm:"column:visitor_ip;size:50"`
	UserAgent       string            `json:"user_agent" gorm:"column:user_agent;size:255"`
	AssignedTo      string            `json:"assigned_to" gorm:"column:assigned_to;size:100"`
	CreatedAt       time.Time         `json:"created_at" gorm:"column:created_at"`
	LastActivityAt  *time.Time        `json:"last_activity_at" gorm:"column:last_activity_at"`
	EndedAt         *time.Time        `json:"ended_at" gorm:"column:ended_at"`
	MessageCount    int64             `json:"message_count" gorm:"column:message_count"`
	DurationMinutes int64             `json:"duration_minutes" gorm:"column:duration_minutes"`
	ArchivedAt      time.Time         `json:"archived_at" gorm:"column:archived_at;index"`
}

func (ChatSessionArchive) TableName() string {
	return "chat_session_archive"
}

// CleanupStats holds one row per nightly cleanup date
type CleanupStats struct {
	ID                uint      `json:"id" gorm:"column:id;primaryKey"`
	CleanupDate       string    `json:"cleanup_date" gorm:"column:cleanup_date;size:10;uniqueIndex;not null"` // YYYY-MM-DD
	AbandonedSessions int64     `json:"abandoned_sessions" gorm:"column:abandoned_sessions"`
	OrphanedMessages  int64     `json:"orphaned_messages" gorm:"column:orphaned_messages"`
	StalePresence     int64     `json:"stale_presence" gorm:"column:stale_presence"`
	ExpiredRecovery   int64     `json:"expired_recovery" gorm:"column:expired_recovery"`
	ArchivedSessions  int64     `json:"archived_sessions" gorm:"column:archived_sessions"`
	TotalItemsCleaned int64     `json:"total_items_cleaned" gorm:"column:total_items_cleaned"`
	CleanupDurationMs int64     `json:"cleanup_duration_ms" gorm:"column:cleanup_duration_ms"`
	CreatedAt         time.Time `json:"created_at" gorm:"column:created_at"`
}

func (CleanupStats) TableName() string {
	return "chat_cleanup_stats"
}
