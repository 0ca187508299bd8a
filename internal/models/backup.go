package models

import (
	"time"
)

// BackupType distinguishes scheduler-created backups from admin-triggered ones
type BackupType string

const (
	BackupTypeManual    BackupType = "manual"
	BackupTypeAutomatic BackupType = "automatic"
)

// Valid reports whether t is a known backup type
func (t BackupType) Valid() bool {
	return t == BackupTypeManual || t == BackupTypeAutomatic
}

const (
	BackupStatusCompleted = "completed"
	BackupStatusRestored  = "restored"
)

// BackupLog is the audit trail row written after every successful backup
// and every restore.
type BackupLog struct {
	ID          uint       `json:"id" gorm:"column:id;primaryKey"`
	Filename    string     `json:"filename" gorm:"column:filename;size:255;not null;index"`
	FilePath    string     `json:"file_path" gorm:"column:file_path;size:500"`
	FileSize    int64      `json:"file_size" gorm:"column:file_size"`
	BackupType  BackupType `json:"backup_type" gorm:"column:backup_type;size:20"`
	TriggeredBy string     `json:"triggered_by" gorm:"column:triggered_by;size:100"`
	Status      string     `json:"status" gorm:"column:status;size:20"`
	Checksum    string     `json:"checksum" gorm:"column:checksum;size:64"`
	CreatedAt   time.Time  `json:"created_at" gorm:"column:created_at;index"`
}

// TableName specifies the table name for BackupLog
func (BackupLog) TableName() string {
	return "backup_log"
}
