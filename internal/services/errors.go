package services

import (
	"errors"
	"fmt"
)

var (
	ErrBackupNotFound     = errors.New("backup not found")
	ErrInvalidBackupName  = errors.New("invalid backup filename")
	ErrInvalidBackupType  = errors.New("invalid backup type")
	ErrChecksumMismatch   = errors.New("backup checksum mismatch")
	ErrInvalidStatus      = errors.New("invalid presence status")
	ErrEmptyTeam          = errors.New("team id is required")
	ErrEmptyUser          = errors.New("user id is required")
	ErrPresenceNotFound   = errors.New("presence record not found")
	ErrNoSnapshotFallback = errors.New("no database file available for copy fallback")
)

// RestoreError reports which step of a restore failed. The live database is
// untouched unless Step is "restore".
type RestoreError struct {
	Step     string
	Filename string
	Err      error
}

func (e *RestoreError) Error() string {
	return fmt.Sprintf("restore %s failed at %s: %v", e.Filename, e.Step, e.Err)
}

func (e *RestoreError) Unwrap() error {
	return e.Err
}
