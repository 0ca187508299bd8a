package models

import (
	"fmt"

	"gorm.io/gorm"
)

// All returns every model owned by the background operations layer
func All() []interface{} {
	return []interface{}{
		&SystemSetting{},
		&BackupLog{},
		&UserPresence{},
		&ChatSession{},
		&ChatMessage{},
		&ChatSessionRecovery{},
		&ChatSessionArchive{},
		&CleanupStats{},
		&TicketSequence{},
	}
}

// AutoMigrate creates or updates the tables this layer owns
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(All()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
