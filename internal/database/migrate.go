package database

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-audit-api/internal/models"
)

// Migrate creates or updates the audit schema and its indexes.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&models.AuditLog{}); err != nil {
		return fmt.Errorf("failed to migrate audit schema: %w", err)
	}
	return nil
}
