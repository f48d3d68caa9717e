package db

import (
	"fmt"

	"github.com/zulandar/marquee/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// AllModels returns every GORM model for migration.
func AllModels() []interface{} {
	return []interface{}{
		&models.MediaRequest{},
		&models.User{},
	}
}

// AutoMigrate creates or updates all tables.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("db: auto-migrate: %w", err)
	}
	return nil
}

// SeedUsers upserts User rows from configuration. Profile fields are
// overwritten; quota counters are left alone so a restart does not reset them.
func SeedUsers(db *gorm.DB, users []models.User) error {
	for i := range users {
		u := users[i].Clone()
		result := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"name", "admin", "identities", "notifications_enabled"}),
		}).Create(u)
		if result.Error != nil {
			return fmt.Errorf("db: seed user %q: %w", u.ID, result.Error)
		}
	}
	return nil
}
