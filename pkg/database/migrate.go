package database

import (
	"fmt"

	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// Migrate runs database migrations for all models
func Migrate(db *gorm.DB, models ...interface{}) error {
	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	log.Debug().Int("models", len(models)).Msg("Database migrations completed")
	return nil
}

// HasTable checks if a table exists
func HasTable(db *gorm.DB, model interface{}) bool {
	return db.Migrator().HasTable(model)
}
