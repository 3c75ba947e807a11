// Package storage implements the core store interfaces on gorm. The two
// conditional updates on rooms.active_since are the concurrency control
// for call state; nothing in here takes in-process locks.
package storage

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dkeye/Huddle/internal/domain"
)

// Open connects through the given dialector and migrates the schema.
func Open(dialector gorm.Dialector) (*gorm.DB, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.Room{}, &domain.Attendee{}, &domain.Session{}); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	log.Info().Str("module", "storage").Str("dialect", dialector.Name()).Msg("database ready")
	return db, nil
}

// OpenSQLite opens a sqlite database at path (":memory:" in tests).
func OpenSQLite(path string) (*gorm.DB, error) {
	return Open(sqlite.Open(path))
}
