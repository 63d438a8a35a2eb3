// Package database provides the sqlite-backed persistent store shared by the
// organizer, deduplication engine and session manager.
package database

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mediasort/mediasort/internal/logger"
)

// SchemaVersion is the schema this build understands. A database created by a
// different version is refused on open rather than silently migrated.
const SchemaVersion = 1

// Open opens (creating if necessary) the sqlite database at path, verifies the
// schema version and migrates a fresh database to the current schema.
//
// The returned handle is safe for concurrent use; sqlite serializes writers
// through a single connection.
func Open(path string) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := path + "?_journal_mode=WAL&_busy_timeout=5000"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}

	// One writer connection keeps sqlite from returning SQLITE_BUSY under
	// concurrent pipeline inserts.
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := checkSchemaVersion(db); err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	logger.Debug("database opened", "path", path, "schema_version", SchemaVersion)
	return db, nil
}

// Migrate creates or updates all tables for the current schema version.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&Session{},
		&FileRecord{},
		&DuplicateGroup{},
		&CacheEntry{},
		&SchemaInfo{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}

	var count int64
	if err := db.Model(&SchemaInfo{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to read schema info: %w", err)
	}
	if count == 0 {
		info := SchemaInfo{Version: SchemaVersion, AppliedAt: db.NowFunc()}
		if err := db.Create(&info).Error; err != nil {
			return fmt.Errorf("failed to record schema version: %w", err)
		}
	}
	return nil
}

func checkSchemaVersion(db *gorm.DB) error {
	if !db.Migrator().HasTable(&SchemaInfo{}) {
		return nil // fresh database
	}

	var info SchemaInfo
	if err := db.Order("version DESC").First(&info).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if info.Version != SchemaVersion {
		return fmt.Errorf("schema version mismatch: database has %d, expected %d", info.Version, SchemaVersion)
	}
	return nil
}
