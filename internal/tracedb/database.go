// Package tracedb is the SQLite-backed trace store: a GORM wrapper
// (DB, models, Repository) persisting one Run per simulation
// invocation and one TraceRecord per emitted trace event.
package tracedb

import (
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

// NewDatabase opens (creating if absent) a SQLite trace store at
// dbPath and migrates its schema.
func NewDatabase(dbPath string) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to trace database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&Run{}, &TraceRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate trace database: %w", err)
	}

	return &DB{db}, nil
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
