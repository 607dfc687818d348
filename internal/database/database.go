package database

import (
	"fmt"

	"github.com/mtbridge/signal-bridge/internal/models"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB is the global database instance
var DB *gorm.DB

// InitDatabase initializes the database connection
func InitDatabase(dsn string) error {
	var err error
	DB, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite allows one writer; keep a single connection and wait on
	// the write lock instead of failing under concurrent polls.
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to access sql db: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := DB.Exec("PRAGMA busy_timeout = 5000").Error; err != nil {
		return fmt.Errorf("failed to set busy timeout: %w", err)
	}

	// Auto migrate the schema
	if err := DB.AutoMigrate(
		&models.User{},
		&models.Account{},
		&models.SymbolMapping{},
		&models.Signal{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	return nil
}

// GetDB returns the database instance
func GetDB() *gorm.DB {
	return DB
}
