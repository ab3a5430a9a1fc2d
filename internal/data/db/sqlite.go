package db

import (
	"fmt"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// OpenSQLite opens a SQLite database; used for local single-node runs (DB_DRIVER=sqlite)
// and repository tests. A single connection keeps in-memory databases shared and
// serializes writers.
func OpenSQLite(dsn string, silent bool) (*gorm.DB, error) {
	cfg := gormConfig()
	if silent {
		cfg.Logger = gormLogger.Default.LogMode(gormLogger.Silent)
	}
	db, err := gorm.Open(sqlite.Open(dsn), cfg)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}
