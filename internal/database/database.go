// Package database opens the gorm handle behind the SQLite journal.
package database

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/quickrts/skirmish/internal/model"
)

const defaultName = "journal"

// applied to every new handle
var pragmas = []string{
	"PRAGMA journal_mode = MEMORY;",
	"PRAGMA synchronous = OFF;",
	"PRAGMA temp_store = MEMORY;",
	"PRAGMA foreign_keys = ON;",
}

// MemoryDSN returns the DSN of the shared in-memory database called name.
func MemoryDSN(name string) string {
	if name == "" {
		name = defaultName
	}
	return fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
}

// GetSqliteDB opens a named in-memory SQLite database. Connections that use
// the same name share one database; it disappears with the last connection.
func GetSqliteDB(name string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(MemoryDSN(name)), &gorm.Config{
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		CreateBatchSize:        2000,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", name, err)
	}

	for _, p := range pragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	return db, nil
}

// Migrate creates the journal tables.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(model.JournalModels...); err != nil {
		return fmt.Errorf("migrate journal schema: %w", err)
	}
	return nil
}
