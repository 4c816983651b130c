// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"testing"

	"github.com/calcforest/calcforest/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// NewDB returns a migrated in-memory sqlite database private to the test.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	database, err := db.Open(sqlite.Open(db.SQLiteDSN(":memory:")), nil)
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}

	sqlDB, err := database.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	// every connection to :memory: is a separate database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	if err := db.MigrateDatabase(database); err != nil {
		t.Fatalf("failed to migrate test db: %v", err)
	}
	return database
}
