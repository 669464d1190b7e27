package testutil

import (
	"testing"

	"tidy-go/internal/database"
	"tidy-go/internal/tidy"
)

var (
	_ tidy.RecordStore = (*database.SQLiteDatabase)(nil)
	_ tidy.RuleStore   = (*database.SQLiteDatabase)(nil)
	_ tidy.ScanHistory = (*database.SQLiteDatabase)(nil)
)

// NewTestDatabase opens a migrated in-memory store that lives until the test ends.
func NewTestDatabase(t *testing.T) *database.SQLiteDatabase {
	t.Helper()

	db, err := database.NewSQLiteDatabase(":memory:")
	if err != nil {
		t.Fatalf("opening in-memory store: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}
