package testutil

import (
	"testing"

	"abus-go/internal/abus"
	"abus-go/internal/database"
	"abus-go/internal/database/migrations"
)

// NewTestCatalog creates a migrated in-memory catalog.
// The catalog is automatically closed when the test completes.
func NewTestCatalog(t *testing.T) *database.SQLiteCatalog {
	t.Helper()

	sqlDB, err := database.OpenConnection(":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := migrations.MigrateUp(sqlDB); err != nil {
		sqlDB.Close()
		t.Fatalf("failed to migrate database: %v", err)
	}

	c := database.NewSQLiteCatalogFromDB(sqlDB, abus.NewNopLogger())
	t.Cleanup(func() {
		c.Close()
	})
	return c
}
