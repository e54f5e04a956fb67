// Package testing provides testing utilities and helpers.
package testing

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/aristath/phaselock/internal/database"
)

// NewTestDB creates a throwaway SQLite database with the named schema
// applied ("runs"; unknown names get an empty database). The database is
// closed and removed when the test finishes.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	dir, err := os.MkdirTemp("", "phaselock_test_*")
	if err != nil {
		t.Fatalf("Failed to create temporary directory: %v", err)
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(dir, name+".db"),
		Profile: database.ProfileCache,
		Name:    name,
	})
	if err != nil {
		_ = os.RemoveAll(dir)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}
	if err := db.Migrate(); err != nil {
		_ = db.Close()
		_ = os.RemoveAll(dir)
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		_ = os.RemoveAll(dir)
	})
	return db
}
