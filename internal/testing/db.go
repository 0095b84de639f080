// Package testing provides testing utilities and helpers for the folio project.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/aristath/folio/internal/database"
)

// NewTestDB creates a temporary file-backed SQLite database with its schema applied.
// Returns the database instance and a cleanup function that closes the connection.
// The cleanup function is idempotent and is also registered with t.Cleanup.
//
// Supported schema names:
//   - "ledger" - applies ledger_schema.sql with the ledger profile
//   - "history" - applies history_schema.sql
//   - Unknown names - creates empty database (no schema applied)
func NewTestDB(t *testing.T, name string) (*database.DB, func()) {
	t.Helper()

	profile := database.ProfileStandard
	if name == "ledger" {
		profile = database.ProfileLedger
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database %s: %v", name, err)
	}

	closed := false
	cleanup := func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
	}
	t.Cleanup(cleanup)

	return db, cleanup
}
