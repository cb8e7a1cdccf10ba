// Package testing holds shared test fixtures.
package testing

import (
	"database/sql"
	"path/filepath"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/teranos/reposcout/db"
)

// CreateTestDB opens a migrated SQLite database in a temp dir. A file is
// used rather than :memory: because every pooled connection to :memory:
// sees a different database. Cleanup is registered via t.Cleanup().
func CreateTestDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := db.OpenWithMigrations(filepath.Join(t.TempDir(), "scout.db"), zaptest.NewLogger(t).Sugar())
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		conn.Close()
	})
	return conn
}
