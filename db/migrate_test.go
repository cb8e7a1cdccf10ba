package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrateIsIdempotent(t *testing.T) {
	db, err := Open(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	all, err := listMigrations()
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, "000", all[0].version)

	n, err := Migrate(db, nil)
	require.NoError(t, err)
	assert.Equal(t, len(all), n)

	n, err = Migrate(db, nil)
	require.NoError(t, err)
	assert.Zero(t, n, "second run applies nothing")

	var recorded int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&recorded))
	assert.Equal(t, len(all), recorded)
}

func TestOpenWithMigrationsCreatesSchema(t *testing.T) {
	db, err := OpenWithMigrations(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	defer db.Close()

	for _, table := range []string{"schema_migrations", "runs", "run_candidates"} {
		var n int
		require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&n))
		assert.Equal(t, 1, n, table)
	}
}

func TestOpenWithMigrationsReportsFailure(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := Open(dbPath, nil)
	require.NoError(t, err)
	// A pre-existing runs table makes 001 fail.
	_, err = db.Exec("CREATE TABLE runs (id TEXT)")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = OpenWithMigrations(dbPath, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "001_create_runs.sql")
}
