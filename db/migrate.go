package db

import (
	"database/sql"
	"embed"
	"path"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/teranos/reposcout/errors"
)

//go:embed sqlite/migrations/*.sql
var migrations embed.FS

const migrationsDir = "sqlite/migrations"

// migration is one embedded file; version is the numeric prefix before "_".
type migration struct {
	version string
	name    string
}

func listMigrations() ([]migration, error) {
	entries, err := migrations.ReadDir(migrationsDir)
	if err != nil {
		return nil, errors.Wrap(err, "read migrations")
	}
	var out []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		version, _, ok := strings.Cut(e.Name(), "_")
		if !ok {
			return nil, errors.Newf("migration %s has no version prefix", e.Name())
		}
		out = append(out, migration{version: version, name: e.Name()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out, nil
}

// Migrate applies every embedded migration not yet recorded in
// schema_migrations, each in its own transaction. Migration 000 creates
// schema_migrations itself. It returns how many migrations were applied.
func Migrate(db *sql.DB, logger *zap.SugaredLogger) (int, error) {
	all, err := listMigrations()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, m := range all {
		var exists bool
		err := db.QueryRow("SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = ?)", m.version).Scan(&exists)
		switch {
		case err != nil && m.version != "000":
			return applied, errors.Wrapf(err, "schema_migrations unreadable before %s", m.name)
		case err == nil && exists:
			continue
		}

		body, err := migrations.ReadFile(path.Join(migrationsDir, m.name))
		if err != nil {
			return applied, errors.Wrapf(err, "read %s", m.name)
		}
		if err := apply(db, m, string(body)); err != nil {
			return applied, err
		}
		applied++
		if logger != nil {
			logger.Infow("Applied migration", "migration", m.name, "version", m.version)
		}
	}
	return applied, nil
}

func apply(db *sql.DB, m migration, body string) error {
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrapf(err, "begin tx for %s", m.name)
	}
	if _, err := tx.Exec(body); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "execute %s", m.name)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", m.version); err != nil {
		_ = tx.Rollback()
		return errors.Wrapf(err, "record %s", m.name)
	}
	return errors.Wrapf(tx.Commit(), "commit %s", m.name)
}
