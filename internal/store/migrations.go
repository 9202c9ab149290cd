package store

import (
	"cmp"
	"database/sql"
	"fmt"
	"slices"
)

// Migration represents a schema migration step.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// MigrationStatus reports the current and available migration versions.
type MigrationStatus struct {
	CurrentVersion   int             `json:"current_version"`
	AvailableVersion int             `json:"available_version"`
	Pending          []MigrationInfo `json:"pending"`
}

// MigrationInfo describes a single migration.
type MigrationInfo struct {
	Version     int    `json:"version"`
	Description string `json:"description"`
}

// migrations is the ordered list of all schema migrations.
var migrations = []Migration{
	{
		Version:     1,
		Description: "initial schema: images table",
		SQL: `
CREATE TABLE IF NOT EXISTS images (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  image_key TEXT NOT NULL UNIQUE,
  original_name TEXT NOT NULL,
  content_type TEXT NOT NULL,
  size_bytes INTEGER NOT NULL,
  payload BLOB,
  created_at TEXT NOT NULL
);
`,
	},
	{
		Version:     2,
		Description: "owner column and owner lookup index",
		SQL: `
ALTER TABLE images ADD COLUMN owner TEXT;

CREATE INDEX IF NOT EXISTS idx_images_owner ON images(owner, created_at DESC);
`,
	},
}

const migrationsTableSQL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version INTEGER PRIMARY KEY,
  applied_at TEXT NOT NULL
);
`

func sortedMigrations() []Migration {
	sorted := slices.Clone(migrations)
	slices.SortFunc(sorted, func(a, b Migration) int { return cmp.Compare(a.Version, b.Version) })
	return sorted
}

func pendingMigrations(current int) []Migration {
	var out []Migration
	for _, m := range sortedMigrations() {
		if m.Version > current {
			out = append(out, m)
		}
	}
	return out
}

func tableExists(db *sql.DB, name string) (bool, error) {
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?", name).Scan(&n)
	return n > 0, err
}

// currentVersion returns the highest applied migration version, or 0 when
// nothing has been recorded.
func currentVersion(db *sql.DB) (int, error) {
	ok, err := tableExists(db, "schema_migrations")
	if err != nil || !ok {
		return 0, err
	}
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&version); err != nil {
		return 0, err
	}
	return version, nil
}

// detectPreMigrationDB reports an images table with no recorded versions,
// as left by a database created before the runner existed.
func detectPreMigrationDB(db *sql.DB) (bool, error) {
	ok, err := tableExists(db, "images")
	if err != nil || !ok {
		return false, err
	}
	version, err := currentVersion(db)
	if err != nil {
		return false, err
	}
	return version == 0, nil
}

func recordVersion(exec interface {
	Exec(string, ...any) (sql.Result, error)
}, version int) error {
	_, err := exec.Exec("INSERT OR IGNORE INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))", version)
	return err
}

// runMigrations applies all pending migrations in order, one transaction each.
func runMigrations(db *sql.DB) error {
	preMigration, err := detectPreMigrationDB(db)
	if err != nil {
		return fmt.Errorf("detect pre-migration db: %w", err)
	}
	if _, err := db.Exec(migrationsTableSQL); err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}
	if preMigration {
		// The images table predates the runner; its schema is version 1.
		if err := recordVersion(db, 1); err != nil {
			return fmt.Errorf("stamp pre-migration db: %w", err)
		}
	}

	current, err := currentVersion(db)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	for _, m := range pendingMigrations(current) {
		if err := applyMigration(db, m); err != nil {
			return err
		}
	}
	return nil
}

func applyMigration(db *sql.DB, m Migration) error {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin migration %d: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(m.SQL); err != nil {
		return fmt.Errorf("apply migration %d (%s): %w", m.Version, m.Description, err)
	}
	if err := recordVersion(tx, m.Version); err != nil {
		return fmt.Errorf("record migration %d: %w", m.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration %d: %w", m.Version, err)
	}
	return nil
}

// MigrationPlan reports the current and pending versions. It does not write
// to the database.
func MigrationPlan(db *sql.DB) (*MigrationStatus, error) {
	preMigration, err := detectPreMigrationDB(db)
	if err != nil {
		return nil, err
	}
	current, err := currentVersion(db)
	if err != nil {
		return nil, err
	}
	if preMigration && current == 0 {
		current = 1
	}

	status := &MigrationStatus{CurrentVersion: current}
	if all := sortedMigrations(); len(all) > 0 {
		status.AvailableVersion = all[len(all)-1].Version
	}
	for _, m := range pendingMigrations(current) {
		status.Pending = append(status.Pending, MigrationInfo{Version: m.Version, Description: m.Description})
	}
	return status, nil
}
