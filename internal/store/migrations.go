package store

import (
	"database/sql"
	"fmt"

	"driverforge/internal/logging"
)

// Schema versions:
// v1: artifact_sets (name, data, updated_at) + vector_entries
// v2: position column on vector_entries for stable insertion rank
const currentSchemaVersion = 2

var createStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS artifact_sets (
		name TEXT PRIMARY KEY,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS vector_entries (
		namespace TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		embedding TEXT NOT NULL,
		position INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (namespace, id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_vector_entries_namespace
		ON vector_entries (namespace, position)`,
}

// columnMigration adds a column to an existing table when upgrading an
// older database.
type columnMigration struct {
	Table  string
	Column string
	Def    string
}

var pendingMigrations = []columnMigration{
	// Insertion-rank column (added in v2)
	{"vector_entries", "position", "INTEGER NOT NULL DEFAULT 0"},
}

// migrate creates missing tables and applies column migrations.
func (s *Store) migrate() error {
	timer := logging.StartTimer(logging.CategoryStore, "migrate")
	defer timer.Stop()

	for _, stmt := range createStatements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	for _, m := range pendingMigrations {
		if columnExists(s.db, m.Table, m.Column) {
			continue
		}
		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := s.db.Exec(query); err != nil {
			// Column may already exist in a different form; don't fail the open.
			logging.Get(logging.CategoryStore).Warn("Migration failed for %s.%s: %v", m.Table, m.Column, err)
			continue
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
	}

	return s.setVersion(currentSchemaVersion)
}

func (s *Store) setVersion(v int) error {
	if _, err := s.db.Exec("DELETE FROM schema_version"); err != nil {
		return err
	}
	_, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", v)
	return err
}

func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notNull, pk int
		var dflt sql.NullString
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dflt, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}
