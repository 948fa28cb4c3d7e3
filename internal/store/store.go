// Package store persists artifact sets and the vector index in SQLite.
// Artifact sets are stored as JSON blobs keyed by name; vector entries are
// stored per (namespace, id) and reloaded wholesale by the index on
// startup. The driver is modernc.org/sqlite (pure Go, no cgo).
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"driverforge/internal/driver"
	"driverforge/internal/logging"
	"driverforge/internal/rag"
)

// Store is the process-wide persistent state store.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (or creates) the store at path and applies migrations.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to enable WAL: %v", err)
	}
	// synchronous=NORMAL is safe under WAL and much faster for writes.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.Get(logging.CategoryStore).Warn("Failed to set synchronous: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Opened state store at %s", path)
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// =============================================================================
// ARTIFACT SETS
// =============================================================================

// SaveArtifactSet upserts the full artifact set as a JSON blob.
func (s *Store) SaveArtifactSet(ctx context.Context, set *driver.ArtifactSet) error {
	blob, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("failed to serialize artifact set %q: %w", set.Name, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO artifact_sets (name, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		set.Name, string(blob), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save artifact set %q: %w", set.Name, err)
	}

	logging.StoreDebug("Saved artifact set %q (%d bytes)", set.Name, len(blob))
	return nil
}

// GetArtifactSet loads an artifact set by name. Returns driver.ErrNotFound
// when the name has never been saved.
func (s *Store) GetArtifactSet(ctx context.Context, name string) (*driver.ArtifactSet, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		"SELECT data FROM artifact_sets WHERE name = ?", name).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, driver.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load artifact set %q: %w", name, err)
	}

	var set driver.ArtifactSet
	if err := json.Unmarshal([]byte(blob), &set); err != nil {
		return nil, fmt.Errorf("failed to deserialize artifact set %q: %w", name, err)
	}
	return &set, nil
}

// DeleteArtifactSet removes an artifact set. Deleting an unknown name is
// driver.ErrNotFound.
func (s *Store) DeleteArtifactSet(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM artifact_sets WHERE name = ?", name)
	if err != nil {
		return fmt.Errorf("failed to delete artifact set %q: %w", name, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return driver.ErrNotFound
	}
	logging.Store("Deleted artifact set %q", name)
	return nil
}

// ListArtifactSets returns all saved names, most recently updated first.
func (s *Store) ListArtifactSets(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT name FROM artifact_sets ORDER BY updated_at DESC")
	if err != nil {
		return nil, fmt.Errorf("failed to list artifact sets: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// =============================================================================
// VECTOR ENTRIES (rag.Persistence)
// =============================================================================

// SaveVectorEntry upserts one index entry. Position is the entry's
// insertion rank within its namespace and survives replacement.
func (s *Store) SaveVectorEntry(ctx context.Context, e rag.PersistedEntry) error {
	vecJSON, err := json.Marshal(e.Vector)
	if err != nil {
		return fmt.Errorf("failed to serialize embedding: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO vector_entries (namespace, id, title, content, embedding, position)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(namespace, id) DO UPDATE SET
		   title = excluded.title, content = excluded.content,
		   embedding = excluded.embedding, position = excluded.position`,
		e.Namespace, e.ID, e.Title, e.Content, string(vecJSON), e.Position)
	if err != nil {
		return fmt.Errorf("failed to save vector entry %s/%s: %w", e.Namespace, e.ID, err)
	}
	return nil
}

// LoadVectorEntries returns every persisted index entry.
func (s *Store) LoadVectorEntries(ctx context.Context) ([]rag.PersistedEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT namespace, id, title, content, embedding, position FROM vector_entries")
	if err != nil {
		return nil, fmt.Errorf("failed to load vector entries: %w", err)
	}
	defer rows.Close()

	var entries []rag.PersistedEntry
	for rows.Next() {
		var e rag.PersistedEntry
		var vecJSON string
		if err := rows.Scan(&e.Namespace, &e.ID, &e.Title, &e.Content, &vecJSON, &e.Position); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(vecJSON), &e.Vector); err != nil {
			logging.Get(logging.CategoryStore).Warn("Skipping vector entry %s/%s with bad embedding: %v", e.Namespace, e.ID, err)
			continue
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// DeleteVectorNamespace drops every entry in a namespace.
func (s *Store) DeleteVectorNamespace(ctx context.Context, namespace string) error {
	_, err := s.db.ExecContext(ctx,
		"DELETE FROM vector_entries WHERE namespace = ?", namespace)
	if err != nil {
		return fmt.Errorf("failed to delete namespace %q: %w", namespace, err)
	}
	return nil
}
