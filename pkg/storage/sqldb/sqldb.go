// Package sqldb implements storage.Store on top of database/sql.
//
// The implementation is shared by the sqlite and postgres drivers, which
// differ only in how the *sql.DB is opened and in placeholder syntax. SQL is
// written with ? placeholders and rebound to $n for drivers that need it.
package sqldb

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/storyloom/loom/pkg/storage"
)

// Store implements storage.Store over an open *sql.DB.
type Store struct {
	db *sql.DB

	// numbered rebinds ? placeholders to $1..$n (postgres).
	numbered bool
}

var _ storage.Store = (*Store)(nil)

// New wraps db and creates the schema if missing.
func New(db *sql.DB, numbered bool) (*Store, error) {
	s := &Store{db: db, numbered: numbered}

	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

// migrate creates the necessary tables if they don't exist.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS memories (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		chapter_id TEXT NOT NULL,
		type TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL,
		full_context TEXT NOT NULL DEFAULT '',
		related_characters TEXT NOT NULL DEFAULT '[]',
		related_locations TEXT NOT NULL DEFAULT '[]',
		importance DOUBLE PRECISION NOT NULL DEFAULT 0,
		story_timeline INTEGER NOT NULL DEFAULT 0,
		foreshadow TEXT NOT NULL,
		resolved_at_chapter TEXT NOT NULL DEFAULT '',
		vector_id TEXT NOT NULL DEFAULT '',
		embedding_model TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_memories_project ON memories(project_id);
	CREATE INDEX IF NOT EXISTS idx_memories_chapter ON memories(chapter_id);
	CREATE INDEX IF NOT EXISTS idx_memories_foreshadow ON memories(project_id, foreshadow);

	CREATE TABLE IF NOT EXISTS chapters (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		outline_id TEXT NOT NULL,
		number INTEGER NOT NULL,
		sub_index INTEGER NOT NULL DEFAULT 0,
		title TEXT NOT NULL DEFAULT '',
		content TEXT NOT NULL DEFAULT '',
		summary TEXT NOT NULL DEFAULT '',
		word_count INTEGER NOT NULL DEFAULT 0,
		status TEXT NOT NULL,
		generation_status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		previous_version_id TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		params TEXT NOT NULL DEFAULT '{}',
		plan TEXT,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_chapters_project ON chapters(project_id, number);
	CREATE INDEX IF NOT EXISTS idx_chapters_slot ON chapters(project_id, outline_id, sub_index);

	CREATE TABLE IF NOT EXISTS projects (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		title TEXT NOT NULL,
		genre TEXT NOT NULL DEFAULT '',
		theme TEXT NOT NULL DEFAULT '',
		time_period TEXT NOT NULL DEFAULT '',
		location TEXT NOT NULL DEFAULT '',
		social_system TEXT NOT NULL DEFAULT '',
		world_rules TEXT NOT NULL DEFAULT '',
		style_code TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		chapter_count INTEGER NOT NULL DEFAULT 0,
		total_word_count INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS characters (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		name TEXT NOT NULL,
		role TEXT NOT NULL,
		organization BOOLEAN NOT NULL DEFAULT FALSE,
		personality TEXT NOT NULL DEFAULT '',
		background TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_characters_name ON characters(project_id, name);

	CREATE TABLE IF NOT EXISTS outlines (
		id TEXT PRIMARY KEY,
		project_id TEXT NOT NULL,
		title TEXT NOT NULL,
		content TEXT NOT NULL DEFAULT '',
		order_index INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_outlines_project ON outlines(project_id, order_index);
	`

	_, err := s.db.Exec(schema)
	return err
}

// q rebinds ? placeholders to $1..$n for numbered drivers.
func (s *Store) q(query string) string {
	if !s.numbered {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$")
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}

	return b.String()
}

// placeholders returns "?, ?, ..." of length n.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
