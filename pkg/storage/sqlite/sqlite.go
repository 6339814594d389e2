// Package sqlite provides a SQLite-backed storage store.
package sqlite

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/storyloom/loom/pkg/storage/sqldb"
)

// Store implements storage.Store using SQLite.
type Store struct {
	*sqldb.Store
}

// NewStore creates a new SQLite-backed store.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewStore(dbPath string) (*Store, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	inner, err := sqldb.New(db, false)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &Store{Store: inner}, nil
}
