package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrUnsupportedSchema is returned when the store carries a schema
	// version this build does not know how to migrate. The store refuses
	// all operations rather than guess.
	ErrUnsupportedSchema = errors.New("unsupported schema version")
)

// Store owns the SQLite handle shared by the registry, route repository and
// scan components. Every component takes the store explicitly; there is no
// ambient connection.
type Store struct {
	db       *sql.DB
	repoRoot string
}

// DBPathForRepo returns the default database location for a repository.
func DBPathForRepo(repoRoot string) string {
	return filepath.Join(repoRoot, ".routelens", "index.db")
}

// Open creates or opens the database at dbPath and brings it to the current
// schema version. repoRoot anchors relative paths during legacy migration.
// WAL mode allows one writer and many concurrent readers against the same
// file; there is no application-level locking beyond that.
func Open(ctx context.Context, dbPath, repoRoot string) (*Store, error) {
	absRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repo root: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, err
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db, repoRoot: absRoot}
	if err := NewSchemaManager(db, absRoot).Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return s, nil
}

// RepoRoot returns the absolute repository root the store is anchored to.
func (s *Store) RepoRoot() string {
	return s.repoRoot
}

func (s *Store) Close() error {
	return s.db.Close()
}
