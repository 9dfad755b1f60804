package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	root := t.TempDir()
	store, err := Open(context.Background(), DBPathForRepo(root), root)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store, root
}

// rawDB opens the database file directly so tests can seed pre-migration
// layouts.
func rawDB(t *testing.T, dbPath string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", dbPath))
	require.NoError(t, err)
	return db
}

func metaVersion(t *testing.T, store *Store) string {
	t.Helper()
	var v string
	err := store.db.QueryRow(`SELECT value FROM meta WHERE key='schema_version'`).Scan(&v)
	require.NoError(t, err)
	return v
}

func TestMigrateFreshDatabase(t *testing.T) {
	store, _ := newTestStore(t)

	assert.Equal(t, SchemaVersion, metaVersion(t, store))

	for _, table := range []string{"meta", "files", "routes", "scans", "scan_endpoints"} {
		var name string
		err := store.db.QueryRow(
			`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}
}

func TestMigrateIsIdempotent(t *testing.T) {
	root := t.TempDir()
	dbPath := DBPathForRepo(root)
	ctx := context.Background()

	store, err := Open(ctx, dbPath, root)
	require.NoError(t, err)

	registry := NewFileRegistry(store)
	require.NoError(t, registry.Upsert(ctx, &FileRecord{RelPath: "app.py", SHA256: "abc"}))
	require.NoError(t, store.Close())

	store, err = Open(ctx, dbPath, root)
	require.NoError(t, err)
	defer store.Close()

	rec, err := NewFileRegistry(store).Status(ctx, "app.py")
	require.NoError(t, err)
	assert.Equal(t, "abc", rec.SHA256)
	assert.Equal(t, SchemaVersion, metaVersion(t, store))
}

func TestMigrateLegacyAbsolutePathLayout(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, ".routelens", "index.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))

	inside := filepath.Join(root, "api", "users.py")
	outside := filepath.Join(t.TempDir(), "elsewhere.py")

	db := rawDB(t, dbPath)
	stmts := []string{
		`CREATE TABLE files (
			path TEXT PRIMARY KEY, sha256 TEXT NOT NULL, mtime_ns INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL, last_scanned_at INTEGER NOT NULL)`,
		`CREATE TABLE routes (
			id TEXT PRIMARY KEY, file_path TEXT NOT NULL, method TEXT NOT NULL,
			http_path TEXT NOT NULL, handler_name TEXT NOT NULL,
			start_line INTEGER NOT NULL, end_line INTEGER NOT NULL,
			decl_line INTEGER NOT NULL, source TEXT NOT NULL, updated_at INTEGER NOT NULL)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	_, err := db.Exec(`INSERT INTO files VALUES (?, 'sha-in', 1, 10, 100), (?, 'sha-out', 2, 20, 200)`,
		inside, outside)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO routes VALUES
		('r1', ?, 'GET', '/users', 'list_users', 10, 20, 10, 'ast', 100),
		('r2', ?, 'POST', '/other', 'other', 1, 2, 1, 'ast', 100)`,
		inside, outside)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	ctx := context.Background()
	store, err := Open(ctx, dbPath, root)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, SchemaVersion, metaVersion(t, store))

	rec, err := NewFileRegistry(store).Status(ctx, "api/users.py")
	require.NoError(t, err)
	assert.Equal(t, "sha-in", rec.SHA256)

	// The out-of-root path survives verbatim rather than failing the
	// migration.
	rec, err = NewFileRegistry(store).Status(ctx, outside)
	require.NoError(t, err)
	assert.Equal(t, "sha-out", rec.SHA256)

	routes, err := NewRouteRepository(store).Query(ctx, RouteFilter{})
	require.NoError(t, err)
	require.Len(t, routes, 2)

	byID := make(map[string]RouteRecord)
	for _, r := range routes {
		byID[r.ID] = r
	}
	assert.Equal(t, "api/users.py", byID["r1"].RelPath)
	assert.Equal(t, outside, byID["r2"].RelPath)
}

func TestMigrate11To12IsAdditive(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, ".routelens", "index.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))

	db := rawDB(t, dbPath)
	stmts := []string{
		`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		`INSERT INTO meta VALUES ('schema_version', '1.1')`,
		`CREATE TABLE files (
			rel_path TEXT PRIMARY KEY, sha256 TEXT NOT NULL, mtime_ns INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL, last_scanned_at INTEGER NOT NULL)`,
		`CREATE TABLE routes (
			id TEXT PRIMARY KEY, rel_path TEXT NOT NULL, method TEXT NOT NULL,
			http_path TEXT NOT NULL, handler_name TEXT NOT NULL,
			start_line INTEGER NOT NULL, end_line INTEGER NOT NULL,
			decl_line INTEGER NOT NULL, source TEXT NOT NULL, updated_at INTEGER NOT NULL)`,
		`INSERT INTO files VALUES ('app.py', 'sha', 1, 10, 100)`,
		`INSERT INTO routes VALUES ('r1', 'app.py', 'GET', '/ping', 'ping', 1, 2, 1, 'ast', 100)`,
	}
	for _, stmt := range stmts {
		_, err := db.Exec(stmt)
		require.NoError(t, err)
	}
	require.NoError(t, db.Close())

	ctx := context.Background()
	store, err := Open(ctx, dbPath, root)
	require.NoError(t, err)
	defer store.Close()

	assert.Equal(t, SchemaVersion, metaVersion(t, store))

	routes, err := NewRouteRepository(store).Query(ctx, RouteFilter{})
	require.NoError(t, err)
	require.Len(t, routes, 1)
	assert.Equal(t, "app.py", routes[0].RelPath)

	scans := NewScanManager(store, NewRouteRepository(store))
	id, err := scans.CreateScan(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)
}

func TestMigrateUnsupportedVersion(t *testing.T) {
	root := t.TempDir()
	dbPath := filepath.Join(root, ".routelens", "index.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(dbPath), 0o755))

	db := rawDB(t, dbPath)
	_, err := db.Exec(`CREATE TABLE meta (key TEXT PRIMARY KEY, value TEXT NOT NULL)`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO meta VALUES ('schema_version', '9.9')`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = Open(context.Background(), dbPath, root)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnsupportedSchema))
}

func TestRelativizePath(t *testing.T) {
	root := t.TempDir()

	rel, ok := relativizePath(root, filepath.Join(root, "a", "b.py"))
	assert.True(t, ok)
	assert.Equal(t, "a/b.py", rel)

	out := filepath.Join(filepath.Dir(root), "sibling", "c.py")
	rel, ok = relativizePath(root, out)
	assert.False(t, ok)
	assert.Equal(t, out, rel)
}
