package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"path/filepath"
	"strings"
)

// SchemaVersion is the schema this build writes and expects.
const SchemaVersion = "1.2"

// Known prior versions:
//
//	"1.0"  legacy layout keying files/routes by absolute path
//	"1.1"  relative-path layout, no scan tables
//	"1.2"  adds scans and scan_endpoints
//
// Stores created before versioning existed carry no tag at all and are
// detected structurally.

// SchemaManager brings an arbitrary pre-existing database (empty, or created
// by any prior version) to the current schema, atomically and idempotently.
type SchemaManager struct {
	db       *sql.DB
	repoRoot string
}

func NewSchemaManager(db *sql.DB, repoRoot string) *SchemaManager {
	return &SchemaManager{db: db, repoRoot: repoRoot}
}

// Migrate runs the whole version state machine inside one transaction. A
// crash mid-migration leaves the database in its pre-migration state.
func (m *SchemaManager) Migrate(ctx context.Context) error {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);`); err != nil {
		return err
	}

	version, err := getMeta(ctx, tx, "schema_version")
	if err != nil {
		return err
	}

	if version == "" {
		legacy, err := detectLegacyLayout(ctx, tx)
		if err != nil {
			return err
		}
		if legacy {
			if err := migrate10to11(ctx, tx, m.repoRoot); err != nil {
				return fmt.Errorf("migration 1.0 -> 1.1 failed: %w", err)
			}
			version = "1.1"
		} else {
			// Fresh database: create the current schema directly.
			if err := createSchema12(ctx, tx); err != nil {
				return err
			}
			version = SchemaVersion
		}
		if err := setMeta(ctx, tx, "schema_version", version); err != nil {
			return err
		}
	}

	switch version {
	case "1.1":
		// Additive only: the scan tables are new, no data rewrite needed.
		if err := migrate11to12(ctx, tx); err != nil {
			return fmt.Errorf("migration 1.1 -> 1.2 failed: %w", err)
		}
		if err := setMeta(ctx, tx, "schema_version", SchemaVersion); err != nil {
			return err
		}
	case SchemaVersion:
		if err := createSchema12(ctx, tx); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedSchema, version)
	}

	return tx.Commit()
}

// detectLegacyLayout reports whether the database was created by a
// pre-versioning build. Heuristic: files/routes tables exist and key rows by
// absolute path ("path" or "file_path" columns instead of "rel_path").
func detectLegacyLayout(ctx context.Context, tx *sql.Tx) (bool, error) {
	hasFiles, err := tableExists(ctx, tx, "files")
	if err != nil {
		return false, err
	}
	hasRoutes, err := tableExists(ctx, tx, "routes")
	if err != nil {
		return false, err
	}
	if !hasFiles || !hasRoutes {
		return false, nil
	}

	fileCols, err := tableColumns(ctx, tx, "files")
	if err != nil {
		return false, err
	}
	routeCols, err := tableColumns(ctx, tx, "routes")
	if err != nil {
		return false, err
	}
	return fileCols["path"] || routeCols["file_path"], nil
}

func createSchema12(ctx context.Context, tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files (
			rel_path TEXT PRIMARY KEY,
			sha256 TEXT NOT NULL,
			mtime_ns INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL,
			last_scanned_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS routes (
			id TEXT PRIMARY KEY,
			rel_path TEXT NOT NULL,
			method TEXT NOT NULL,
			http_path TEXT NOT NULL,
			handler_name TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			decl_line INTEGER NOT NULL,
			source TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_file ON routes(rel_path);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_mpath ON routes(method, http_path);`,
		`CREATE TABLE IF NOT EXISTS scans (
			scan_id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at INTEGER NOT NULL,
			git_commit TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scans_created_at ON scans(created_at);`,
		`CREATE TABLE IF NOT EXISTS scan_endpoints (
			scan_id INTEGER NOT NULL,
			endpoint_id TEXT NOT NULL,
			method TEXT NOT NULL,
			http_path TEXT NOT NULL,
			rel_path TEXT NOT NULL,
			handler_name TEXT NOT NULL,
			decl_line INTEGER NOT NULL,
			source TEXT NOT NULL,
			PRIMARY KEY (scan_id, endpoint_id),
			FOREIGN KEY (scan_id) REFERENCES scans(scan_id) ON DELETE CASCADE
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scan_endpoints_mpath ON scan_endpoints(method, http_path);`,
	}

	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrate10to11 rewrites the absolute-path layout to repository-relative
// paths. Rows whose path cannot be expressed relative to the repo root keep
// the original string verbatim; the migration never fails on a single path.
func migrate10to11(ctx context.Context, tx *sql.Tx, repoRoot string) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS files_new (
			rel_path TEXT PRIMARY KEY,
			sha256 TEXT NOT NULL,
			mtime_ns INTEGER NOT NULL,
			size_bytes INTEGER NOT NULL,
			last_scanned_at INTEGER NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS routes_new (
			id TEXT PRIMARY KEY,
			rel_path TEXT NOT NULL,
			method TEXT NOT NULL,
			http_path TEXT NOT NULL,
			handler_name TEXT NOT NULL,
			start_line INTEGER NOT NULL,
			end_line INTEGER NOT NULL,
			decl_line INTEGER NOT NULL,
			source TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	unresolved := 0

	fileRows, err := tx.QueryContext(ctx,
		`SELECT path, sha256, mtime_ns, size_bytes, last_scanned_at FROM files`)
	if err != nil {
		return err
	}
	type fileRow struct {
		path          string
		sha           string
		mtimeNs       int64
		sizeBytes     int64
		lastScannedAt int64
	}
	var files []fileRow
	for fileRows.Next() {
		var r fileRow
		if err := fileRows.Scan(&r.path, &r.sha, &r.mtimeNs, &r.sizeBytes, &r.lastScannedAt); err != nil {
			fileRows.Close()
			return err
		}
		files = append(files, r)
	}
	if err := fileRows.Err(); err != nil {
		fileRows.Close()
		return err
	}
	fileRows.Close()

	for _, r := range files {
		rel, ok := relativizePath(repoRoot, r.path)
		if !ok {
			unresolved++
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO files_new(rel_path, sha256, mtime_ns, size_bytes, last_scanned_at)
			 VALUES(?,?,?,?,?)`,
			rel, r.sha, r.mtimeNs, r.sizeBytes, r.lastScannedAt); err != nil {
			return err
		}
	}

	routeRows, err := tx.QueryContext(ctx,
		`SELECT id, file_path, method, http_path, handler_name, start_line, end_line, decl_line, source, updated_at
		 FROM routes`)
	if err != nil {
		return err
	}
	type routeRow struct {
		id, filePath, method, httpPath, handler, source string
		startLine, endLine, declLine                    int
		updatedAt                                       int64
	}
	var routes []routeRow
	for routeRows.Next() {
		var r routeRow
		if err := routeRows.Scan(&r.id, &r.filePath, &r.method, &r.httpPath, &r.handler,
			&r.startLine, &r.endLine, &r.declLine, &r.source, &r.updatedAt); err != nil {
			routeRows.Close()
			return err
		}
		routes = append(routes, r)
	}
	if err := routeRows.Err(); err != nil {
		routeRows.Close()
		return err
	}
	routeRows.Close()

	for _, r := range routes {
		rel, ok := relativizePath(repoRoot, r.filePath)
		if !ok {
			unresolved++
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO routes_new(
				id, rel_path, method, http_path, handler_name,
				start_line, end_line, decl_line, source, updated_at
			) VALUES(?,?,?,?,?,?,?,?,?,?)`,
			r.id, rel, r.method, r.httpPath, r.handler,
			r.startLine, r.endLine, r.declLine, r.source, r.updatedAt); err != nil {
			return err
		}
	}

	swap := []string{
		`DROP TABLE routes;`,
		`DROP TABLE files;`,
		`ALTER TABLE routes_new RENAME TO routes;`,
		`ALTER TABLE files_new RENAME TO files;`,
		`CREATE INDEX IF NOT EXISTS idx_routes_file ON routes(rel_path);`,
		`CREATE INDEX IF NOT EXISTS idx_routes_mpath ON routes(method, http_path);`,
	}
	for _, stmt := range swap {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	if unresolved > 0 {
		log.Printf("schema migration: %d path(s) could not be made repo-relative, kept verbatim", unresolved)
	}
	return nil
}

func migrate11to12(ctx context.Context, tx *sql.Tx) error {
	return createSchema12(ctx, tx)
}

// relativizePath expresses p relative to repoRoot, POSIX-normalized. The
// second return value is false when p stays verbatim (outside the root, or
// not resolvable).
func relativizePath(repoRoot, p string) (string, bool) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return p, false
	}
	rel, err := filepath.Rel(repoRoot, abs)
	if err != nil {
		return p, false
	}
	rel = filepath.ToSlash(rel)
	if rel == ".." || strings.HasPrefix(rel, "../") {
		return p, false
	}
	return rel, true
}

func tableExists(ctx context.Context, tx *sql.Tx, name string) (bool, error) {
	var n string
	err := tx.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, name).Scan(&n)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s);", table))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var (
			cid       int
			name      string
			ctype     string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &ctype, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = true
	}
	return cols, rows.Err()
}

func getMeta(ctx context.Context, tx *sql.Tx, key string) (string, error) {
	var value string
	err := tx.QueryRowContext(ctx, `SELECT value FROM meta WHERE key=?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func setMeta(ctx context.Context, tx *sql.Tx, key, value string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value`, key, value)
	return err
}
