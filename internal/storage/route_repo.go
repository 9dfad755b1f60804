package storage

import (
	"context"
	"strings"
	"time"

	"routelens/internal/extractor"
)

const defaultQueryLimit = 200

// RouteFilter narrows a route query. Zero values mean "no filter".
type RouteFilter struct {
	Method          string // exact, case-insensitive
	HTTPPath        string // exact
	PathContains    string
	FileContains    string
	HandlerContains string
	Limit           int
}

// RouteRepository stores extracted route declarations keyed by file.
// ReplaceForFile is the only write path: the route set for a file is always
// exactly the output of its latest successful extraction.
type RouteRepository struct {
	store *Store
}

func NewRouteRepository(store *Store) *RouteRepository {
	return &RouteRepository{store: store}
}

// ReplaceForFile deletes every existing route for relPath and inserts the
// given declarations in one transaction. Returns the inserted count.
func (r *RouteRepository) ReplaceForFile(ctx context.Context, relPath string, decls []extractor.RouteDecl, source string) (int, error) {
	ts := time.Now().Unix()

	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE rel_path=?`, relPath); err != nil {
		return 0, err
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO routes(
		id, rel_path, method, http_path, handler_name,
		start_line, end_line, decl_line, source, updated_at
	) VALUES(?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	for _, d := range decls {
		method := strings.ToUpper(d.Method)
		id := RouteID(relPath, method, d.Path, d.HandlerName, d.DeclLine)
		if _, err := stmt.ExecContext(ctx, id, relPath, method, d.Path, d.HandlerName,
			d.StartLine, d.EndLine, d.DeclLine, source, ts); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return len(decls), nil
}

// Query returns routes matching the filter, ordered by (method, http path,
// file, declaration line). Snapshotting relies on this ordering to pick a
// canonical survivor among endpoint-identity collisions.
func (r *RouteRepository) Query(ctx context.Context, f RouteFilter) ([]RouteRecord, error) {
	q := `SELECT id, rel_path, method, http_path, handler_name,
		start_line, end_line, decl_line, source, updated_at FROM routes`

	var where []string
	var params []any

	if f.Method != "" {
		where = append(where, "method = ?")
		params = append(params, strings.ToUpper(f.Method))
	}
	if f.HTTPPath != "" {
		where = append(where, "http_path = ?")
		params = append(params, f.HTTPPath)
	}
	if f.PathContains != "" {
		where = append(where, "http_path LIKE ?")
		params = append(params, "%"+f.PathContains+"%")
	}
	if f.FileContains != "" {
		where = append(where, "rel_path LIKE ?")
		params = append(params, "%"+f.FileContains+"%")
	}
	if f.HandlerContains != "" {
		where = append(where, "handler_name LIKE ?")
		params = append(params, "%"+f.HandlerContains+"%")
	}

	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY method, http_path, rel_path, decl_line LIMIT ?"

	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	params = append(params, limit)

	rows, err := r.store.db.QueryContext(ctx, q, params...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RouteRecord
	for rows.Next() {
		var rec RouteRecord
		if err := rows.Scan(&rec.ID, &rec.RelPath, &rec.Method, &rec.HTTPPath, &rec.HandlerName,
			&rec.StartLine, &rec.EndLine, &rec.DeclLine, &rec.Source, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
