package storage

import (
	"context"
	"database/sql"
	"time"
)

// ScanManager creates immutable point-in-time scan records and snapshots the
// current route set into them.
type ScanManager struct {
	store  *Store
	routes *RouteRepository
}

func NewScanManager(store *Store, routes *RouteRepository) *ScanManager {
	return &ScanManager{store: store, routes: routes}
}

// CreateScan appends an immutable scan record and returns its id. Ids are
// strictly increasing. gitCommit may be empty when no repository commit is
// available.
func (m *ScanManager) CreateScan(ctx context.Context, gitCommit string) (int64, error) {
	var commit any
	if gitCommit != "" {
		commit = gitCommit
	}
	res, err := m.store.db.ExecContext(ctx,
		`INSERT INTO scans(created_at, git_commit) VALUES(?, ?)`,
		time.Now().Unix(), commit)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// SnapshotEndpoints captures the current route table under scanID. The route
// table is read in repository order and the first row per endpoint identity
// wins; later rows with the same identity are dropped and counted. Returns
// (inserted, dropped). Must run after all file processing for a run, so the
// snapshot reflects one consistent view.
func (m *ScanManager) SnapshotEndpoints(ctx context.Context, scanID int64) (int, int, error) {
	rows, err := m.routes.Query(ctx, RouteFilter{Limit: 1_000_000})
	if err != nil {
		return 0, 0, err
	}

	seen := make(map[string]struct{}, len(rows))
	var snaps []EndpointSnapshot
	dropped := 0

	for _, r := range rows {
		eid := EndpointID(r.Method, r.HTTPPath)
		if _, ok := seen[eid]; ok {
			dropped++
			continue
		}
		seen[eid] = struct{}{}
		snaps = append(snaps, EndpointSnapshot{
			EndpointID:  eid,
			Method:      r.Method,
			HTTPPath:    r.HTTPPath,
			RelPath:     r.RelPath,
			HandlerName: r.HandlerName,
			DeclLine:    r.DeclLine,
			Source:      r.Source,
		})
	}

	tx, err := m.store.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO scan_endpoints(
		scan_id, endpoint_id, method, http_path, rel_path, handler_name, decl_line, source
	) VALUES(?,?,?,?,?,?,?,?)`)
	if err != nil {
		return 0, 0, err
	}
	defer stmt.Close()

	for _, s := range snaps {
		if _, err := stmt.ExecContext(ctx, scanID, s.EndpointID, s.Method, s.HTTPPath,
			s.RelPath, s.HandlerName, s.DeclLine, s.Source); err != nil {
			return 0, 0, err
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return len(snaps), dropped, nil
}

// ListScans returns up to limit scans, newest first.
func (m *ScanManager) ListScans(ctx context.Context, limit int) ([]Scan, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := m.store.db.QueryContext(ctx,
		`SELECT scan_id, created_at, git_commit FROM scans ORDER BY scan_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scans []Scan
	for rows.Next() {
		var s Scan
		var commit sql.NullString
		if err := rows.Scan(&s.ScanID, &s.CreatedAt, &commit); err != nil {
			return nil, err
		}
		s.GitCommit = commit.String
		scans = append(scans, s)
	}
	return scans, rows.Err()
}

// ScanExists reports whether a scan id is present. Diffing itself is lenient
// about absent ids; callers that need an existence guarantee use this.
func (m *ScanManager) ScanExists(ctx context.Context, scanID int64) (bool, error) {
	var id int64
	err := m.store.db.QueryRowContext(ctx,
		`SELECT scan_id FROM scans WHERE scan_id=?`, scanID).Scan(&id)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ScanEndpoints returns the snapshot of a scan keyed by endpoint identity.
// An unknown scan id yields an empty map, not an error.
func (m *ScanManager) ScanEndpoints(ctx context.Context, scanID int64) (map[string]EndpointSnapshot, error) {
	rows, err := m.store.db.QueryContext(ctx,
		`SELECT endpoint_id, method, http_path, rel_path, handler_name, decl_line, source
		 FROM scan_endpoints WHERE scan_id=?`, scanID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]EndpointSnapshot)
	for rows.Next() {
		var s EndpointSnapshot
		if err := rows.Scan(&s.EndpointID, &s.Method, &s.HTTPPath, &s.RelPath,
			&s.HandlerName, &s.DeclLine, &s.Source); err != nil {
			return nil, err
		}
		out[s.EndpointID] = s
	}
	return out, rows.Err()
}
