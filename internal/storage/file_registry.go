package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// FileRegistry tracks per-file fingerprints so the orchestrator can skip
// re-extraction of unchanged files. This check is the system's primary
// performance lever.
type FileRegistry struct {
	store *Store
}

func NewFileRegistry(store *Store) *FileRegistry {
	return &FileRegistry{store: store}
}

// Status returns the tracked record for a repository-relative path, or
// ErrNotFound when the path is not tracked.
func (r *FileRegistry) Status(ctx context.Context, relPath string) (*FileRecord, error) {
	var rec FileRecord
	err := r.store.db.QueryRowContext(ctx,
		`SELECT rel_path, sha256, mtime_ns, size_bytes, last_scanned_at
		 FROM files WHERE rel_path=?`, relPath,
	).Scan(&rec.RelPath, &rec.SHA256, &rec.MtimeNs, &rec.SizeBytes, &rec.LastScannedAt)

	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query file status: %w", err)
	}
	return &rec, nil
}

// Upsert inserts or updates the record for rec.RelPath.
func (r *FileRegistry) Upsert(ctx context.Context, rec *FileRecord) error {
	_, err := r.store.db.ExecContext(ctx,
		`INSERT INTO files(rel_path, sha256, mtime_ns, size_bytes, last_scanned_at)
		 VALUES(?,?,?,?,?)
		 ON CONFLICT(rel_path) DO UPDATE SET
			sha256=excluded.sha256,
			mtime_ns=excluded.mtime_ns,
			size_bytes=excluded.size_bytes,
			last_scanned_at=excluded.last_scanned_at`,
		rec.RelPath, rec.SHA256, rec.MtimeNs, rec.SizeBytes, rec.LastScannedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert file status: %w", err)
	}
	return nil
}

// Remove deletes the file record and every route it owns in one transaction,
// so no orphaned routes survive the removal.
func (r *FileRegistry) Remove(ctx context.Context, relPath string) error {
	tx, err := r.store.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM routes WHERE rel_path=?`, relPath); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM files WHERE rel_path=?`, relPath); err != nil {
		return err
	}
	return tx.Commit()
}

// ListTracked returns every tracked repository-relative path.
func (r *FileRegistry) ListTracked(ctx context.Context) ([]string, error) {
	rows, err := r.store.db.QueryContext(ctx, `SELECT rel_path FROM files`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var paths []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths = append(paths, p)
	}
	return paths, rows.Err()
}
