package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// SQLiteKVStore is the preferred default result-store backend: a single
// SQLite file holding one table keyed by scan ID, with the scan's full
// result serialized as a JSON blob column. modernc.org/sqlite keeps the
// backend cgo-free and the database a single portable file; the table is
// deliberately schema-light so it behaves like a keyed document store
// rather than a relational model.
type SQLiteKVStore struct {
	db *sql.DB
}

// NewSQLiteKV opens (creating if absent) a SQLite database at dsn and
// ensures the scans table exists.
func NewSQLiteKV(dsn string) (*SQLiteKVStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_open", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers; avoid SQLITE_BUSY churn

	const schema = `
CREATE TABLE IF NOT EXISTS scans (
	scan_id TEXT PRIMARY KEY,
	status TEXT NOT NULL,
	repository_url TEXT,
	branch TEXT,
	requested_threshold REAL,
	created_at INTEGER NOT NULL,
	completed_at INTEGER,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_scans_status ON scans(status);
CREATE INDEX IF NOT EXISTS idx_scans_repository_url ON scans(repository_url);
`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_migrate", err)
	}
	return &SQLiteKVStore{db: db}, nil
}

func (s *SQLiteKVStore) upsert(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "sqlitekv_marshal", err)
	}
	var completedAt sql.NullInt64
	if !rec.Result.CompletedAt.IsZero() {
		completedAt = sql.NullInt64{Int64: rec.Result.CompletedAt.Unix(), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `
INSERT INTO scans (scan_id, status, repository_url, branch, requested_threshold, created_at, completed_at, payload)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(scan_id) DO UPDATE SET
	status=excluded.status, repository_url=excluded.repository_url, branch=excluded.branch,
	requested_threshold=excluded.requested_threshold, completed_at=excluded.completed_at, payload=excluded.payload
`, rec.ScanID, string(rec.Status), rec.RepositoryURL, rec.Branch, rec.RequestedThreshold,
		rec.Result.CreatedAt.Unix(), completedAt, payload)
	if err != nil {
		debug.LogStore("sqlitekv: upsert %s failed: %v", rec.ScanID, err)
		return apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_upsert", err)
	}
	return nil
}

func (s *SQLiteKVStore) Save(ctx context.Context, rec Record) error { return s.upsert(ctx, rec) }

func (s *SQLiteKVStore) Update(ctx context.Context, rec Record) error {
	if _, ok, err := s.Get(ctx, rec.ScanID); err != nil {
		return err
	} else if !ok {
		return &ErrNotFound{ScanID: rec.ScanID}
	}
	return s.upsert(ctx, rec)
}

func (s *SQLiteKVStore) Get(ctx context.Context, scanID string) (Record, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT payload FROM scans WHERE scan_id = ?`, scanID)
	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if err == sql.ErrNoRows {
			return Record{}, false, nil
		}
		return Record{}, false, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_get", err)
	}
	var rec Record
	if err := json.Unmarshal(payload, &rec); err != nil {
		return Record{}, false, apperrors.New(apperrors.KindInternal, "sqlitekv_unmarshal", err)
	}
	return rec, true, nil
}

func (s *SQLiteKVStore) Delete(ctx context.Context, scanID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM scans WHERE scan_id = ?`, scanID)
	if err != nil {
		return apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_delete", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &ErrNotFound{ScanID: scanID}
	}
	return nil
}

func (s *SQLiteKVStore) List(ctx context.Context, filter ListFilter, limit, offset int) (Page, error) {
	where, args := filterClause(filter)
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`+where, args...).Scan(&total); err != nil {
		return Page{}, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_count", err)
	}

	query := `SELECT payload FROM scans` + where + ` ORDER BY created_at DESC`
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, offset)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Page{}, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_list", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			continue
		}
		var rec Record
		if err := json.Unmarshal(payload, &rec); err != nil {
			continue
		}
		records = append(records, rec)
	}
	return Page{Records: records, Total: total}, nil
}

func (s *SQLiteKVStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	where, args := filterClause(filter)
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM scans`+where, args...).Scan(&count); err != nil {
		return 0, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_count", err)
	}
	return count, nil
}

func (s *SQLiteKVStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
DELETE FROM scans
WHERE status IN (?, ?, ?) AND completed_at IS NOT NULL AND completed_at < ?
`, string(gatetypes.StatusCompleted), string(gatetypes.StatusFailed), string(gatetypes.StatusCancelled), olderThan.Unix())
	if err != nil {
		return 0, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_cleanup", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteKVStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "sqlitekv"}
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*), MIN(created_at), MAX(created_at) FROM scans`)
	var oldest, newest sql.NullInt64
	if err := row.Scan(&stats.RecordCount, &oldest, &newest); err != nil {
		return stats, apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_stats", err)
	}
	if oldest.Valid {
		stats.OldestScan = time.Unix(oldest.Int64, 0)
	}
	if newest.Valid {
		stats.NewestScan = time.Unix(newest.Int64, 0)
	}
	return stats, nil
}

func (s *SQLiteKVStore) Health(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return apperrors.New(apperrors.KindStorageUnavailable, "sqlitekv_health", err)
	}
	return nil
}

func (s *SQLiteKVStore) Close() error { return s.db.Close() }

func filterClause(filter ListFilter) (string, []any) {
	var clauses []string
	var args []any
	if filter.Status != "" {
		clauses = append(clauses, "status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.RepositoryURL != "" {
		clauses = append(clauses, "repository_url = ?")
		args = append(args, filter.RepositoryURL)
	}
	if len(clauses) == 0 {
		return "", args
	}
	where := " WHERE "
	for i, c := range clauses {
		if i > 0 {
			where += " AND "
		}
		where += c
	}
	return where, args
}
