package store

import (
	"context"
	"encoding/json"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// scanRow is the gorm-mapped row for the relational backend: one struct
// per table with explicit column tags rather than relying on gorm's
// naming defaults for anything that crosses a migration boundary.
type scanRow struct {
	ScanID             string `gorm:"column:scan_id;primaryKey"`
	Status             string `gorm:"column:status;index"`
	RepositoryURL      string `gorm:"column:repository_url;index"`
	Branch             string `gorm:"column:branch"`
	RequestedThreshold float64 `gorm:"column:requested_threshold"`
	CreatedAt          time.Time `gorm:"column:created_at;index"`
	CompletedAt        *time.Time `gorm:"column:completed_at"`
	Payload            []byte `gorm:"column:payload"`
}

func (scanRow) TableName() string { return "gatekeeper_scans" }

// RelationalStore is the multi-instance-deployment backend: PostgreSQL
// via gorm, with connection pooling and AutoMigrate on startup.
type RelationalStore struct {
	db *gorm.DB
}

// NewRelational opens a PostgreSQL connection via dsn and auto-migrates
// the scans table.
func NewRelational(dsn string) (*RelationalStore, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, apperrors.New(apperrors.KindStorageUnavailable, "relational_open", err)
	}
	return newRelationalFromDB(db)
}

// NewRelationalSQLite opens the same gorm-mapped schema against an
// embedded SQLite file via gorm's own driver (gorm.io/driver/sqlite,
// backed by mattn/go-sqlite3) rather than the kv backend's direct
// database/sql use of modernc.org/sqlite. It exists so the relational
// backend's gorm query paths (Where/Order/Count chains, AutoMigrate) get
// exercised by the same contract suite every other backend runs against,
// without requiring a live PostgreSQL server for local development or
// CI -- multi-instance production deployments still use NewRelational
// against Postgres.
func NewRelationalSQLite(path string) (*RelationalStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, apperrors.New(apperrors.KindStorageUnavailable, "relational_open", err)
	}
	return newRelationalFromDB(db)
}

func newRelationalFromDB(db *gorm.DB) (*RelationalStore, error) {
	if err := db.AutoMigrate(&scanRow{}); err != nil {
		return nil, apperrors.New(apperrors.KindStorageUnavailable, "relational_migrate", err)
	}

	sqlDB, err := db.DB()
	if err == nil {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(5)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return &RelationalStore{db: db}, nil
}

func toRow(rec Record) (scanRow, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return scanRow{}, err
	}
	row := scanRow{
		ScanID:             rec.ScanID,
		Status:             string(rec.Status),
		RepositoryURL:      rec.RepositoryURL,
		Branch:             rec.Branch,
		RequestedThreshold: rec.RequestedThreshold,
		CreatedAt:          rec.Result.CreatedAt,
		Payload:            payload,
	}
	if !rec.Result.CompletedAt.IsZero() {
		t := rec.Result.CompletedAt
		row.CompletedAt = &t
	}
	return row, nil
}

func fromRow(row scanRow) (Record, error) {
	var rec Record
	if err := json.Unmarshal(row.Payload, &rec); err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (r *RelationalStore) Save(ctx context.Context, rec Record) error {
	row, err := toRow(rec)
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "relational_marshal", err)
	}
	if err := r.db.WithContext(ctx).Save(&row).Error; err != nil {
		debug.LogStore("relational: save %s failed: %v", rec.ScanID, err)
		return apperrors.New(apperrors.KindStorageUnavailable, "relational_save", err)
	}
	return nil
}

func (r *RelationalStore) Update(ctx context.Context, rec Record) error {
	if _, ok, err := r.Get(ctx, rec.ScanID); err != nil {
		return err
	} else if !ok {
		return &ErrNotFound{ScanID: rec.ScanID}
	}
	return r.Save(ctx, rec)
}

func (r *RelationalStore) Get(ctx context.Context, scanID string) (Record, bool, error) {
	var row scanRow
	err := r.db.WithContext(ctx).Where("scan_id = ?", scanID).First(&row).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return Record{}, false, nil
		}
		return Record{}, false, apperrors.New(apperrors.KindStorageUnavailable, "relational_get", err)
	}
	rec, err := fromRow(row)
	if err != nil {
		return Record{}, false, apperrors.New(apperrors.KindInternal, "relational_unmarshal", err)
	}
	return rec, true, nil
}

func (r *RelationalStore) Delete(ctx context.Context, scanID string) error {
	res := r.db.WithContext(ctx).Where("scan_id = ?", scanID).Delete(&scanRow{})
	if res.Error != nil {
		return apperrors.New(apperrors.KindStorageUnavailable, "relational_delete", res.Error)
	}
	if res.RowsAffected == 0 {
		return &ErrNotFound{ScanID: scanID}
	}
	return nil
}

func (r *RelationalStore) query(ctx context.Context, filter ListFilter) *gorm.DB {
	q := r.db.WithContext(ctx).Model(&scanRow{})
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	if filter.RepositoryURL != "" {
		q = q.Where("repository_url = ?", filter.RepositoryURL)
	}
	return q
}

func (r *RelationalStore) List(ctx context.Context, filter ListFilter, limit, offset int) (Page, error) {
	var total int64
	if err := r.query(ctx, filter).Count(&total).Error; err != nil {
		return Page{}, apperrors.New(apperrors.KindStorageUnavailable, "relational_count", err)
	}

	q := r.query(ctx, filter).Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit).Offset(offset)
	}
	var rows []scanRow
	if err := q.Find(&rows).Error; err != nil {
		return Page{}, apperrors.New(apperrors.KindStorageUnavailable, "relational_list", err)
	}

	records := make([]Record, 0, len(rows))
	for _, row := range rows {
		rec, err := fromRow(row)
		if err != nil {
			continue
		}
		records = append(records, rec)
	}
	return Page{Records: records, Total: int(total)}, nil
}

func (r *RelationalStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	var total int64
	if err := r.query(ctx, filter).Count(&total).Error; err != nil {
		return 0, apperrors.New(apperrors.KindStorageUnavailable, "relational_count", err)
	}
	return int(total), nil
}

func (r *RelationalStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	terminal := []string{string(gatetypes.StatusCompleted), string(gatetypes.StatusFailed), string(gatetypes.StatusCancelled)}
	res := r.db.WithContext(ctx).
		Where("status IN ? AND completed_at IS NOT NULL AND completed_at < ?", terminal, olderThan).
		Delete(&scanRow{})
	if res.Error != nil {
		return 0, apperrors.New(apperrors.KindStorageUnavailable, "relational_cleanup", res.Error)
	}
	return int(res.RowsAffected), nil
}

func (r *RelationalStore) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{Backend: "relational"}
	var count int64
	if err := r.db.WithContext(ctx).Model(&scanRow{}).Count(&count).Error; err != nil {
		return stats, apperrors.New(apperrors.KindStorageUnavailable, "relational_stats", err)
	}
	stats.RecordCount = int(count)

	var oldest, newest scanRow
	if err := r.db.WithContext(ctx).Order("created_at ASC").First(&oldest).Error; err == nil {
		stats.OldestScan = oldest.CreatedAt
	}
	if err := r.db.WithContext(ctx).Order("created_at DESC").First(&newest).Error; err == nil {
		stats.NewestScan = newest.CreatedAt
	}
	return stats, nil
}

func (r *RelationalStore) Health(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return apperrors.New(apperrors.KindStorageUnavailable, "relational_health", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return apperrors.New(apperrors.KindStorageUnavailable, "relational_health", err)
	}
	return nil
}

func (r *RelationalStore) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return nil
	}
	return sqlDB.Close()
}
