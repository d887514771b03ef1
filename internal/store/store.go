// Package store persists completed (and partial) scan results behind a
// single interface with four interchangeable backends. Every backend
// satisfies identical save/get/update/delete/list/count/cleanup/stats/
// health semantics so the pipeline and HTTP API never branch on which
// one is configured.
package store

import (
	"context"
	"time"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// Record wraps a persisted ScanResult with the filterable request fields
// (RepositoryURL, Branch, RequestedThreshold) so List can answer
// per-repository queries without unmarshalling every payload.
type Record struct {
	ScanID             string
	Status             gatetypes.JobStatus
	RepositoryURL      string
	Branch             string
	RequestedThreshold float64
	Result             gatetypes.ScanResult
}

// ListFilter narrows List/Count results. Zero-valued fields are ignored.
type ListFilter struct {
	Status        gatetypes.JobStatus
	RepositoryURL string
}

// Page is one page of a List call, with the total matching count so
// callers can paginate without a second Count round-trip.
type Page struct {
	Records []Record
	Total   int
}

// Stats is a backend's self-reported size/activity summary. The health
// endpoint calls only Health; Stats is not part of its response.
type Stats struct {
	Backend      string
	RecordCount  int
	OldestScan   time.Time
	NewestScan   time.Time
}

// Store is the single persistence contract every backend implements.
// Save upserts by ScanID (idempotent); Update requires
// the record to already exist. The memory, SQLite and relational backends
// are safe for concurrent use; FileTreeStore takes no lock of its own, so
// concurrent writes to the same scan ID are not serialized.
type Store interface {
	Save(ctx context.Context, rec Record) error
	Get(ctx context.Context, scanID string) (Record, bool, error)
	Update(ctx context.Context, rec Record) error
	Delete(ctx context.Context, scanID string) error
	List(ctx context.Context, filter ListFilter, limit, offset int) (Page, error)
	Count(ctx context.Context, filter ListFilter) (int, error)
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)
	Stats(ctx context.Context) (Stats, error)
	Health(ctx context.Context) error
	Close() error
}

// ErrNotFound is returned by Update/Delete when the scan ID is unknown.
type ErrNotFound struct{ ScanID string }

func (e *ErrNotFound) Error() string { return "store: scan not found: " + e.ScanID }
