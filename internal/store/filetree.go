package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// FileTreeStore persists one JSON document per scan, sharded into
// subdirectories by status -- human-inspectable, no database dependency,
// suitable for a single-instance deployment that wants plain files on
// disk.
type FileTreeStore struct {
	root string
}

// NewFileTree builds a FileTreeStore rooted at dir, creating the
// per-status shard directories if they don't already exist.
func NewFileTree(dir string) (*FileTreeStore, error) {
	for _, status := range allStatuses {
		if err := os.MkdirAll(filepath.Join(dir, string(status)), 0o755); err != nil {
			return nil, apperrors.New(apperrors.KindStorageUnavailable, "filetree_mkdir", err)
		}
	}
	return &FileTreeStore{root: dir}, nil
}

var allStatuses = []gatetypes.JobStatus{
	gatetypes.StatusPending, gatetypes.StatusRunning,
	gatetypes.StatusCompleted, gatetypes.StatusFailed, gatetypes.StatusCancelled,
}

func (f *FileTreeStore) pathFor(status gatetypes.JobStatus, scanID string) string {
	return filepath.Join(f.root, string(status), scanID+".json")
}

// findExisting scans every shard for scanID's current document, since its
// status (and thus its shard) may have changed since it was last saved.
func (f *FileTreeStore) findExisting(scanID string) (string, gatetypes.JobStatus, bool) {
	for _, status := range allStatuses {
		p := f.pathFor(status, scanID)
		if _, err := os.Stat(p); err == nil {
			return p, status, true
		}
	}
	return "", "", false
}

func (f *FileTreeStore) Save(_ context.Context, rec Record) error {
	if oldPath, oldStatus, ok := f.findExisting(rec.ScanID); ok && oldStatus != rec.Status {
		os.Remove(oldPath)
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return apperrors.New(apperrors.KindInternal, "filetree_marshal", err)
	}
	path := f.pathFor(rec.Status, rec.ScanID)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		debug.LogStore("filetree: save %s failed: %v", rec.ScanID, err)
		return apperrors.New(apperrors.KindStorageUnavailable, "filetree_write", err)
	}
	return nil
}

func (f *FileTreeStore) Get(_ context.Context, scanID string) (Record, bool, error) {
	path, _, ok := f.findExisting(scanID)
	if !ok {
		return Record{}, false, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, false, apperrors.New(apperrors.KindStorageUnavailable, "filetree_read", err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, apperrors.New(apperrors.KindInternal, "filetree_unmarshal", err)
	}
	return rec, true, nil
}

func (f *FileTreeStore) Update(ctx context.Context, rec Record) error {
	if _, _, ok := f.findExisting(rec.ScanID); !ok {
		return &ErrNotFound{ScanID: rec.ScanID}
	}
	return f.Save(ctx, rec)
}

func (f *FileTreeStore) Delete(_ context.Context, scanID string) error {
	path, _, ok := f.findExisting(scanID)
	if !ok {
		return &ErrNotFound{ScanID: scanID}
	}
	if err := os.Remove(path); err != nil {
		return apperrors.New(apperrors.KindStorageUnavailable, "filetree_delete", err)
	}
	return nil
}

func (f *FileTreeStore) List(_ context.Context, filter ListFilter, limit, offset int) (Page, error) {
	var matched []Record
	statuses := allStatuses
	if filter.Status != "" {
		statuses = []gatetypes.JobStatus{filter.Status}
	}
	for _, status := range statuses {
		entries, err := os.ReadDir(filepath.Join(f.root, string(status)))
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if entry.IsDir() {
				continue
			}
			data, err := os.ReadFile(filepath.Join(f.root, string(status), entry.Name()))
			if err != nil {
				continue
			}
			var rec Record
			if err := json.Unmarshal(data, &rec); err != nil {
				continue
			}
			if matches(rec, filter) {
				matched = append(matched, rec)
			}
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		return matched[i].Result.CreatedAt.After(matched[j].Result.CreatedAt)
	})

	total := len(matched)
	if offset > len(matched) {
		offset = len(matched)
	}
	matched = matched[offset:]
	if limit > 0 && limit < len(matched) {
		matched = matched[:limit]
	}
	return Page{Records: matched, Total: total}, nil
}

func (f *FileTreeStore) Count(ctx context.Context, filter ListFilter) (int, error) {
	page, err := f.List(ctx, filter, 0, 0)
	if err != nil {
		return 0, err
	}
	return page.Total, nil
}

func (f *FileTreeStore) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	deleted := 0
	for _, status := range []gatetypes.JobStatus{gatetypes.StatusCompleted, gatetypes.StatusFailed, gatetypes.StatusCancelled} {
		page, err := f.List(ctx, ListFilter{Status: status}, 0, 0)
		if err != nil {
			continue
		}
		for _, rec := range page.Records {
			if rec.Result.CompletedAt.Before(olderThan) {
				if err := f.Delete(ctx, rec.ScanID); err == nil {
					deleted++
				}
			}
		}
	}
	return deleted, nil
}

func (f *FileTreeStore) Stats(ctx context.Context) (Stats, error) {
	page, err := f.List(ctx, ListFilter{}, 0, 0)
	if err != nil {
		return Stats{}, err
	}
	s := Stats{Backend: "filetree", RecordCount: len(page.Records)}
	for _, rec := range page.Records {
		if s.OldestScan.IsZero() || rec.Result.CreatedAt.Before(s.OldestScan) {
			s.OldestScan = rec.Result.CreatedAt
		}
		if rec.Result.CreatedAt.After(s.NewestScan) {
			s.NewestScan = rec.Result.CreatedAt
		}
	}
	return s, nil
}

func (f *FileTreeStore) Health(_ context.Context) error {
	return checkDirAccessible(f.root)
}

func (f *FileTreeStore) Close() error { return nil }

func checkDirAccessible(dir string) error {
	info, err := os.Stat(dir)
	if err != nil {
		return apperrors.New(apperrors.KindStorageUnavailable, "filetree_health", err)
	}
	if !info.IsDir() {
		return apperrors.New(apperrors.KindStorageUnavailable, "filetree_health", nil)
	}
	return nil
}
