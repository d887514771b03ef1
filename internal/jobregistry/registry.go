// Package jobregistry tracks every scan's lifecycle in memory: an
// atomically-swapped snapshot per scan ID so status polling (the HTTP
// API's GET /api/v1/scan/{id}) never blocks on the pipeline goroutine
// that owns the job. Writers swap an immutable snapshot pointer instead
// of holding a lock across a read: they build a new *gatetypes.ScanJob
// value and atomically store it; readers atomically load and return a
// copy, so a slow reader never stalls a writer and vice versa.
package jobregistry

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// Registry is a process-wide, concurrency-safe map from scan ID to the
// job's latest snapshot.
type Registry struct {
	mu      sync.RWMutex
	jobs    map[string]*atomic.Pointer[gatetypes.ScanJob]
	order   []string // insertion order, for the sweeper's deterministic pass

	retention time.Duration
}

// New builds an empty Registry. retention is how long a terminal job's
// snapshot is kept before the sweeper removes it; zero means "keep
// forever" (the sweeper then never removes anything).
func New(retention time.Duration) *Registry {
	return &Registry{
		jobs:      make(map[string]*atomic.Pointer[gatetypes.ScanJob]),
		retention: retention,
	}
}

// Create registers a new job with the status the caller supplies (the
// pipeline supplies StatusPending). scanID must be unique;
// Create panics if it is already registered, since scan IDs are never
// reused and a collision indicates a caller bug, not a runtime condition
// to recover from.
func (r *Registry) Create(job gatetypes.ScanJob) {
	ptr := &atomic.Pointer[gatetypes.ScanJob]{}
	jobCopy := job
	ptr.Store(&jobCopy)

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.jobs[job.ScanID]; exists {
		panic("jobregistry: duplicate scan ID " + job.ScanID)
	}
	r.jobs[job.ScanID] = ptr
	r.order = append(r.order, job.ScanID)
}

// Update swaps in a new snapshot for scanID. It is the only mutation path
// -- only the pipeline goroutine that owns a job calls Update for it.
// Update refuses to move a job out of a terminal state.
func (r *Registry) Update(scanID string, mutate func(job *gatetypes.ScanJob)) bool {
	r.mu.RLock()
	ptr, ok := r.jobs[scanID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	current := ptr.Load()
	if current.Status.Terminal() {
		debug.LogPipeline("jobregistry: refusing update to terminal job %s", scanID)
		return false
	}

	next := *current
	mutate(&next)
	next.UpdatedAt = time.Now()
	ptr.Store(&next)
	return true
}

// ForceUpdate swaps in a new snapshot even when the job is already
// terminal. It exists for the one sanctioned exception to the
// no-resurrection rule: recording a storage failure discovered after the
// job committed its terminal state, which flips the job to failed and
// appends the error so terminal snapshots always carry their error list.
// Every other mutation goes through Update.
func (r *Registry) ForceUpdate(scanID string, mutate func(job *gatetypes.ScanJob)) bool {
	r.mu.RLock()
	ptr, ok := r.jobs[scanID]
	r.mu.RUnlock()
	if !ok {
		return false
	}

	next := *ptr.Load()
	mutate(&next)
	next.UpdatedAt = time.Now()
	ptr.Store(&next)
	return true
}

// Get returns a copy of a job's current snapshot.
func (r *Registry) Get(scanID string) (gatetypes.ScanJob, bool) {
	r.mu.RLock()
	ptr, ok := r.jobs[scanID]
	r.mu.RUnlock()
	if !ok {
		return gatetypes.ScanJob{}, false
	}
	return *ptr.Load(), true
}

// List returns a snapshot of every currently registered job, in
// insertion order.
func (r *Registry) List() []gatetypes.ScanJob {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]gatetypes.ScanJob, 0, len(r.order))
	for _, id := range r.order {
		if ptr, ok := r.jobs[id]; ok {
			out = append(out, *ptr.Load())
		}
	}
	return out
}

// Remove deletes a job's snapshot outright (used by the sweeper once the
// retention window has passed).
func (r *Registry) Remove(scanID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, scanID)
	for i, id := range r.order {
		if id == scanID {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Sweep removes every terminal job whose CompletedAt is older than the
// registry's retention window. Returns the count removed.
func (r *Registry) Sweep() int {
	if r.retention <= 0 {
		return 0
	}
	cutoff := time.Now().Add(-r.retention)

	var toRemove []string
	for _, job := range r.List() {
		if job.Status.Terminal() && !job.CompletedAt.IsZero() && job.CompletedAt.Before(cutoff) {
			toRemove = append(toRemove, job.ScanID)
		}
	}
	for _, id := range toRemove {
		r.Remove(id)
	}
	return len(toRemove)
}

// RunSweeper starts a background goroutine that calls Sweep on every
// tick until ctx is cancelled, enforcing the terminal-job retention
// policy. Callers should run this once per process.
func (r *Registry) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := r.Sweep(); n > 0 {
					debug.LogPipeline("jobregistry: swept %d retained job(s)", n)
				}
			}
		}
	}()
}
