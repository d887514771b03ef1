// Package pipeline wires the scan stages together: fetch a repository,
// inventory it, extract build metadata, run every applicable gate,
// render a report, and clean up the working tree -- one goroutine per
// scan, admitted through a global semaphore, reporting progress through
// internal/jobregistry. The Pipeline is a long-lived server component
// that owns background goroutines and a guaranteed cleanup path per job.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/config"
	"github.com/standardbeagle/gatekeeper/internal/debug"
	"github.com/standardbeagle/gatekeeper/internal/gateengine"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/internal/jobregistry"
	"github.com/standardbeagle/gatekeeper/internal/store"
)

// Stage progress weights. Fetch and inventory are I/O bound but cheap relative to validation,
// which dominates wall-clock time since every applicable gate's patterns
// run against every file.
const (
	weightFetch     = 15
	weightInventory = 10
	weightMetadata  = 5
	weightValidate  = 55
	weightReport    = 10
	weightCleanup   = 5
)

// persistMaxRetries bounds the exponential-backoff retry loop around a
// result-store save.
const persistMaxRetries = 3

// Pipeline is the long-lived orchestrator shared by every scan; it holds
// no per-scan state outside the workspace each run() call builds for
// itself.
type Pipeline struct {
	cfg      *config.ServerConfig
	engine   *gateengine.Engine
	registry *jobregistry.Registry
	results  store.Store

	admission *semaphore.Weighted

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New builds a Pipeline. engine must already be wired to the pattern
// library and scanner the caller constructed at startup.
func New(cfg *config.ServerConfig, engine *gateengine.Engine, registry *jobregistry.Registry, results store.Store) *Pipeline {
	maxConcurrent := cfg.MaxConcurrentScans
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}
	return &Pipeline{
		cfg:       cfg,
		engine:    engine,
		registry:  registry,
		results:   results,
		admission: semaphore.NewWeighted(int64(maxConcurrent)),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// Submit registers a new job in Pending state and starts its pipeline
// goroutine, returning the scan ID immediately -- the caller (the HTTP
// API or the CLI's synchronous wait loop) polls internal/jobregistry for
// progress rather than blocking here.
func (p *Pipeline) Submit(req gatetypes.ScanRequest) (string, error) {
	if req.RepositoryURL == "" {
		return "", apperrors.New(apperrors.KindInvalidRequest, "submit", fmt.Errorf("repository_url is required"))
	}

	scanID := uuid.NewString()
	now := time.Now()
	p.registry.Create(gatetypes.ScanJob{
		ScanID:      scanID,
		Status:      gatetypes.StatusPending,
		Request:     req,
		CreatedAt:   now,
		UpdatedAt:   now,
		ReportPaths: map[string]string{},
	})

	timeout := req.ScanTimeout
	if timeout <= 0 {
		timeout = time.Duration(p.cfg.ScanTimeoutSec) * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	p.mu.Lock()
	p.cancels[scanID] = cancel
	p.mu.Unlock()

	go p.run(ctx, scanID, cancel)

	return scanID, nil
}

// Cancel requests early termination of a running scan. It returns false
// if scanID is unknown or already terminal.
func (p *Pipeline) Cancel(scanID string) bool {
	p.mu.Lock()
	cancel, ok := p.cancels[scanID]
	p.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

func (p *Pipeline) forgetCancel(scanID string) {
	p.mu.Lock()
	delete(p.cancels, scanID)
	p.mu.Unlock()
}

// run executes the six stages in order against ctx's deadline, persisting
// the final job state to the result store before returning. The
// workspace directory is always removed on the way out, regardless of
// which stage the scan reached.
func (p *Pipeline) run(ctx context.Context, scanID string, cancel context.CancelFunc) {
	defer cancel()
	defer p.forgetCancel(scanID)

	job, ok := p.registry.Get(scanID)
	if !ok {
		return
	}

	ws := &workspace{
		dir: filepath.Join(p.cfg.WorkDir, "gatekeeper-scan-"+scanID),
	}
	defer p.cleanupStage(ws, scanID)

	if err := p.admission.Acquire(ctx, 1); err != nil {
		p.markIncomplete(scanID, ws, err)
		return
	}
	defer p.admission.Release(1)

	p.setRunning(scanID, "fetching repository")

	stages := []struct {
		name   string
		weight int
		run    func(context.Context, *Pipeline, string, *workspace, gatetypes.ScanRequest) error
	}{
		{"fetch", weightFetch, fetchRepository},
		{"inventory", weightInventory, inventoryRepository},
		{"metadata", weightMetadata, extractBuildMetadata},
		{"validate", weightValidate, validateGates},
		{"report", weightReport, generateReport},
	}

	base := 0
	for _, stage := range stages {
		if err := ctx.Err(); err != nil {
			p.markIncomplete(scanID, ws, err)
			return
		}
		p.updateProgress(scanID, base, stage.name)
		if err := stage.run(ctx, p, scanID, ws, job.Request); err != nil {
			if ctx.Err() != nil {
				p.markIncomplete(scanID, ws, ctx.Err())
				return
			}
			p.fail(scanID, err)
			return
		}
		base += stage.weight
	}

	p.complete(scanID, ws)
}

func (p *Pipeline) setRunning(scanID, step string) {
	p.registry.Update(scanID, func(j *gatetypes.ScanJob) {
		j.Status = gatetypes.StatusRunning
		j.CurrentStep = step
		j.Progress = 0
	})
}

func (p *Pipeline) updateProgress(scanID string, percent int, step string) {
	p.registry.Update(scanID, func(j *gatetypes.ScanJob) {
		j.Status = gatetypes.StatusRunning
		j.Progress = percent
		j.CurrentStep = step
	})
	debug.LogPipeline("scan %s: stage %s (%d%%)", scanID, step, percent)
}

func (p *Pipeline) fail(scanID string, err error) {
	now := time.Now()
	var jobErr gatetypes.JobError
	if ge, ok := err.(*apperrors.GateError); ok {
		jobErr = gatetypes.JobError{Kind: string(ge.Kind), Operation: ge.Operation, Message: ge.Error(), Timestamp: now}
	} else {
		jobErr = gatetypes.JobError{Kind: string(apperrors.KindInternal), Message: err.Error(), Timestamp: now}
	}
	p.registry.Update(scanID, func(j *gatetypes.ScanJob) {
		j.Status = gatetypes.StatusFailed
		j.CompletedAt = now
		j.Errors = append(j.Errors, jobErr)
	})
	p.persist(scanID)
	debug.LogPipeline("scan %s: failed: %v", scanID, err)
}

// markIncomplete handles a deadline/cancellation mid-scan: whatever
// partial result exists is kept rather than discarded, with
// Incomplete=true so callers know not to trust the score as final. A
// deadline lands the job in Completed (partial results are still
// results); an explicit cancel lands it in Cancelled.
func (p *Pipeline) markIncomplete(scanID string, ws *workspace, cause error) {
	now := time.Now()
	status := gatetypes.StatusCompleted
	kind := apperrors.KindDeadlineExceeded
	if errors.Is(cause, context.Canceled) {
		status = gatetypes.StatusCancelled
		kind = apperrors.KindCancelled
	}
	p.registry.Update(scanID, func(j *gatetypes.ScanJob) {
		j.Status = status
		j.Incomplete = true
		j.CompletedAt = now
		j.Errors = append(j.Errors, gatetypes.JobError{Kind: string(kind), Message: cause.Error(), Timestamp: now})
		if ws.result != nil {
			ws.result.Incomplete = true
			j.Result = ws.result
		}
	})
	p.persist(scanID)
	debug.LogPipeline("scan %s: incomplete (%v)", scanID, cause)
}

func (p *Pipeline) complete(scanID string, ws *workspace) {
	now := time.Now()
	p.registry.Update(scanID, func(j *gatetypes.ScanJob) {
		j.Status = gatetypes.StatusCompleted
		j.Progress = 100
		j.CurrentStep = "done"
		j.CompletedAt = now
		j.Result = ws.result
		j.ReportPaths = ws.reportPaths
	})
	p.persist(scanID)
}

func (p *Pipeline) persist(scanID string) {
	job, ok := p.registry.Get(scanID)
	if !ok || p.results == nil {
		return
	}
	rec := store.Record{
		ScanID:             job.ScanID,
		Status:             job.Status,
		RepositoryURL:      job.Request.RepositoryURL,
		Branch:             job.Request.Branch,
		RequestedThreshold: job.Request.Threshold,
	}
	if job.Result != nil {
		rec.Result = *job.Result
	} else {
		rec.Result.ScanID = job.ScanID
		rec.Result.Errors = job.Errors
		rec.Result.Incomplete = job.Incomplete
		rec.Result.CreatedAt = job.CreatedAt
		rec.Result.UpdatedAt = job.UpdatedAt
		rec.Result.CompletedAt = job.CompletedAt
	}
	// Transient storage failures retry with exponential backoff before
	// the job gives up; the in-memory snapshot in the registry stays
	// readable either way.
	backoff := 100 * time.Millisecond
	for attempt := 0; ; attempt++ {
		err := p.results.Save(context.Background(), rec)
		if err == nil {
			return
		}
		if attempt == persistMaxRetries {
			debug.LogStore("pipeline: persist %s failed after %d attempts: %v", scanID, attempt+1, err)
			// The job committed its terminal status before persist ran,
			// so the ordinary Update would be refused; ForceUpdate is the
			// sanctioned path for exactly this failure. The in-memory
			// Result stays attached and readable.
			p.registry.ForceUpdate(scanID, func(j *gatetypes.ScanJob) {
				j.Status = gatetypes.StatusFailed
				j.Errors = append(j.Errors, gatetypes.JobError{
					Kind:      string(apperrors.KindStorageUnavailable),
					Operation: "persist",
					Message:   err.Error(),
					Timestamp: time.Now(),
				})
			})
			return
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

// cleanupStage always removes the scan's working tree, whichever path
// run() took to get here.
func (p *Pipeline) cleanupStage(ws *workspace, scanID string) {
	if ws.dir == "" {
		return
	}
	if err := os.RemoveAll(ws.dir); err != nil {
		debug.LogPipeline("scan %s: cleanup of %s failed: %v", scanID, ws.dir, err)
	}
}
