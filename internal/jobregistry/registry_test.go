package jobregistry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestCreateAndGet(t *testing.T) {
	r := New(time.Hour)
	r.Create(gatetypes.ScanJob{ScanID: "scan-1", Status: gatetypes.StatusPending})

	job, ok := r.Get("scan-1")
	require.True(t, ok)
	assert.Equal(t, gatetypes.StatusPending, job.Status)
}

func TestCreateDuplicatePanics(t *testing.T) {
	r := New(time.Hour)
	r.Create(gatetypes.ScanJob{ScanID: "scan-1"})
	assert.Panics(t, func() {
		r.Create(gatetypes.ScanJob{ScanID: "scan-1"})
	})
}

func TestUpdateMutatesSnapshot(t *testing.T) {
	r := New(time.Hour)
	r.Create(gatetypes.ScanJob{ScanID: "scan-1", Status: gatetypes.StatusPending})

	ok := r.Update("scan-1", func(j *gatetypes.ScanJob) {
		j.Status = gatetypes.StatusRunning
		j.Progress = 42
	})
	require.True(t, ok)

	job, _ := r.Get("scan-1")
	assert.Equal(t, gatetypes.StatusRunning, job.Status)
	assert.Equal(t, 42, job.Progress)
}

func TestUpdateRefusesTerminalJob(t *testing.T) {
	r := New(time.Hour)
	r.Create(gatetypes.ScanJob{ScanID: "scan-1", Status: gatetypes.StatusCompleted})

	ok := r.Update("scan-1", func(j *gatetypes.ScanJob) {
		j.Status = gatetypes.StatusRunning
	})
	assert.False(t, ok)

	job, _ := r.Get("scan-1")
	assert.Equal(t, gatetypes.StatusCompleted, job.Status)
}

func TestUpdateUnknownScanReturnsFalse(t *testing.T) {
	r := New(time.Hour)
	assert.False(t, r.Update("missing", func(*gatetypes.ScanJob) {}))
}

func TestListReturnsInsertionOrder(t *testing.T) {
	r := New(time.Hour)
	r.Create(gatetypes.ScanJob{ScanID: "a"})
	r.Create(gatetypes.ScanJob{ScanID: "b"})
	r.Create(gatetypes.ScanJob{ScanID: "c"})

	jobs := r.List()
	require.Len(t, jobs, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{jobs[0].ScanID, jobs[1].ScanID, jobs[2].ScanID})
}

func TestSweepRemovesOnlyExpiredTerminalJobs(t *testing.T) {
	r := New(time.Hour)
	r.Create(gatetypes.ScanJob{
		ScanID:      "old",
		Status:      gatetypes.StatusCompleted,
		CompletedAt: time.Now().Add(-2 * time.Hour),
	})
	r.Create(gatetypes.ScanJob{
		ScanID:      "recent",
		Status:      gatetypes.StatusCompleted,
		CompletedAt: time.Now(),
	})
	r.Create(gatetypes.ScanJob{ScanID: "running", Status: gatetypes.StatusRunning})

	removed := r.Sweep()
	assert.Equal(t, 1, removed)

	_, ok := r.Get("old")
	assert.False(t, ok)
	_, ok = r.Get("recent")
	assert.True(t, ok)
	_, ok = r.Get("running")
	assert.True(t, ok)
}

func TestRunSweeperStopsOnContextCancel(t *testing.T) {
	r := New(time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	r.RunSweeper(ctx, time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)
}

func TestForceUpdateMutatesTerminalJob(t *testing.T) {
	r := New(time.Hour)
	r.Create(gatetypes.ScanJob{ScanID: "scan-1", Status: gatetypes.StatusCompleted})

	ok := r.ForceUpdate("scan-1", func(j *gatetypes.ScanJob) {
		j.Status = gatetypes.StatusFailed
		j.Errors = append(j.Errors, gatetypes.JobError{Kind: "storage_unavailable", Message: "disk full"})
	})
	require.True(t, ok)

	job, _ := r.Get("scan-1")
	assert.Equal(t, gatetypes.StatusFailed, job.Status)
	require.Len(t, job.Errors, 1)
	assert.Equal(t, "storage_unavailable", job.Errors[0].Kind)
}

func TestForceUpdateUnknownScanReturnsFalse(t *testing.T) {
	r := New(time.Hour)
	assert.False(t, r.ForceUpdate("missing", func(*gatetypes.ScanJob) {}))
}
