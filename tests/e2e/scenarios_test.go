// Package e2e drives full scans end to end against local git fixture
// repositories, through the same Submit/Registry/Store path the HTTP API
// and CLI use. Each test reproduces one worked scenario: a secret leak,
// a clean-logging coverage bonus, a frontend-only applicability skip,
// a mid-scan deadline, a broken catalog pattern, and concurrent-scan
// admission.
package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/gatekeeper/internal/config"
	"github.com/standardbeagle/gatekeeper/internal/gateengine"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/internal/jobregistry"
	"github.com/standardbeagle/gatekeeper/internal/patterncache"
	"github.com/standardbeagle/gatekeeper/internal/patternlib"
	"github.com/standardbeagle/gatekeeper/internal/pipeline"
	"github.com/standardbeagle/gatekeeper/internal/scanner"
	"github.com/standardbeagle/gatekeeper/internal/store"
)

// newFixtureRepo commits files (path -> content) into a fresh git
// repository under t.TempDir() and returns its working-tree path. A
// plain local directory path is what go-git's endpoint parser treats as
// a local filesystem transport -- no file:// scheme needed, the same
// thing `git clone /local/path` does on the command line.
func newFixtureRepo(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()

	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	for rel, content := range files {
		full := filepath.Join(dir, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		_, err := wt.Add(rel)
		require.NoError(t, err)
	}

	sig := &object.Signature{Name: "fixture", Email: "fixture@example.com", When: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	_, err = wt.Commit("initial", &git.CommitOptions{Author: sig, Committer: sig})
	require.NoError(t, err)

	return dir
}

// newScanHarness builds a Pipeline wired to a fresh catalog, job
// registry, and in-memory result store, mirroring
// internal/pipeline/pipeline_test.go's newTestPipeline but with a
// caller-supplied catalog so each scenario can declare exactly the gates
// it needs.
func newScanHarness(t *testing.T, catalogYAML string, cfgMutate func(*config.ServerConfig)) (*pipeline.Pipeline, *jobregistry.Registry) {
	t.Helper()

	catalogPath := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(catalogPath, []byte(catalogYAML), 0o644))
	lib, err := patternlib.Load(catalogPath)
	require.NoError(t, err)

	cache := patterncache.New(patterncache.DefaultMaxEntries, patterncache.DefaultMaxMemoryBytes)
	scan := scanner.New(lib, cache, 4)
	engine := gateengine.New(lib, scan, 100)

	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.MaxConcurrentScans = 4
	cfg.ScanTimeoutSec = 10
	if cfgMutate != nil {
		cfgMutate(cfg)
	}

	registry := jobregistry.New(time.Hour)
	st := store.NewMemory()

	return pipeline.New(cfg, engine, registry, st), registry
}

func awaitTerminal(t *testing.T, registry *jobregistry.Registry, scanID string, timeout time.Duration) gatetypes.ScanJob {
	t.Helper()
	require.Eventually(t, func() bool {
		job, ok := registry.Get(scanID)
		return ok && job.Status.Terminal()
	}, timeout, 20*time.Millisecond)
	job, ok := registry.Get(scanID)
	require.True(t, ok)
	return job
}

// TestSecretLeakFails: a file logging a
// password literal scores AVOID_LOGGING_SECRETS at 80 (one violation out
// of a max five-violation penalty band, base 100, 20 points docked) and
// the security-only two-outcome rule sends that straight to FAIL, never
// WARNING.
func TestSecretLeakFails(t *testing.T) {
	const catalog = `
version: "1"
gates:
  AVOID_LOGGING_SECRETS:
    display_name: "Avoid Logging Confidential Data"
    category: "Security"
    priority: "critical"
    weight: 10
    patterns:
      all_languages:
        - pattern: "password\\s*="
          weight: 1.0
          rationale: "secret assignment"
`
	repoDir := newFixtureRepo(t, map[string]string{
		"src/app.py": "def login(pwd):\n    logger.info(\"password=\" + pwd)\n    return True\n",
	})

	p, registry := newScanHarness(t, catalog, nil)
	scanID, err := p.Submit(gatetypes.ScanRequest{RepositoryURL: repoDir})
	require.NoError(t, err)

	job := awaitTerminal(t, registry, scanID, 10*time.Second)
	require.Equal(t, gatetypes.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Applicable, 1)

	gate := job.Result.Applicable[0]
	assert.Equal(t, "AVOID_LOGGING_SECRETS", gate.GateName)
	assert.Equal(t, 80.0, gate.Score)
	assert.Equal(t, gatetypes.GateFail, gate.Status)
	require.Len(t, gate.Matches, 1)
	assert.Equal(t, "src/app.py", gate.Matches[0].FilePath)
}

// TestCleanLoggingCoverageBonus: the catalog declares ten distinct structured-logging
// markers (one per file), 8 of 10 backend source files carry their own
// marker, giving a 0.8 coverage ratio against expected_coverage.percent
// 10 that pushes the gate past its bonus_threshold, and the
// bonus_multiplier lifts the score to a clean PASS. Hand-traced against
// internal/scorer/scorer.go's weightedMatchScore/applyScoringConfig:
// coverage ratio 8/10 = 0.8 -> adjusted 80, excess over the 0.10
// expected ratio caps the bonus at +4 -> 84, then the 0.8 bonus
// threshold's 1.1 multiplier lifts it to 92.4.
func TestCleanLoggingCoverageBonus(t *testing.T) {
	var patternLines string
	for i := 0; i < 10; i++ {
		patternLines += fmt.Sprintf("        - pattern: \"marker%d\"\n          weight: 1.0\n          rationale: \"structured logging call %d\"\n", i, i)
	}
	catalog := `
version: "1"
gates:
  STRUCTURED_LOGS:
    display_name: "Logs Searchable/Available"
    category: "Logging"
    priority: "high"
    weight: 8
    expected_coverage:
      percent: 10
    patterns:
      all_languages:
` + patternLines

	files := make(map[string]string, 10)
	for i := 0; i < 10; i++ {
		rel := filepath.Join("src", fmt.Sprintf("module%d.go", i))
		if i < 8 {
			files[rel] = fmt.Sprintf("package module\n\nfunc run() {\n\tlog.Info(\"marker%d\")\n}\n", i)
		} else {
			files[rel] = "package module\n\nfunc run() {\n\tfmt.Println(\"running\")\n}\n"
		}
	}
	repoDir := newFixtureRepo(t, files)

	p, registry := newScanHarness(t, catalog, nil)
	scanID, err := p.Submit(gatetypes.ScanRequest{RepositoryURL: repoDir})
	require.NoError(t, err)

	job := awaitTerminal(t, registry, scanID, 10*time.Second)
	require.Equal(t, gatetypes.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Applicable, 1)

	gate := job.Result.Applicable[0]
	assert.Equal(t, "STRUCTURED_LOGS", gate.GateName)
	assert.InDelta(t, 92.4, gate.Score, 0.01)
	assert.Equal(t, gatetypes.GatePass, gate.Status)
	assert.Equal(t, 8, gate.Counts.FilesWithMatches)
}

// TestFrontendOnlyGateNotApplicable: a pure-JS frontend repository never exercises a gate whose applicability
// rule requires the backend category, and the result carries a reason
// rather than a score.
func TestFrontendOnlyGateNotApplicable(t *testing.T) {
	const catalog = `
version: "1"
gates:
  CIRCUIT_BREAKERS:
    display_name: "Circuit Breakers Used"
    category: "Resilience"
    priority: "high"
    weight: 6
    applicability:
      required_technologies:
        - "backend"
    patterns:
      all_languages:
        - pattern: "circuitbreaker"
          weight: 1.0
          rationale: "circuit breaker usage"
`
	repoDir := newFixtureRepo(t, map[string]string{
		"src/App.jsx":   "import React from 'react';\nexport default function App() { return <div/>; }\n",
		"src/index.jsx": "import App from './App';\n",
	})

	p, registry := newScanHarness(t, catalog, nil)
	scanID, err := p.Submit(gatetypes.ScanRequest{RepositoryURL: repoDir})
	require.NoError(t, err)

	job := awaitTerminal(t, registry, scanID, 10*time.Second)
	require.Equal(t, gatetypes.StatusCompleted, job.Status)
	require.NotNil(t, job.Result)
	require.Empty(t, job.Result.Applicable)
	require.Len(t, job.Result.NotApplicable, 1)

	gate := job.Result.NotApplicable[0]
	assert.Equal(t, "CIRCUIT_BREAKERS", gate.GateName)
	assert.Equal(t, gatetypes.GateNotApplicable, gate.Status)
	assert.NotEmpty(t, gate.Reason)
}

// TestDeadlineExceededLeavesIncompletePartialResult: a scan whose
// timeout expires mid-pipeline still leaves a terminal Completed job
// behind with Incomplete set and progress short of 100, rather than
// hanging or silently discarding whatever the pipeline reached.
func TestDeadlineExceededLeavesIncompletePartialResult(t *testing.T) {
	const catalog = `
version: "1"
gates:
  STRUCTURED_LOGS:
    display_name: "Logs Searchable/Available"
    category: "Logging"
    priority: "high"
    weight: 8
    patterns:
      all_languages:
        - pattern: "log\\.(Info|Warn|Error)"
          weight: 1.0
          rationale: "structured logging call"
`
	repoDir := newFixtureRepo(t, map[string]string{
		"src/app.go": "package main\n\nfunc main() {\n\tlog.Info(\"hi\")\n}\n",
	})

	p, registry := newScanHarness(t, catalog, func(cfg *config.ServerConfig) {
		cfg.ScanTimeoutSec = 0
	})
	scanID, err := p.Submit(gatetypes.ScanRequest{
		RepositoryURL: repoDir,
		ScanTimeout:   time.Nanosecond,
	})
	require.NoError(t, err)

	job := awaitTerminal(t, registry, scanID, 10*time.Second)
	assert.Equal(t, gatetypes.StatusCompleted, job.Status)
	assert.True(t, job.Incomplete)
	assert.Less(t, job.Progress, 100)
}

// TestInvalidCatalogPatternWarnsNotFails: a gate declaring one unparseable regex alongside one valid pattern
// loads successfully (patternlib.validateCatalog only checks structural
// fields, not regex syntax), the scanner drops the bad pattern at
// compile time (internal/scanner/scanner.go's compileGatePatterns), and
// the gate still scores and completes the job using the surviving
// pattern -- never a fatal catalog-load or job failure.
func TestInvalidCatalogPatternWarnsNotFails(t *testing.T) {
	const catalog = `
version: "1"
gates:
  STRUCTURED_LOGS:
    display_name: "Logs Searchable/Available"
    category: "Logging"
    priority: "high"
    weight: 8
    patterns:
      all_languages:
        - pattern: "log\\.(Info|Warn|Error)"
          weight: 1.0
          rationale: "structured logging call"
        - pattern: "log\\.(["
          weight: 1.0
          rationale: "deliberately malformed pattern"
`
	repoDir := newFixtureRepo(t, map[string]string{
		"src/app.go": "package main\n\nfunc main() {\n\tlog.Info(\"hi\")\n}\n",
	})

	p, registry := newScanHarness(t, catalog, nil)
	scanID, err := p.Submit(gatetypes.ScanRequest{RepositoryURL: repoDir})
	require.NoError(t, err)

	job := awaitTerminal(t, registry, scanID, 10*time.Second)
	require.Equal(t, gatetypes.StatusCompleted, job.Status)
	require.Empty(t, job.Errors)
	require.NotNil(t, job.Result)
	require.Len(t, job.Result.Applicable, 1)

	gate := job.Result.Applicable[0]
	assert.Equal(t, "STRUCTURED_LOGS", gate.GateName)
	require.Len(t, gate.Matches, 1)
	assert.Equal(t, gatetypes.GatePass, gate.Status)
}

// TestConcurrentScansRespectAdmissionLimit: submitting more scans than MaxConcurrentScans never lets
// more than that many run at once (the pipeline's admission semaphore),
// every scan eventually reaches a terminal state, and each scan's match
// line number reflects its own fixture content rather than another
// scan's, since each scan owns its own workspace keyed by scan ID.
func TestConcurrentScansRespectAdmissionLimit(t *testing.T) {
	const catalog = `
version: "1"
gates:
  AVOID_LOGGING_SECRETS:
    display_name: "Avoid Logging Confidential Data"
    category: "Security"
    priority: "critical"
    weight: 10
    patterns:
      all_languages:
        - pattern: "password\\s*="
          weight: 1.0
          rationale: "secret assignment"
`
	const maxConcurrent = 2
	const scanCount = 8

	p, registry := newScanHarness(t, catalog, func(cfg *config.ServerConfig) {
		cfg.MaxConcurrentScans = maxConcurrent
	})

	scanIDs := make([]string, scanCount)
	wantLines := make(map[string]int, scanCount)
	for i := 0; i < scanCount; i++ {
		padding := ""
		for j := 0; j < i; j++ {
			padding += "# padding line\n"
		}
		line := i + 2 // 1 for "package main", then the padding, then the password line
		content := "package main\n" + padding + "var secret = \"password=hunter2\"\n"
		repoDir := newFixtureRepo(t, map[string]string{"main.go": content})

		scanID, err := p.Submit(gatetypes.ScanRequest{RepositoryURL: repoDir})
		require.NoError(t, err)
		scanIDs[i] = scanID
		wantLines[scanID] = line
	}

	deadline := time.Now().Add(20 * time.Second)
	maxSeenRunning := 0
	for time.Now().Before(deadline) {
		running := 0
		allTerminal := true
		for _, job := range registry.List() {
			if job.Status == gatetypes.StatusRunning {
				running++
			}
			if !job.Status.Terminal() {
				allTerminal = false
			}
		}
		if running > maxSeenRunning {
			maxSeenRunning = running
		}
		require.LessOrEqual(t, running, maxConcurrent, "admission semaphore must never exceed MaxConcurrentScans")
		if allTerminal {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	for _, scanID := range scanIDs {
		job, ok := registry.Get(scanID)
		require.True(t, ok)
		require.True(t, job.Status.Terminal(), "scan %s never reached a terminal state", scanID)
		assert.Equal(t, gatetypes.StatusCompleted, job.Status)
		require.NotNil(t, job.Result)
		require.Len(t, job.Result.Applicable, 1)
		gate := job.Result.Applicable[0]
		require.Len(t, gate.Matches, 1)
		assert.Equal(t, wantLines[scanID], gate.Matches[0].Line, "scan %s's match must come from its own fixture, not another scan's", scanID)
	}
}
