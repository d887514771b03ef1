package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/gatekeeper/internal/config"
	"github.com/standardbeagle/gatekeeper/internal/gateengine"
	"github.com/standardbeagle/gatekeeper/internal/jobregistry"
	"github.com/standardbeagle/gatekeeper/internal/patterncache"
	"github.com/standardbeagle/gatekeeper/internal/patternlib"
	"github.com/standardbeagle/gatekeeper/internal/pipeline"
	"github.com/standardbeagle/gatekeeper/internal/scanner"
	"github.com/standardbeagle/gatekeeper/internal/store"
)

const testCatalog = `
version: "1"
gates:
  structured-logging:
    display_name: Structured Logging
    description: Use a structured logger instead of bare print statements.
    category: Logging
    priority: high
    weight: 10
    patterns:
      go:
        - pattern: "log\\.Print"
          weight: 1.0
          rationale: unstructured log call
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o644))
	lib, err := patternlib.Load(path)
	require.NoError(t, err)

	cache := patterncache.New(1000, 8<<20)
	scan := scanner.New(lib, cache, 2)
	engine := gateengine.New(lib, scan, 50)

	cfg := config.Default()
	cfg.WorkDir = t.TempDir()
	cfg.MaxConcurrentScans = 1
	cfg.ScanTimeoutSec = 5

	registry := jobregistry.New(time.Hour)
	st := store.NewMemory()
	p := pipeline.New(cfg, engine, registry, st)

	return New(p, registry, st, lib)
}

func TestHandleCreateScan_RejectsMissingRepositoryURL(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/v1/scan", "application/json", bytes.NewBufferString(`{}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleCreateScan_AcceptsValidRequest(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	body, _ := json.Marshal(scanRequestDTO{RepositoryURL: "file:///no/such/repo"})
	resp, err := http.Post(ts.URL+"/api/v1/scan", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	var accepted scanAcceptedDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accepted))
	assert.NotEmpty(t, accepted.ScanID)
	assert.Equal(t, "pending", accepted.Status)
}

func TestHandleGetScan_UnknownReturns404(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/scan/does-not-exist")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestHandleListGates_ReturnsCatalogGates(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/gates")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var payload struct {
		Gates []gateSummaryDTO `json:"gates"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	require.Len(t, payload.Gates, 1)
	assert.Equal(t, "structured-logging", payload.Gates[0].Name)
}

func TestHandleHealth_OKWhenStoreHealthy(t *testing.T) {
	s := newTestServer(t)
	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/v1/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestJobDTO_EmitsBackwardCompatAliases(t *testing.T) {
	score := 91.5
	dto := jobDTO{
		ScanID: "scan-1", Status: "completed", ProgressPercent: 100,
		OverallScore: &score,
		GateResults:  []gateResultDTO{{GateName: "g1", Status: "PASS", Score: 100}},
	}
	raw, err := json.Marshal(dto)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, decoded["score"], decoded["overall_score"])
	assert.Equal(t, decoded["progress"], decoded["progress_percent"])
	assert.Len(t, decoded["gates"], 1)
	assert.Len(t, decoded["gate_results"], 1)
}
