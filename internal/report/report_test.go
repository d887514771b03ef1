package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

func sampleResult() gatetypes.ScanResult {
	return gatetypes.ScanResult{
		ScanID:       "scan-xyz",
		OverallScore: 82.5,
		Applicable: []gatetypes.GateResult{
			{
				GateName: "structured-logging", Status: gatetypes.GateWarning, Score: 63,
				Recommendation: "Add structured fields to log calls.",
				Matches: []gatetypes.Match{
					{FilePath: "cmd/app/main.go", Line: 42, Pattern: `log\.Print`, Matched: "log.Print", Context: `log.Print("starting")`},
				},
				Counts: gatetypes.GateCounts{MatchesFound: 1, FilesWithMatches: 1},
			},
			{GateName: "error-logging", Status: gatetypes.GatePass, Score: 100},
		},
		NotApplicable: []gatetypes.GateResult{
			{GateName: "ui-error-handling", Reason: "requires one of: frontend"},
		},
		Metadata: gatetypes.RepoMetadata{
			Languages: map[string]gatetypes.LanguageStats{"go": {Files: 12, Lines: 900}},
		},
	}
}

func TestWrite_JSONAndHTML(t *testing.T) {
	dir := t.TempDir()
	paths, err := Write(sampleResult(), dir, []string{FormatJSON, FormatHTML})
	require.NoError(t, err)
	require.Contains(t, paths, FormatJSON)
	require.Contains(t, paths, FormatHTML)

	jsonBytes, err := os.ReadFile(paths[FormatJSON])
	require.NoError(t, err)
	var decoded gatetypes.ScanResult
	require.NoError(t, json.Unmarshal(jsonBytes, &decoded))
	assert.Equal(t, "scan-xyz", decoded.ScanID)

	htmlBytes, err := os.ReadFile(paths[FormatHTML])
	require.NoError(t, err)
	html := string(htmlBytes)
	assert.Contains(t, html, "structured-logging")
	assert.Contains(t, html, "82.5")
	assert.Contains(t, html, "cmd/app/main.go")
	assert.Contains(t, html, "<td>42</td>")
}

func TestWrite_UnsupportedFormat(t *testing.T) {
	dir := t.TempDir()
	_, err := Write(sampleResult(), dir, []string{"pdf"})
	assert.Error(t, err)
}

func TestWrite_CreatesDirIfMissing(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "reports")
	_, err := Write(sampleResult(), dir, []string{FormatJSON})
	require.NoError(t, err)
	_, statErr := os.Stat(dir)
	assert.NoError(t, statErr)
}
