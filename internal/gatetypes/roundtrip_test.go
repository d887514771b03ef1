package gatetypes

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

// TestScanResultRoundTrip: serialize then deserialize a ScanResult produces a bitwise-equivalent
// object (after normalizing map order, which cmp.Diff already does for
// Go maps since map key order is not semantic).
func TestScanResultRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 15, 10, 30, 0, 0, time.UTC)
	original := ScanResult{
		ScanID:       "scan-abc123",
		OverallScore: 74.2,
		Applicable: []GateResult{
			{
				GateName: "avoid_logging_secrets",
				Status:   GateFail,
				Score:    80,
				Matches: []Match{
					{FilePath: "src/app.py", Line: 12, Pattern: `password=`, Matched: `logger.info("password="+pwd)`, Source: "static"},
				},
				Counts:         GateCounts{PatternsUsed: 3, MatchesFound: 1, RelevantFiles: 40, FilesWithMatches: 1},
				Scoring:        ScoringDetails{Weight: 2.0, Violations: 1},
				Recommendation: "Remove credentials from log statements.",
			},
		},
		NotApplicable: []GateResult{
			{GateName: "circuit_breakers", Status: GateNotApplicable, Reason: "API/backend only"},
		},
		Metadata: RepoMetadata{
			FileCount:  40,
			TotalLines: 3200,
			Languages: map[string]LanguageStats{
				"python": {Files: 40, Lines: 3200},
			},
			BuildTools: []string{"pip"},
		},
		CreatedAt:   now,
		UpdatedAt:   now.Add(5 * time.Minute),
		CompletedAt: now.Add(5 * time.Minute),
	}

	encoded, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded ScanResult
	if err := json.Unmarshal(encoded, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if diff := cmp.Diff(original, decoded); diff != "" {
		t.Errorf("round trip mismatch (-original +decoded):\n%s", diff)
	}

	// Marshaling twice must be stable: struct field order is fixed and
	// map keys are sorted by encoding/json, so repeated encodes of the
	// same value are byte-identical.
	encodedAgain, err := json.Marshal(decoded)
	if err != nil {
		t.Fatalf("remarshal: %v", err)
	}
	if diff := cmp.Diff(string(encoded), string(encodedAgain)); diff != "" {
		t.Errorf("re-encoding is not stable (-first +second):\n%s", diff)
	}
}
