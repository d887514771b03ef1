package patternlib

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fixtureYAML = `
version: "1"
metadata:
  total_gates: 2
  total_patterns: 5
global:
  scoring:
    base_score: 100
    violation_penalty: 20
    max_penalty: 100
gates:
  AVOID_LOGGING_SECRETS:
    display_name: "Avoid Logging Confidential Data"
    category: "Security"
    priority: "critical"
    weight: 10
    patterns:
      all_languages:
        - pattern: "password"
          weight: 1.0
          rationale: "secret keyword"
    expected_coverage:
      percent: 0
      reasoning: "zero violations expected"
      confidence: "high"
  STRUCTURED_LOGS:
    display_name: "Logs Searchable/Available"
    category: "Logging"
    priority: "high"
    weight: 8
    patterns:
      python:
        - pattern: "logger.info"
          weight: 1.0
          rationale: "structured logging call"
      all_languages:
        - pattern: "structured.*log"
          weight: 0.8
          rationale: "generic structured log marker"
    expected_coverage:
      percent: 10
      reasoning: "sampled coverage target"
      confidence: "medium"
`

func writeFixture(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fixtureYAML), 0o644))
	return path
}

func TestLoadParsesGatesInOrder(t *testing.T) {
	lib, err := Load(writeFixture(t))
	require.NoError(t, err)

	gates := lib.Gates()
	require.Len(t, gates, 2)
	assert.Equal(t, "AVOID_LOGGING_SECRETS", gates[0].Name)
	assert.Equal(t, "STRUCTURED_LOGS", gates[1].Name)
	assert.True(t, gates[0].IsSecurity)
	assert.False(t, gates[1].IsSecurity)
}

func TestPatternsForIsDeterministic(t *testing.T) {
	lib, err := Load(writeFixture(t))
	require.NoError(t, err)

	first := lib.PatternsFor("STRUCTURED_LOGS", []string{"Python"})
	second := lib.PatternsFor("STRUCTURED_LOGS", []string{"Python"})
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, "logger.info", first[0].Pattern)
	assert.Equal(t, "structured.*log", first[1].Pattern)
}

func TestPatternsForUnknownGateReturnsNil(t *testing.T) {
	lib, err := Load(writeFixture(t))
	require.NoError(t, err)
	assert.Nil(t, lib.PatternsFor("NOT_A_GATE", []string{"go"}))
}

func TestPrimaryTechnologiesThreshold(t *testing.T) {
	lib, err := Load(writeFixture(t))
	require.NoError(t, err)

	primary := lib.PrimaryTechnologies(map[string]int{"Python": 8, "HTML": 2})
	assert.Equal(t, []string{"HTML", "Python"}, primary)
}

func TestPrimaryTechnologiesFallsBackToDominant(t *testing.T) {
	lib, err := Load(writeFixture(t))
	require.NoError(t, err)

	primary := lib.PrimaryTechnologies(map[string]int{
		"JSON": 3, "Python": 2, "HTML": 2, "CSS": 2, "Go": 2,
		"Rust": 2, "Java": 2, "Ruby": 2, "PHP": 2, "Swift": 2,
	})
	assert.Equal(t, []string{"JSON"}, primary)
}

func TestGlobalScoringKnobsOverrideDefaults(t *testing.T) {
	lib, err := Load(writeFixture(t))
	require.NoError(t, err)
	assert.Equal(t, float64(100), lib.GlobalConfigValue().Scoring.BaseScore)
	assert.Equal(t, float64(20), lib.GlobalConfigValue().Scoring.ViolationPenalty)
}

func TestSuggestFindsClosestGateName(t *testing.T) {
	lib, err := Load(writeFixture(t))
	require.NoError(t, err)

	name, score := lib.Suggest("STRUCTURED_LOG")
	assert.Equal(t, "STRUCTURED_LOGS", name)
	assert.Greater(t, score, 0.9)
}

func TestSuggestEmptyCatalog(t *testing.T) {
	lib := &Library{}
	name, score := lib.Suggest("anything")
	assert.Empty(t, name)
	assert.Zero(t, score)
}
