package applicability

import (
	"testing"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/stretchr/testify/assert"
)

func TestAnalyzeBackendOnly(t *testing.T) {
	meta := gatetypes.RepoMetadata{
		Languages: map[string]gatetypes.LanguageStats{
			"go":  {Files: 40, Lines: 4000},
			"doc": {Files: 1, Lines: 10},
		},
	}
	c := Analyze(meta, []string{"Makefile"})
	assert.True(t, c.IsBackend)
	assert.False(t, c.IsFrontend)
	assert.True(t, c.IsBackendOnly)
	assert.Equal(t, "backend", c.PrimaryTechnology)
}

func TestAnalyzeIgnoresIncidentalHTML(t *testing.T) {
	meta := gatetypes.RepoMetadata{
		Languages: map[string]gatetypes.LanguageStats{
			"go":   {Files: 95, Lines: 9500},
			"html": {Files: 1, Lines: 20},
		},
	}
	c := Analyze(meta, nil)
	assert.False(t, c.IsFrontend)
}

func TestAnalyzeDetectsFrontendFramework(t *testing.T) {
	meta := gatetypes.RepoMetadata{
		Languages: map[string]gatetypes.LanguageStats{
			"typescript": {Files: 50, Lines: 5000},
			"go":         {Files: 10, Lines: 1000},
		},
	}
	c := Analyze(meta, nil)
	assert.True(t, c.IsFrontend)
	assert.True(t, c.IsFullstack)
}

func TestAnalyzeDetectsAPIFromConfigFileName(t *testing.T) {
	meta := gatetypes.RepoMetadata{Languages: map[string]gatetypes.LanguageStats{"html": {Files: 1}}}
	c := Analyze(meta, []string{"openapi.yaml"})
	assert.True(t, c.IsAPI)
}

func TestCheckGateWithNoRuleIsAlwaysApplicable(t *testing.T) {
	gate := gatetypes.GateDefinition{Name: "AVOID_LOGGING_SECRETS"}
	ok, reason := Check(gate, Characteristics{})
	assert.True(t, ok)
	assert.NotEmpty(t, reason)
}

func TestCheckGateRequiresCategory(t *testing.T) {
	gate := gatetypes.GateDefinition{
		Name:          "HTTP_CODES",
		Applicability: gatetypes.ApplicabilityRule{Required: []gatetypes.Category{gatetypes.CategoryAPI}},
	}
	ok, _ := Check(gate, Characteristics{IsAPI: false})
	assert.False(t, ok)

	ok, _ = Check(gate, Characteristics{IsAPI: true})
	assert.True(t, ok)
}

func TestPartitionSplitsGates(t *testing.T) {
	gates := []gatetypes.GateDefinition{
		{Name: "AVOID_LOGGING_SECRETS"},
		{Name: "UI_ERRORS", Applicability: gatetypes.ApplicabilityRule{Required: []gatetypes.Category{gatetypes.CategoryFrontend}}},
	}
	applicable, notApplicable, reasons := Partition(gates, Characteristics{IsFrontend: false, IsBackend: true})
	assert.Len(t, applicable, 1)
	assert.Len(t, notApplicable, 1)
	assert.NotEmpty(t, reasons["UI_ERRORS"])
}
