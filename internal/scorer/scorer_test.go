package scorer

import (
	"testing"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/stretchr/testify/assert"
)

func defaultKnobs() gatetypes.ScoringKnobs {
	return gatetypes.ScoringKnobs{
		BaseScore:             100,
		ViolationPenalty:      20,
		MaxPenalty:            100,
		BonusForClean:         0,
		BonusThreshold:        0.8,
		BonusMultiplier:       1.1,
		PenaltyThreshold:      0.3,
		PenaltyMultiplier:     0.8,
		PassThreshold:         80,
		WarningThreshold:      60,
		SecurityPassThreshold: 95,
	}
}

func securityGate() gatetypes.GateDefinition {
	return gatetypes.GateDefinition{
		Name:       "AVOID_LOGGING_SECRETS",
		Category:   "Security",
		IsSecurity: true,
		Weight:     9,
		Scoring:    defaultKnobs(),
	}
}

func coverageGate() gatetypes.GateDefinition {
	return gatetypes.GateDefinition{
		Name:             "STRUCTURED_LOGS",
		Category:         "Logging",
		Weight:           8,
		Scoring:          defaultKnobs(),
		ExpectedCoverage: gatetypes.ExpectedCoverage{Percent: 20},
	}
}

func TestSecurityGateNoMatchesScoresPerfect(t *testing.T) {
	score, status, details := Score(securityGate(), nil, nil)
	assert.Equal(t, 100.0, score)
	assert.Equal(t, gatetypes.GatePass, status)
	assert.Equal(t, 0, details.Violations)
}

func TestSecurityGatePenalizesPerMatch(t *testing.T) {
	matches := []gatetypes.Match{
		{FilePath: "a.go", Pattern: `password\s*=`},
		{FilePath: "b.go", Pattern: `password\s*=`},
		{FilePath: "c.go", Pattern: `password\s*=`},
	}
	score, status, details := Score(securityGate(), matches, nil)
	assert.Equal(t, 40.0, score) // 100 - 3*20
	assert.Equal(t, gatetypes.GateFail, status)
	assert.Equal(t, 3, details.Violations)
}

func TestSecurityGateCapsPenaltyAtMaxPenalty(t *testing.T) {
	gate := securityGate()
	gate.Scoring.MaxPenalty = 50
	var matches []gatetypes.Match
	for i := 0; i < 10; i++ {
		matches = append(matches, gatetypes.Match{FilePath: "a.go", Pattern: "x"})
	}
	score, _, _ := Score(gate, matches, nil)
	assert.Equal(t, 50.0, score) // base 100 - capped penalty 50
}

func TestCoverageGateNoMatchesScoresZero(t *testing.T) {
	score, status, _ := Score(coverageGate(), nil, nil)
	assert.Equal(t, 0.0, score)
	assert.Equal(t, gatetypes.GateFail, status)
}

func TestCoverageGateWeightsHighestPatternPerFile(t *testing.T) {
	patterns := []gatetypes.PatternDef{
		{Pattern: "logger.info", Weight: 1.0},
		{Pattern: "logger.error", Weight: 2.0},
	}
	matches := []gatetypes.Match{
		{FilePath: "a.go", Pattern: "logger.info"},
		{FilePath: "a.go", Pattern: "logger.error"}, // same file, higher weight wins
		{FilePath: "b.go", Pattern: "logger.info"},
	}
	gate := coverageGate()
	gate.ExpectedCoverage.Percent = 200 // keep expectation unreachable, isolate the base ratio
	score, _, details := Score(gate, matches, patterns)

	// file weights: a.go -> 2.0 (max of 1.0/2.0), b.go -> 1.0; total = 3.0
	// total possible weight = 1.0 + 2.0 = 3.0 -> coverage ratio 1.0 -> 100
	assert.Equal(t, 100.0, score)
	assert.Equal(t, 3, details.Violations)
}

func TestCoverageGateAppliesExcessBonus(t *testing.T) {
	patterns := []gatetypes.PatternDef{{Pattern: "logger.info", Weight: 1.0}}
	matches := []gatetypes.Match{{FilePath: "a.go", Pattern: "logger.info"}}
	gate := coverageGate()
	gate.ExpectedCoverage.Percent = 10 // coverage ratio 1.0 far exceeds 0.10 expectation

	score, status, _ := Score(gate, matches, patterns)
	assert.Equal(t, 100.0, score) // bonus capped by the 100 ceiling
	assert.Equal(t, gatetypes.GatePass, status)
}

func TestApplyScoringConfigBonusAndPenaltyBands(t *testing.T) {
	knobs := defaultKnobs()
	assert.InDelta(t, 88.0, applyScoringConfig(80.0, knobs), 0.001)  // >= bonus threshold (0.8): *1.1
	assert.InDelta(t, 16.0, applyScoringConfig(20.0, knobs), 0.001)  // <= penalty threshold (0.3): *0.8
	assert.InDelta(t, 50.0, applyScoringConfig(50.0, knobs), 0.001) // unchanged in the middle band
}

func TestClassifyUsesSecurityThresholdForSecurityGates(t *testing.T) {
	gate := securityGate()
	_, status, _ := Score(gate, []gatetypes.Match{{FilePath: "a.go"}}, nil) // score 80, below SecurityPassThreshold 95
	assert.Equal(t, gatetypes.GateFail, status)
}

func TestOverallWeightsByGateWeight(t *testing.T) {
	results := []gatetypes.GateResult{
		{GateName: "A", Score: 100, Scoring: gatetypes.ScoringDetails{Weight: 10}},
		{GateName: "B", Score: 50, Scoring: gatetypes.ScoringDetails{Weight: 10}},
	}
	assert.Equal(t, 75.0, Overall(results))
}

func TestOverallIgnoresZeroWeightGates(t *testing.T) {
	results := []gatetypes.GateResult{
		{GateName: "A", Score: 40, Scoring: gatetypes.ScoringDetails{Weight: 0}},
		{GateName: "B", Score: 90, Scoring: gatetypes.ScoringDetails{Weight: 5}},
	}
	assert.Equal(t, 90.0, Overall(results))
}

func TestOverallWithNoGatesReturnsZero(t *testing.T) {
	assert.Equal(t, 0.0, Overall(nil))
}
