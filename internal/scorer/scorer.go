// Package scorer turns a gate's raw match evidence into a 0-100 score and
// a pass/warning/fail classification. Two disjoint scoring modes:
// security gates are penalty-based (fewer matches is better), coverage
// gates are weighted-match-based (matches against declared pattern
// weight is better, relative to an expected-coverage target).
package scorer

import (
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// Score computes a gate's Score and ScoringDetails from its matches and
// the patterns that were resolved for it, then classifies Status against
// the gate's knobs. It does not set GateResult.Matches/Counts/Sources --
// the caller (gateengine) owns assembling the full GateResult.
func Score(gate gatetypes.GateDefinition, matches []gatetypes.Match, patterns []gatetypes.PatternDef) (score float64, status gatetypes.GateStatus, details gatetypes.ScoringDetails) {
	knobs := gate.Scoring

	if gate.IsSecurity {
		score, details = securityGateScore(matches, knobs)
		details.Weight = gate.Weight
	} else {
		weightedScore := weightedMatchScore(matches, patterns, gate.ExpectedCoverage)
		score = applyScoringConfig(weightedScore, knobs)
		details = gatetypes.ScoringDetails{
			Weight:           gate.Weight,
			CoverageActual:   weightedScore,
			CoverageExpected: gate.ExpectedCoverage.Percent,
			Violations:       len(matches),
		}
	}

	status = classify(gate, score)
	return score, status, details
}

// securityGateScore: zero matches
// earns base_score plus a clean bonus (capped at 100); each match costs
// violation_penalty, capped at max_penalty.
func securityGateScore(matches []gatetypes.Match, knobs gatetypes.ScoringKnobs) (float64, gatetypes.ScoringDetails) {
	var score float64
	if len(matches) == 0 {
		score = min(knobs.BaseScore+knobs.BonusForClean, 100.0)
	} else {
		penalty := min(float64(len(matches))*knobs.ViolationPenalty, knobs.MaxPenalty)
		score = max(0.0, knobs.BaseScore-penalty)
	}
	return score, gatetypes.ScoringDetails{
		CoverageExpected: 0,
		Violations:       len(matches),
	}
}

// weightedMatchScore: for each
// file with at least one match, take the highest-weight pattern that hit
// in that file; sum those per-file weights, divide by the sum of every
// declared pattern's weight to get a coverage ratio, then apply a bonus
// for exceeding the gate's expected coverage percentage: 20 points times
// the excess relative to expectation, with that relative excess capped at
// 0.2, so the bonus is at most +4 points.
func weightedMatchScore(matches []gatetypes.Match, patterns []gatetypes.PatternDef, expected gatetypes.ExpectedCoverage) float64 {
	if len(matches) == 0 {
		return 0.0
	}

	patternWeights := make(map[string]float64, len(patterns))
	totalPossibleWeight := 0.0
	for _, p := range patterns {
		patternWeights[p.Pattern] = p.Weight
		totalPossibleWeight += p.Weight
	}

	fileWeights := make(map[string]float64)
	for _, m := range matches {
		weight, ok := patternWeights[m.Pattern]
		if !ok {
			weight = 1.0
		}
		if current, seen := fileWeights[m.FilePath]; !seen || weight > current {
			fileWeights[m.FilePath] = weight
		}
	}

	totalWeightedScore := 0.0
	for _, w := range fileWeights {
		totalWeightedScore += w
	}

	coverageRatio := 0.0
	if totalPossibleWeight > 0 {
		coverageRatio = totalWeightedScore / totalPossibleWeight
	}

	adjusted := coverageRatio * 100.0

	expectedRatio := expected.Percent / 100.0
	if expectedRatio == 0 {
		expectedRatio = 0.10
	}
	if coverageRatio > expectedRatio {
		excessRatio := min((coverageRatio-expectedRatio)/expectedRatio, 0.2)
		bonus := excessRatio * 20.0
		adjusted = min(adjusted+bonus, 100.0)
	}

	return adjusted
}

// applyScoringConfig: a score already at or
// above the bonus threshold (as a 0-1 ratio) is scaled up by the bonus
// multiplier; one at or below the penalty threshold is scaled down.
// Scores in between pass through unchanged. Result is capped at 100.
func applyScoringConfig(baseScore float64, knobs gatetypes.ScoringKnobs) float64 {
	scoreRatio := baseScore / 100.0

	var final float64
	switch {
	case scoreRatio >= knobs.BonusThreshold:
		final = baseScore * knobs.BonusMultiplier
	case scoreRatio <= knobs.PenaltyThreshold:
		final = baseScore * knobs.PenaltyMultiplier
	default:
		final = baseScore
	}
	return min(final, 100.0)
}

// classify maps a score to a status. Security gates have only two
// outcomes -- PASS at or above SecurityPassThreshold, FAIL otherwise --
// there is no warning band for a secrets-logging violation. Non-security
// gates get the usual three-way PASS/WARNING/FAIL split.
func classify(gate gatetypes.GateDefinition, score float64) gatetypes.GateStatus {
	if gate.IsSecurity {
		if score >= gate.Scoring.SecurityPassThreshold {
			return gatetypes.GatePass
		}
		return gatetypes.GateFail
	}
	switch {
	case score >= gate.Scoring.PassThreshold:
		return gatetypes.GatePass
	case score >= gate.Scoring.WarningThreshold:
		return gatetypes.GateWarning
	default:
		return gatetypes.GateFail
	}
}

// Overall: each applicable
// gate's score is weighted by its gate weight, then averaged. Gates with
// zero weight (and NOT_APPLICABLE gates, which callers should exclude
// before calling Overall) don't participate.
func Overall(results []gatetypes.GateResult) float64 {
	totalWeighted := 0.0
	totalWeight := 0.0
	for _, r := range results {
		if r.Scoring.Weight <= 0 {
			continue
		}
		totalWeighted += r.Score * r.Scoring.Weight
		totalWeight += r.Scoring.Weight
	}
	if totalWeight == 0 {
		return 0.0
	}
	return totalWeighted / totalWeight
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
