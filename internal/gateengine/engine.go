package gateengine

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	"github.com/standardbeagle/gatekeeper/internal/applicability"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"github.com/standardbeagle/gatekeeper/internal/patternlib"
	"github.com/standardbeagle/gatekeeper/internal/recommendation"
	"github.com/standardbeagle/gatekeeper/internal/scanner"
	"github.com/standardbeagle/gatekeeper/internal/scorer"
)

// Engine resolves applicability, runs the scanner once across every
// applicable gate's patterns, and scores each gate from its share of the
// resulting matches. The pass is file-centric: each file is opened and
// resident at most once across all gates.
type Engine struct {
	library               *patternlib.Library
	scan                  *scanner.Scanner
	collectors            []Collector
	maxMatchesPerGateFile int
}

// New builds an Engine. collectors beyond the built-in Static collector
// (e.g. a real external-integration client) may be supplied; Static is
// always added first and is never supplied by the caller.
func New(library *patternlib.Library, scan *scanner.Scanner, maxMatchesPerGateFile int, extraCollectors ...Collector) *Engine {
	return &Engine{
		library:               library,
		scan:                  scan,
		collectors:            extraCollectors,
		maxMatchesPerGateFile: maxMatchesPerGateFile,
	}
}

// Evaluate runs every catalog gate against the repository described by
// repo and characteristics, returning applicable and not-applicable
// results in catalog declaration order.
func (e *Engine) Evaluate(ctx context.Context, repo RepoContext, characteristics applicability.Characteristics) ([]gatetypes.GateResult, []gatetypes.GateResult, error) {
	allGates := e.library.Gates()
	applicableGates, notApplicableGates, reasons := applicability.Partition(allGates, characteristics)

	technologies := primaryTechnologies(characteristics)

	matchesByGate, countsByGate, err := e.scan.ScanRepo(ctx, repo.RootDir, repo.Files, applicableGates, technologies, e.maxMatchesPerGateFile, repo.Progress)
	if err != nil {
		return nil, nil, fmt.Errorf("scan repo: %w", err)
	}

	static := NewStaticCollector(matchesByGate)
	collectors := append([]Collector{static}, e.collectors...)

	results := make([]gatetypes.GateResult, 0, len(applicableGates))
	for _, gate := range applicableGates {
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		result := e.evaluateGate(ctx, gate, repo, technologies, collectors, countsByGate[gate.Name])
		results = append(results, result)
	}

	notApplicable := make([]gatetypes.GateResult, 0, len(notApplicableGates))
	for _, gate := range notApplicableGates {
		notApplicable = append(notApplicable, gatetypes.GateResult{
			GateName: gate.Name,
			Status:   gatetypes.GateNotApplicable,
			Reason:   reasons[gate.Name],
		})
	}

	return results, notApplicable, nil
}

func (e *Engine) evaluateGate(ctx context.Context, gate gatetypes.GateDefinition, repo RepoContext, technologies []string, collectors []Collector, counts gatetypes.GateCounts) gatetypes.GateResult {
	var matches []gatetypes.Match
	var sources []gatetypes.CollectorReport
	mandatoryFailed := false

	for _, c := range collectors {
		report := gatetypes.CollectorReport{Name: c.Name(), Enabled: c.Enabled(), Confidence: "high"}
		if !c.Enabled() {
			sources = append(sources, report)
			if isMandatory(gate, c.Name()) {
				mandatoryFailed = true
			}
			continue
		}

		contributed, err := c.Collect(ctx, gate, repo)
		if err != nil {
			report.Succeeded = false
			report.Cause = err.Error()
			report.Confidence = "low"
			sources = append(sources, report)
			if isMandatory(gate, c.Name()) {
				mandatoryFailed = true
			}
			continue
		}

		report.Succeeded = true
		sources = append(sources, report)
		matches = append(matches, contributed...)
	}

	sortMatches(matches)

	patterns := e.patternsForGate(gate, technologies)
	score, status, details := scorer.Score(gate, matches, patterns)
	details.Weight = gate.Weight

	// A failed or absent mandatory collector blocks PASS regardless of
	// the pattern-based score.
	if mandatoryFailed && status == gatetypes.GatePass {
		status = gatetypes.GateFail
	}

	return gatetypes.GateResult{
		GateName:       gate.Name,
		Status:         status,
		Score:          score,
		Matches:        matches,
		Counts:         counts,
		Scoring:        details,
		Sources:        sources,
		Recommendation: recommendationFor(gate, status),
	}
}

func isMandatory(gate gatetypes.GateDefinition, collectorName string) bool {
	for _, name := range gate.MandatoryCollectors {
		if name == collectorName {
			return true
		}
	}
	return false
}

// patternsForGate resolves the gate's patterns for the scorer's weight
// lookups through the same technology-filtered resolution the scanner
// matched with. The scorer's coverage denominator sums these weights, so
// feeding it buckets the scanner never matched against (a java bucket in
// a Python-only repo) would inflate the denominator and tank the ratio.
// Patterns that fail to compile are dropped here just as the scanner drops
// them, so an invalid catalog entry does not count toward the denominator.
func (e *Engine) patternsForGate(gate gatetypes.GateDefinition, technologies []string) []gatetypes.PatternDef {
	defs := e.library.PatternsFor(gate.Name, technologies)
	usable := make([]gatetypes.PatternDef, 0, len(defs))
	for _, def := range defs {
		if _, err := regexp.Compile(def.Pattern); err != nil {
			continue
		}
		usable = append(usable, def)
	}
	return usable
}

func sortMatches(matches []gatetypes.Match) {
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].FilePath != matches[j].FilePath {
			return matches[i].FilePath < matches[j].FilePath
		}
		return matches[i].Line < matches[j].Line
	})
}

// primaryTechnologies returns every detected language
// (Characteristics.Languages) as the technology list handed to
// patternlib.Library.PatternsFor, which appends the gate's
// "all_languages" bucket itself. PrimaryTechnology and the
// primary/secondary share thresholds are not applied here.
func primaryTechnologies(c applicability.Characteristics) []string {
	return c.Languages
}

// recommendationFor runs the gate's catalog description (or, once an LLM
// recommendation collector is wired, its output) through
// internal/recommendation's clean-then-validate-then-fallback pipeline.
// A PASS gate gets no recommendation text.
func recommendationFor(gate gatetypes.GateDefinition, status gatetypes.GateStatus) string {
	if status == gatetypes.GatePass {
		return ""
	}
	return recommendation.Format(gate.Description, gate.DisplayName, string(status), recommendation.DefaultMaxLength)
}
