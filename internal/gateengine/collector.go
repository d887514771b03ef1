// Package gateengine orchestrates applicability analysis, scanning, and
// scoring into a GateResult per catalog gate.
package gateengine

import (
	"context"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// Collector is one evidence source a gate can draw on. Static is the only
// fully implemented collector in this module; external-integration and
// LLM-backed collectors live outside this repository, so only their
// contract is defined here, giving the engine's mandatory-collector
// rule something concrete to depend on and test against.
type Collector interface {
	// Name identifies the collector in a GateResult's Sources list.
	Name() string

	// Enabled reports whether this collector is configured to run at
	// all. A disabled collector is recorded in CollectorReport but never
	// invoked.
	Enabled() bool

	// Collect contributes evidence for one gate's evaluation. Matches it
	// returns are merged with the static scanner's matches before
	// scoring; a non-nil error means the collector failed to run.
	Collect(ctx context.Context, gate gatetypes.GateDefinition, repo RepoContext) ([]gatetypes.Match, error)
}

// RepoContext is the subset of pipeline state a collector needs: the
// working tree root and the file inventory already produced by
// internal/inventory, so collectors never re-walk the filesystem
// themselves. Progress, when non-nil, receives per-file completion
// ticks from the scan so the pipeline can report validate-stage
// sub-progress; it runs on worker goroutines.
type RepoContext struct {
	RootDir  string
	Files    []gatetypes.FileEntry
	Progress func(done, total int)
}

// StaticCollector wraps the already-computed scanner matches for a gate.
// It is always enabled and always succeeds -- the scan itself already
// ran by the time the engine asks for this collector's contribution.
type StaticCollector struct {
	matchesByGate map[string][]gatetypes.Match
}

// NewStaticCollector builds a StaticCollector from one scanner pass's
// output (internal/scanner.ScanRepo's return value).
func NewStaticCollector(matchesByGate map[string][]gatetypes.Match) *StaticCollector {
	return &StaticCollector{matchesByGate: matchesByGate}
}

func (c *StaticCollector) Name() string { return "static" }

func (c *StaticCollector) Enabled() bool { return true }

func (c *StaticCollector) Collect(_ context.Context, gate gatetypes.GateDefinition, _ RepoContext) ([]gatetypes.Match, error) {
	return c.matchesByGate[gate.Name], nil
}

// NullExternalIntegration is the default stand-in for the
// external-integration collector slot: it always reports itself
// disabled, never contributes matches, and never fails. A gate that
// lists an external integration in MandatoryCollectors will therefore
// never have that requirement satisfied unless a real integration
// collector is wired in its place.
type NullExternalIntegration struct{}

func (NullExternalIntegration) Name() string { return "external-integration" }

func (NullExternalIntegration) Enabled() bool { return false }

func (NullExternalIntegration) Collect(context.Context, gatetypes.GateDefinition, RepoContext) ([]gatetypes.Match, error) {
	return nil, nil
}
