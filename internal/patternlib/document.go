package patternlib

import (
	"fmt"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
	"gopkg.in/yaml.v3"
)

// catalogDocument is the parsed form of the external catalog file:
// version, metadata, the global config block, and the
// gate map in catalog-declaration order.
type catalogDocument struct {
	Version   string
	Metadata  struct {
		TotalGates    int
		TotalPatterns int
	}
	Global    globalBlock
	Gates     map[string]gateBlock
	GateOrder []string
}

type scoringBlock struct {
	BaseScore         float64 `yaml:"base_score"`
	ViolationPenalty  float64 `yaml:"violation_penalty"`
	MaxPenalty        float64 `yaml:"max_penalty"`
	BonusForClean     float64 `yaml:"bonus_for_clean"`
	BonusThreshold    float64 `yaml:"bonus_threshold"`
	BonusMultiplier   float64 `yaml:"bonus_multiplier"`
	PenaltyThreshold  float64 `yaml:"penalty_threshold"`
	PenaltyMultiplier float64 `yaml:"penalty_multiplier"`
}

type globalBlock struct {
	Scoring struct {
		scoringBlock        `yaml:",inline"`
		PassThreshold         float64 `yaml:"pass_threshold"`
		WarningThreshold      float64 `yaml:"warning_threshold"`
		SecurityPassThreshold float64 `yaml:"security_pass_threshold"`
	} `yaml:"scoring"`
	TechnologyDetection struct {
		PrimaryThreshold   float64 `yaml:"primary_threshold"`
		SecondaryThreshold float64 `yaml:"secondary_threshold"`
	} `yaml:"technology_detection"`
	FileProcessing struct {
		MaxFileSizeMB         int64 `yaml:"max_file_size_mb"`
		MaxMatchesPerGateFile int   `yaml:"max_matches_per_gate_file"`
	} `yaml:"file_processing"`
}

func (d *catalogDocument) toGlobalConfig() GlobalConfig {
	defaults := DefaultGlobalConfig()
	g := d.Global

	knobs := defaults.Scoring
	if g.Scoring.BaseScore != 0 {
		knobs.BaseScore = g.Scoring.BaseScore
	}
	if g.Scoring.ViolationPenalty != 0 {
		knobs.ViolationPenalty = g.Scoring.ViolationPenalty
	}
	if g.Scoring.MaxPenalty != 0 {
		knobs.MaxPenalty = g.Scoring.MaxPenalty
	}
	if g.Scoring.BonusForClean != 0 {
		knobs.BonusForClean = g.Scoring.BonusForClean
	}
	if g.Scoring.BonusThreshold != 0 {
		knobs.BonusThreshold = g.Scoring.BonusThreshold
	}
	if g.Scoring.BonusMultiplier != 0 {
		knobs.BonusMultiplier = g.Scoring.BonusMultiplier
	}
	if g.Scoring.PenaltyThreshold != 0 {
		knobs.PenaltyThreshold = g.Scoring.PenaltyThreshold
	}
	if g.Scoring.PenaltyMultiplier != 0 {
		knobs.PenaltyMultiplier = g.Scoring.PenaltyMultiplier
	}
	if g.Scoring.PassThreshold != 0 {
		knobs.PassThreshold = g.Scoring.PassThreshold
	}
	if g.Scoring.WarningThreshold != 0 {
		knobs.WarningThreshold = g.Scoring.WarningThreshold
	}
	if g.Scoring.SecurityPassThreshold != 0 {
		knobs.SecurityPassThreshold = g.Scoring.SecurityPassThreshold
	}

	cfg := GlobalConfig{
		Scoring:                knobs,
		PrimaryTechThreshold:   defaults.PrimaryTechThreshold,
		SecondaryTechThreshold: defaults.SecondaryTechThreshold,
		MaxFileSizeMB:          defaults.MaxFileSizeMB,
		MaxMatchesPerGateFile:  defaults.MaxMatchesPerGateFile,
	}
	if g.TechnologyDetection.PrimaryThreshold != 0 {
		cfg.PrimaryTechThreshold = g.TechnologyDetection.PrimaryThreshold
	}
	if g.TechnologyDetection.SecondaryThreshold != 0 {
		cfg.SecondaryTechThreshold = g.TechnologyDetection.SecondaryThreshold
	}
	if g.FileProcessing.MaxFileSizeMB != 0 {
		cfg.MaxFileSizeMB = g.FileProcessing.MaxFileSizeMB
	}
	if g.FileProcessing.MaxMatchesPerGateFile != 0 {
		cfg.MaxMatchesPerGateFile = g.FileProcessing.MaxMatchesPerGateFile
	}
	return cfg
}

type patternBlock struct {
	Pattern   string  `yaml:"pattern"`
	Weight    float64 `yaml:"weight"`
	Rationale string  `yaml:"rationale"`
}

type expectedCoverageBlock struct {
	Percent    float64 `yaml:"percent"`
	Reasoning  string  `yaml:"reasoning"`
	Confidence string  `yaml:"confidence"`
}

type applicabilityBlock struct {
	Required []string `yaml:"required_technologies"`
	Excluded []string `yaml:"excluded_technologies"`
}

type gateBlock struct {
	DisplayName string                    `yaml:"display_name"`
	Description string                    `yaml:"description"`
	Category    string                    `yaml:"category"`
	Priority    string                    `yaml:"priority"`
	Weight      float64                   `yaml:"weight"`
	Patterns    map[string][]patternBlock `yaml:"patterns"`
	Scoring     scoringBlock              `yaml:"scoring"`
	ExpectedCoverage    expectedCoverageBlock `yaml:"expected_coverage"`
	Applicability       applicabilityBlock    `yaml:"applicability"`
	MandatoryCollectors []string              `yaml:"mandatory_evidence_collectors"`
}

// isSecurityGate: a gate is security-scored when its category is
// "Security".
func (g gateBlock) isSecurityGate() bool {
	return g.Category == "Security"
}

func (g gateBlock) toGateDefinition(name string, globalKnobs gatetypes.ScoringKnobs) gatetypes.GateDefinition {
	knobs := globalKnobs
	if g.Scoring.BaseScore != 0 {
		knobs.BaseScore = g.Scoring.BaseScore
	}
	if g.Scoring.ViolationPenalty != 0 {
		knobs.ViolationPenalty = g.Scoring.ViolationPenalty
	}
	if g.Scoring.MaxPenalty != 0 {
		knobs.MaxPenalty = g.Scoring.MaxPenalty
	}
	if g.Scoring.BonusForClean != 0 {
		knobs.BonusForClean = g.Scoring.BonusForClean
	}
	if g.Scoring.BonusThreshold != 0 {
		knobs.BonusThreshold = g.Scoring.BonusThreshold
	}
	if g.Scoring.BonusMultiplier != 0 {
		knobs.BonusMultiplier = g.Scoring.BonusMultiplier
	}
	if g.Scoring.PenaltyThreshold != 0 {
		knobs.PenaltyThreshold = g.Scoring.PenaltyThreshold
	}
	if g.Scoring.PenaltyMultiplier != 0 {
		knobs.PenaltyMultiplier = g.Scoring.PenaltyMultiplier
	}

	patternsByLang := make(map[string][]gatetypes.PatternDef, len(g.Patterns))
	for lang, patterns := range g.Patterns {
		defs := make([]gatetypes.PatternDef, 0, len(patterns))
		for _, p := range patterns {
			defs = append(defs, gatetypes.PatternDef{
				Pattern:   p.Pattern,
				Weight:    p.Weight,
				Rationale: p.Rationale,
			})
		}
		patternsByLang[lang] = defs
	}

	return gatetypes.GateDefinition{
		Name:               name,
		DisplayName:        g.DisplayName,
		Description:        g.Description,
		Category:           g.Category,
		Priority:           gatetypes.Priority(g.Priority),
		Weight:             g.Weight,
		IsSecurity:         g.isSecurityGate(),
		PatternsByLanguage: patternsByLang,
		Scoring:            knobs,
		ExpectedCoverage: gatetypes.ExpectedCoverage{
			Percent:    g.ExpectedCoverage.Percent,
			Reasoning:  g.ExpectedCoverage.Reasoning,
			Confidence: g.ExpectedCoverage.Confidence,
		},
		Applicability: gatetypes.ApplicabilityRule{
			Required: toCategories(g.Applicability.Required),
			Excluded: toCategories(g.Applicability.Excluded),
		},
		MandatoryCollectors: g.MandatoryCollectors,
	}
}

func toCategories(names []string) []gatetypes.Category {
	if len(names) == 0 {
		return nil
	}
	out := make([]gatetypes.Category, len(names))
	for i, n := range names {
		out[i] = gatetypes.Category(n)
	}
	return out
}

// parseCatalogYAML decodes a YAML (or JSON, a YAML subset) catalog
// document, preserving gate declaration order via yaml.Node traversal —
// a plain map[string]gateBlock decode would lose it.
func parseCatalogYAML(content []byte) (catalogDocument, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(content, &root); err != nil {
		return catalogDocument{}, fmt.Errorf("decode YAML: %w", err)
	}
	if len(root.Content) == 0 {
		return catalogDocument{}, fmt.Errorf("empty catalog document")
	}
	doc := root.Content[0]

	var flat struct {
		Version  string      `yaml:"version"`
		Metadata yaml.Node   `yaml:"metadata"`
		Global   globalBlock `yaml:"global"`
	}
	if err := doc.Decode(&flat); err != nil {
		return catalogDocument{}, fmt.Errorf("decode catalog header: %w", err)
	}

	out := catalogDocument{
		Version: flat.Version,
		Global:  flat.Global,
		Gates:   make(map[string]gateBlock),
	}
	if flat.Metadata.Kind == yaml.MappingNode {
		_ = flat.Metadata.Decode(&out.Metadata)
	}

	gatesNode := findMappingValue(doc, "gates")
	if gatesNode != nil {
		for i := 0; i+1 < len(gatesNode.Content); i += 2 {
			name := gatesNode.Content[i].Value
			var gb gateBlock
			if err := gatesNode.Content[i+1].Decode(&gb); err != nil {
				return catalogDocument{}, fmt.Errorf("decode gate %q: %w", name, err)
			}
			out.Gates[name] = gb
			out.GateOrder = append(out.GateOrder, name)
		}
	}

	return out, nil
}

// findMappingValue returns the value node for key in a YAML mapping node.
func findMappingValue(mapping *yaml.Node, key string) *yaml.Node {
	if mapping.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}
