// Package patternlib loads and serves the external pattern catalog: a
// definition document of roughly fifteen hard gates with per-language
// patterns, scoring knobs, and expected-coverage targets. It is the only
// package that parses the catalog file; everything downstream consumes
// gatetypes.GateDefinition.
package patternlib

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/hbollon/go-edlib"

	"github.com/standardbeagle/gatekeeper/internal/apperrors"
	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// GlobalConfig carries the catalog's cross-gate defaults from the
// `global.{scoring, technology_detection, file_processing}` blocks; the
// status thresholds are read from `global.scoring`. The
// `status_determination` and `ui` blocks are not read.
type GlobalConfig struct {
	Scoring              gatetypes.ScoringKnobs
	PrimaryTechThreshold   float64 // default 0.20
	SecondaryTechThreshold float64 // default 0.10
	MaxFileSizeMB          int64
	MaxMatchesPerGateFile  int
}

// DefaultGlobalConfig holds the scoring constants used whenever the
// catalog omits a `global` block or a field within it.
func DefaultGlobalConfig() GlobalConfig {
	return GlobalConfig{
		Scoring: gatetypes.ScoringKnobs{
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
		},
		PrimaryTechThreshold:   0.20,
		SecondaryTechThreshold: 0.10,
		MaxFileSizeMB:          20,
		MaxMatchesPerGateFile:  100,
	}
}

// Library is a loaded, validated pattern catalog.
type Library struct {
	Version  string
	Global   GlobalConfig
	gates    map[string]gatetypes.GateDefinition
	gateOrder []string // catalog declaration order, for deterministic iteration
}

// techAlias maps a catalog language bucket to the detected-technology
// labels it covers. Framework labels resolve to their host language.
var techAlias = map[string][]string{
	"java":       {"java", "spring", "kotlin", "scala"},
	"python":     {"python", "django", "flask", "fastapi"},
	"javascript": {"javascript", "js", "node", "nodejs", "react", "angular", "vue"},
	"typescript": {"typescript", "ts", "angular", "nest", "nestjs"},
	"csharp":     {"csharp", "c#", "dotnet", ".net", "aspnet"},
	"go":         {"go", "golang"},
	"rust":       {"rust"},
	"php":        {"php", "laravel", "symfony"},
	"ruby":       {"ruby", "rails"},
	"swift":      {"swift", "ios"},
	"kotlin":     {"kotlin", "android"},
}

// Gate returns a gate definition by stable name.
func (l *Library) Gate(name string) (gatetypes.GateDefinition, bool) {
	g, ok := l.gates[name]
	return g, ok
}

// Suggest finds the catalog gate whose name is the closest fuzzy match to
// name, for CLI/API error messages like "gate \"sturctured_logs\" not
// found, did you mean \"structured_logs\"?". Returns ("", 0) if the
// catalog has no gates.
func (l *Library) Suggest(name string) (string, float64) {
	name = strings.ToLower(strings.TrimSpace(name))
	var best string
	var bestScore float32
	for _, gateName := range l.gateOrder {
		score, err := edlib.StringsSimilarity(name, strings.ToLower(gateName), edlib.JaroWinkler)
		if err != nil {
			continue
		}
		if score > bestScore {
			bestScore = score
			best = gateName
		}
	}
	return best, float64(bestScore)
}

// Gates returns all gate definitions in catalog declaration order.
func (l *Library) Gates() []gatetypes.GateDefinition {
	out := make([]gatetypes.GateDefinition, 0, len(l.gateOrder))
	for _, name := range l.gateOrder {
		out = append(out, l.gates[name])
	}
	return out
}

// GlobalConfigValue returns the catalog's global scoring/detection
// configuration block.
func (l *Library) GlobalConfigValue() GlobalConfig {
	return l.Global
}

// PatternsFor resolves the patterns applicable to a gate for a set of
// detected technologies. Deterministic: buckets are concatenated in a
// fixed order (matched technology buckets in sorted bucket-name
// order, then all_languages), never map-iteration order, so identical
// inputs always yield an identical ordered slice.
func (l *Library) PatternsFor(gateName string, technologies []string) []gatetypes.PatternDef {
	gate, ok := l.gates[gateName]
	if !ok {
		return nil
	}

	matched := matchedTechBuckets(technologies)

	var out []gatetypes.PatternDef
	for _, bucket := range techBucketOrder() {
		if !matched[bucket] {
			continue
		}
		out = append(out, gate.PatternsByLanguage[bucket]...)
	}
	out = append(out, gate.PatternsByLanguage["all_languages"]...)
	return out
}

// techBucketOrder returns techAlias's bucket names sorted alphabetically,
// so PatternsFor's concatenation order never depends on Go map iteration
// order.
func techBucketOrder() []string {
	names := make([]string, 0, len(techAlias))
	for name := range techAlias {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func matchedTechBuckets(technologies []string) map[string]bool {
	matched := make(map[string]bool)
	for _, tech := range technologies {
		tech = strings.ToLower(strings.TrimSpace(tech))
		for bucket, variations := range techAlias {
			for _, v := range variations {
				if tech == v || strings.Contains(tech, v) {
					matched[bucket] = true
				}
			}
		}
	}
	return matched
}

// PrimaryTechnologies derives the repo's primary technology list from
// per-language file counts: any language whose file share is >=
// PrimaryTechThreshold, else the single most populous language with
// share >= SecondaryTechThreshold.
func (l *Library) PrimaryTechnologies(languageFiles map[string]int) []string {
	total := 0
	for _, n := range languageFiles {
		total += n
	}
	if total == 0 {
		return nil
	}

	names := make([]string, 0, len(languageFiles))
	for lang := range languageFiles {
		names = append(names, lang)
	}
	sort.Strings(names)

	var primary []string
	for _, lang := range names {
		share := float64(languageFiles[lang]) / float64(total)
		if share >= l.Global.PrimaryTechThreshold {
			primary = append(primary, lang)
		}
	}
	if len(primary) > 0 {
		return primary
	}

	var dominant string
	var maxShare float64
	for _, lang := range names {
		share := float64(languageFiles[lang]) / float64(total)
		if share > maxShare && share >= l.Global.SecondaryTechThreshold {
			maxShare = share
			dominant = lang
		}
	}
	if dominant != "" {
		return []string{dominant}
	}
	return nil
}

// Load reads a catalog document from path, sniffing format by extension
// (.kdl uses kdl-go, .yaml/.yml/.json use yaml.v3 which parses JSON as a
// YAML subset), schema-validates it, and builds a Library. Unknown
// top-level fields are not fatal; they are dropped without a warning.
func Load(path string) (*Library, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.New(apperrors.KindPatternLibraryLoad, "read_catalog", err)
	}

	var doc catalogDocument
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".kdl":
		doc, err = parseCatalogKDL(content)
	default:
		doc, err = parseCatalogYAML(content)
	}
	if err != nil {
		return nil, apperrors.New(apperrors.KindPatternLibraryLoad, "parse_catalog", err)
	}

	if err := validateCatalog(&doc); err != nil {
		return nil, apperrors.New(apperrors.KindPatternLibraryLoad, "validate_catalog", err)
	}

	return buildLibrary(&doc), nil
}

func buildLibrary(doc *catalogDocument) *Library {
	lib := &Library{
		Version: doc.Version,
		Global:  doc.toGlobalConfig(),
		gates:   make(map[string]gatetypes.GateDefinition, len(doc.GateOrder)),
	}
	for _, name := range doc.GateOrder {
		raw := doc.Gates[name]
		lib.gates[name] = raw.toGateDefinition(name, lib.Global.Scoring)
		lib.gateOrder = append(lib.gateOrder, name)
	}
	return lib
}

// stats is a small diagnostic surface reporting catalog load counts:
// the number of gates and the number of patterns across all buckets.
type stats struct {
	TotalGates    int
	TotalPatterns int
}

func (l *Library) Stats() stats {
	s := stats{TotalGates: len(l.gates)}
	for _, g := range l.gates {
		for _, patterns := range g.PatternsByLanguage {
			s.TotalPatterns += len(patterns)
		}
	}
	return s
}
