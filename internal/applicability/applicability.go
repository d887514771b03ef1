// Package applicability decides which catalog gates apply to a given
// repository based on its detected technology mix -- a UI-error gate has
// nothing to check in a backend-only service, just as an HTTP-status gate
// has nothing to check in a codebase with no API surface.
package applicability

import (
	"sort"
	"strings"

	"github.com/standardbeagle/gatekeeper/internal/gatetypes"
)

// Characteristics captures the codebase-type signals a gate's
// applicability rule is evaluated against.
type Characteristics struct {
	Languages         []string
	LanguageCounts    map[string]int
	IsFrontend        bool
	IsBackend         bool
	IsAPI             bool
	IsMobile          bool
	IsBackendOnly     bool
	IsFrontendOnly    bool
	IsFullstack       bool
	PrimaryTechnology string
}

var frontendTechnologies = map[string]bool{
	"javascript": true, "typescript": true, "html": true, "css": true,
	"scss": true, "sass": true, "vue": true, "svelte": true,
}

var backendTechnologies = map[string]bool{
	"java": true, "python": true, "csharp": true, "cpp": true, "c": true,
	"go": true, "rust": true, "kotlin": true, "scala": true, "php": true, "ruby": true,
}

var mobileTechnologies = map[string]bool{
	"swift": true, "kotlin": true,
}

// frontendFrameworkLangs guards the frontend classification:
// documentation HTML alone must not flip a backend repo into
// "frontend".
var frontendFrameworkLangs = map[string]bool{
	"javascript": true, "typescript": true, "vue": true, "svelte": true,
}

const frontendShareThreshold = 0.10

// apiIndicators are substrings looked for in build/config file names.
var apiIndicators = []string{"swagger", "openapi", "api", "rest", "graphql", "controller", "endpoint", "route"}

// Analyze derives Characteristics from a repository's language/line-count
// rollup and the build/config file names inventory collected.
func Analyze(metadata gatetypes.RepoMetadata, configFileNames []string) Characteristics {
	counts := make(map[string]int, len(metadata.Languages))
	var languages []string
	for lang, stats := range metadata.Languages {
		if stats.Files > 0 {
			languages = append(languages, lang)
			counts[lang] = stats.Files
		}
	}
	sort.Strings(languages)

	langSet := make(map[string]bool, len(languages))
	for _, l := range languages {
		langSet[strings.ToLower(l)] = true
	}

	isFrontend := hasFrontendTechnologies(langSet, counts)
	isBackend := hasAny(langSet, backendTechnologies)
	isMobile := hasAny(langSet, mobileTechnologies)
	isAPI := hasAPICharacteristics(langSet, configFileNames)

	return Characteristics{
		Languages:         languages,
		LanguageCounts:    counts,
		IsFrontend:        isFrontend,
		IsBackend:         isBackend,
		IsAPI:             isAPI,
		IsMobile:          isMobile,
		IsBackendOnly:     isBackend && !isFrontend,
		IsFrontendOnly:    isFrontend && !isBackend,
		IsFullstack:       isFrontend && isBackend,
		PrimaryTechnology: primaryTechnology(counts),
	}
}

func hasFrontendTechnologies(langSet map[string]bool, counts map[string]int) bool {
	var frontendLangs []string
	for lang := range langSet {
		if frontendTechnologies[lang] {
			frontendLangs = append(frontendLangs, lang)
		}
	}
	if len(frontendLangs) == 0 {
		return false
	}
	if len(counts) == 0 {
		return true
	}

	total := 0
	for _, c := range counts {
		total += c
	}
	frontendFiles := 0
	hasFramework := false
	for _, lang := range frontendLangs {
		frontendFiles += counts[lang]
		if frontendFrameworkLangs[lang] {
			hasFramework = true
		}
	}
	if total == 0 {
		return false
	}
	return frontendFiles > 0 && float64(frontendFiles)/float64(total) > frontendShareThreshold && hasFramework
}

func hasAny(langSet map[string]bool, set map[string]bool) bool {
	for lang := range langSet {
		if set[lang] {
			return true
		}
	}
	return false
}

func hasAPICharacteristics(langSet map[string]bool, configFileNames []string) bool {
	for _, name := range configFileNames {
		lower := strings.ToLower(name)
		for _, indicator := range apiIndicators {
			if strings.Contains(lower, indicator) {
				return true
			}
		}
	}
	return hasAny(langSet, backendTechnologies)
}

func primaryTechnology(counts map[string]int) string {
	if len(counts) == 0 {
		return "unknown"
	}
	var best string
	bestCount := -1
	for _, lang := range sortedKeys(counts) {
		if counts[lang] > bestCount {
			best = lang
			bestCount = counts[lang]
		}
	}
	switch {
	case frontendTechnologies[best]:
		return "frontend"
	case backendTechnologies[best]:
		return "backend"
	case mobileTechnologies[best]:
		return "mobile"
	default:
		return "other"
	}
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Check evaluates one gate's ApplicabilityRule against Characteristics.
// A gate with no rule is applicable to every codebase; a rule's Required
// categories need at least one true flag, its Excluded categories must
// all be false.
func Check(gate gatetypes.GateDefinition, c Characteristics) (applicable bool, reason string) {
	rule := gate.Applicability
	if len(rule.Required) == 0 && len(rule.Excluded) == 0 {
		return true, "applicable to all codebases"
	}

	hasRequired := true
	if len(rule.Required) > 0 {
		hasRequired = false
		for _, cat := range rule.Required {
			if categoryFlag(c, cat) {
				hasRequired = true
				break
			}
		}
	}

	isExcluded := false
	for _, cat := range rule.Excluded {
		if categoryFlag(c, cat) {
			isExcluded = true
			break
		}
	}

	if hasRequired && !isExcluded {
		return true, gate.Description
	}
	return false, notApplicableReason(gate, rule)
}

func categoryFlag(c Characteristics, cat gatetypes.Category) bool {
	switch cat {
	case gatetypes.CategoryFrontend:
		return c.IsFrontend
	case gatetypes.CategoryBackend:
		return c.IsBackend
	case gatetypes.CategoryAPI:
		return c.IsAPI
	case gatetypes.CategoryMobile:
		return c.IsMobile
	default:
		return false
	}
}

func notApplicableReason(gate gatetypes.GateDefinition, rule gatetypes.ApplicabilityRule) string {
	if len(rule.Required) > 0 {
		names := make([]string, len(rule.Required))
		for i, cat := range rule.Required {
			names[i] = string(cat)
		}
		return "requires one of: " + strings.Join(names, ", ")
	}
	return "excluded by detected technology profile"
}

// Partition splits gates into applicable and not-applicable sets, which
// the report stage renders as two separate sections.
func Partition(gates []gatetypes.GateDefinition, c Characteristics) (applicable, notApplicable []gatetypes.GateDefinition, reasons map[string]string) {
	reasons = make(map[string]string, len(gates))
	for _, gate := range gates {
		ok, reason := Check(gate, c)
		reasons[gate.Name] = reason
		if ok {
			applicable = append(applicable, gate)
		} else {
			notApplicable = append(notApplicable, gate)
		}
	}
	return applicable, notApplicable, reasons
}
