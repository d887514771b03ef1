// Package recommendation normalizes free-form recommendation text (plain,
// catalog-templated, or arriving from an out-of-scope LLM collector) into
// bounded, prose-only output. It is pure: no I/O, no randomness,
// deterministic for a given input. The pipeline is
// clean-then-validate-then-fallback: strip markup noise, reject
// placeholder content, fall back to a status-specific default.
package recommendation

import (
	"regexp"
	"strings"
)

// DefaultMaxLength bounds formatted recommendation text.
const DefaultMaxLength = 200

var (
	blankLinesRe   = regexp.MustCompile(`\n\s*\n\s*\n+`)
	multiSpaceRe   = regexp.MustCompile(` +`)
	bulletRe       = regexp.MustCompile(`(?m)^[ \t]*[-•*][ \t]*`)
	numberedRe     = regexp.MustCompile(`(?m)^[ \t]*(\d+)[ \t]*[.)][ \t]*`)
	trailingWSRe   = regexp.MustCompile(`(?m)[ \t]+$`)
	sentenceGapRe  = regexp.MustCompile(`([.!?])\s*([A-Z])`)
	sectionHeader  = regexp.MustCompile(`(?i)^(recommendation|suggestion|advice|root cause analysis|analysis|root cause|impact|implication|consequence|effect|action|step|task|next step|code|example|implementation|sample|assessment|mitigation|next steps|code examples|best practices|priority actions)[:\s]*`)
	shortWordsRe   = regexp.MustCompile(`^[A-Za-z\s]{1,20}$`)
	markdownEdgeRe = regexp.MustCompile(`^[*#\-+\s]+|[*#\-+\s]+$`)
	starWrapRe     = regexp.MustCompile(`(?i)^\*.*\*\*$|^\*\*.*\*\*$`)
	shortStarRe    = regexp.MustCompile(`^[A-Za-z\s]{1,30}\*\*$`)
)

var actionVerbs = []string{
	"implement", "add", "configure", "enable", "disable", "update", "modify",
	"create", "set", "use", "apply", "install", "deploy", "test", "validate",
	"monitor", "log", "track", "handle", "manage", "secure", "protect",
	"encrypt", "decrypt", "authenticate", "authorize", "sanitize", "escape",
	"filter", "rate", "limit", "throttle", "retry", "timeout", "circuit",
	"breaker", "fallback", "graceful", "degradation",
}

// Format cleans raw (free-form or catalog/LLM-sourced) recommendation text
// into a single bounded, prose sentence, falling back to a gate-status-
// specific default when the text is empty or placeholder-only.
func Format(raw string, gateDisplayName string, status string, maxLength int) string {
	if maxLength <= 0 {
		maxLength = DefaultMaxLength
	}

	cleaned := CleanForDisplay(raw)
	if cleaned == "" || !IsValidContent(cleaned) {
		return DefaultFor(gateDisplayName, status)
	}

	var best string
	for _, line := range strings.Split(cleaned, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !IsValidContent(line) {
			continue
		}
		best = makeNatural(line)
		break
	}
	if best == "" {
		return DefaultFor(gateDisplayName, status)
	}

	return truncate(best, maxLength)
}

// DefaultFor is the per-status fallback sentence, the floor every gate
// result always has even with no catalog-declared or LLM-produced text
// at all.
func DefaultFor(gateDisplayName, status string) string {
	readable := strings.ToLower(strings.ReplaceAll(gateDisplayName, "_", " "))
	switch strings.ToUpper(status) {
	case "PASS":
		return "Continue maintaining good practices for " + readable + " as the current implementation meets the required standards."
	case "WARNING":
		return "Consider expanding the implementation of " + readable + " to improve coverage and ensure comprehensive compliance."
	case "NOT_APPLICABLE":
		return "This validation is not applicable to the current technology stack and can be safely ignored."
	default:
		return "Implement " + readable + " to meet the required security and compliance standards for this application."
	}
}

// CleanForDisplay strips Markdown noise (bullets, numbered lists, excess
// whitespace) and normalizes sentence spacing.
func CleanForDisplay(text string) string {
	if strings.TrimSpace(text) == "" {
		return ""
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = multiSpaceRe.ReplaceAllString(text, " ")
	text = bulletRe.ReplaceAllString(text, "")
	text = numberedRe.ReplaceAllString(text, "Step $1: ")
	text = trailingWSRe.ReplaceAllString(text, "")
	text = blankLinesRe.ReplaceAllString(text, "\n\n")
	text = sentenceGapRe.ReplaceAllString(text, "$1 $2")
	return strings.TrimSpace(text)
}

// IsValidContent rejects near-empty or placeholder-only text (a lone
// section header, a short single word, a Markdown-bolded label with no
// content).
func IsValidContent(content string) bool {
	content = strings.TrimSpace(content)
	if content == "" {
		return false
	}
	if starWrapRe.MatchString(content) || shortStarRe.MatchString(content) {
		return false
	}
	stripped := strings.TrimSpace(markdownEdgeRe.ReplaceAllString(content, ""))
	if stripped == "" {
		return false
	}
	if shortWordsRe.MatchString(stripped) {
		return false
	}
	lower := strings.ToLower(stripped)
	switch lower {
	case "analysis:", "assessment:", "recommendations:", "impact:", "mitigation:", "next steps:":
		return false
	}
	return true
}

// makeNatural converts a technical, header-prefixed, or imperative phrase
// into a natural-language sentence: strip a leading section label, prefix short imperative phrases with
// "To resolve this, ", and capitalize the result.
func makeNatural(text string) string {
	text = sectionHeader.ReplaceAllString(text, "")
	// A bullet that survived because it followed the header on the same
	// line is list noise, not content.
	text = strings.TrimLeft(text, "-•* \t")
	text = strings.TrimSpace(text)
	if text == "" {
		return ""
	}

	lower := strings.ToLower(text)
	for _, verb := range actionVerbs {
		if strings.HasPrefix(lower, verb) {
			if len(text) < 100 && !strings.ContainsAny(text, ".!?;,") {
				text = "To resolve this, " + text
			}
			break
		}
	}

	if len(text) > 0 {
		text = strings.ToUpper(text[:1]) + text[1:]
	}
	return text
}

// truncate bounds result at maxLength, preferring a sentence boundary,
// falling back to an ellipsis.
func truncate(text string, maxLength int) string {
	if len(text) <= maxLength {
		return text
	}
	window := text[:maxLength]
	if last := strings.LastIndex(window, "."); last > maxLength/2 {
		return window[:last+1]
	}
	if maxLength > 3 {
		return window[:maxLength-3] + "..."
	}
	return window
}
