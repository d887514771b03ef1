package patternlib

import (
	"strconv"
	"strings"

	kdl "github.com/sblinch/kdl-go"
	"github.com/sblinch/kdl-go/document"
)

// parseCatalogKDL decodes a KDL-format catalog document, following the
// same node-walking style as internal/config's server-config loader.
// Top-level shape:
//
//	version "1"
//	gates {
//	    STRUCTURED_LOGS {
//	        display_name "Logs Searchable/Available"
//	        category "Logging"
//	        weight "8"
//	        patterns {
//	            all_languages {
//	                pattern "logger.info" {
//	                    weight "1.0"
//	                    rationale "..."
//	                }
//	            }
//	        }
//	    }
//	}
func parseCatalogKDL(content []byte) (catalogDocument, error) {
	doc, err := kdl.Parse(strings.NewReader(string(content)))
	if err != nil {
		return catalogDocument{}, err
	}

	out := catalogDocument{Gates: make(map[string]gateBlock)}
	for _, n := range doc.Nodes {
		switch nodeName(n) {
		case "version":
			if s, ok := firstStringArg(n); ok {
				out.Version = s
			}
		case "global":
			out.Global = parseGlobalBlockKDL(n)
		case "gates":
			for _, gn := range n.Children {
				name := nodeName(gn)
				out.Gates[name] = parseGateBlockKDL(gn)
				out.GateOrder = append(out.GateOrder, name)
			}
		}
	}
	return out, nil
}

func nodeName(n *document.Node) string {
	if n == nil {
		return ""
	}
	return n.Name.ValueString()
}

func firstStringArg(n *document.Node) (string, bool) {
	for _, arg := range n.Arguments {
		if arg.Value != nil {
			return arg.ValueString(), true
		}
	}
	return "", false
}

func firstFloatArg(n *document.Node) (float64, bool) {
	s, ok := firstStringArg(n)
	if !ok {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseGlobalBlockKDL(n *document.Node) globalBlock {
	var g globalBlock
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "scoring":
			for _, sn := range cn.Children {
				assignFloatKDL(sn, "base_score", func(v float64) { g.Scoring.BaseScore = v })
				assignFloatKDL(sn, "violation_penalty", func(v float64) { g.Scoring.ViolationPenalty = v })
				assignFloatKDL(sn, "max_penalty", func(v float64) { g.Scoring.MaxPenalty = v })
				assignFloatKDL(sn, "bonus_for_clean", func(v float64) { g.Scoring.BonusForClean = v })
				assignFloatKDL(sn, "bonus_threshold", func(v float64) { g.Scoring.BonusThreshold = v })
				assignFloatKDL(sn, "bonus_multiplier", func(v float64) { g.Scoring.BonusMultiplier = v })
				assignFloatKDL(sn, "penalty_threshold", func(v float64) { g.Scoring.PenaltyThreshold = v })
				assignFloatKDL(sn, "penalty_multiplier", func(v float64) { g.Scoring.PenaltyMultiplier = v })
				assignFloatKDL(sn, "pass_threshold", func(v float64) { g.Scoring.PassThreshold = v })
				assignFloatKDL(sn, "warning_threshold", func(v float64) { g.Scoring.WarningThreshold = v })
				assignFloatKDL(sn, "security_pass_threshold", func(v float64) { g.Scoring.SecurityPassThreshold = v })
			}
		case "technology_detection":
			for _, tn := range cn.Children {
				assignFloatKDL(tn, "primary_threshold", func(v float64) { g.TechnologyDetection.PrimaryThreshold = v })
				assignFloatKDL(tn, "secondary_threshold", func(v float64) { g.TechnologyDetection.SecondaryThreshold = v })
			}
		case "file_processing":
			for _, fn := range cn.Children {
				assignFloatKDL(fn, "max_file_size_mb", func(v float64) { g.FileProcessing.MaxFileSizeMB = int64(v) })
				assignFloatKDL(fn, "max_matches_per_gate_file", func(v float64) { g.FileProcessing.MaxMatchesPerGateFile = int(v) })
			}
		}
	}
	return g
}

func parseGateBlockKDL(n *document.Node) gateBlock {
	var g gateBlock
	g.Patterns = make(map[string][]patternBlock)
	for _, cn := range n.Children {
		switch nodeName(cn) {
		case "display_name":
			if s, ok := firstStringArg(cn); ok {
				g.DisplayName = s
			}
		case "description":
			if s, ok := firstStringArg(cn); ok {
				g.Description = s
			}
		case "category":
			if s, ok := firstStringArg(cn); ok {
				g.Category = s
			}
		case "priority":
			if s, ok := firstStringArg(cn); ok {
				g.Priority = s
			}
		case "weight":
			if v, ok := firstFloatArg(cn); ok {
				g.Weight = v
			}
		case "patterns":
			for _, langNode := range cn.Children {
				lang := nodeName(langNode)
				for _, pn := range langNode.Children {
					if nodeName(pn) != "pattern" {
						continue
					}
					var pb patternBlock
					if s, ok := firstStringArg(pn); ok {
						pb.Pattern = s
					}
					for _, attr := range pn.Children {
						assignFloatKDL(attr, "weight", func(v float64) { pb.Weight = v })
						if nodeName(attr) == "rationale" {
							if s, ok := firstStringArg(attr); ok {
								pb.Rationale = s
							}
						}
					}
					g.Patterns[lang] = append(g.Patterns[lang], pb)
				}
			}
		case "expected_coverage":
			for _, en := range cn.Children {
				switch nodeName(en) {
				case "percent":
					if v, ok := firstFloatArg(en); ok {
						g.ExpectedCoverage.Percent = v
					}
				case "reasoning":
					if s, ok := firstStringArg(en); ok {
						g.ExpectedCoverage.Reasoning = s
					}
				case "confidence":
					if s, ok := firstStringArg(en); ok {
						g.ExpectedCoverage.Confidence = s
					}
				}
			}
		case "applicability":
			for _, an := range cn.Children {
				switch nodeName(an) {
				case "required_technologies":
					for _, arg := range an.Arguments {
						if arg.Value != nil {
							g.Applicability.Required = append(g.Applicability.Required, arg.ValueString())
						}
					}
				case "excluded_technologies":
					for _, arg := range an.Arguments {
						if arg.Value != nil {
							g.Applicability.Excluded = append(g.Applicability.Excluded, arg.ValueString())
						}
					}
				}
			}
		case "mandatory_evidence_collectors":
			for _, arg := range cn.Arguments {
				if arg.Value != nil {
					g.MandatoryCollectors = append(g.MandatoryCollectors, arg.ValueString())
				}
			}
		}
	}
	return g
}

func assignFloatKDL(n *document.Node, name string, set func(float64)) {
	if nodeName(n) != name {
		return
	}
	if v, ok := firstFloatArg(n); ok {
		set(v)
	}
}
