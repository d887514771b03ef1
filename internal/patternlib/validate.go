package patternlib

import (
	"fmt"
	"log"

	"github.com/google/jsonschema-go/jsonschema"
)

// catalogSchema is a structural sanity schema: it only pins down the
// top-level shape (version is a string, gates is an object), not full
// semantic rules — deep per-gate requirements are checked separately by
// requireGateFields.
var catalogSchema = &jsonschema.Schema{
	Type: "object",
	Properties: map[string]*jsonschema.Schema{
		"version": {Type: "string"},
		"gates":   {Type: "object"},
	},
	Required: []string{"version", "gates"},
}

func validateCatalog(doc *catalogDocument) error {
	resolved, err := catalogSchema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("resolve catalog schema: %w", err)
	}
	instance := map[string]any{
		"version": doc.Version,
		"gates":   doc.Gates,
	}
	if err := resolved.Validate(instance); err != nil {
		return fmt.Errorf("catalog failed schema validation: %w", err)
	}

	if len(doc.Gates) == 0 {
		return fmt.Errorf("catalog declares no gates")
	}

	kept := doc.GateOrder[:0:0]
	for _, name := range doc.GateOrder {
		gate := doc.Gates[name]
		if err := requireGateFields(name, gate); err != nil {
			// An invalid gate is a warning, not a fatal load error —
			// drop it rather than fail the whole catalog.
			log.Printf("patternlib: gate %q skipped: %v", name, err)
			delete(doc.Gates, name)
			continue
		}
		kept = append(kept, name)
	}
	doc.GateOrder = kept

	if len(doc.Gates) == 0 {
		return fmt.Errorf("no gate in the catalog passed validation")
	}
	return nil
}

func requireGateFields(name string, gate gateBlock) error {
	if gate.DisplayName == "" {
		return fmt.Errorf("missing display_name")
	}
	if gate.Category == "" {
		return fmt.Errorf("missing category")
	}
	if gate.Weight <= 0 {
		return fmt.Errorf("weight must be positive, got %v", gate.Weight)
	}
	if len(gate.Patterns) == 0 && !gate.isSecurityGate() {
		return fmt.Errorf("coverage gate declares no patterns")
	}
	return nil
}

