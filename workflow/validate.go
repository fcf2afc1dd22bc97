package workflow

import (
	"fmt"
	"math"
	"strings"
)

// Validate checks structural well-formedness of a definition and returns
// all findings. It never stops at the first problem: every check runs and
// every diagnostic is accumulated. Validity is HasErrors(diags) == false;
// warnings are informational only.
//
// Checks, in order:
//   - WF-001 empty step ID
//   - WF-002 duplicate step ID (one diagnostic per duplicated ID)
//   - WF-003 unknown or missing step kind
//   - WF-004 missing step configuration, plus per-kind CF-* checks
//   - WF-005 missing or non-numeric layout position
//   - WF-010..WF-013 connection checks (ID, duplicates, endpoints, self-loop)
//   - WF-014 disconnected step (warning)
//   - WF-020 cycle (warning; cycles become a hard failure at scheduling time)
func Validate(def *Definition) []Diagnostic {
	if def == nil {
		return []Diagnostic{errDiag("WF-000", "workflow definition is nil", "")}
	}

	diags := validateSteps(def.Steps)

	stepIDs := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if s.ID != "" {
			stepIDs[s.ID] = true
		}
	}
	diags = append(diags, validateConnections(def.Steps, def.Connections, stepIDs)...)

	if cycles := DetectCycles(def.Steps, def.Connections); len(cycles) > 0 {
		for _, cycle := range cycles {
			diags = append(diags, warnDiag("WF-020",
				fmt.Sprintf("Workflow contains a cycle: %s", joinIDs(cycle)), ""))
		}
	}

	return diags
}

func validateSteps(steps []Step) []Diagnostic {
	diags := make([]Diagnostic, 0)

	// WF-001: every step needs a non-empty ID.
	seen := make(map[string]int, len(steps))
	for i, s := range steps {
		if s.ID == "" {
			diags = append(diags, errDiag("WF-001",
				fmt.Sprintf("Step at index %d has an empty ID", i),
				fmt.Sprintf("steps[%d].id", i)))
			continue
		}
		seen[s.ID]++
	}

	// WF-002: duplicate IDs, one diagnostic per duplicated ID, reported
	// after all steps have been counted.
	for _, s := range steps {
		if s.ID != "" && seen[s.ID] > 1 {
			diags = append(diags, errDiag("WF-002",
				fmt.Sprintf("Duplicate step ID %q", s.ID), ""))
			seen[s.ID] = 0 // report once
		}
	}

	for i, s := range steps {
		path := fmt.Sprintf("steps[%d]", i)

		// WF-003: kind must come from the closed enumeration.
		if s.Kind == "" {
			diags = append(diags, errDiag("WF-003",
				fmt.Sprintf("Step %q is missing a kind", s.ID), path+".kind"))
		} else if !KnownKind(s.Kind) {
			diags = append(diags, errDiag("WF-003",
				fmt.Sprintf("Step %q has unknown kind %q", s.ID, s.Kind), path+".kind"))
		}

		// WF-004 + CF-*: configuration presence and per-kind fields.
		if s.Config == nil {
			diags = append(diags, errDiag("WF-004",
				fmt.Sprintf("Step %q has no configuration", s.ID), path+".config"))
		} else if KnownKind(s.Kind) {
			diags = append(diags, validateStepConfig(s, path+".config")...)
		}

		// WF-005: numeric 2D position.
		if s.Position == nil {
			diags = append(diags, errDiag("WF-005",
				fmt.Sprintf("Step %q has no layout position", s.ID), path+".position"))
		} else if !isFinite(s.Position.X) || !isFinite(s.Position.Y) {
			diags = append(diags, errDiag("WF-005",
				fmt.Sprintf("Step %q has a non-numeric layout position", s.ID), path+".position"))
		}
	}

	return diags
}

func validateConnections(steps []Step, conns []Connection, stepIDs map[string]bool) []Diagnostic {
	diags := make([]Diagnostic, 0)

	seen := make(map[string]bool, len(conns))
	incident := make(map[string]bool, len(steps))

	for i, c := range conns {
		path := fmt.Sprintf("connections[%d]", i)

		// WF-010: every connection needs a non-empty ID.
		if c.ID == "" {
			diags = append(diags, errDiag("WF-010",
				fmt.Sprintf("Connection at index %d has an empty ID", i), path+".id"))
		} else if seen[c.ID] {
			// WF-011: duplicate connection ID.
			diags = append(diags, errDiag("WF-011",
				fmt.Sprintf("Duplicate connection ID %q", c.ID), path+".id"))
		} else {
			seen[c.ID] = true
		}

		// WF-012: both endpoints must reference existing steps.
		if !stepIDs[c.Source] {
			diags = append(diags, errDiag("WF-012",
				fmt.Sprintf("Connection %q source references unknown step %q", c.ID, c.Source),
				path+".source"))
		}
		if !stepIDs[c.Target] {
			diags = append(diags, errDiag("WF-012",
				fmt.Sprintf("Connection %q target references unknown step %q", c.ID, c.Target),
				path+".target"))
		}

		// WF-013: no self-loops.
		if c.Source != "" && c.Source == c.Target {
			diags = append(diags, errDiag("WF-013",
				fmt.Sprintf("Connection %q is self-referencing: step %q connects to itself", c.ID, c.Source),
				path))
		}

		if stepIDs[c.Source] {
			incident[c.Source] = true
		}
		if stepIDs[c.Target] {
			incident[c.Target] = true
		}
	}

	// WF-014: disconnected steps, computed after all connections are
	// scanned. Only meaningful when the workflow has more than one step.
	if len(steps) > 1 {
		for i, s := range steps {
			if s.ID != "" && !incident[s.ID] {
				diags = append(diags, warnDiag("WF-014",
					fmt.Sprintf("Step %q has no inbound or outbound connections", s.ID),
					fmt.Sprintf("steps[%d]", i)))
			}
		}
	}

	return diags
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func joinIDs(ids []string) string {
	return strings.Join(ids, " -> ")
}
