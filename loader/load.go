// Package loader reads workflow definition files in JSON and YAML
// formats and validates them before they reach the engine.
package loader

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/reedworks/reedflow/workflow"
)

// Load reads a workflow definition file, auto-detecting YAML by file
// extension, and validates it. Validation errors are returned as a
// *DiagnosticError; warnings are reported in the second return value
// without failing the load.
func Load(path string) (*workflow.Definition, []workflow.Diagnostic, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path from caller
	if err != nil {
		return nil, nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return LoadBytes(data, isYAML(path))
}

// LoadBytes parses and validates a workflow definition from raw bytes.
func LoadBytes(data []byte, fromYAML bool) (*workflow.Definition, []workflow.Diagnostic, error) {
	jsonData := data
	if fromYAML {
		var err error
		if jsonData, err = yamlToJSON(data); err != nil {
			return nil, nil, err
		}
	}

	var def workflow.Definition
	if err := json.Unmarshal(jsonData, &def); err != nil {
		return nil, nil, fmt.Errorf("parsing workflow definition: %w", err)
	}

	diags := workflow.Validate(&def)
	if workflow.HasErrors(diags) {
		return nil, diags, &DiagnosticError{Diagnostics: diags}
	}

	return &def, workflow.Warnings(diags), nil
}

// isYAML returns true if the file path has a YAML extension.
func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// yamlToJSON converts YAML bytes to JSON bytes through a generic map,
// so the definition unmarshals from one canonical format.
func yamlToJSON(data []byte) ([]byte, error) {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}
	return json.Marshal(raw)
}

// DiagnosticError wraps validation diagnostics as an error.
type DiagnosticError struct {
	Diagnostics []workflow.Diagnostic
}

func (e *DiagnosticError) Error() string {
	errs := workflow.Errors(e.Diagnostics)
	if len(errs) == 0 {
		return "validation failed"
	}
	if len(errs) == 1 {
		return fmt.Sprintf("validation error: %s", errs[0].Message)
	}
	return fmt.Sprintf("%d validation errors (first: %s)", len(errs), errs[0].Message)
}
