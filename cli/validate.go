package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/reedworks/reedflow/loader"
	"github.com/reedworks/reedflow/workflow"
)

// NewValidateCmd creates the "validate" subcommand.
func NewValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <file>",
		Short: "Validate a workflow file without executing",
		Args:  cobra.ExactArgs(1),
		RunE:  runValidate,
	}

	cmd.Flags().String("format", "text", "Output format: text | json")
	cmd.Flags().Bool("strict", false, "Treat warnings as errors")

	return cmd
}

func runValidate(cmd *cobra.Command, args []string) error {
	filePath := args[0]
	format, _ := cmd.Flags().GetString("format")
	strict, _ := cmd.Flags().GetBool("strict")
	out := cmd.OutOrStdout()

	data, err := os.ReadFile(filePath) // #nosec G304 -- path from caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		return fmt.Errorf("reading file: %w", err)
	}

	diags, err := validateBytes(data, filePath)
	if err != nil {
		return err
	}

	printDiagnostics(out, diags, format)

	hasErrs := workflow.HasErrors(diags)
	hasWarns := len(workflow.Warnings(diags)) > 0
	if hasErrs || (strict && hasWarns) {
		return exitError(exitValidation, "validation failed")
	}
	return nil
}

// validateBytes parses and validates a definition, turning parse
// failures into a single synthetic diagnostic so the output shape stays
// uniform.
func validateBytes(data []byte, filePath string) ([]workflow.Diagnostic, error) {
	_, diags, err := loader.LoadBytes(data, isYAMLPath(filePath))
	if err != nil {
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			return diagErr.Diagnostics, nil
		}
		return []workflow.Diagnostic{{
			Code:     "WF-000",
			Severity: workflow.SeverityError,
			Message:  fmt.Sprintf("Failed to parse file: %v", err),
		}}, nil
	}
	return diags, nil
}

func isYAMLPath(path string) bool {
	switch {
	case len(path) > 5 && path[len(path)-5:] == ".yaml":
		return true
	case len(path) > 4 && path[len(path)-4:] == ".yml":
		return true
	}
	return false
}

// printDiagnostics writes diagnostics in the requested format.
func printDiagnostics(out io.Writer, diags []workflow.Diagnostic, format string) {
	if format == "json" {
		payload := struct {
			Valid       bool                  `json:"valid"`
			Diagnostics []workflow.Diagnostic `json:"diagnostics"`
		}{
			Valid:       !workflow.HasErrors(diags),
			Diagnostics: diags,
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		_ = enc.Encode(payload)
		return
	}

	if len(diags) == 0 {
		fmt.Fprintln(out, "OK: no issues found")
		return
	}
	for _, d := range diags {
		label := "warning"
		if d.Severity == workflow.SeverityError {
			label = "error"
		}
		if d.Path != "" {
			fmt.Fprintf(out, "%s [%s] %s (%s)\n", label, d.Code, d.Message, d.Path)
		} else {
			fmt.Fprintf(out, "%s [%s] %s\n", label, d.Code, d.Message)
		}
	}
	errs := len(workflow.Errors(diags))
	warns := len(workflow.Warnings(diags))
	fmt.Fprintf(out, "%d error(s), %d warning(s)\n", errs, warns)
}
