package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/reedworks/reedflow/capability"
	"github.com/reedworks/reedflow/engine"
	"github.com/reedworks/reedflow/history"
	"github.com/reedworks/reedflow/loader"
	"github.com/reedworks/reedflow/workflow"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <file>",
		Short: "Execute a workflow file",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("input", "i", "", "Input data as inline JSON string")
	cmd.Flags().StringP("input-file", "f", "", "Input data from a JSON or YAML file")
	cmd.Flags().StringP("output", "o", "", "Write run result to file (default: stdout)")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Execution timeout")
	cmd.Flags().Bool("dry-run", false, "Validate only, do not execute")
	cmd.Flags().String("db", "", "Path to SQLite run history database (default: in-memory)")
	cmd.Flags().Bool("verbose", false, "Log step progress to stderr")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	filePath := args[0]

	def, warnings, err := loader.Load(filePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return exitError(exitFileNotFound, "file not found: %s", filePath)
		}
		var diagErr *loader.DiagnosticError
		if errors.As(err, &diagErr) {
			printDiagnostics(cmd.ErrOrStderr(), diagErr.Diagnostics, "text")
			return exitError(exitValidation, "validation failed")
		}
		return exitError(exitValidation, "loading workflow: %v", err)
	}
	for _, warn := range warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning [%s] %s\n", warn.Code, warn.Message)
	}

	if dryRun, _ := cmd.Flags().GetBool("dry-run"); dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "Validation successful.")
		return nil
	}

	g, err := workflow.Compile(def)
	if err != nil {
		return exitError(exitValidation, "compiling workflow: %v", err)
	}

	input, err := readRunInput(cmd)
	if err != nil {
		return err
	}

	store, closeStore, err := resolveRunStore(cmd)
	if err != nil {
		return err
	}
	defer closeStore()

	logger := slog.New(slog.DiscardHandler)
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), nil))
	}

	eng := engine.New(engine.Config{
		Registry: capability.DefaultRegistry(capability.Options{}),
		Store:    store,
		Logger:   logger,
	})

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	run, err := eng.Execute(ctx, g, input, engine.RunOptions{})
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return exitError(exitTimeout, "run timed out after %s", timeout)
		}
		return exitError(exitRuntime, "executing workflow: %v", err)
	}

	if err := writeRunResult(cmd, run); err != nil {
		return err
	}

	switch run.Status {
	case engine.RunCompleted:
		return nil
	case engine.RunCancelled:
		return exitError(exitRuntime, "run cancelled")
	default:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return exitError(exitTimeout, "run timed out after %s", timeout)
		}
		return exitError(exitRuntime, "run failed: %s", run.Error)
	}
}

// readRunInput resolves the run input from --input or --input-file.
func readRunInput(cmd *cobra.Command) (any, error) {
	inline, _ := cmd.Flags().GetString("input")
	fromFile, _ := cmd.Flags().GetString("input-file")

	if inline != "" && fromFile != "" {
		return nil, exitError(exitInputParse, "--input and --input-file are mutually exclusive")
	}

	if inline != "" {
		var input any
		if err := json.Unmarshal([]byte(inline), &input); err != nil {
			return nil, exitError(exitInputParse, "parsing --input: %v", err)
		}
		return input, nil
	}

	if fromFile != "" {
		data, err := os.ReadFile(fromFile) // #nosec G304 -- path from caller
		if err != nil {
			return nil, exitError(exitFileNotFound, "reading input file: %v", err)
		}
		var input any
		if isYAMLPath(fromFile) {
			if err := yaml.Unmarshal(data, &input); err != nil {
				return nil, exitError(exitInputParse, "parsing input file: %v", err)
			}
			return input, nil
		}
		if err := json.Unmarshal(data, &input); err != nil {
			return nil, exitError(exitInputParse, "parsing input file: %v", err)
		}
		return input, nil
	}

	return nil, nil
}

// resolveRunStore picks the run store: SQLite when --db is set, memory
// otherwise.
func resolveRunStore(cmd *cobra.Command) (engine.RunStore, func(), error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		return engine.NewMemoryStore(), func() {}, nil
	}

	store, err := history.NewStore(history.StoreConfig{DSN: dbPath})
	if err != nil {
		return nil, nil, exitError(exitRuntime, "opening run history: %v", err)
	}
	return store, func() { _ = store.Close() }, nil
}

// runResult is the shape written after execution.
type runResult struct {
	RunID    string           `json:"run_id"`
	Status   engine.RunStatus `json:"status"`
	Output   any              `json:"output,omitempty"`
	Error    string           `json:"error,omitempty"`
	Duration string           `json:"duration"`
}

func writeRunResult(cmd *cobra.Command, run *engine.Run) error {
	result := runResult{
		RunID:    run.ID,
		Status:   run.Status,
		Output:   run.Output,
		Error:    run.Error,
		Duration: run.Duration.String(),
	}

	var out io.Writer = cmd.OutOrStdout()
	if path, _ := cmd.Flags().GetString("output"); path != "" {
		f, err := os.Create(path) // #nosec G304 -- path from caller
		if err != nil {
			return exitError(exitRuntime, "creating output file: %v", err)
		}
		defer f.Close()
		out = f
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
