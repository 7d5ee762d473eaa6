package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/ddnsquorum/internal/harness"
)

// TestOptions holds flags for the test command.
type TestOptions struct {
	*RootOptions
	Update    bool   // regenerate golden files
	Filter    string // scenario filter (glob pattern on the file name)
	GoldenDir string // golden trace directory
	Workers   int    // concurrent scenario runs
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Golden string   `json:"golden,omitempty"` // "match", "updated", "missing"
	Errors []string `json:"errors,omitempty"`
}

// TestResult holds the overall test result.
type TestResult struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewTestCommand creates the test command.
func NewTestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TestOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "test <scenarios-dir>",
		Short: "Run conformance scenarios",
		Long: `Run conformance scenarios against fresh in-memory registry and quorum
services.

Each scenario's expect clauses and assertions are checked, and its trace is
compared with <golden-dir>/<scenario name>.golden when that file exists.
The golden directory defaults to a "golden" directory next to the
scenarios directory.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (invalid paths, etc.)

Examples:
  ddnsq test ./testdata/scenarios
  ddnsq test ./testdata/scenarios --filter "quorum_*"
  ddnsq test ./testdata/scenarios --update
  ddnsq test ./testdata/scenarios --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTests(cmd, opts, args[0])
		},
	}

	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")
	cmd.Flags().StringVar(&opts.GoldenDir, "golden", "", "golden trace directory")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "concurrent scenario runs (default GOMAXPROCS)")

	return cmd
}

func runTests(cmd *cobra.Command, opts *TestOptions, scenariosDir string) error {
	if info, err := os.Stat(scenariosDir); err != nil || !info.IsDir() {
		return NewExitError(ExitCommandError, fmt.Sprintf("scenarios directory not found: %s", scenariosDir))
	}
	goldenDir := opts.GoldenDir
	if goldenDir == "" {
		goldenDir = filepath.Join(filepath.Dir(filepath.Clean(scenariosDir)), "golden")
	}

	files, err := findScenarioFiles(scenariosDir, opts.Filter)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to find scenarios", err)
	}

	result := TestResult{Scenarios: make([]ScenarioResult, 0, len(files))}

	// Load everything first; scenarios that fail to load are reported but
	// do not stop the rest from running.
	var (
		scenarios []*harness.Scenario
		loaded    []string
	)
	for _, file := range files {
		s, err := harness.LoadScenario(file)
		if err != nil {
			result.Scenarios = append(result.Scenarios, ScenarioResult{
				Name:   filepath.Base(file),
				File:   file,
				Errors: []string{fmt.Sprintf("failed to load scenario: %v", err)},
			})
			continue
		}
		scenarios = append(scenarios, s)
		loaded = append(loaded, file)
	}

	// Per-scenario execution errors are already folded into the results.
	runs, _ := harness.RunAll(cmd.Context(), scenarios, opts.Workers)
	for i, run := range runs {
		if run == nil {
			result.Scenarios = append(result.Scenarios, ScenarioResult{
				Name:   scenarios[i].Name,
				File:   loaded[i],
				Errors: []string{"scenario did not run"},
			})
			continue
		}
		sr := ScenarioResult{
			Name:   scenarios[i].Name,
			File:   loaded[i],
			Pass:   run.Pass,
			Errors: run.Errors,
		}
		checkGolden(&sr, run, goldenDir, opts.Update)
		result.Scenarios = append(result.Scenarios, sr)
	}

	for _, sr := range result.Scenarios {
		if sr.Pass {
			result.Passed++
		} else {
			result.Failed++
		}
	}
	result.Total = len(result.Scenarios)

	if opts.Format == "json" {
		return outputTestJSON(cmd.OutOrStdout(), result)
	}
	return outputTestText(cmd.OutOrStdout(), result)
}

// checkGolden compares or rewrites the golden trace for one scenario.
func checkGolden(sr *ScenarioResult, run *harness.Result, goldenDir string, update bool) {
	data, err := harness.MarshalTrace(run)
	if err != nil {
		sr.fail(fmt.Sprintf("failed to marshal trace: %v", err))
		return
	}
	path := filepath.Join(goldenDir, sr.Name+".golden")

	if update {
		if err := os.MkdirAll(goldenDir, 0o755); err != nil {
			sr.fail(fmt.Sprintf("failed to create golden directory: %v", err))
			return
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			sr.fail(fmt.Sprintf("failed to write golden file: %v", err))
			return
		}
		sr.Golden = "updated"
		return
	}

	want, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		sr.Golden = "missing"
		return
	}
	if err != nil {
		sr.fail(fmt.Sprintf("failed to read golden file: %v", err))
		return
	}
	if !bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(data)) {
		sr.fail("trace does not match golden file (run with --update to regenerate)")
		return
	}
	sr.Golden = "match"
}

func (sr *ScenarioResult) fail(msg string) {
	sr.Pass = false
	sr.Errors = append(sr.Errors, msg)
}

// findScenarioFiles returns the YAML files directly under dir, sorted,
// keeping only names matching filter when one is given.
func findScenarioFiles(dir, filter string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := filepath.Ext(e.Name())
		if ext != ".yaml" && ext != ".yml" {
			continue
		}
		if filter != "" {
			matched, err := filepath.Match(filter, strings.TrimSuffix(e.Name(), ext))
			if err != nil {
				return nil, fmt.Errorf("invalid filter pattern: %w", err)
			}
			if !matched {
				continue
			}
		}
		files = append(files, filepath.Join(dir, e.Name()))
	}
	return files, nil
}

// outputTestJSON outputs the test result as JSON.
func outputTestJSON(w io.Writer, result TestResult) error {
	response := CLIResponse{Status: "ok", Data: result}
	if result.Failed > 0 {
		response.Status = "error"
		response.Error = &CLIError{
			Code:    "TEST_FAILED",
			Message: fmt.Sprintf("%d scenario(s) failed", result.Failed),
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(response); err != nil {
		return err
	}
	if result.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: response.Error.Message, Reported: true}
	}
	return nil
}

// outputTestText outputs the test result as text.
func outputTestText(w io.Writer, result TestResult) error {
	if result.Total == 0 {
		fmt.Fprintln(w, "No scenarios found.")
		return nil
	}
	for _, sr := range result.Scenarios {
		mark := "\u2713"
		if !sr.Pass {
			mark = "\u2717"
		}
		suffix := ""
		if sr.Golden == "updated" {
			suffix = " (golden updated)"
		}
		fmt.Fprintf(w, "%s %s%s\n", mark, sr.Name, suffix)
		for _, e := range sr.Errors {
			fmt.Fprintf(w, "  %s\n", e)
		}
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Test Summary: %d passed, %d failed, %d total\n", result.Passed, result.Failed, result.Total)
	if result.Failed > 0 {
		return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d scenario(s) failed", result.Failed), Reported: true}
	}
	fmt.Fprintln(w, "\u2713 All scenarios passed")
	return nil
}
