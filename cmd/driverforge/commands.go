package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"driverforge/internal/driver"
)

var generateName string

// generateCmd runs the full five-stage generation pipeline.
var generateCmd = &cobra.Command{
	Use:   "generate [spec-file]",
	Short: "Generate a driver from an API specification",
	Long: `Runs the full pipeline against a free-text or JSON API specification:
analyze the API, generate the memconfig schema, the implementation, the
docs, and the manifest, then validate and checkpoint the result.

Pass "-" to read the specification from stdin.`,
	Args: cobra.ExactArgs(1),
	RunE: runGenerate,
}

// validateCmd re-validates an existing driver.
var validateCmd = &cobra.Command{
	Use:   "validate [name]",
	Short: "Validate a generated driver",
	Args:  cobra.ExactArgs(1),
	RunE:  runValidate,
}

// improveCmd runs the bounded validate-and-improve loop.
var improveCmd = &cobra.Command{
	Use:   "improve [name]",
	Short: "Run the bounded improvement loop on a driver",
	Long: `Validates the driver and, while invalid, repairs it: the schema is
regenerated from the improvement plan's first suggestion and the code is
regenerated against the improved schema. The loop is capped; reaching the
cap reports "exhausted" rather than failing.`,
	Args: cobra.ExactArgs(1),
	RunE: runImprove,
}

var improveTarget string

// improvePartCmd applies one targeted improvement from caller feedback.
var improvePartCmd = &cobra.Command{
	Use:   "improve-part [name] [feedback]",
	Short: "Improve one artifact of a driver from feedback",
	Long: `Applies a single targeted improvement to one artifact (schema, code,
docs, or package) using your feedback instead of the validator's plan.
Checkpoints are created before and after the attempt.`,
	Args: cobra.ExactArgs(2),
	RunE: runImprovePart,
}

func init() {
	generateCmd.Flags().StringVarP(&generateName, "name", "n", "", "driver name (required)")
	generateCmd.MarkFlagRequired("name")

	improvePartCmd.Flags().StringVarP(&improveTarget, "target", "t", "code", "artifact to improve: schema|code|docs|package")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	spec, err := readSpec(args[0])
	if err != nil {
		return err
	}

	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	set, err := a.manager.GenerateDriver(cmd.Context(), spec, generateName)
	if err != nil {
		return err
	}

	printSetSummary(set)
	return nil
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	result, err := a.manager.ValidateDriver(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	if result.IsValid {
		fmt.Printf("Driver %q is valid (%d warnings)\n", args[0], countWarnings(result.Errors))
		return nil
	}

	fmt.Printf("Driver %q is invalid:\n", args[0])
	for _, e := range result.Errors {
		fmt.Printf("  [%s/%s] %s\n", e.Component, e.Severity, e.Message)
		if e.Suggestion != "" {
			fmt.Printf("      -> %s\n", e.Suggestion)
		}
	}
	return nil
}

func runImprove(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	set, err := a.manager.ValidateAndImprove(cmd.Context(), args[0])
	if err != nil {
		return err
	}

	printSetSummary(set)
	return nil
}

func runImprovePart(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.Context())
	if err != nil {
		return err
	}
	defer a.close()

	set, err := a.manager.ImproveSpecificPart(cmd.Context(), args[0], args[1], improveTarget)
	if err != nil {
		return err
	}

	printSetSummary(set)
	return nil
}

func readSpec(path string) (string, error) {
	if path == "-" {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read spec from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read spec file: %w", err)
	}
	return string(data), nil
}

func printSetSummary(set *driver.ArtifactSet) {
	fmt.Printf("Driver:      %s\n", set.Name)
	fmt.Printf("State:       %s\n", set.State)
	fmt.Printf("Valid:       %t\n", set.Validity.IsValid)
	fmt.Printf("Checkpoints: %d (current %d)\n", len(set.Checkpoints), set.CurrentCheckpointIndex)
	for _, p := range driver.Parts() {
		fmt.Printf("  %-15s %6d bytes\n", p.String(), len(set.Files.Get(p)))
	}
	if len(set.Validity.Errors) > 0 {
		fmt.Printf("Findings:    %d\n", len(set.Validity.Errors))
	}
}

func countWarnings(errs []driver.ValidationError) int {
	n := 0
	for _, e := range errs {
		if e.Severity == driver.SeverityWarning {
			n++
		}
	}
	return n
}
