package validator

import (
	"strings"

	"driverforge/internal/driver"
)

// =============================================================================
// IMPROVEMENT PLAN
// =============================================================================

// buildPlan groups findings by component (schema before code), orders each
// group errors-before-warnings, and synthesizes the remediation prompt that
// the improvement loop feeds back into generation verbatim.
func buildPlan(errs []driver.ValidationError) *driver.ImprovementPlan {
	if len(errs) == 0 {
		return nil
	}

	var groups []driver.SuggestionGroup
	for _, component := range []driver.Component{driver.ComponentSchema, driver.ComponentCode} {
		group := driver.SuggestionGroup{Component: component}
		for _, e := range errs {
			if e.Component != component || e.Severity != driver.SeverityError {
				continue
			}
			group.Errors = append(group.Errors, e)
			if e.Suggestion != "" {
				group.Suggestions = append(group.Suggestions, e.Suggestion)
			}
		}
		for _, e := range errs {
			if e.Component != component || e.Severity != driver.SeverityWarning {
				continue
			}
			group.Warnings = append(group.Warnings, e)
			if e.Suggestion != "" {
				group.Suggestions = append(group.Suggestions, e.Suggestion)
			}
		}
		if len(group.Errors) > 0 || len(group.Warnings) > 0 {
			groups = append(groups, group)
		}
	}

	return &driver.ImprovementPlan{
		Groups: groups,
		Prompt: synthesizePrompt(groups),
	}
}

func synthesizePrompt(groups []driver.SuggestionGroup) string {
	var b strings.Builder
	b.WriteString("The generated driver failed validation. Apply the following fixes:\n")
	for _, g := range groups {
		b.WriteString("\n[" + string(g.Component) + "]\n")
		for _, s := range g.Suggestions {
			b.WriteString("- " + s + "\n")
		}
	}
	return b.String()
}
