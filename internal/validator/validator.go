// Package validator checks a generated artifact set for structural
// conformance: the memconfig schema against a shape grammar, the schema
// against the analyzed API surface, and the driver source against the
// schema via a real parse of the code. Findings are values, never panics;
// the pipeline turns them into an improvement loop.
package validator

import (
	"driverforge/internal/driver"
	"driverforge/internal/logging"
)

// Input carries the artifacts under validation.
type Input struct {
	Code   string
	Schema string
	API    *driver.APISummary
}

// Result is the validation verdict. IsValid means no error-severity
// findings; warnings alone do not invalidate. Plan is non-nil whenever
// any finding exists.
type Result struct {
	IsValid bool
	Errors  []driver.ValidationError
	Plan    *driver.ImprovementPlan
}

// Validity converts the result into the artifact-set validity record.
func (r Result) Validity() driver.Validity {
	return driver.Validity{
		IsValid: r.IsValid,
		Errors:  r.Errors,
		Plan:    r.Plan,
	}
}

// Execute runs the full validation pass. A structurally invalid schema
// short-circuits: coverage and code checks only run against a schema that
// parses and satisfies the grammar. Execute is pure with respect to its
// input; running it twice on unchanged artifacts yields identical results.
func Execute(in Input) Result {
	timer := logging.StartTimer(logging.CategoryValidator, "validate")

	cfg, errs := parseSchema(in.Schema)
	if len(errs) == 0 {
		errs = append(errs, checkCoverage(cfg, in.API)...)
		errs = append(errs, checkCode(cfg, in.Code)...)
	}

	result := Result{
		IsValid: !hasErrorSeverity(errs),
		Errors:  errs,
		Plan:    buildPlan(errs),
	}

	timer.StopWithInfo()
	logging.Validator("Validation finished: valid=%t findings=%d", result.IsValid, len(errs))
	return result
}

func hasErrorSeverity(errs []driver.ValidationError) bool {
	for _, e := range errs {
		if e.Severity == driver.SeverityError {
			return true
		}
	}
	return false
}
