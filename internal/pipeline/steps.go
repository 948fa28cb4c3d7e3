package pipeline

import (
	"context"
	"fmt"

	"driverforge/internal/driver"
)

// =============================================================================
// STEP EXECUTOR
// =============================================================================

// StepKind is the closed set of pipeline steps. Dispatch is an exhaustive
// switch over this enum rather than a string-keyed agent registry, so an
// unknown step cannot exist at runtime.
type StepKind int

const (
	StepAnalyzeAPI StepKind = iota
	StepGenerateSchema
	StepGenerateCode
	StepGenerateDocs
	StepGenerateManifest
	StepImproveSchema
	StepImproveCode
	StepImproveDocs
	StepImproveManifest
)

// String returns the step's display name.
func (k StepKind) String() string {
	switch k {
	case StepAnalyzeAPI:
		return "analyze-api"
	case StepGenerateSchema:
		return "generate-schema"
	case StepGenerateCode:
		return "generate-code"
	case StepGenerateDocs:
		return "generate-docs"
	case StepGenerateManifest:
		return "generate-manifest"
	case StepImproveSchema:
		return "improve-schema"
	case StepImproveCode:
		return "improve-code"
	case StepImproveDocs:
		return "improve-docs"
	case StepImproveManifest:
		return "improve-manifest"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// generationSteps are the five stages of a full generation, in order.
var generationSteps = []StepKind{
	StepAnalyzeAPI,
	StepGenerateSchema,
	StepGenerateCode,
	StepGenerateDocs,
	StepGenerateManifest,
}

// improveStepFor maps an artifact part to its improvement step.
func improveStepFor(part driver.Part) StepKind {
	switch part {
	case driver.PartSchema:
		return StepImproveSchema
	case driver.PartCode:
		return StepImproveCode
	case driver.PartDocs:
		return StepImproveDocs
	default:
		return StepImproveManifest
	}
}

// runStep shapes the artifact set's current state into the step's agent
// payload, runs the agent, and writes the output back. Each step receives
// exactly the accumulated state it needs: later generation stages see the
// analyzed API and the files produced so far.
func (m *Manager) runStep(ctx context.Context, kind StepKind, set *driver.ArtifactSet, feedback string) error {
	switch kind {
	case StepAnalyzeAPI:
		summary, err := analyzeAPI(ctx, m.llm, set.SourceSpec)
		if err != nil {
			return err
		}
		set.AnalyzedAPI = summary
		return nil

	case StepGenerateSchema:
		schema, err := generateSchema(ctx, m.llm, m.index, m.ragExamples, set.AnalyzedAPI, set.SourceSpec)
		if err != nil {
			return err
		}
		set.Files.Set(driver.PartSchema, schema)
		return nil

	case StepGenerateCode:
		code, err := generateCode(ctx, m.llm, m.index, m.ragExamples, set.AnalyzedAPI, set.Files.Schema)
		if err != nil {
			return err
		}
		set.Files.Set(driver.PartCode, code)
		return nil

	case StepGenerateDocs:
		docs, err := generateDocs(ctx, m.llm, set.AnalyzedAPI, set.Files)
		if err != nil {
			return err
		}
		set.Files.Set(driver.PartDocs, docs)
		return nil

	case StepGenerateManifest:
		manifest, err := generateManifest(ctx, m.llm, set.Name, set.AnalyzedAPI, set.Files)
		if err != nil {
			return err
		}
		set.Files.Set(driver.PartManifest, manifest)
		return nil

	case StepImproveSchema, StepImproveCode, StepImproveDocs, StepImproveManifest:
		part := partForImproveStep(kind)
		content, err := improvePart(ctx, m.llm, part, set.Files, set.AnalyzedAPI, feedback)
		if err != nil {
			return err
		}
		set.Files.Set(part, content)
		return nil

	default:
		// Unreachable for in-range kinds; guards values forged from ints.
		return fmt.Errorf("unknown pipeline step %v", kind)
	}
}

func partForImproveStep(kind StepKind) driver.Part {
	switch kind {
	case StepImproveSchema:
		return driver.PartSchema
	case StepImproveCode:
		return driver.PartCode
	case StepImproveDocs:
		return driver.PartDocs
	default:
		return driver.PartManifest
	}
}
