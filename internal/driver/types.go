// Package driver defines the artifact model for generated API drivers.
// An ArtifactSet bundles everything the pipeline produces for one target
// API: the memconfig schema, the implementation source, documentation,
// the package manifest, plus validity and checkpoint history.
package driver

import (
	"fmt"
	"time"
)

// =============================================================================
// ARTIFACT FILES
// =============================================================================

// Part identifies one of the four generated artifacts. The set of parts is
// closed: no pipeline stage may add or remove an artifact.
type Part int

const (
	PartSchema Part = iota // memconfig.json
	PartCode               // driver.go
	PartDocs               // README.md
	PartManifest           // manifest.json
)

// String returns the canonical file name for the part.
func (p Part) String() string {
	switch p {
	case PartSchema:
		return "memconfig.json"
	case PartCode:
		return "driver.go"
	case PartDocs:
		return "README.md"
	case PartManifest:
		return "manifest.json"
	default:
		return fmt.Sprintf("Part(%d)", int(p))
	}
}

// Parts lists every artifact part in generation order.
func Parts() []Part {
	return []Part{PartSchema, PartCode, PartDocs, PartManifest}
}

// ParsePart maps a caller-facing target name to a Part.
func ParsePart(target string) (Part, error) {
	switch target {
	case "schema":
		return PartSchema, nil
	case "code":
		return PartCode, nil
	case "docs":
		return PartDocs, nil
	case "package":
		return PartManifest, nil
	default:
		return 0, fmt.Errorf("unknown artifact target %q (want schema|code|docs|package)", target)
	}
}

// Files holds the four generated text artifacts. Using a struct rather than
// a map makes the fixed-key invariant hold by construction.
type Files struct {
	Schema   string `json:"memconfig.json"`
	Code     string `json:"driver.go"`
	Docs     string `json:"README.md"`
	Manifest string `json:"manifest.json"`
}

// Get returns the content of the given part.
func (f Files) Get(p Part) string {
	switch p {
	case PartSchema:
		return f.Schema
	case PartCode:
		return f.Code
	case PartDocs:
		return f.Docs
	case PartManifest:
		return f.Manifest
	default:
		return ""
	}
}

// Set replaces the content of the given part wholesale. Artifacts are never
// partially patched.
func (f *Files) Set(p Part, content string) {
	switch p {
	case PartSchema:
		f.Schema = content
	case PartCode:
		f.Code = content
	case PartDocs:
		f.Docs = content
	case PartManifest:
		f.Manifest = content
	}
}

// =============================================================================
// API SUMMARY (stage 1 output)
// =============================================================================

// APISummary is the structured analysis of the source API specification.
// Only the analysis stage writes it.
type APISummary struct {
	BaseURL     string       `json:"base_url"`
	AuthMethods []string     `json:"auth_methods,omitempty"`
	Endpoints   []Endpoint   `json:"endpoints,omitempty"`
	DataModels  []DataModel  `json:"data_models,omitempty"`
	Pagination  *Pagination  `json:"pagination,omitempty"`
	Webhooks    *WebhookInfo `json:"webhooks,omitempty"`
}

// Endpoint describes one HTTP operation of the source API.
type Endpoint struct {
	Method        string  `json:"method"`
	Path          string  `json:"path"`
	Description   string  `json:"description,omitempty"`
	Params        []Param `json:"params,omitempty"`
	ResponseShape string  `json:"response_shape,omitempty"`
}

// Param describes a single endpoint parameter.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// DataModel describes one resource shape exposed by the API.
type DataModel struct {
	Name   string       `json:"name"`
	Fields []ModelField `json:"fields,omitempty"`
}

// ModelField is a single field on a data model.
type ModelField struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// Pagination describes how the API pages collection responses.
type Pagination struct {
	Style string `json:"style"` // cursor, page, offset
}

// WebhookInfo describes webhook support declared by the API.
type WebhookInfo struct {
	Supported bool     `json:"supported"`
	Events    []string `json:"events,omitempty"`
}

// =============================================================================
// VALIDATION RESULTS
// =============================================================================

// Severity classifies a validation finding.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Component tags which artifact a validation error belongs to.
type Component string

const (
	ComponentSchema Component = "schema"
	ComponentCode   Component = "code"
)

// ValidationError is a single structured validation finding. It lives only
// inside a Validity or a Checkpoint, never on its own.
type ValidationError struct {
	Component  Component `json:"component"`
	Message    string    `json:"message"`
	Path       string    `json:"path,omitempty"`
	Severity   Severity  `json:"severity"`
	Suggestion string    `json:"suggestion,omitempty"`
}

// SuggestionGroup collects the suggestions for one component, errors first.
type SuggestionGroup struct {
	Component   Component         `json:"component"`
	Errors      []ValidationError `json:"errors,omitempty"`
	Warnings    []ValidationError `json:"warnings,omitempty"`
	Suggestions []string          `json:"suggestions,omitempty"`
}

// ImprovementPlan groups validation errors by component and carries the
// synthesized remediation prompt fed back to the generation stage verbatim.
type ImprovementPlan struct {
	Groups []SuggestionGroup `json:"groups"`
	Prompt string            `json:"prompt"`
}

// Clone returns a deep copy of the plan.
func (p *ImprovementPlan) Clone() *ImprovementPlan {
	if p == nil {
		return nil
	}
	out := &ImprovementPlan{Prompt: p.Prompt}
	out.Groups = make([]SuggestionGroup, len(p.Groups))
	for i, g := range p.Groups {
		ng := SuggestionGroup{Component: g.Component}
		ng.Errors = append([]ValidationError(nil), g.Errors...)
		ng.Warnings = append([]ValidationError(nil), g.Warnings...)
		ng.Suggestions = append([]string(nil), g.Suggestions...)
		out.Groups[i] = ng
	}
	return out
}

// FirstSuggestion returns the first suggestion of the first group, which is
// what the improvement loop feeds back into schema regeneration.
func (p *ImprovementPlan) FirstSuggestion() string {
	if p == nil {
		return ""
	}
	for _, g := range p.Groups {
		if len(g.Suggestions) > 0 {
			return g.Suggestions[0]
		}
	}
	return ""
}

// Validity is the current validation verdict for an artifact set.
type Validity struct {
	IsValid bool              `json:"is_valid"`
	Errors  []ValidationError `json:"errors,omitempty"`
	Plan    *ImprovementPlan  `json:"plan,omitempty"`
}

// Clone returns a deep copy of the validity record.
func (v Validity) Clone() Validity {
	return Validity{
		IsValid: v.IsValid,
		Errors:  append([]ValidationError(nil), v.Errors...),
		Plan:    v.Plan.Clone(),
	}
}

// =============================================================================
// CHECKPOINTS
// =============================================================================

// Checkpoint is an immutable point-in-time snapshot of an artifact set's
// files and validity. Indices are dense per artifact set: 0, 1, 2, ...
type Checkpoint struct {
	Index     int       `json:"index"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Files     Files     `json:"files"`
	Validity  Validity  `json:"validity"`
}

// =============================================================================
// ARTIFACT SET
// =============================================================================

// State tracks where an artifact set sits in the generate/improve machine.
type State string

const (
	StateGenerating State = "generating"
	StateValidating State = "validating"
	StateValid      State = "valid"
	StateImproving  State = "improving"
	StateImproved   State = "improved"
	StateExhausted  State = "exhausted"
)

// ArtifactSet is the unit of work: one generation target with its artifacts,
// validity, and checkpoint history. Name and SourceSpec are immutable after
// creation. The checkpoint slice is owned exclusively by the artifact set;
// the checkpoint manager only mediates access.
type ArtifactSet struct {
	Name                   string       `json:"name"`
	SourceSpec             string       `json:"source_spec"`
	AnalyzedAPI            *APISummary  `json:"analyzed_api,omitempty"`
	Files                  Files        `json:"files"`
	Validity               Validity     `json:"validity"`
	Checkpoints            []Checkpoint `json:"checkpoints,omitempty"`
	CurrentCheckpointIndex int          `json:"current_checkpoint_index"`
	State                  State        `json:"state"`
	CreatedAt              time.Time    `json:"created_at"`
	UpdatedAt              time.Time    `json:"updated_at"`
}

// NewArtifactSet creates an empty artifact set for the given target name.
func NewArtifactSet(name, sourceSpec string) *ArtifactSet {
	now := time.Now()
	return &ArtifactSet{
		Name:                   name,
		SourceSpec:             sourceSpec,
		CurrentCheckpointIndex: -1,
		State:                  StateGenerating,
		CreatedAt:              now,
		UpdatedAt:              now,
	}
}
