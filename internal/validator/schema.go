package validator

import (
	"encoding/json"
	"fmt"
	"strings"

	"driverforge/internal/driver"
)

// =============================================================================
// MEMCONFIG SHAPE
// =============================================================================

// Memconfig is the declarative schema artifact: the types, fields, actions,
// and events the generated code must implement.
type Memconfig struct {
	Schema *SchemaDef `json:"schema"`
}

// SchemaDef is the type graph of a memconfig.
type SchemaDef struct {
	Types []TypeDef `json:"types"`
}

// TypeDef declares one schema type and its members.
type TypeDef struct {
	Name    string      `json:"name"`
	Fields  []MemberDef `json:"fields,omitempty"`
	Actions []MemberDef `json:"actions,omitempty"`
	Events  []MemberDef `json:"events,omitempty"`
}

// MemberDef is a single field, action, or event on a type.
type MemberDef struct {
	Name        string `json:"name"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// rootTypeName is the required entry-point type of every memconfig.
const rootTypeName = "Root"

// IsCollection reports whether a type is collection-shaped: named
// *Collection or exposing the collection affordances directly.
func (t TypeDef) IsCollection() bool {
	if strings.HasSuffix(t.Name, "Collection") {
		return true
	}
	return t.hasField("items") || t.hasField("one")
}

func (t TypeDef) hasField(name string) bool {
	for _, f := range t.Fields {
		if strings.EqualFold(f.Name, name) {
			return true
		}
	}
	return false
}

func (t TypeDef) hasAction(name string) bool {
	for _, a := range t.Actions {
		if strings.EqualFold(a.Name, name) {
			return true
		}
	}
	return false
}

// hasActionContaining reports whether any action name contains the given
// fragment (case-insensitive). Used for the update-like match on POST+id.
func (t TypeDef) hasActionContaining(fragment string) bool {
	for _, a := range t.Actions {
		if strings.Contains(strings.ToLower(a.Name), strings.ToLower(fragment)) {
			return true
		}
	}
	return false
}

func (t TypeDef) hasEvent(name string) bool {
	for _, e := range t.Events {
		if strings.EqualFold(e.Name, name) {
			return true
		}
	}
	return false
}

// =============================================================================
// PARSE + GRAMMAR
// =============================================================================

// parseSchema parses the memconfig artifact and runs the shape grammar.
// A malformed document or grammar violation returns the structural error
// batch; the caller must not proceed to coverage or code checks when errs
// is non-empty.
func parseSchema(raw string) (*Memconfig, []driver.ValidationError) {
	var cfg Memconfig
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		return nil, []driver.ValidationError{{
			Component:  driver.ComponentSchema,
			Message:    fmt.Sprintf("schema is not valid JSON: %v", err),
			Severity:   driver.SeverityError,
			Suggestion: "Regenerate the schema as a single well-formed JSON document",
		}}
	}

	var errs []driver.ValidationError

	if cfg.Schema == nil || len(cfg.Schema.Types) == 0 {
		errs = append(errs, driver.ValidationError{
			Component:  driver.ComponentSchema,
			Message:    "schema declares no types",
			Severity:   driver.SeverityError,
			Suggestion: `Add a "schema" object with a non-empty "types" array`,
		})
		return &cfg, errs
	}

	hasRoot := false
	for _, t := range cfg.Schema.Types {
		if t.Name == rootTypeName {
			hasRoot = true
		}
		if t.Name == "" {
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentSchema,
				Message:    "schema contains an unnamed type",
				Severity:   driver.SeverityError,
				Suggestion: `Give every type a "name"`,
			})
			continue
		}
		if len(t.Fields) == 0 && len(t.Actions) == 0 && len(t.Events) == 0 {
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentSchema,
				Message:    fmt.Sprintf("type %q declares no fields, actions, or events", t.Name),
				Path:       t.Name,
				Severity:   driver.SeverityError,
				Suggestion: fmt.Sprintf("Declare at least one field, action, or event on %q or remove the type", t.Name),
			})
		}
	}

	if !hasRoot {
		errs = append(errs, driver.ValidationError{
			Component:  driver.ComponentSchema,
			Message:    fmt.Sprintf("schema has no %q type", rootTypeName),
			Severity:   driver.SeverityError,
			Suggestion: fmt.Sprintf("Add a %q type as the schema entry point", rootTypeName),
		})
	}

	return &cfg, errs
}

// findType returns the type with the given name (case-insensitive).
func (s *SchemaDef) findType(name string) *TypeDef {
	for i := range s.Types {
		if strings.EqualFold(s.Types[i].Name, name) {
			return &s.Types[i]
		}
	}
	return nil
}
