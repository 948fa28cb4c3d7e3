package validator

import (
	"fmt"
	"strings"

	"driverforge/internal/driver"
)

// =============================================================================
// API COVERAGE
// =============================================================================

// checkCoverage cross-checks the parsed schema against the analyzed API
// surface: data models, endpoints, webhooks, pagination. Optional features
// absent from the summary never trigger their checks.
func checkCoverage(cfg *Memconfig, api *driver.APISummary) []driver.ValidationError {
	if api == nil || cfg == nil || cfg.Schema == nil {
		return nil
	}

	var errs []driver.ValidationError
	errs = append(errs, checkModels(cfg.Schema, api)...)
	errs = append(errs, checkEndpoints(cfg.Schema, api)...)
	if api.Webhooks != nil && api.Webhooks.Supported {
		errs = append(errs, checkWebhooks(cfg.Schema, api.Webhooks)...)
	}
	if api.Pagination != nil {
		errs = append(errs, checkPagination(cfg.Schema)...)
	}
	return errs
}

// checkModels requires a same-named type per data model and a same-named
// (or getter-prefixed) field per required model field. Optional fields are
// never flagged.
func checkModels(schema *SchemaDef, api *driver.APISummary) []driver.ValidationError {
	var errs []driver.ValidationError

	for _, model := range api.DataModels {
		t := schema.findType(model.Name)
		if t == nil {
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentSchema,
				Message:    fmt.Sprintf("no schema type for data model %q", model.Name),
				Path:       model.Name,
				Severity:   driver.SeverityError,
				Suggestion: fmt.Sprintf("Add a type named %q with the model's fields", model.Name),
			})
			continue
		}

		for _, field := range model.Fields {
			if !field.Required {
				continue
			}
			if t.hasField(field.Name) || t.hasField("get"+upperFirst(field.Name)) {
				continue
			}
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentSchema,
				Message:    fmt.Sprintf("type %q is missing required field %q", model.Name, field.Name),
				Path:       model.Name + "." + field.Name,
				Severity:   driver.SeverityError,
				Suggestion: fmt.Sprintf("Add a field %q to type %q", field.Name, model.Name),
			})
		}
	}

	return errs
}

// endpointShape is the resource/verb classification of one endpoint path.
type endpointShape struct {
	resource string // last literal path segment, e.g. "widgets"
	hasID    bool   // path ends in a parameter segment
}

func classifyPath(path string) endpointShape {
	var shape endpointShape
	for _, seg := range strings.Split(path, "/") {
		if seg == "" {
			continue
		}
		if strings.HasPrefix(seg, "{") || strings.HasPrefix(seg, ":") {
			shape.hasID = true
			continue
		}
		shape.resource = seg
		shape.hasID = false
	}
	return shape
}

// typesForResource resolves the resource and collection types covering a
// path segment like "widgets": the singular type ("Widget") and its
// collection ("WidgetCollection"), either of which may be absent.
func typesForResource(schema *SchemaDef, segment string) []*TypeDef {
	singular := singularize(segment)
	var out []*TypeDef
	for _, name := range []string{
		upperFirst(singular),
		upperFirst(singular) + "Collection",
		upperFirst(segment),
	} {
		if t := schema.findType(name); t != nil && !containsType(out, t) {
			out = append(out, t)
		}
	}
	return out
}

func containsType(list []*TypeDef, t *TypeDef) bool {
	for _, x := range list {
		if x == t {
			return true
		}
	}
	return false
}

// checkEndpoints applies the fixed verb-to-affordance mapping. Each
// unmatched endpoint produces exactly one error with a generated
// suggestion naming the missing affordance.
func checkEndpoints(schema *SchemaDef, api *driver.APISummary) []driver.ValidationError {
	var errs []driver.ValidationError

	for _, ep := range api.Endpoints {
		shape := classifyPath(ep.Path)
		if shape.resource == "" {
			continue
		}

		candidates := typesForResource(schema, shape.resource)
		if len(candidates) == 0 {
			errs = append(errs, driver.ValidationError{
				Component: driver.ComponentSchema,
				Message:   fmt.Sprintf("no schema type covers endpoint %s %s", ep.Method, ep.Path),
				Path:      ep.Path,
				Severity:  driver.SeverityError,
				Suggestion: fmt.Sprintf("Add a %q type with a collection for the %q resource",
					upperFirst(singularize(shape.resource)), shape.resource),
			})
			continue
		}

		verb := strings.ToUpper(ep.Method)
		var ok bool
		var missing string

		switch {
		case verb == "GET" && shape.hasID:
			ok = anyType(candidates, func(t *TypeDef) bool { return t.hasField("one") })
			missing = fmt.Sprintf(`Add a "one" field to the %s collection for GET %s`, shape.resource, ep.Path)
		case verb == "GET":
			// Collection GET is satisfied implicitly by the collection type.
			ok = true
		case verb == "POST" && shape.hasID:
			ok = anyType(candidates, func(t *TypeDef) bool { return t.hasActionContaining("update") })
			missing = fmt.Sprintf("Add an update action for POST %s", ep.Path)
		case verb == "POST":
			ok = anyType(candidates, func(t *TypeDef) bool { return t.hasAction("create") })
			missing = fmt.Sprintf(`Add a "create" action to the %s collection for POST %s`, shape.resource, ep.Path)
		case verb == "PUT" || verb == "PATCH":
			ok = anyType(candidates, func(t *TypeDef) bool { return t.hasAction("update") })
			missing = fmt.Sprintf(`Add an "update" action for %s %s`, verb, ep.Path)
		case verb == "DELETE":
			ok = anyType(candidates, func(t *TypeDef) bool { return t.hasAction("delete") })
			missing = fmt.Sprintf(`Add a "delete" action for DELETE %s`, ep.Path)
		default:
			// Unrecognized verbs carry no affordance requirement.
			ok = true
		}

		if !ok {
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentSchema,
				Message:    fmt.Sprintf("endpoint %s %s has no matching schema affordance", verb, ep.Path),
				Path:       ep.Path,
				Severity:   driver.SeverityError,
				Suggestion: missing,
			})
		}
	}

	return errs
}

func anyType(list []*TypeDef, pred func(*TypeDef) bool) bool {
	for _, t := range list {
		if pred(t) {
			return true
		}
	}
	return false
}

// checkWebhooks requires a webhook affordance on the root type plus one
// schema event per declared webhook event. A missing event is a warning,
// not an error.
func checkWebhooks(schema *SchemaDef, hooks *driver.WebhookInfo) []driver.ValidationError {
	var errs []driver.ValidationError

	root := schema.findType(rootTypeName)
	if root == nil || !hasWebhookAffordance(root) {
		errs = append(errs, driver.ValidationError{
			Component:  driver.ComponentSchema,
			Message:    "API declares webhook support but the root type has no webhook affordance",
			Path:       rootTypeName,
			Severity:   driver.SeverityError,
			Suggestion: "Add a webhook-handling field or action to the Root type",
		})
	}

	for _, raw := range hooks.Events {
		event := lowerCamel(raw)
		if anyTypeHasEvent(schema, event) {
			continue
		}
		errs = append(errs, driver.ValidationError{
			Component:  driver.ComponentSchema,
			Message:    fmt.Sprintf("no schema event for webhook event %q", raw),
			Path:       event,
			Severity:   driver.SeverityWarning,
			Suggestion: fmt.Sprintf("Declare an event named %q", event),
		})
	}

	return errs
}

func hasWebhookAffordance(t *TypeDef) bool {
	for _, f := range t.Fields {
		if strings.Contains(strings.ToLower(f.Name), "webhook") {
			return true
		}
	}
	for _, a := range t.Actions {
		if strings.Contains(strings.ToLower(a.Name), "webhook") {
			return true
		}
	}
	return false
}

func anyTypeHasEvent(schema *SchemaDef, name string) bool {
	for _, t := range schema.Types {
		if t.hasEvent(name) {
			return true
		}
	}
	return false
}

// checkPagination requires at least one collection type exposing both an
// "items" and a "next" field.
func checkPagination(schema *SchemaDef) []driver.ValidationError {
	for _, t := range schema.Types {
		if t.hasField("items") && t.hasField("next") {
			return nil
		}
	}
	return []driver.ValidationError{{
		Component:  driver.ComponentSchema,
		Message:    `API is paginated but no collection type exposes both "items" and "next" fields`,
		Severity:   driver.SeverityError,
		Suggestion: `Add "items" and "next" fields to the collection types so pages can be traversed`,
	}}
}

// =============================================================================
// NAME HELPERS
// =============================================================================

func upperFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// singularize strips a plural suffix from a path segment. Handles the
// common REST cases (widgets, statuses); irregular plurals pass through.
func singularize(s string) string {
	switch {
	case strings.HasSuffix(s, "ies"):
		return s[:len(s)-3] + "y"
	case strings.HasSuffix(s, "ses"):
		return s[:len(s)-2]
	case strings.HasSuffix(s, "s") && !strings.HasSuffix(s, "ss"):
		return s[:len(s)-1]
	default:
		return s
	}
}

// lowerCamel normalizes a dotted or dashed event name to lowerCamelCase:
// "item.created" -> "itemCreated".
func lowerCamel(s string) string {
	parts := strings.FieldsFunc(s, func(r rune) bool {
		return r == '.' || r == '-' || r == '_' || r == ' '
	})
	if len(parts) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString(strings.ToLower(parts[0]))
	for _, p := range parts[1:] {
		b.WriteString(upperFirst(strings.ToLower(p)))
	}
	return b.String()
}
