package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"driverforge/internal/driver"
	"driverforge/internal/llm"
	"driverforge/internal/logging"
	"driverforge/internal/rag"
)

// =============================================================================
// GENERATION AGENTS
// =============================================================================
// One agent per pipeline step. Each assembles its own prompt over the LLM
// client; schema and code agents pull worked examples from the retrieval
// index when one is wired.

// Index namespaces for retrieval examples.
const (
	namespaceSchemas = "schemas"
	namespaceCode    = "code"
)

// analyzeAPI turns the raw API specification into a structured summary.
// A malformed analysis response fails the stage.
func analyzeAPI(ctx context.Context, client llm.Client, spec string) (*driver.APISummary, error) {
	instruction := `Analyze the API specification above and respond with a single JSON object:
{
  "base_url": "...",
  "auth_methods": ["..."],
  "endpoints": [{"method": "GET", "path": "/things/{id}", "description": "...", "params": [{"name": "...", "type": "...", "required": true}], "response_shape": "..."}],
  "data_models": [{"name": "Thing", "fields": [{"name": "id", "type": "string", "required": true}]}],
  "pagination": {"style": "cursor"},
  "webhooks": {"supported": false, "events": []}
}
Omit "pagination" when the API does not page collections and "webhooks" when it has none.`

	response, err := llm.Generate(ctx, client, instruction, []llm.ContextBlock{
		llm.UserBlock("API specification", spec),
	})
	if err != nil {
		return nil, fmt.Errorf("API analysis failed: %w", err)
	}

	var summary driver.APISummary
	if err := json.Unmarshal([]byte(extractJSON(response)), &summary); err != nil {
		return nil, fmt.Errorf("API analysis returned malformed JSON: %w", err)
	}
	if summary.BaseURL == "" && len(summary.Endpoints) == 0 && len(summary.DataModels) == 0 {
		return nil, fmt.Errorf("API analysis returned an empty summary")
	}

	logging.Pipeline("Analyzed API: %d endpoints, %d models", len(summary.Endpoints), len(summary.DataModels))
	return &summary, nil
}

// generateSchema produces the memconfig artifact from the analyzed API.
func generateSchema(ctx context.Context, client llm.Client, index *rag.Index, examples int, api *driver.APISummary, spec string) (string, error) {
	blocks := []llm.ContextBlock{
		llm.SystemBlock("Schema format", schemaFormatHint),
	}
	blocks = append(blocks, exampleBlocks(ctx, index, namespaceSchemas, summaryText(api), examples)...)
	blocks = append(blocks,
		llm.UserBlock("Analyzed API", mustJSON(api)),
		llm.UserBlock("API specification", spec),
	)

	response, err := llm.Generate(ctx, client,
		"Generate the memconfig schema for this API. Respond with a single ```json block.", blocks)
	if err != nil {
		return "", fmt.Errorf("schema generation failed: %w", err)
	}
	return extractJSON(response), nil
}

// generateCode produces the driver implementation from schema plus API.
func generateCode(ctx context.Context, client llm.Client, index *rag.Index, examples int, api *driver.APISummary, schema string) (string, error) {
	blocks := []llm.ContextBlock{
		llm.SystemBlock("Implementation rules", codeRulesHint),
	}
	blocks = append(blocks, exampleBlocks(ctx, index, namespaceCode, summaryText(api), examples)...)
	blocks = append(blocks,
		llm.UserBlock("Memconfig schema", schema),
		llm.UserBlock("Analyzed API", mustJSON(api)),
	)

	response, err := llm.Generate(ctx, client,
		"Generate the Go driver implementing every type, field, action, and event of the schema. Respond with a single ```go block.", blocks)
	if err != nil {
		return "", fmt.Errorf("code generation failed: %w", err)
	}
	return extractCodeBlock(response, "go"), nil
}

// generateDocs produces the README from the artifacts generated so far.
func generateDocs(ctx context.Context, client llm.Client, api *driver.APISummary, files driver.Files) (string, error) {
	response, err := llm.Generate(ctx, client,
		"Write a README.md for this driver: what it connects to, its types and actions, and how to configure it. Respond with markdown only.",
		[]llm.ContextBlock{
			llm.UserBlock("Analyzed API", mustJSON(api)),
			llm.UserBlock("Memconfig schema", files.Schema),
		})
	if err != nil {
		return "", fmt.Errorf("docs generation failed: %w", err)
	}
	return stripFences(response), nil
}

// generateManifest produces the package manifest from the full artifact set.
func generateManifest(ctx context.Context, client llm.Client, name string, api *driver.APISummary, files driver.Files) (string, error) {
	response, err := llm.Generate(ctx, client,
		fmt.Sprintf("Generate a package manifest JSON for the %q driver: name, version, description, declared dependencies. Respond with a single ```json block.", name),
		[]llm.ContextBlock{
			llm.UserBlock("Memconfig schema", files.Schema),
			llm.UserBlock("Analyzed API", mustJSON(api)),
		})
	if err != nil {
		return "", fmt.Errorf("manifest generation failed: %w", err)
	}
	return extractJSON(response), nil
}

// improvePart regenerates one artifact from feedback. The current content
// and the schema travel with the prompt so the model patches rather than
// reinvents.
func improvePart(ctx context.Context, client llm.Client, part driver.Part, files driver.Files, api *driver.APISummary, feedback string) (string, error) {
	blocks := []llm.ContextBlock{
		llm.UserBlock("Current "+part.String(), files.Get(part)),
		llm.UserBlock("Feedback", feedback),
	}
	if part != driver.PartSchema {
		blocks = append(blocks, llm.UserBlock("Memconfig schema", files.Schema))
	}
	if api != nil {
		blocks = append(blocks, llm.UserBlock("Analyzed API", mustJSON(api)))
	}

	var instruction string
	switch part {
	case driver.PartCode:
		instruction = "Rewrite the driver source applying the feedback. Respond with a single ```go block containing the complete file."
	case driver.PartDocs:
		instruction = "Rewrite the README applying the feedback. Respond with markdown only."
	default:
		instruction = fmt.Sprintf("Rewrite %s applying the feedback. Respond with a single ```json block containing the complete document.", part)
	}

	response, err := llm.Generate(ctx, client, instruction, blocks)
	if err != nil {
		return "", fmt.Errorf("improvement of %s failed: %w", part, err)
	}

	switch part {
	case driver.PartCode:
		return extractCodeBlock(response, "go"), nil
	case driver.PartDocs:
		return stripFences(response), nil
	default:
		return extractJSON(response), nil
	}
}

// exampleBlocks fetches up to n similar artifacts from the index.
// Retrieval failure degrades to no examples rather than failing the stage.
func exampleBlocks(ctx context.Context, index *rag.Index, namespace, query string, n int) []llm.ContextBlock {
	if index == nil || n <= 0 || index.Len(namespace) == 0 {
		return nil
	}
	matches, err := index.QueryText(ctx, namespace, query, n)
	if err != nil {
		logging.Get(logging.CategoryRAG).Warn("Example retrieval failed for %s: %v", namespace, err)
		return nil
	}

	blocks := make([]llm.ContextBlock, 0, len(matches))
	for _, m := range matches {
		blocks = append(blocks, llm.SystemBlock("Example: "+m.Title, m.Content))
	}
	return blocks
}

// summaryText flattens an API summary into retrieval-query text.
func summaryText(api *driver.APISummary) string {
	if api == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(api.BaseURL)
	for _, m := range api.DataModels {
		b.WriteString(" " + m.Name)
	}
	for _, ep := range api.Endpoints {
		b.WriteString(" " + ep.Method + " " + ep.Path)
	}
	return b.String()
}

func mustJSON(v interface{}) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}

const schemaFormatHint = `A memconfig schema is a JSON document:
{"schema": {"types": [{"name": "Root", "fields": [...], "actions": [...], "events": [...]}]}}
Rules: there must be a "Root" type; every type declares at least one of
fields/actions/events; each resource gets a type plus a *Collection type
with a "one" field and "create"/"delete" actions; paginated collections
expose "items" and "next" fields; webhook events are lowerCamelCase.`

const codeRulesHint = `Driver implementation rules:
- one Go source file, package driver
- an exported type per schema type
- collection fields are methods, not struct fields
- every action is a method taking context.Context first and returning error last
- assemble resource values through a shared merge helper where practical`
