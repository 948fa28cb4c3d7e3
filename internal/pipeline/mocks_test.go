package pipeline

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// mockClient scripts completions per instruction. Generation and
// improvement prompts are recognized by their instruction text, so tests
// can count how often each agent ran.
type mockClient struct {
	mu    sync.Mutex
	calls []string

	analyzeResp  string
	schemaResp   string
	codeResp     string
	docsResp     string
	manifestResp string

	// improveSchemaResp is returned for schema improvement prompts; when
	// improveSchemaFn is set it is called instead with the current count.
	improveSchemaResp string
	improveSchemaFn   func(n int) string
	improveCodeResp   string

	err error
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	return m.CompleteWithSystem(ctx, "", prompt)
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	if m.err != nil {
		return "", m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case strings.Contains(user, "Analyze the API specification"):
		m.calls = append(m.calls, "analyze")
		return m.analyzeResp, nil
	case strings.Contains(user, "Generate the memconfig schema"):
		m.calls = append(m.calls, "schema")
		return m.schemaResp, nil
	case strings.Contains(user, "Generate the Go driver"):
		m.calls = append(m.calls, "code")
		return m.codeResp, nil
	case strings.Contains(user, "Write a README"):
		m.calls = append(m.calls, "docs")
		return m.docsResp, nil
	case strings.Contains(user, "package manifest"):
		m.calls = append(m.calls, "manifest")
		return m.manifestResp, nil
	case strings.Contains(user, "Rewrite memconfig.json"):
		m.calls = append(m.calls, "improve-schema")
		if m.improveSchemaFn != nil {
			return m.improveSchemaFn(m.count("improve-schema")), nil
		}
		return m.improveSchemaResp, nil
	case strings.Contains(user, "Rewrite the driver source"):
		m.calls = append(m.calls, "improve-code")
		return m.improveCodeResp, nil
	case strings.Contains(user, "Rewrite the README"):
		m.calls = append(m.calls, "improve-docs")
		return m.docsResp, nil
	case strings.Contains(user, "Rewrite manifest.json"):
		m.calls = append(m.calls, "improve-manifest")
		return m.manifestResp, nil
	default:
		return "", fmt.Errorf("mock has no script for prompt: %.80s", user)
	}
}

// count returns how many calls of the given kind have been recorded.
// Caller must hold mu.
func (m *mockClient) count(kind string) int {
	n := 0
	for _, c := range m.calls {
		if c == kind {
			n++
		}
	}
	return n
}

// callLog returns a copy of the recorded call sequence.
func (m *mockClient) callLog() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

func (m *mockClient) countCalls(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.count(kind)
}
