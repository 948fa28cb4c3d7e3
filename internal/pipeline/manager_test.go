package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.uber.org/goleak"

	"driverforge/internal/config"
	"driverforge/internal/driver"
)

func TestMain(m *testing.M) {
	// go.opencensus.io (pulled in transitively via google.golang.org/genai)
	// starts a background worker goroutine at package init that never exits.
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("go.opencensus.io/stats/view.(*worker).start"),
	)
}

const analyzeResp = "```json\n" + `{
  "base_url": "https://api.example.com",
  "endpoints": [
    {"method": "GET", "path": "/widgets/{id}"},
    {"method": "POST", "path": "/widgets"}
  ],
  "data_models": [
    {"name": "Widget", "fields": [
      {"name": "id", "type": "string", "required": true},
      {"name": "name", "type": "string", "required": true}
    ]}
  ]
}` + "\n```"

const validSchema = `{
  "schema": {
    "types": [
      {"name": "Root", "fields": [{"name": "widgets", "type": "WidgetCollection"}]},
      {"name": "Widget",
       "fields": [{"name": "id"}, {"name": "name"}],
       "actions": [{"name": "delete"}]},
      {"name": "WidgetCollection",
       "fields": [{"name": "one"}, {"name": "items"}],
       "actions": [{"name": "create"}]}
    ]
  }
}`

// invalidSchema is missing the create action the POST /widgets endpoint
// requires, so validation fails with an actionable suggestion.
var invalidSchema = strings.Replace(validSchema, `"actions": [{"name": "create"}]`, `"actions": []`, 1)

const validCode = "```go\n" + `package driver

import "context"

type Root struct {
	Widgets string
}

type Widget struct {
	ID   string
	Name string
}

func (w *Widget) Delete(ctx context.Context) error { return nil }

type WidgetCollection struct{}

func (c *WidgetCollection) One(ctx context.Context, id string) (*Widget, error) {
	return nil, nil
}

func (c *WidgetCollection) Items(ctx context.Context) ([]*Widget, error) {
	return nil, nil
}

func (c *WidgetCollection) Create(ctx context.Context, name string) (*Widget, error) {
	return nil, nil
}
` + "\n```"

func workingMock() *mockClient {
	return &mockClient{
		analyzeResp:  analyzeResp,
		schemaResp:   validSchema,
		codeResp:     validCode,
		docsResp:     "# Widget driver\n\nTalks to the widget API.",
		manifestResp: `{"name": "widgets", "version": "1.0.0"}`,
	}
}

func newTestManager(client *mockClient) *Manager {
	return NewManager(client, nil, nil, config.PipelineConfig{MaxImproveIterations: 3})
}

func TestGenerateDriverRunsStagesInOrder(t *testing.T) {
	client := workingMock()
	m := newTestManager(client)

	set, err := m.GenerateDriver(context.Background(), "widget api spec", "widgets")
	if err != nil {
		t.Fatalf("GenerateDriver failed: %v", err)
	}

	wantCalls := []string{"analyze", "schema", "code", "docs", "manifest"}
	if diff := cmp.Diff(wantCalls, client.callLog()); diff != "" {
		t.Errorf("stage order (-want +got):\n%s", diff)
	}

	if !set.Validity.IsValid {
		t.Errorf("expected valid driver, findings: %+v", set.Validity.Errors)
	}
	if set.State != driver.StateValid {
		t.Errorf("state = %s, want valid", set.State)
	}
	for _, p := range driver.Parts() {
		if set.Files.Get(p) == "" {
			t.Errorf("artifact %s is empty", p)
		}
	}
	if strings.Contains(set.Files.Code, "```") {
		t.Error("code artifact still contains fences")
	}

	if len(set.Checkpoints) != 1 || set.Checkpoints[0].Message != "Initial generation" {
		t.Errorf("checkpoints = %+v", set.Checkpoints)
	}
	if set.CurrentCheckpointIndex != 0 {
		t.Errorf("pointer = %d, want 0", set.CurrentCheckpointIndex)
	}
}

// An invalid generation is a normal result, not an error.
func TestGenerateDriverReturnsInvalidSet(t *testing.T) {
	client := workingMock()
	client.schemaResp = invalidSchema
	m := newTestManager(client)

	set, err := m.GenerateDriver(context.Background(), "spec", "widgets")
	if err != nil {
		t.Fatalf("GenerateDriver failed: %v", err)
	}
	if set.Validity.IsValid {
		t.Fatal("expected invalid driver")
	}
	if set.Validity.Plan == nil || set.Validity.Plan.FirstSuggestion() == "" {
		t.Error("invalid driver should carry an improvement plan")
	}
	if len(set.Checkpoints) != 1 {
		t.Errorf("expected the initial checkpoint, got %d", len(set.Checkpoints))
	}
}

// A second generation under the same name must fail without touching the
// first artifact set.
func TestGenerateDriverDuplicateName(t *testing.T) {
	m := newTestManager(workingMock())
	ctx := context.Background()

	first, err := m.GenerateDriver(ctx, "spec", "widgets")
	if err != nil {
		t.Fatalf("first generation failed: %v", err)
	}
	filesBefore := first.Files
	checkpointsBefore := len(first.Checkpoints)

	_, err = m.GenerateDriver(ctx, "other spec", "widgets")
	if !errors.Is(err, driver.ErrDuplicateName) {
		t.Fatalf("second generation err = %v, want ErrDuplicateName", err)
	}

	if diff := cmp.Diff(filesBefore, first.Files); diff != "" {
		t.Errorf("first set mutated (-before +after):\n%s", diff)
	}
	if len(first.Checkpoints) != checkpointsBefore {
		t.Error("duplicate attempt changed the first set's history")
	}
}

// A failed stage leaves no half-registered driver behind.
func TestGenerateDriverStageFailureUnregisters(t *testing.T) {
	client := workingMock()
	client.analyzeResp = "this is not json at all"
	m := newTestManager(client)
	ctx := context.Background()

	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err == nil {
		t.Fatal("expected analysis failure")
	}

	// The name is free again.
	client.analyzeResp = analyzeResp
	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err != nil {
		t.Fatalf("retry after failure: %v", err)
	}
}

func TestValidateAndImproveStopsWhenValid(t *testing.T) {
	client := workingMock()
	m := newTestManager(client)
	ctx := context.Background()

	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err != nil {
		t.Fatal(err)
	}

	set, err := m.ValidateAndImprove(ctx, "widgets")
	if err != nil {
		t.Fatalf("ValidateAndImprove failed: %v", err)
	}

	if set.State != driver.StateValid {
		t.Errorf("state = %s, want valid", set.State)
	}
	if client.countCalls("improve-schema") != 0 {
		t.Error("valid driver must not be improved")
	}
	last, _ := latestMessage(set)
	if last != "Validation succeeded" {
		t.Errorf("last checkpoint = %q", last)
	}
}

// The improvement loop is hard-capped regardless of how persistently
// validation fails.
func TestValidateAndImproveBounded(t *testing.T) {
	client := workingMock()
	client.schemaResp = invalidSchema
	client.improveSchemaResp = invalidSchema
	m := newTestManager(client)
	ctx := context.Background()

	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err != nil {
		t.Fatal(err)
	}

	set, err := m.ValidateAndImprove(ctx, "widgets")
	if err != nil {
		t.Fatalf("ValidateAndImprove failed: %v", err)
	}

	if got := client.countCalls("improve-schema"); got != 3 {
		t.Errorf("improvement iterations = %d, want exactly 3", got)
	}
	if set.State != driver.StateExhausted {
		t.Errorf("state = %s, want exhausted", set.State)
	}
	last, _ := latestMessage(set)
	if last != "Max iterations reached" {
		t.Errorf("last checkpoint = %q", last)
	}
}

// A repair that fixes the schema ends the loop early.
func TestValidateAndImproveConverges(t *testing.T) {
	client := workingMock()
	client.schemaResp = invalidSchema
	client.improveSchemaFn = func(n int) string {
		if n >= 2 {
			return validSchema
		}
		return invalidSchema
	}
	m := newTestManager(client)
	ctx := context.Background()

	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err != nil {
		t.Fatal(err)
	}

	set, err := m.ValidateAndImprove(ctx, "widgets")
	if err != nil {
		t.Fatalf("ValidateAndImprove failed: %v", err)
	}

	if set.State != driver.StateValid {
		t.Errorf("state = %s, want valid", set.State)
	}
	if got := client.countCalls("improve-schema"); got != 2 {
		t.Errorf("improvement iterations = %d, want 2", got)
	}
	last, _ := latestMessage(set)
	if last != "Validation succeeded" {
		t.Errorf("last checkpoint = %q", last)
	}
}

func TestImproveSpecificPartCheckpointsAroundAttempt(t *testing.T) {
	client := workingMock()
	client.improveCodeResp = validCode
	m := newTestManager(client)
	ctx := context.Background()

	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err != nil {
		t.Fatal(err)
	}

	before, _ := m.GetDriverCheckpoints(ctx, "widgets")

	set, err := m.ImproveSpecificPart(ctx, "widgets", "tighten error handling", "code")
	if err != nil {
		t.Fatalf("ImproveSpecificPart failed: %v", err)
	}

	after, _ := m.GetDriverCheckpoints(ctx, "widgets")
	if len(after) != len(before)+2 {
		t.Fatalf("checkpoints went %d -> %d, want +2", len(before), len(after))
	}

	pre := after[len(after)-2]
	post := after[len(after)-1]
	if !strings.Contains(pre.Message, "Before targeted improvement") {
		t.Errorf("pre-checkpoint message = %q", pre.Message)
	}
	if !strings.Contains(post.Message, "succeeded") {
		t.Errorf("post-checkpoint message = %q", post.Message)
	}
	if set.State != driver.StateValid {
		t.Errorf("state = %s, want valid", set.State)
	}
}

func TestImproveSpecificPartUnknownTarget(t *testing.T) {
	m := newTestManager(workingMock())
	if _, err := m.ImproveSpecificPart(context.Background(), "widgets", "fb", "binary"); err == nil {
		t.Fatal("expected an error for unknown target")
	}
}

func TestRollbackDriver(t *testing.T) {
	client := workingMock()
	client.improveCodeResp = validCode
	m := newTestManager(client)
	ctx := context.Background()

	set, err := m.GenerateDriver(ctx, "spec", "widgets")
	if err != nil {
		t.Fatal(err)
	}
	codeAtGeneration := set.Files.Code

	if _, err := m.ImproveSpecificPart(ctx, "widgets", "rewrite", "code"); err != nil {
		t.Fatal(err)
	}

	restored, err := m.RollbackDriver(ctx, "widgets", 0)
	if err != nil {
		t.Fatalf("RollbackDriver failed: %v", err)
	}
	if restored.Files.Code != codeAtGeneration {
		t.Error("rollback did not restore the generated code")
	}

	if _, err := m.RollbackDriver(ctx, "widgets", 42); !errors.Is(err, driver.ErrCheckpointNotFound) {
		t.Errorf("unknown checkpoint err = %v", err)
	}
}

func TestDeleteDriver(t *testing.T) {
	m := newTestManager(workingMock())
	ctx := context.Background()

	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err != nil {
		t.Fatal(err)
	}
	if err := m.DeleteDriver(ctx, "widgets"); err != nil {
		t.Fatalf("DeleteDriver failed: %v", err)
	}

	if _, err := m.GetDriver(ctx, "widgets"); !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("after delete err = %v, want ErrNotFound", err)
	}

	// The name is reusable.
	if _, err := m.GenerateDriver(ctx, "spec", "widgets"); err != nil {
		t.Fatalf("regeneration after delete: %v", err)
	}
}

func TestOperationsOnUnknownDriver(t *testing.T) {
	m := newTestManager(workingMock())
	ctx := context.Background()

	if _, err := m.ValidateDriver(ctx, "ghost"); !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("ValidateDriver err = %v", err)
	}
	if _, err := m.ValidateAndImprove(ctx, "ghost"); !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("ValidateAndImprove err = %v", err)
	}
	if err := m.DeleteDriver(ctx, "ghost"); !errors.Is(err, driver.ErrNotFound) {
		t.Errorf("DeleteDriver err = %v", err)
	}
}

func latestMessage(set *driver.ArtifactSet) (string, bool) {
	if len(set.Checkpoints) == 0 {
		return "", false
	}
	return set.Checkpoints[len(set.Checkpoints)-1].Message, true
}
