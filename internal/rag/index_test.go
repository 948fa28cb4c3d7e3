package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// fakeEngine embeds deterministically: the vector is keyed off tokens in
// the text, so related texts score high without a model.
type fakeEngine struct {
	mu     sync.Mutex
	embeds int
}

var tokens = []string{"alpha", "beta", "gamma", "delta"}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	f.mu.Lock()
	f.embeds++
	f.mu.Unlock()
	vec := make([]float32, len(tokens))
	for i, tok := range tokens {
		if strings.Contains(text, tok) {
			vec[i] = 1
		}
	}
	return vec, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return len(tokens) }
func (f *fakeEngine) Name() string    { return "fake" }

// memPersist is an in-memory Persistence for reload tests.
type memPersist struct {
	entries map[string]PersistedEntry
}

func (p *memPersist) SaveVectorEntry(ctx context.Context, e PersistedEntry) error {
	if p.entries == nil {
		p.entries = make(map[string]PersistedEntry)
	}
	p.entries[e.Namespace+"/"+e.ID] = e
	return nil
}

func (p *memPersist) LoadVectorEntries(ctx context.Context) ([]PersistedEntry, error) {
	var out []PersistedEntry
	for _, e := range p.entries {
		out = append(out, e)
	}
	return out, nil
}

func TestQueryRanksBySimilarity(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, &fakeEngine{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	docs := map[string]string{
		"a": "alpha beta",
		"b": "alpha",
		"c": "gamma delta",
	}
	for id, content := range docs {
		if err := idx.Add(ctx, "schemas", id, Document{Title: id, Content: content}); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := idx.QueryText(ctx, "schemas", "alpha beta", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 2 {
		t.Fatalf("got %d matches, want 2", len(matches))
	}
	if matches[0].ID != "a" {
		t.Errorf("best match = %s, want a", matches[0].ID)
	}
	if matches[1].ID != "b" {
		t.Errorf("second match = %s, want b", matches[1].ID)
	}
}

// Equal scores must resolve by insertion order.
func TestQueryTiesBreakByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, &fakeEngine{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// Same content, identical vectors, inserted in a known order.
	for _, id := range []string{"third", "first", "second"} {
		if err := idx.Add(ctx, "ns", id, Document{Title: id, Content: "alpha"}); err != nil {
			t.Fatal(err)
		}
	}

	matches, err := idx.QueryText(ctx, "ns", "alpha", 0)
	if err != nil {
		t.Fatal(err)
	}

	var got []string
	for _, m := range matches {
		got = append(got, m.ID)
	}
	want := []string{"third", "first", "second"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("tie order (-want +got):\n%s", diff)
	}
}

func TestQueryEmptyNamespace(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, &fakeEngine{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Query(ctx, "nothing-here", []float32{1, 0, 0, 0}, 5)
	if err != nil {
		t.Fatalf("empty namespace must not error: %v", err)
	}
	if len(matches) != 0 {
		t.Errorf("got %d matches from an empty namespace", len(matches))
	}
}

// A zero-magnitude stored vector scores 0, it does not fail the query.
func TestQueryZeroVectorScoresZero(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, &fakeEngine{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	// No recognized tokens -> all-zero embedding.
	if err := idx.Add(ctx, "ns", "void", Document{Content: "nothing recognizable"}); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.Query(ctx, "ns", []float32{1, 1, 0, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(matches) != 1 || matches[0].Score != 0 {
		t.Errorf("matches = %+v, want one zero-score match", matches)
	}
}

// Re-adding a key replaces the entry without changing its insertion rank.
func TestAddReplacesInPlace(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, &fakeEngine{}, nil)
	if err != nil {
		t.Fatal(err)
	}

	for _, id := range []string{"x", "y", "z"} {
		if err := idx.Add(ctx, "ns", id, Document{Content: "alpha"}); err != nil {
			t.Fatal(err)
		}
	}
	if err := idx.Add(ctx, "ns", "x", Document{Title: "updated", Content: "alpha"}); err != nil {
		t.Fatal(err)
	}

	if idx.Len("ns") != 3 {
		t.Fatalf("Len = %d after replace, want 3", idx.Len("ns"))
	}

	matches, err := idx.QueryText(ctx, "ns", "alpha", 0)
	if err != nil {
		t.Fatal(err)
	}
	if matches[0].ID != "x" || matches[0].Title != "updated" {
		t.Errorf("first match = %+v, want updated x at its original rank", matches[0])
	}
}

func TestAddBatchPreservesOrder(t *testing.T) {
	ctx := context.Background()
	engine := &fakeEngine{}
	idx, err := NewIndex(ctx, engine, nil)
	if err != nil {
		t.Fatal(err)
	}

	var ids []string
	var docs []Document
	for i := 0; i < 10; i++ {
		ids = append(ids, fmt.Sprintf("doc-%d", i))
		docs = append(docs, Document{Content: "alpha"})
	}
	if err := idx.AddBatch(ctx, "bulk", ids, docs); err != nil {
		t.Fatal(err)
	}

	matches, err := idx.QueryText(ctx, "bulk", "alpha", 0)
	if err != nil {
		t.Fatal(err)
	}
	for i, m := range matches {
		if m.ID != ids[i] {
			t.Fatalf("order broken at %d: %s", i, m.ID)
		}
	}
}

func TestAddBatchLengthMismatch(t *testing.T) {
	ctx := context.Background()
	idx, err := NewIndex(ctx, &fakeEngine{}, nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := idx.AddBatch(ctx, "ns", []string{"a"}, nil); err == nil {
		t.Fatal("expected a length mismatch error")
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	persist := &memPersist{}

	idx, err := NewIndex(ctx, &fakeEngine{}, persist)
	if err != nil {
		t.Fatal(err)
	}
	for _, id := range []string{"one", "two"} {
		if err := idx.Add(ctx, "ns", id, Document{Title: id, Content: "alpha"}); err != nil {
			t.Fatal(err)
		}
	}

	// A new index over the same persistence sees the entries without
	// re-embedding them.
	engine := &fakeEngine{}
	reloaded, err := NewIndex(ctx, engine, persist)
	if err != nil {
		t.Fatal(err)
	}
	if engine.embeds != 0 {
		t.Errorf("reload re-embedded %d entries", engine.embeds)
	}
	if reloaded.Len("ns") != 2 {
		t.Errorf("reloaded Len = %d, want 2", reloaded.Len("ns"))
	}

	matches, err := reloaded.QueryText(ctx, "ns", "alpha", 0)
	if err != nil {
		t.Fatal(err)
	}
	var got []string
	for _, m := range matches {
		got = append(got, m.ID)
	}
	if diff := cmp.Diff([]string{"one", "two"}, got); diff != "" {
		t.Errorf("reloaded order (-want +got):\n%s", diff)
	}
}
