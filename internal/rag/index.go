// Package rag maintains the retrieval index that feeds example context into
// generation prompts. Entries are grouped into namespaces (one per artifact
// kind), embedded on insert, and queried by cosine similarity with ties
// broken by insertion order.
package rag

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"driverforge/internal/embedding"
	"driverforge/internal/logging"
)

// maxConcurrentEmbeds bounds parallel embedding calls during bulk loads.
const maxConcurrentEmbeds = 4

// Document is a titled chunk of text to index.
type Document struct {
	Title   string
	Content string
}

// Match is a query result with its similarity score.
type Match struct {
	ID      string
	Title   string
	Content string
	Score   float64
}

// PersistedEntry is the storable form of an index entry.
type PersistedEntry struct {
	Namespace string
	ID        string
	Title     string
	Content   string
	Vector    []float32
	Position  int
}

// Persistence is the optional write-through backing for the index. The
// state store implements it; a nil Persistence keeps the index in memory
// only.
type Persistence interface {
	SaveVectorEntry(ctx context.Context, e PersistedEntry) error
	LoadVectorEntries(ctx context.Context) ([]PersistedEntry, error)
}

type entry struct {
	id      string
	title   string
	content string
	vector  []float32
}

// Index is an in-memory vector index with optional persistence.
type Index struct {
	engine  embedding.Engine
	persist Persistence

	mu         sync.RWMutex
	namespaces map[string][]*entry // slice order is insertion order
}

// NewIndex creates an index over the given engine. When persist is non-nil,
// previously saved entries are reloaded (already embedded) and subsequent
// adds write through.
func NewIndex(ctx context.Context, engine embedding.Engine, persist Persistence) (*Index, error) {
	idx := &Index{
		engine:     engine,
		persist:    persist,
		namespaces: make(map[string][]*entry),
	}

	if persist != nil {
		saved, err := persist.LoadVectorEntries(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to reload index: %w", err)
		}
		sort.SliceStable(saved, func(i, j int) bool {
			if saved[i].Namespace != saved[j].Namespace {
				return saved[i].Namespace < saved[j].Namespace
			}
			return saved[i].Position < saved[j].Position
		})
		for _, pe := range saved {
			idx.insertLocked(pe.Namespace, &entry{
				id:      pe.ID,
				title:   pe.Title,
				content: pe.Content,
				vector:  pe.Vector,
			})
		}
		logging.RAG("Reloaded %d persisted index entries", len(saved))
	}

	return idx, nil
}

// insertLocked inserts or replaces an entry. Replacing keeps the entry's
// original position in the namespace, so its insertion rank is stable.
// Caller must hold mu (or have exclusive access during construction).
func (x *Index) insertLocked(namespace string, e *entry) int {
	entries := x.namespaces[namespace]
	for i, existing := range entries {
		if existing.id == e.id {
			entries[i] = e
			return i
		}
	}
	x.namespaces[namespace] = append(entries, e)
	return len(entries)
}

// Add embeds a document and stores it under (namespace, id). Re-adding an
// existing id replaces the entry in place.
func (x *Index) Add(ctx context.Context, namespace, id string, doc Document) error {
	text := doc.Title + "\n" + doc.Content
	vector, err := x.engine.Embed(ctx, text)
	if err != nil {
		return fmt.Errorf("failed to embed document %s/%s: %w", namespace, id, err)
	}

	x.mu.Lock()
	position := x.insertLocked(namespace, &entry{
		id:      id,
		title:   doc.Title,
		content: doc.Content,
		vector:  vector,
	})
	x.mu.Unlock()

	logging.RAGDebug("Indexed %s/%s at position %d (%d bytes)", namespace, id, position, len(doc.Content))

	if x.persist != nil {
		if err := x.persist.SaveVectorEntry(ctx, PersistedEntry{
			Namespace: namespace,
			ID:        id,
			Title:     doc.Title,
			Content:   doc.Content,
			Vector:    vector,
			Position:  position,
		}); err != nil {
			return fmt.Errorf("failed to persist index entry %s/%s: %w", namespace, id, err)
		}
	}

	return nil
}

// AddBatch embeds and indexes documents under sequential ids, bounding
// embedding concurrency. Insertion order follows the docs slice.
func (x *Index) AddBatch(ctx context.Context, namespace string, ids []string, docs []Document) error {
	if len(ids) != len(docs) {
		return fmt.Errorf("ids and docs length mismatch: %d != %d", len(ids), len(docs))
	}

	vectors := make([][]float32, len(docs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentEmbeds)

	for i := range docs {
		g.Go(func() error {
			vec, err := x.engine.Embed(gctx, docs[i].Title+"\n"+docs[i].Content)
			if err != nil {
				return fmt.Errorf("failed to embed document %s/%s: %w", namespace, ids[i], err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	// Insert sequentially so insertion order matches the input order.
	for i := range docs {
		x.mu.Lock()
		position := x.insertLocked(namespace, &entry{
			id:      ids[i],
			title:   docs[i].Title,
			content: docs[i].Content,
			vector:  vectors[i],
		})
		x.mu.Unlock()

		if x.persist != nil {
			if err := x.persist.SaveVectorEntry(ctx, PersistedEntry{
				Namespace: namespace,
				ID:        ids[i],
				Title:     docs[i].Title,
				Content:   docs[i].Content,
				Vector:    vectors[i],
				Position:  position,
			}); err != nil {
				return fmt.Errorf("failed to persist index entry %s/%s: %w", namespace, ids[i], err)
			}
		}
	}

	logging.RAG("Indexed %d documents into namespace %s", len(docs), namespace)
	return nil
}

// Query scores every entry in the namespace against the query vector and
// returns the topN matches by descending similarity. Ties keep insertion
// order. An unknown or empty namespace returns an empty result.
func (x *Index) Query(ctx context.Context, namespace string, vector []float32, topN int) ([]Match, error) {
	x.mu.RLock()
	entries := x.namespaces[namespace]
	matches := make([]Match, 0, len(entries))
	for _, e := range entries {
		score, err := embedding.CosineSimilarity(vector, e.vector)
		if err != nil {
			x.mu.RUnlock()
			return nil, fmt.Errorf("failed to score %s/%s: %w", namespace, e.id, err)
		}
		matches = append(matches, Match{
			ID:      e.id,
			Title:   e.title,
			Content: e.content,
			Score:   score,
		})
	}
	x.mu.RUnlock()

	// Stable sort preserves insertion order among equal scores.
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})

	if topN > 0 && len(matches) > topN {
		matches = matches[:topN]
	}
	return matches, nil
}

// QueryText embeds the query text and delegates to Query.
func (x *Index) QueryText(ctx context.Context, namespace, text string, topN int) ([]Match, error) {
	vector, err := x.engine.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	return x.Query(ctx, namespace, vector, topN)
}

// Len reports the number of entries in a namespace.
func (x *Index) Len(namespace string) int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.namespaces[namespace])
}
