package main

import (
	"context"
	"path/filepath"

	"driverforge/internal/config"
	"driverforge/internal/embedding"
	"driverforge/internal/llm"
	"driverforge/internal/logging"
	"driverforge/internal/pipeline"
	"driverforge/internal/rag"
	"driverforge/internal/store"
)

// app bundles the wired collaborators for one command invocation.
type app struct {
	store   *store.Store
	index   *rag.Index
	manager *pipeline.Manager

	watcher       *config.Watcher
	cancelWatcher context.CancelFunc
}

// newApp opens the store and wires the index, LLM client, and pipeline
// manager. A failing embedding engine degrades to a nil index (generation
// proceeds without retrieval examples) rather than failing the command.
func newApp(ctx context.Context) (*app, error) {
	dbPath := cfg.Store.DatabasePath
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(workspace, dbPath)
	}
	st, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}

	var index *rag.Index
	engine, err := embedding.NewEngine(cfg.Embedding)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("Embedding engine unavailable, retrieval disabled: %v", err)
	} else {
		index, err = rag.NewIndex(ctx, engine, st)
		if err != nil {
			logging.Get(logging.CategoryRAG).Warn("Index reload failed, retrieval disabled: %v", err)
			index = nil
		}
	}

	a := &app{
		store:   st,
		index:   index,
		manager: pipeline.NewManager(llm.NewGeminiClient(cfg.LLM), index, st, cfg.Pipeline),
	}

	// Hot reload of log categories during long pipeline runs.
	if w, err := config.NewWatcher(workspace); err == nil {
		wctx, cancel := context.WithCancel(ctx)
		a.watcher = w
		a.cancelWatcher = cancel
		go w.Run(wctx)
	}

	return a, nil
}

func (a *app) close() {
	if a.cancelWatcher != nil {
		a.cancelWatcher()
	}
	if a.watcher != nil {
		a.watcher.Close()
	}
	a.store.Close()
}
