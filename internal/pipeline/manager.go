// Package pipeline orchestrates driver generation: five sequential
// generation stages, validation, a bounded improvement loop, and
// checkpointing around every mutation. The manager owns the artifact-set
// registry; all collaborators are injected.
//
// Concurrency: the registry map is guarded, but operations against the
// same artifact-set name assume a single writer. Concurrent pipeline calls
// on one name may interleave checkpoints and are not supported.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"driverforge/internal/checkpoint"
	"driverforge/internal/config"
	"driverforge/internal/driver"
	"driverforge/internal/llm"
	"driverforge/internal/logging"
	"driverforge/internal/rag"
	"driverforge/internal/validator"
)

// Persistence is the slice of the state store the pipeline writes through.
// A nil Persistence keeps artifact sets in memory only.
type Persistence interface {
	SaveArtifactSet(ctx context.Context, set *driver.ArtifactSet) error
	GetArtifactSet(ctx context.Context, name string) (*driver.ArtifactSet, error)
	DeleteArtifactSet(ctx context.Context, name string) error
}

// Manager runs the generate → validate → improve pipeline over a registry
// of artifact sets keyed by name.
type Manager struct {
	llm           llm.Client
	index         *rag.Index
	store         Persistence
	maxIterations int
	ragExamples   int

	mu   sync.Mutex
	sets map[string]*driver.ArtifactSet
}

// NewManager wires a pipeline manager. index and store may be nil; the
// pipeline then runs without retrieval examples or persistence.
func NewManager(client llm.Client, index *rag.Index, store Persistence, cfg config.PipelineConfig) *Manager {
	maxIterations := cfg.MaxImproveIterations
	if maxIterations <= 0 {
		maxIterations = 3
	}
	return &Manager{
		llm:           client,
		index:         index,
		store:         store,
		maxIterations: maxIterations,
		ragExamples:   cfg.RAGExamples,
		sets:          make(map[string]*driver.ArtifactSet),
	}
}

// =============================================================================
// REGISTRY
// =============================================================================

// getSet resolves a name through the in-memory registry, falling back to
// the store for sets from a previous process.
func (m *Manager) getSet(ctx context.Context, name string) (*driver.ArtifactSet, error) {
	m.mu.Lock()
	set, ok := m.sets[name]
	m.mu.Unlock()
	if ok {
		return set, nil
	}

	if m.store == nil {
		return nil, fmt.Errorf("driver %q: %w", name, driver.ErrNotFound)
	}
	set, err := m.store.GetArtifactSet(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("driver %q: %w", name, err)
	}

	m.mu.Lock()
	m.sets[name] = set
	m.mu.Unlock()
	return set, nil
}

func (m *Manager) exists(ctx context.Context, name string) bool {
	_, err := m.getSet(ctx, name)
	return err == nil
}

// persist writes the set through to the store at a stable point.
func (m *Manager) persist(ctx context.Context, set *driver.ArtifactSet) error {
	if m.store == nil {
		return nil
	}
	return m.store.SaveArtifactSet(ctx, set)
}

// =============================================================================
// OPERATIONS
// =============================================================================

// GenerateDriver runs the five generation stages in order, validates the
// result, and records the first checkpoint. An invalid driver is a normal,
// inspectable result; only stage failures and duplicate names are errors.
func (m *Manager) GenerateDriver(ctx context.Context, spec, name string) (*driver.ArtifactSet, error) {
	if name == "" {
		return nil, fmt.Errorf("driver name must not be empty")
	}
	if m.exists(ctx, name) {
		return nil, fmt.Errorf("driver %q: %w", name, driver.ErrDuplicateName)
	}

	runID := uuid.NewString()
	timer := logging.StartTimer(logging.CategoryPipeline, "GenerateDriver")
	defer timer.StopWithInfo()
	logging.Pipeline("[%s] Generating driver %q", runID, name)

	set := driver.NewArtifactSet(name, spec)
	m.mu.Lock()
	m.sets[name] = set
	m.mu.Unlock()

	for _, step := range generationSteps {
		logging.PipelineDebug("[%s] Running step %v", runID, step)
		if err := m.runStep(ctx, step, set, ""); err != nil {
			// Leave the registry clean so a retry is not a duplicate.
			m.mu.Lock()
			delete(m.sets, name)
			m.mu.Unlock()
			return nil, fmt.Errorf("step %v: %w", step, err)
		}
		set.UpdatedAt = time.Now()
	}

	set.State = driver.StateValidating
	result := validator.Execute(validator.Input{
		Code:   set.Files.Code,
		Schema: set.Files.Schema,
		API:    set.AnalyzedAPI,
	})
	set.Validity = result.Validity()
	if result.IsValid {
		set.State = driver.StateValid
	}

	checkpoint.Create(set, "Initial generation", nil)
	if err := m.persist(ctx, set); err != nil {
		return nil, err
	}

	logging.Pipeline("[%s] Generated driver %q: valid=%t", runID, name, result.IsValid)
	return set, nil
}

// ValidateDriver re-runs validation for an existing driver and records the
// verdict on the set.
func (m *Manager) ValidateDriver(ctx context.Context, name string) (validator.Result, error) {
	set, err := m.getSet(ctx, name)
	if err != nil {
		return validator.Result{}, err
	}

	result := validator.Execute(validator.Input{
		Code:   set.Files.Code,
		Schema: set.Files.Schema,
		API:    set.AnalyzedAPI,
	})
	set.Validity = result.Validity()
	if result.IsValid {
		set.State = driver.StateValid
	}
	set.UpdatedAt = time.Now()

	if err := m.persist(ctx, set); err != nil {
		return validator.Result{}, err
	}
	return result, nil
}

// ValidateAndImprove drives the bounded improvement loop: validate, and
// while invalid apply the plan's first suggestion to the schema, regenerate
// the code, and re-validate, checkpointing every state. The loop runs at
// most maxIterations times; exhaustion is a reported outcome, not an error.
func (m *Manager) ValidateAndImprove(ctx context.Context, name string) (*driver.ArtifactSet, error) {
	set, err := m.getSet(ctx, name)
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	logging.Pipeline("[%s] Improvement loop for %q (max %d iterations)", runID, name, m.maxIterations)

	for iteration := 0; iteration < m.maxIterations; iteration++ {
		set.State = driver.StateValidating
		result := validator.Execute(validator.Input{
			Code:   set.Files.Code,
			Schema: set.Files.Schema,
			API:    set.AnalyzedAPI,
		})
		set.Validity = result.Validity()

		if result.IsValid {
			set.State = driver.StateValid
			checkpoint.Create(set, "Validation succeeded", nil)
			if err := m.persist(ctx, set); err != nil {
				return nil, err
			}
			logging.Pipeline("[%s] Driver %q valid after %d iterations", runID, name, iteration)
			return set, nil
		}

		suggestion := result.Plan.FirstSuggestion()
		if suggestion == "" {
			// Invalid but nothing actionable; improving blindly would thrash.
			logging.Pipeline("[%s] Driver %q invalid with no suggestions, stopping", runID, name)
			if err := m.persist(ctx, set); err != nil {
				return nil, err
			}
			return set, nil
		}

		set.State = driver.StateImproving
		checkpoint.Create(set, fmt.Sprintf("Before improvement iteration %d", iteration+1), nil)

		if err := m.runStep(ctx, StepImproveSchema, set, suggestion); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration+1, err)
		}
		checkpoint.Create(set, fmt.Sprintf("Improved schema (iteration %d)", iteration+1), nil)

		if err := m.runStep(ctx, StepGenerateCode, set, ""); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", iteration+1, err)
		}
		checkpoint.Create(set, fmt.Sprintf("Regenerated code (iteration %d)", iteration+1), nil)

		set.State = driver.StateImproved
		if err := m.persist(ctx, set); err != nil {
			return nil, err
		}
	}

	// Final verdict for the last repair before reporting exhaustion.
	result := validator.Execute(validator.Input{
		Code:   set.Files.Code,
		Schema: set.Files.Schema,
		API:    set.AnalyzedAPI,
	})
	set.Validity = result.Validity()
	if result.IsValid {
		set.State = driver.StateValid
		checkpoint.Create(set, "Validation succeeded", nil)
	} else {
		set.State = driver.StateExhausted
		checkpoint.Create(set, "Max iterations reached", nil)
	}
	if err := m.persist(ctx, set); err != nil {
		return nil, err
	}

	logging.Pipeline("[%s] Improvement loop for %q finished: state=%s", runID, name, set.State)
	return set, nil
}

// ImproveSpecificPart applies one targeted improvement to a single
// artifact from caller feedback, checkpointing before and after. The after
// checkpoint is tagged by a follow-up validation.
func (m *Manager) ImproveSpecificPart(ctx context.Context, name, feedback, target string) (*driver.ArtifactSet, error) {
	part, err := driver.ParsePart(target)
	if err != nil {
		return nil, err
	}
	set, err := m.getSet(ctx, name)
	if err != nil {
		return nil, err
	}

	checkpoint.Create(set, fmt.Sprintf("Before targeted improvement of %s", part), nil)

	set.State = driver.StateImproving
	if err := m.runStep(ctx, improveStepFor(part), set, feedback); err != nil {
		return nil, err
	}

	result := validator.Execute(validator.Input{
		Code:   set.Files.Code,
		Schema: set.Files.Schema,
		API:    set.AnalyzedAPI,
	})
	set.Validity = result.Validity()

	message := fmt.Sprintf("Targeted improvement of %s failed validation", part)
	set.State = driver.StateImproved
	if result.IsValid {
		message = fmt.Sprintf("Targeted improvement of %s succeeded", part)
		set.State = driver.StateValid
	}
	checkpoint.Create(set, message, nil)

	if err := m.persist(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// RollbackDriver restores a driver to the given checkpoint and returns it.
func (m *Manager) RollbackDriver(ctx context.Context, name string, checkpointID int) (*driver.ArtifactSet, error) {
	set, err := m.getSet(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := checkpoint.Rollback(set, checkpointID); err != nil {
		return nil, fmt.Errorf("driver %q: %w", name, err)
	}
	if err := m.persist(ctx, set); err != nil {
		return nil, err
	}
	return set, nil
}

// GetDriverCheckpoints returns the driver's checkpoint history in order.
func (m *Manager) GetDriverCheckpoints(ctx context.Context, name string) ([]driver.Checkpoint, error) {
	set, err := m.getSet(ctx, name)
	if err != nil {
		return nil, err
	}
	return checkpoint.All(set), nil
}

// GetDriver returns the artifact set for a name.
func (m *Manager) GetDriver(ctx context.Context, name string) (*driver.ArtifactSet, error) {
	return m.getSet(ctx, name)
}

// DeleteDriver destroys a driver and its entire checkpoint history.
func (m *Manager) DeleteDriver(ctx context.Context, name string) error {
	set, err := m.getSet(ctx, name)
	if err != nil {
		return err
	}
	checkpoint.Clear(set)

	m.mu.Lock()
	delete(m.sets, name)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteArtifactSet(ctx, name); err != nil {
			return err
		}
	}
	logging.Pipeline("Deleted driver %q", name)
	return nil
}
