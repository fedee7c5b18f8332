package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/sandbox"
)

// EngineConfig is the configuration for the fake engine.
type EngineConfig struct {
	Logger log.Logger
}

func (c *EngineConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "sandbox.Fake"})
	return nil
}

// Engine is a fake implementation of sandbox.Engine. It simulates runs
// without containers: results can be scripted per source, and every received
// spec is recorded so tests can assert what (and whether) something executed.
type Engine struct {
	mu      sync.Mutex
	results map[string]model.ExecutionResult
	runs    []model.RunSpec
	logger  log.Logger
}

var _ sandbox.Engine = (*Engine)(nil)

// NewEngine creates a new fake engine.
func NewEngine(cfg EngineConfig) (*Engine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Engine{
		results: map[string]model.ExecutionResult{},
		logger:  cfg.Logger,
	}, nil
}

// ScriptResult sets the result returned for a given source.
func (e *Engine) ScriptResult(source string, result model.ExecutionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results[source] = result
}

// Runs returns a copy of every spec the engine received.
func (e *Engine) Runs() []model.RunSpec {
	e.mu.Lock()
	defer e.mu.Unlock()
	runs := make([]model.RunSpec, len(e.runs))
	copy(runs, e.runs)
	return runs
}

// RunCount returns how many times Run was invoked.
func (e *Engine) RunCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.runs)
}

// Check always passes.
func (e *Engine) Check(ctx context.Context) []model.CheckResult {
	return []model.CheckResult{
		{ID: "fake_engine", Message: "Fake engine ready", Status: model.CheckStatusOK},
	}
}

// Run records the spec and returns the scripted result, or a generic
// completed result when nothing was scripted.
func (e *Engine) Run(ctx context.Context, spec model.RunSpec) (*model.ExecutionResult, error) {
	if err := spec.Validate(); err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.runs = append(e.runs, spec)
	result, ok := e.results[spec.Source]
	e.mu.Unlock()

	if !ok {
		result = model.ExecutionResult{
			Status:   model.ExecStatusCompleted,
			Stdout:   fmt.Sprintf("fake output for %s\n", spec.Language),
			ExitCode: 0,
			Duration: time.Millisecond,
		}
	}

	e.logger.Debugf("Fake run for %s source (%d bytes)", spec.Language, len(spec.Source))
	return &result, nil
}
