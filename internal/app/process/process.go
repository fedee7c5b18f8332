package process

import (
	"context"
	"errors"
	"fmt"

	"github.com/labshot/labshot/internal/answer"
	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/render"
	"github.com/labshot/labshot/internal/sandbox"
	"github.com/labshot/labshot/internal/storage"
	"github.com/labshot/labshot/internal/validate"
)

// ServiceConfig is the configuration for the process service.
type ServiceConfig struct {
	Repository storage.Repository
	Engine     sandbox.Engine
	Renderer   *render.Service
	Validator  *validate.Validator
	// Generator is optional. Without it answer tasks fail and captions fall
	// back to static text.
	Generator answer.Generator
	Logger    log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Renderer == nil {
		return fmt.Errorf("renderer is required")
	}
	if c.Validator == nil {
		validator, err := validate.NewValidator(validate.ValidatorConfig{Logger: c.Logger})
		if err != nil {
			return fmt.Errorf("could not create validator: %w", err)
		}
		c.Validator = validator
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Process"})
	return nil
}

// Service runs the task pipeline: claim, screen, execute, render, record.
type Service struct {
	repo      storage.Repository
	engine    sandbox.Engine
	renderer  *render.Service
	validator *validate.Validator
	generator answer.Generator
	logger    log.Logger
}

// NewService creates a new process service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:      cfg.Repository,
		engine:    cfg.Engine,
		renderer:  cfg.Renderer,
		validator: cfg.Validator,
		generator: cfg.Generator,
		logger:    cfg.Logger,
	}, nil
}

// ProcessNext claims the next pending task and runs it through the pipeline.
// It returns false when there was nothing to claim. A failing task is
// recorded as failed and is not an error of the pipeline itself.
func (s *Service) ProcessNext(ctx context.Context) (processed bool, err error) {
	task, err := s.repo.ClaimNextTask(ctx)
	if err != nil {
		if errors.Is(err, model.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("could not claim task: %w", err)
	}

	logger := s.logger.WithCtxValues(ctx).WithValues(log.Kv{"batch-id": task.BatchID, "task-id": task.ID, "kind": task.Kind})
	logger.Debugf("Claimed task")

	result, runErr := s.runPipeline(ctx, task)

	// The terminal status write uses a detached context: a shutdown that
	// cancels the run mid task must still record the outcome, otherwise the
	// task is stranded as running and its batch never settles.
	recordCtx := context.WithoutCancel(ctx)

	if runErr != nil {
		logger.Warningf("Task failed: %s", runErr)
		if err := s.repo.FailTask(recordCtx, task.ID, runErr.Error(), result); err != nil {
			return true, fmt.Errorf("could not record task failure: %w", err)
		}
		return true, nil
	}

	if err := s.repo.CompleteTask(recordCtx, task.ID, *result); err != nil {
		return true, fmt.Errorf("could not record task result: %w", err)
	}

	logger.Infof("Task completed")

	return true, nil
}

// runPipeline executes one task. The returned result may be non nil even on
// error, carrying whatever the task produced before failing.
func (s *Service) runPipeline(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	if err := s.screen(task); err != nil {
		return nil, err
	}

	switch task.Kind {
	case model.TaskKindAnswerRequest:
		return s.runAnswer(ctx, task)
	case model.TaskKindScreenshotOnly:
		return s.runRenderOnly(ctx, task)
	case model.TaskKindCodeExecution, model.TaskKindProjectMultiFile:
		return s.runExecution(ctx, task)
	default:
		return nil, fmt.Errorf("unknown task kind %q: %w", task.Kind, model.ErrNotValid)
	}
}

// screen runs the source safety screen on every piece of code the task
// carries, before anything reaches the engine. A rejection fails the task
// only, its siblings keep running. Answer requests carry no code to run and
// are not screened.
func (s *Service) screen(task *model.Task) error {
	if task.Kind == model.TaskKindAnswerRequest {
		return nil
	}

	if task.Source != "" {
		if err := s.validator.Validate(task.Source, task.Language); err != nil {
			return err
		}
	}

	for name, content := range task.Files {
		if err := s.validator.Validate(content, task.Language); err != nil {
			return fmt.Errorf("file %s: %w", name, err)
		}
	}

	return nil
}

func (s *Service) runAnswer(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	if s.generator == nil {
		return nil, fmt.Errorf("no answer generator configured")
	}

	text, err := s.generator.Answer(ctx, task.Question, task.Source)
	if err != nil {
		return nil, fmt.Errorf("could not generate answer: %w", err)
	}

	return &model.TaskResult{Answer: text}, nil
}

func (s *Service) runRenderOnly(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	result := &model.TaskResult{}

	artifacts, err := s.render(ctx, task, nil)
	if err != nil {
		return result, err
	}
	result.ArtifactIDs = artifactIDs(artifacts)
	result.Caption = s.caption(ctx, task, "")

	return result, nil
}

func (s *Service) runExecution(ctx context.Context, task *model.Task) (*model.TaskResult, error) {
	execResult, err := s.engine.Run(ctx, model.RunSpec{
		Source:   task.Source,
		Language: task.Language,
		Files:    task.Files,
	})
	if err != nil {
		return nil, fmt.Errorf("could not execute task: %w", err)
	}

	// Timeouts and crashes are outcomes, not failures: the output still gets
	// rendered so the report shows what actually happened.
	result := &model.TaskResult{
		Stdout:   execResult.Stdout,
		Stderr:   execResult.Stderr,
		ExitCode: execResult.ExitCode,
	}

	artifacts, err := s.render(ctx, task, execResult)
	if err != nil {
		return result, err
	}
	result.ArtifactIDs = artifactIDs(artifacts)
	result.Caption = s.caption(ctx, task, execResult.Stdout)

	return result, nil
}

func (s *Service) render(ctx context.Context, task *model.Task, execResult *model.ExecutionResult) ([]model.Artifact, error) {
	artifacts, err := s.renderer.Render(ctx, render.Request{
		BatchID: task.BatchID,
		TaskID:  task.ID,
		Kind:    task.Kind,
		Theme:   task.Theme,
		Source:  task.Source,
		Files:   task.Files,
		Routes:  task.Routes,
		Result:  execResult,
	})
	if err != nil {
		return nil, fmt.Errorf("could not render artifacts: %w", err)
	}

	if err := s.repo.CreateArtifacts(ctx, task.ID, artifacts); err != nil {
		return nil, fmt.Errorf("could not save artifacts: %w", err)
	}

	return artifacts, nil
}

// caption asks the generator for a one line caption and falls back to a
// static one. Caption problems never fail a task.
func (s *Service) caption(ctx context.Context, task *model.Task, stdout string) string {
	static := staticCaption(task)
	if s.generator == nil {
		return static
	}

	prompt := "Write a single short caption line for a screenshot of this program"
	if stdout != "" {
		prompt += fmt.Sprintf(" whose output was:\n%s", stdout)
	}

	text, err := s.generator.Answer(ctx, prompt, task.Source)
	if err != nil {
		s.logger.WithCtxValues(ctx).Debugf("Could not generate caption for task %s: %s", task.ID, err)
		return static
	}

	return text
}

func staticCaption(task *model.Task) string {
	switch task.Kind {
	case model.TaskKindScreenshotOnly:
		return fmt.Sprintf("Source code (%s)", task.Language)
	case model.TaskKindProjectMultiFile:
		return fmt.Sprintf("Project files and output (%s)", task.Language)
	default:
		return fmt.Sprintf("Program and output (%s)", task.Language)
	}
}

func artifactIDs(artifacts []model.Artifact) []string {
	ids := make([]string, 0, len(artifacts))
	for _, a := range artifacts {
		ids = append(ids, a.ID)
	}
	return ids
}
