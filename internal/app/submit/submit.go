package submit

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/storage"
)

// ServiceConfig is the configuration for the submit service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Submit"})
	return nil
}

// Service handles batch submission and cancellation business logic.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new submit service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// TaskRequest is one task of a submission.
type TaskRequest struct {
	ID       string
	Kind     model.TaskKind
	Language string
	Source   string
	Question string
	Files    map[string]string
	Routes   []string
	// Insertion overrides the batch default when set.
	Insertion model.Insertion
}

// SubmitRequest is a full batch submission.
type SubmitRequest struct {
	BatchID          string
	OwnerRef         string
	Theme            string
	DefaultInsertion model.Insertion
	Tasks            []TaskRequest
}

// Submit validates the request shape and persists the batch with all tasks
// pending. Source safety screening happens per task in the worker pipeline,
// so a denylisted task never rejects its siblings.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*model.Batch, error) {
	theme, err := model.ParseTheme(req.Theme)
	if err != nil {
		return nil, err
	}

	if req.DefaultInsertion == "" {
		req.DefaultInsertion = model.InsertionBelowQuestion
	}

	now := time.Now().UTC()

	batch := model.Batch{
		ID:               req.BatchID,
		OwnerRef:         req.OwnerRef,
		Theme:            theme,
		DefaultInsertion: req.DefaultInsertion,
		CreatedAt:        now,
	}
	if batch.ID == "" {
		batch.ID = ulid.Make().String()
	}

	tasks := make([]model.Task, 0, len(req.Tasks))
	for _, tr := range req.Tasks {
		task := model.Task{
			ID:        tr.ID,
			BatchID:   batch.ID,
			Kind:      tr.Kind,
			Language:  tr.Language,
			Source:    tr.Source,
			Question:  tr.Question,
			Theme:     theme,
			Files:     tr.Files,
			Routes:    tr.Routes,
			Insertion: tr.Insertion,
			Status:    model.TaskStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if task.ID == "" {
			task.ID = ulid.Make().String()
		}
		if task.Language == "" {
			task.Language = theme.Language()
		}
		if task.Insertion == "" {
			task.Insertion = batch.DefaultInsertion
		}

		if err := task.Validate(); err != nil {
			return nil, err
		}

		batch.TaskIDs = append(batch.TaskIDs, task.ID)
		tasks = append(tasks, task)
	}

	if err := batch.Validate(); err != nil {
		return nil, err
	}

	if err := s.repo.CreateBatch(ctx, batch, tasks); err != nil {
		return nil, fmt.Errorf("could not save batch: %w", err)
	}

	s.logger.WithCtxValues(ctx).Infof("Submitted batch %s with %d tasks", batch.ID, len(tasks))

	return &batch, nil
}

// Cancel marks a batch cancelled. Pending tasks are failed immediately,
// running tasks finish on their own.
func (s *Service) Cancel(ctx context.Context, batchID string) error {
	if err := s.repo.CancelBatch(ctx, batchID); err != nil {
		return fmt.Errorf("could not cancel batch: %w", err)
	}

	s.logger.WithCtxValues(ctx).Infof("Cancelled batch %s", batchID)

	return nil
}
