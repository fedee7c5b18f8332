package status

import (
	"context"
	"fmt"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/storage"
)

// ServiceConfig is the configuration for the status service.
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
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Status"})
	return nil
}

// Service reports batch progress. The aggregate status is always derived
// from the task rows, it is never stored.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// BatchStatus is the full progress picture of one batch.
type BatchStatus struct {
	Batch     model.Batch
	Tasks     []model.Task
	Aggregate model.BatchStatus
	Pending   int
	Running   int
	Completed int
	Failed    int
}

// Status returns the batch, its tasks in submission order and the derived
// aggregate status.
func (s *Service) Status(ctx context.Context, batchID string) (*BatchStatus, error) {
	batch, err := s.repo.GetBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("could not get batch: %w", err)
	}

	tasks, err := s.repo.ListBatchTasks(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("could not list batch tasks: %w", err)
	}

	st := &BatchStatus{
		Batch:     *batch,
		Tasks:     tasks,
		Aggregate: model.AggregateStatus(tasks),
	}
	for _, task := range tasks {
		switch task.Status {
		case model.TaskStatusPending:
			st.Pending++
		case model.TaskStatusRunning:
			st.Running++
		case model.TaskStatusCompleted:
			st.Completed++
		case model.TaskStatusFailed:
			st.Failed++
		}
	}

	return st, nil
}

// List returns a status summary for every known batch, newest first.
func (s *Service) List(ctx context.Context) ([]BatchStatus, error) {
	batches, err := s.repo.ListBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not list batches: %w", err)
	}

	statuses := make([]BatchStatus, 0, len(batches))
	for _, batch := range batches {
		st, err := s.Status(ctx, batch.ID)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, *st)
	}

	return statuses, nil
}
