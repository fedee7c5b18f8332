package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/labshot/labshot/internal/log"
	"github.com/labshot/labshot/internal/model"
	"github.com/labshot/labshot/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	batches   map[string]model.Batch
	tasks     map[string]model.Task
	artifacts map[string][]model.Artifact
	// queue holds claimable task IDs in submission order.
	queue  []string
	mu     sync.RWMutex
	logger log.Logger
}

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		batches:   make(map[string]model.Batch),
		tasks:     make(map[string]model.Task),
		artifacts: make(map[string][]model.Artifact),
		logger:    cfg.Logger,
	}, nil
}

// CreateBatch creates the batch and all its tasks atomically.
func (r *Repository) CreateBatch(ctx context.Context, batch model.Batch, tasks []model.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.batches[batch.ID]; ok {
		return fmt.Errorf("batch with id %s: %w", batch.ID, model.ErrAlreadyExists)
	}
	for _, task := range tasks {
		if _, ok := r.tasks[task.ID]; ok {
			return fmt.Errorf("task with id %s: %w", task.ID, model.ErrAlreadyExists)
		}
	}

	r.batches[batch.ID] = batch
	for _, task := range tasks {
		r.tasks[task.ID] = task
		r.queue = append(r.queue, task.ID)
	}

	r.logger.Debugf("Created batch in repository: %s (%d tasks)", batch.ID, len(tasks))
	return nil
}

// GetBatch retrieves a batch by ID.
func (r *Repository) GetBatch(ctx context.Context, id string) (*model.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch, ok := r.batches[id]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
	}

	batchCopy := batch
	return &batchCopy, nil
}

// ListBatches returns all batches.
func (r *Repository) ListBatches(ctx context.Context) ([]model.Batch, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batches := make([]model.Batch, 0, len(r.batches))
	for _, batch := range r.batches {
		batches = append(batches, batch)
	}

	return batches, nil
}

// CancelBatch marks the batch cancelled and fails its pending tasks.
func (r *Repository) CancelBatch(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	batch, ok := r.batches[id]
	if !ok {
		return fmt.Errorf("batch %s: %w", id, model.ErrNotFound)
	}
	if batch.Cancelled() {
		return nil
	}

	now := time.Now().UTC()
	batch.CancelledAt = &now
	r.batches[id] = batch

	for _, taskID := range batch.TaskIDs {
		task, ok := r.tasks[taskID]
		if !ok || task.Status != model.TaskStatusPending {
			continue
		}
		task.Status = model.TaskStatusFailed
		task.FailureReason = model.FailureReasonCancelled
		task.UpdatedAt = now
		r.tasks[taskID] = task
	}

	r.logger.Debugf("Cancelled batch in repository: %s", id)
	return nil
}

// GetTask retrieves a task by ID.
func (r *Repository) GetTask(ctx context.Context, id string) (*model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	task, ok := r.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}

	taskCopy := task
	return &taskCopy, nil
}

// ListBatchTasks returns the batch tasks in submission order.
func (r *Repository) ListBatchTasks(ctx context.Context, batchID string) ([]model.Task, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	batch, ok := r.batches[batchID]
	if !ok {
		return nil, fmt.Errorf("batch %s: %w", batchID, model.ErrNotFound)
	}

	tasks := make([]model.Task, 0, len(batch.TaskIDs))
	for _, taskID := range batch.TaskIDs {
		task, ok := r.tasks[taskID]
		if !ok {
			return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
		}
		tasks = append(tasks, task)
	}

	return tasks, nil
}

// ClaimNextTask claims the oldest pending task of a non cancelled batch.
func (r *Repository) ClaimNextTask(ctx context.Context) (*model.Task, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, taskID := range r.queue {
		task, ok := r.tasks[taskID]
		if !ok || task.Status != model.TaskStatusPending {
			continue
		}
		if batch, ok := r.batches[task.BatchID]; ok && batch.Cancelled() {
			continue
		}

		task.Status = model.TaskStatusRunning
		task.UpdatedAt = time.Now().UTC()
		r.tasks[taskID] = task

		taskCopy := task
		return &taskCopy, nil
	}

	return nil, fmt.Errorf("no pending task: %w", model.ErrNotFound)
}

// CompleteTask moves a running task to completed and stores its result.
func (r *Repository) CompleteTask(ctx context.Context, id string, result model.TaskResult) error {
	return r.finishTask(id, model.TaskStatusCompleted, &result, "")
}

// FailTask moves a running task to failed with the given reason.
func (r *Repository) FailTask(ctx context.Context, id string, reason string, result *model.TaskResult) error {
	return r.finishTask(id, model.TaskStatusFailed, result, reason)
}

func (r *Repository) finishTask(id string, status model.TaskStatus, result *model.TaskResult, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	task, ok := r.tasks[id]
	if !ok {
		return fmt.Errorf("task %s: %w", id, model.ErrNotFound)
	}
	if !task.Status.CanTransition(status) || task.Status != model.TaskStatusRunning {
		return fmt.Errorf("task %s is %s, cannot move to %s: %w", id, task.Status, status, model.ErrNotValid)
	}

	task.Status = status
	task.Result = result
	task.FailureReason = reason
	task.UpdatedAt = time.Now().UTC()
	r.tasks[id] = task

	return nil
}

// RequeueRunningTasks moves every running task back to pending.
func (r *Repository) RequeueRunningTasks(ctx context.Context) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	requeued := 0
	for id, task := range r.tasks {
		if task.Status != model.TaskStatusRunning {
			continue
		}
		task.Status = model.TaskStatusPending
		task.UpdatedAt = now
		r.tasks[id] = task
		requeued++
	}

	if requeued > 0 {
		r.logger.Debugf("Requeued %d running tasks", requeued)
	}
	return requeued, nil
}

// CreateArtifacts stores a task's artifacts.
func (r *Repository) CreateArtifacts(ctx context.Context, taskID string, artifacts []model.Artifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tasks[taskID]; !ok {
		return fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	r.artifacts[taskID] = append(r.artifacts[taskID], artifacts...)
	return nil
}

// ListTaskArtifacts returns a task's artifacts in render order.
func (r *Repository) ListTaskArtifacts(ctx context.Context, taskID string) ([]model.Artifact, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if _, ok := r.tasks[taskID]; !ok {
		return nil, fmt.Errorf("task %s: %w", taskID, model.ErrNotFound)
	}

	artifacts := make([]model.Artifact, len(r.artifacts[taskID]))
	copy(artifacts, r.artifacts[taskID])

	return artifacts, nil
}

var _ storage.Repository = &Repository{}
