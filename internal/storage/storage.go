package storage

import (
	"context"

	"github.com/labshot/labshot/internal/model"
)

// Repository is the interface for batch, task and artifact persistence.
//
// Batches and their tasks are created atomically. Tasks move through the
// pending -> running -> completed|failed state machine: ClaimNextTask is the
// only way to reach running, and Complete/FailTask only act on running tasks,
// so concurrent workers can never pick up the same task twice.
type Repository interface {
	CreateBatch(ctx context.Context, batch model.Batch, tasks []model.Task) error
	GetBatch(ctx context.Context, id string) (*model.Batch, error)
	ListBatches(ctx context.Context) ([]model.Batch, error)
	// CancelBatch marks the batch cancelled and fails every still pending
	// task. Running tasks finish on their own.
	CancelBatch(ctx context.Context, id string) error

	GetTask(ctx context.Context, id string) (*model.Task, error)
	// ListBatchTasks returns the batch tasks in submission order.
	ListBatchTasks(ctx context.Context, batchID string) ([]model.Task, error)
	// ClaimNextTask atomically moves the oldest pending task of a non
	// cancelled batch to running and returns it. It returns ErrNotFound when
	// there is nothing to claim.
	ClaimNextTask(ctx context.Context) (*model.Task, error)
	CompleteTask(ctx context.Context, id string, result model.TaskResult) error
	// FailTask moves a running task to failed. A non nil result keeps whatever
	// the task produced before failing.
	FailTask(ctx context.Context, id string, reason string, result *model.TaskResult) error
	// RequeueRunningTasks moves every running task back to pending so it can
	// be claimed again, returning how many were moved. Meant for startup
	// recovery of tasks stranded by a previous shutdown, never while workers
	// are claiming.
	RequeueRunningTasks(ctx context.Context) (int, error)

	CreateArtifacts(ctx context.Context, taskID string, artifacts []model.Artifact) error
	// ListTaskArtifacts returns a task's artifacts in render order.
	ListTaskArtifacts(ctx context.Context, taskID string) ([]model.Artifact, error)
}

//go:generate mockery --case underscore --output storagemock --outpkg storagemock --name Repository
