package model

import (
	"fmt"
	"time"
)

// BatchStatus is the aggregate status of a batch. It is always derived from
// the batch's task statuses, never stored on its own.
type BatchStatus string

const (
	BatchStatusPending   BatchStatus = "pending"
	BatchStatusCompleted BatchStatus = "completed"
	BatchStatusFailed    BatchStatus = "failed"
)

// Batch is a caller-defined group of tasks sharing a theme and a default
// insertion preference.
type Batch struct {
	ID string
	// OwnerRef is an opaque reference to the owning resource. Ownership checks
	// happen upstream, the core only carries the value.
	OwnerRef         string
	Theme            Theme
	DefaultInsertion Insertion
	// TaskIDs preserves the caller's submission order.
	TaskIDs []string

	CreatedAt   time.Time
	CancelledAt *time.Time
}

// Cancelled reports whether the batch has been marked cancelled.
func (b *Batch) Cancelled() bool { return b.CancelledAt != nil }

// Validate validates the batch at submission time.
func (b *Batch) Validate() error {
	if len(b.TaskIDs) == 0 {
		return fmt.Errorf("batch needs at least one task: %w", ErrNotValid)
	}
	if _, err := ParseTheme(string(b.Theme)); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(b.TaskIDs))
	for _, id := range b.TaskIDs {
		if _, ok := seen[id]; ok {
			return fmt.Errorf("duplicated task id %q: %w", id, ErrNotValid)
		}
		seen[id] = struct{}{}
	}

	switch b.DefaultInsertion {
	case InsertionBelowQuestion, InsertionBottomOfPage:
		return nil
	default:
		return fmt.Errorf("unknown insertion %q: %w", b.DefaultInsertion, ErrNotValid)
	}
}

// AggregateStatus derives the batch status from its tasks: pending while any
// task is pending or running, failed if any task failed, completed otherwise.
func AggregateStatus(tasks []Task) BatchStatus {
	failed := false
	for _, t := range tasks {
		switch t.Status {
		case TaskStatusPending, TaskStatusRunning:
			return BatchStatusPending
		case TaskStatusFailed:
			failed = true
		}
	}
	if failed {
		return BatchStatusFailed
	}
	return BatchStatusCompleted
}
