package model

import (
	"fmt"
	"time"
)

// TaskKind represents the type of work a task carries.
type TaskKind string

const (
	// TaskKindCodeExecution runs source code and renders code + terminal panes.
	TaskKindCodeExecution TaskKind = "code_execution"
	// TaskKindAnswerRequest generates prose for a question, no execution.
	TaskKindAnswerRequest TaskKind = "answer_request"
	// TaskKindScreenshotOnly renders a code pane without executing anything.
	TaskKindScreenshotOnly TaskKind = "screenshot_only"
	// TaskKindProjectMultiFile runs a multi-file project and renders one pane
	// per file plus one browser pane per declared route.
	TaskKindProjectMultiFile TaskKind = "project_multi_file"
)

// TaskStatus represents the state of a task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusCompleted TaskStatus = "completed"
	TaskStatusFailed    TaskStatus = "failed"
)

// FailureReasonCancelled is the failure reason of tasks that never ran
// because their batch was cancelled.
const FailureReasonCancelled = "cancelled"

// Terminal returns true if the status accepts no further transitions.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// CanTransition reports whether moving from s to next is a legal step in the
// task state machine (pending -> running -> completed|failed).
func (s TaskStatus) CanTransition(next TaskStatus) bool {
	switch s {
	case TaskStatusPending:
		return next == TaskStatusRunning
	case TaskStatusRunning:
		return next == TaskStatusCompleted || next == TaskStatusFailed
	default:
		return false
	}
}

// Insertion is the placement preference for a task's artifacts in the
// composed document.
type Insertion string

const (
	// InsertionBelowQuestion places artifacts right after the question text
	// they were derived from.
	InsertionBelowQuestion Insertion = "below_question"
	// InsertionBottomOfPage places artifacts in the trailing results section.
	InsertionBottomOfPage Insertion = "bottom_of_page"
)

// TaskResult holds everything a finished task produced.
type TaskResult struct {
	Stdout      string
	Stderr      string
	ExitCode    int
	ArtifactIDs []string
	Caption     string
	Answer      string
}

// Task is one unit of work inside a batch.
type Task struct {
	ID       string
	BatchID  string
	Kind     TaskKind
	Language string
	Source   string
	Question string
	Theme    Theme
	// Files holds extra project files for multi-file tasks, keyed by relative path.
	Files  map[string]string
	Routes []string

	Insertion Insertion
	Status    TaskStatus
	// FailureReason is set when Status is failed.
	FailureReason string
	Result        *TaskResult

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Validate validates a task at submission time.
func (t *Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id is required: %w", ErrNotValid)
	}

	switch t.Kind {
	case TaskKindCodeExecution, TaskKindScreenshotOnly:
		if t.Source == "" {
			return fmt.Errorf("task %s: source is required for %s tasks: %w", t.ID, t.Kind, ErrNotValid)
		}
	case TaskKindAnswerRequest:
		if t.Question == "" {
			return fmt.Errorf("task %s: question is required for answer tasks: %w", t.ID, ErrNotValid)
		}
	case TaskKindProjectMultiFile:
		if len(t.Files) == 0 {
			return fmt.Errorf("task %s: files are required for project tasks: %w", t.ID, ErrNotValid)
		}
	default:
		return fmt.Errorf("task %s: unknown kind %q: %w", t.ID, t.Kind, ErrNotValid)
	}

	switch t.Insertion {
	case InsertionBelowQuestion, InsertionBottomOfPage, "":
	default:
		return fmt.Errorf("task %s: unknown insertion %q: %w", t.ID, t.Insertion, ErrNotValid)
	}

	return nil
}

// NeedsExecution reports whether the task kind requires a sandbox run.
func (k TaskKind) NeedsExecution() bool {
	return k == TaskKindCodeExecution || k == TaskKindProjectMultiFile
}
