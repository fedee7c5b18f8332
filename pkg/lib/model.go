package lib

import (
	"time"

	"github.com/labshot/labshot/internal/model"
)

// EngineType identifies the sandbox engine implementation.
type EngineType string

const (
	// EngineDocker runs tasks in one-shot Docker containers.
	// Requires a reachable Docker daemon.
	EngineDocker EngineType = "docker"

	// EngineFake uses an in-memory simulation (no containers, no Chrome).
	// Use this for unit testing without infrastructure dependencies.
	EngineFake EngineType = "fake"
)

// TaskKind selects the pipeline a task runs through.
type TaskKind string

const (
	// TaskCodeExecution runs a single source snippet and renders code plus
	// terminal panes.
	TaskCodeExecution TaskKind = "code_execution"
	// TaskAnswerRequest generates a textual answer, nothing is executed or
	// rendered.
	TaskAnswerRequest TaskKind = "answer_request"
	// TaskScreenshotOnly renders the source without executing it.
	TaskScreenshotOnly TaskKind = "screenshot_only"
	// TaskProjectMultiFile runs a multi-file project and renders every file
	// plus terminal and browser panes.
	TaskProjectMultiFile TaskKind = "project_multi_file"
)

// Theme selects the visual chrome rendered around task output.
type Theme string

const (
	ThemeIDLE       Theme = "idle"
	ThemeVSCode     Theme = "vscode"
	ThemeNotepad    Theme = "notepad"
	ThemeCodeBlocks Theme = "codeblocks"
	ThemeHTML       Theme = "html"
	ThemeNode       Theme = "node"
	ThemeReact      Theme = "react"
)

// Insertion selects where a task's results land in the composed report.
type Insertion string

const (
	// InsertBelowQuestion splices results right after the matching question
	// paragraph.
	InsertBelowQuestion Insertion = "below_question"
	// InsertBottomOfPage appends results to a trailing results section.
	InsertBottomOfPage Insertion = "bottom_of_page"
)

// TaskStatus is the lifecycle state of a task.
//
// The lifecycle is:
//
//	pending -> running -> completed | failed
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
)

// TaskSpec describes one task of a batch submission.
type TaskSpec struct {
	// ID is optional, a ULID is assigned when empty.
	ID       string
	Kind     TaskKind
	Language string
	Source   string
	Question string
	// Files holds extra project files for multi-file tasks, keyed by relative path.
	Files  map[string]string
	Routes []string
	// Insertion overrides the batch default when set.
	Insertion Insertion
}

// BatchSpec describes a full batch submission.
type BatchSpec struct {
	// ID is optional, a ULID is assigned when empty.
	ID string
	// OwnerRef is an opaque reference to the owning resource.
	OwnerRef string
	Theme    Theme
	// DefaultInsertion defaults to [InsertBelowQuestion].
	DefaultInsertion Insertion
	Tasks            []TaskSpec
}

// Batch is a read-only snapshot of a submitted batch.
type Batch struct {
	ID               string
	OwnerRef         string
	Theme            Theme
	DefaultInsertion Insertion
	// TaskIDs preserves the submission order.
	TaskIDs     []string
	CreatedAt   time.Time
	CancelledAt *time.Time
}

// TaskResult carries what a finished task produced.
type TaskResult struct {
	Stdout      string
	Stderr      string
	ExitCode    int
	ArtifactIDs []string
	Caption     string
	Answer      string
}

// Task is a read-only snapshot of one task.
type Task struct {
	ID            string
	Kind          TaskKind
	Status        TaskStatus
	FailureReason string
	Result        *TaskResult
}

// BatchStatus is a read-only snapshot of a batch and all its tasks.
type BatchStatus struct {
	Batch Batch
	// Status is pending while any task is pending or running, failed when any
	// task failed, completed otherwise.
	Status    string
	Pending   int
	Running   int
	Completed int
	Failed    int
	Tasks     []Task
}

// Report is a composed report document.
type Report struct {
	// Ref is the artifact store reference of the persisted report.
	Ref string
	// Content is the full report text.
	Content []byte
}

func newBatch(b model.Batch) Batch {
	return Batch{
		ID:               b.ID,
		OwnerRef:         b.OwnerRef,
		Theme:            Theme(b.Theme),
		DefaultInsertion: Insertion(b.DefaultInsertion),
		TaskIDs:          b.TaskIDs,
		CreatedAt:        b.CreatedAt,
		CancelledAt:      b.CancelledAt,
	}
}

func newTask(t model.Task) Task {
	task := Task{
		ID:            t.ID,
		Kind:          TaskKind(t.Kind),
		Status:        TaskStatus(t.Status),
		FailureReason: t.FailureReason,
	}
	if t.Result != nil {
		task.Result = &TaskResult{
			Stdout:      t.Result.Stdout,
			Stderr:      t.Result.Stderr,
			ExitCode:    t.Result.ExitCode,
			ArtifactIDs: t.Result.ArtifactIDs,
			Caption:     t.Result.Caption,
			Answer:      t.Result.Answer,
		}
	}

	return task
}
