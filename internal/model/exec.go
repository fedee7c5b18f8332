package model

import (
	"fmt"
	"time"
)

// Default resource limits for one sandboxed run.
const (
	DefaultRunTimeout  = 30 * time.Second
	DefaultMemoryMB    = 512
	DefaultCPUs        = 0.5
	DefaultPIDsLimit   = 64
	DefaultOutputLimit = 64 * 1024
	MaxSourceLength    = 50 * 1024
	TimeoutExitCode    = 124
	TruncationMarker   = "\n... [output truncated]"
)

// RunLimits caps the resources of a single sandboxed execution. Network is
// always disabled, it is not configurable.
type RunLimits struct {
	Timeout time.Duration
	// MemoryMB is the memory ceiling in megabytes.
	MemoryMB int
	// CPUs is the CPU share cap (0.5 means half a core).
	CPUs float64
	// PIDsLimit caps the number of processes.
	PIDsLimit int
	// OutputLimitBytes caps each captured stream; beyond it the stream is
	// truncated with TruncationMarker.
	OutputLimitBytes int
}

// WithDefaults returns the limits with zero values replaced by defaults.
func (l RunLimits) WithDefaults() RunLimits {
	if l.Timeout <= 0 {
		l.Timeout = DefaultRunTimeout
	}
	if l.MemoryMB <= 0 {
		l.MemoryMB = DefaultMemoryMB
	}
	if l.CPUs <= 0 {
		l.CPUs = DefaultCPUs
	}
	if l.PIDsLimit <= 0 {
		l.PIDsLimit = DefaultPIDsLimit
	}
	if l.OutputLimitBytes <= 0 {
		l.OutputLimitBytes = DefaultOutputLimit
	}
	return l
}

// RunSpec describes one sandboxed execution.
type RunSpec struct {
	Source   string
	Language string
	// Files are extra files placed next to the source, keyed by relative path.
	Files  map[string]string
	Limits RunLimits
}

// Validate validates the run spec.
func (s *RunSpec) Validate() error {
	if s.Source == "" && len(s.Files) == 0 {
		return fmt.Errorf("source is required: %w", ErrNotValid)
	}
	if s.Language == "" {
		return fmt.Errorf("language is required: %w", ErrNotValid)
	}
	if len(s.Source) > MaxSourceLength {
		return fmt.Errorf("source exceeds %d bytes: %w", MaxSourceLength, ErrNotValid)
	}
	return nil
}

// ExecStatus is the terminal state of one sandboxed execution.
type ExecStatus string

const (
	// ExecStatusCompleted means the process exited on its own with code 0.
	ExecStatusCompleted ExecStatus = "completed"
	// ExecStatusTimedOut means the wall-clock limit was hit and the
	// environment was killed. This is an expected outcome, not an error.
	ExecStatusTimedOut ExecStatus = "timed_out"
	// ExecStatusCrashed means the process exited non-zero or the environment
	// faulted.
	ExecStatusCrashed ExecStatus = "crashed"
)

// ExecutionResult is the immutable outcome of one sandboxed execution. It is
// owned by the task that produced it and never shared across tasks.
type ExecutionResult struct {
	Status   ExecStatus
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// OK reports whether the run finished successfully.
func (r *ExecutionResult) OK() bool { return r.Status == ExecStatusCompleted }
