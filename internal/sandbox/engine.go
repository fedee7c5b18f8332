package sandbox

import (
	"context"

	"github.com/labshot/labshot/internal/model"
)

// Engine runs one untrusted snippet inside an isolated, resource-capped,
// network-disabled environment. One environment serves exactly one run and is
// destroyed afterwards, environments are never reused.
type Engine interface {
	// Check performs preflight checks and returns the results.
	// Checks verify that the engine has all required dependencies and permissions.
	Check(ctx context.Context) []model.CheckResult

	// Run executes the spec and returns the captured result. Timeouts are a
	// normal outcome (ExecStatusTimedOut), not an error; errors mean the
	// environment itself could not be provisioned or torn up.
	Run(ctx context.Context, spec model.RunSpec) (*model.ExecutionResult, error)
}
