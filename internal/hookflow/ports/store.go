package ports

import (
	"context"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// RunStore is the durable state the invocation handler needs: run status,
// per-step cached results, the retry counter, and a non-blocking row lock.
// Storage mechanics beyond these operations belong to the implementation.
type RunStore interface {
	// GetRun returns the run or repository.ErrNotFound.
	GetRun(ctx context.Context, runID string) (*hookflow.Run, error)

	// CreateRun inserts a new run row. The first invocation referencing an
	// unknown run ID creates it.
	CreateRun(ctx context.Context, run *hookflow.Run) error

	// SaveStep records one step result. A step record is write-once; saving
	// an already-recorded step is a no-op.
	SaveStep(ctx context.Context, runID, stepID string, result any) error

	// CompletedSteps returns every cached step result for the run. An
	// unknown run yields an empty map, not an error.
	CompletedSteps(ctx context.Context, runID string) (hookflow.CompletedSteps, error)

	// MarkCompleted sets the run terminal with its final result.
	MarkCompleted(ctx context.Context, runID string, result any) error

	// MarkFailed sets the run terminal with an error message.
	MarkFailed(ctx context.Context, runID, errorMessage string) error

	// IncrementRetryAttempt bumps the retry counter and returns the new value.
	IncrementRetryAttempt(ctx context.Context, runID string) (int, error)

	// ResetRetryAttempt zeroes the retry counter after a successful step.
	ResetRetryAttempt(ctx context.Context, runID string) error

	// TryLock attempts a non-blocking exclusive lock on the run row. It
	// returns a release func and true when acquired, or false when another
	// invocation holds the lock. A missing row counts as acquired. TryLock
	// must fail fast, never block.
	TryLock(ctx context.Context, runID string) (release func(), acquired bool, err error)
}
