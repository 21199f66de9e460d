package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow"
	"github.com/jmitchel3/hookflow/internal/hookflow/ports"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// RunRepository is the full persistence surface for workflow runs: the
// RunStore operations the engine needs plus the listing and retention
// operations of the management API and the janitor.
type RunRepository interface {
	ports.RunStore

	// ListRuns returns runs filtered by workflow ID and status (empty
	// string = no filter), newest first, with the unpaginated total.
	ListRuns(ctx context.Context, workflowID, status string, limit, offset int) ([]*hookflow.Run, int, error)

	// ListSteps returns a run's step records ordered by execution time.
	ListSteps(ctx context.Context, runID string) ([]*hookflow.StepRecord, error)

	// PurgeTerminalBefore deletes completed/failed runs (and their steps)
	// last updated before cutoff, returning the number removed.
	PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// DeadLetterRepository stores permanently-failed invocations. Entries are
// append-only: there is no update operation, only insert, read, delete.
type DeadLetterRepository interface {
	ports.DeadLetterSink

	Get(ctx context.Context, id string) (*hookflow.DeadLetterEntry, error)

	// List returns entries filtered by workflow ID (empty = all), newest
	// first, with the unpaginated total.
	List(ctx context.Context, workflowID string, limit, offset int) ([]*hookflow.DeadLetterEntry, int, error)

	Delete(ctx context.Context, id string) error

	// PurgeBefore deletes entries created before cutoff, returning the
	// number removed.
	PurgeBefore(ctx context.Context, cutoff time.Time) (int, error)
}
