package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmitchel3/hookflow/internal/db"
	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// PersistentRunRepository backs run state with PostgreSQL. The row lock is
// a real FOR UPDATE NOWAIT lock, so multiple engine instances sharing one
// database coordinate correctly.
type PersistentRunRepository struct {
	db *db.DB
}

// NewPersistentRunRepository creates a PostgreSQL-backed run repository.
func NewPersistentRunRepository(database *db.DB) *PersistentRunRepository {
	return &PersistentRunRepository{db: database}
}

func (r *PersistentRunRepository) GetRun(ctx context.Context, runID string) (*hookflow.Run, error) {
	run, err := r.db.GetRun(ctx, runID)
	if errors.Is(err, db.ErrRunNotFound) {
		return nil, ErrNotFound
	}
	return run, err
}

func (r *PersistentRunRepository) CreateRun(ctx context.Context, run *hookflow.Run) error {
	return r.db.CreateRun(ctx, run)
}

func (r *PersistentRunRepository) SaveStep(ctx context.Context, runID, stepID string, result any) error {
	return r.db.SaveStep(ctx, runID, stepID, result)
}

func (r *PersistentRunRepository) CompletedSteps(ctx context.Context, runID string) (hookflow.CompletedSteps, error) {
	return r.db.CompletedSteps(ctx, runID)
}

func (r *PersistentRunRepository) MarkCompleted(ctx context.Context, runID string, result any) error {
	err := r.db.MarkRunCompleted(ctx, runID, result)
	if errors.Is(err, db.ErrRunNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *PersistentRunRepository) MarkFailed(ctx context.Context, runID, errorMessage string) error {
	err := r.db.MarkRunFailed(ctx, runID, errorMessage)
	if errors.Is(err, db.ErrRunNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *PersistentRunRepository) IncrementRetryAttempt(ctx context.Context, runID string) (int, error) {
	attempt, err := r.db.IncrementRetryAttempt(ctx, runID)
	if errors.Is(err, db.ErrRunNotFound) {
		return 0, ErrNotFound
	}
	return attempt, err
}

func (r *PersistentRunRepository) ResetRetryAttempt(ctx context.Context, runID string) error {
	err := r.db.ResetRetryAttempt(ctx, runID)
	if errors.Is(err, db.ErrRunNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *PersistentRunRepository) TryLock(ctx context.Context, runID string) (func(), bool, error) {
	return r.db.TryLockRun(ctx, runID)
}

func (r *PersistentRunRepository) ListRuns(ctx context.Context, workflowID, status string, limit, offset int) ([]*hookflow.Run, int, error) {
	return r.db.ListRuns(ctx, workflowID, status, limit, offset)
}

func (r *PersistentRunRepository) ListSteps(ctx context.Context, runID string) ([]*hookflow.StepRecord, error) {
	return r.db.ListSteps(ctx, runID)
}

func (r *PersistentRunRepository) PurgeTerminalBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return r.db.PurgeTerminalRunsBefore(ctx, cutoff)
}
