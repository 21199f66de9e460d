package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// MemoryRunRepository keeps runs, step records, and row locks in process
// memory. Used for tests and single-instance deployments without a
// database; the lock primitive only excludes duplicates within this
// process.
type MemoryRunRepository struct {
	mu     sync.Mutex
	runs   map[string]*hookflow.Run
	steps  map[string][]*hookflow.StepRecord
	locked map[string]bool
}

func NewMemoryRunRepository() *MemoryRunRepository {
	return &MemoryRunRepository{
		runs:   make(map[string]*hookflow.Run),
		steps:  make(map[string][]*hookflow.StepRecord),
		locked: make(map[string]bool),
	}
}

func (r *MemoryRunRepository) GetRun(_ context.Context, runID string) (*hookflow.Run, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *MemoryRunRepository) CreateRun(_ context.Context, run *hookflow.Run) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *run
	r.runs[run.RunID] = &cp
	return nil
}

func (r *MemoryRunRepository) SaveStep(_ context.Context, runID, stepID string, result any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Write-once: a recorded step is never overwritten.
	for _, rec := range r.steps[runID] {
		if rec.StepID == stepID {
			return nil
		}
	}
	r.steps[runID] = append(r.steps[runID], &hookflow.StepRecord{
		RunID:      runID,
		StepID:     stepID,
		Result:     result,
		ExecutedAt: time.Now().UTC(),
	})
	return nil
}

func (r *MemoryRunRepository) CompletedSteps(_ context.Context, runID string) (hookflow.CompletedSteps, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(hookflow.CompletedSteps, len(r.steps[runID]))
	for _, rec := range r.steps[runID] {
		out[rec.StepID] = rec.Result
	}
	return out, nil
}

func (r *MemoryRunRepository) MarkCompleted(_ context.Context, runID string, result any) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = hookflow.RunCompleted
	run.Result = result
	run.ErrorMessage = ""
	run.UpdatedAt = now
	run.CompletedAt = &now
	return nil
}

func (r *MemoryRunRepository) MarkFailed(_ context.Context, runID, errorMessage string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now().UTC()
	run.Status = hookflow.RunFailed
	run.ErrorMessage = errorMessage
	run.UpdatedAt = now
	run.CompletedAt = &now
	return nil
}

func (r *MemoryRunRepository) IncrementRetryAttempt(_ context.Context, runID string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return 0, ErrNotFound
	}
	run.RetryAttempt++
	run.UpdatedAt = time.Now().UTC()
	return run.RetryAttempt, nil
}

func (r *MemoryRunRepository) ResetRetryAttempt(_ context.Context, runID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.RetryAttempt = 0
	run.UpdatedAt = time.Now().UTC()
	return nil
}

// TryLock acquires an in-process exclusive lock on the run ID. A run with
// no row still locks: the ID itself is the lock key, matching the
// missing-row-counts-as-acquired contract.
func (r *MemoryRunRepository) TryLock(_ context.Context, runID string) (func(), bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.locked[runID] {
		return nil, false, nil
	}
	r.locked[runID] = true

	var once sync.Once
	release := func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.locked, runID)
			r.mu.Unlock()
		})
	}
	return release, true, nil
}

func (r *MemoryRunRepository) ListRuns(_ context.Context, workflowID, status string, limit, offset int) ([]*hookflow.Run, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtered []*hookflow.Run
	for _, run := range r.runs {
		if workflowID != "" && run.WorkflowID != workflowID {
			continue
		}
		if status != "" && string(run.Status) != status {
			continue
		}
		cp := *run
		filtered = append(filtered, &cp)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (r *MemoryRunRepository) ListSteps(_ context.Context, runID string) ([]*hookflow.StepRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*hookflow.StepRecord, 0, len(r.steps[runID]))
	for _, rec := range r.steps[runID] {
		cp := *rec
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ExecutedAt.Before(out[j].ExecutedAt)
	})
	return out, nil
}

func (r *MemoryRunRepository) PurgeTerminalBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, run := range r.runs {
		if run.Status.Terminal() && run.UpdatedAt.Before(cutoff) {
			delete(r.runs, id)
			delete(r.steps, id)
			removed++
		}
	}
	return removed, nil
}
