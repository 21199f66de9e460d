package hookflow

import (
	"errors"
	"fmt"
	"time"
)

// HandlerFunc is the body of a workflow. It is ordinary sequential code
// that calls ctx.Step at each durable checkpoint and returns the final
// result once every step has completed. Errors returned from ctx.Step must
// be propagated unchanged so the engine can tell a step advance apart from
// a failure.
type HandlerFunc func(ctx *StepContext, data map[string]any) (any, error)

// Workflow is a registered workflow definition. A nil Timeout inherits the
// global execution timeout; a non-nil one overrides it for this workflow,
// and a zero value disables the deadline entirely.
type Workflow struct {
	ID      string
	Timeout *time.Duration
	Handler HandlerFunc
}

// TimeoutOf is a convenience for the Workflow.Timeout field. A zero
// argument disables the execution deadline for that workflow.
func TimeoutOf(d time.Duration) *time.Duration {
	return &d
}

// errStepAdvanced is the non-local exit used by the step primitive to halt
// the workflow body after computing one new step. It is control flow, not a
// failure; the engine translates it into a StepAdvanced outcome.
var errStepAdvanced = errors.New("step advanced")

// StepContext carries the per-invocation replay state through a workflow
// body. It is not safe for concurrent use.
type StepContext struct {
	RunID string

	completed CompletedSteps
	seen      map[string]struct{}
	advanced  *StepAdvanced
}

// NewStepContext builds the replay context for one invocation. The
// completed map is cloned; the caller's copy is never mutated.
func NewStepContext(runID string, completed CompletedSteps) *StepContext {
	return &StepContext{
		RunID:     runID,
		completed: completed.Clone(),
		seen:      make(map[string]struct{}),
	}
}

// Step runs one durable checkpoint. If stepID is already cached, the cached
// result is returned immediately and the computation is skipped. Otherwise
// fn is executed exactly once, its result is recorded, and Step returns a
// control-transfer error that halts the rest of the body for this
// invocation. Reusing a stepID within one body is rejected.
func (c *StepContext) Step(stepID string, fn func() (any, error)) (any, error) {
	if _, dup := c.seen[stepID]; dup {
		return nil, fmt.Errorf("step %q: %w", stepID, ErrDuplicateStepID)
	}
	c.seen[stepID] = struct{}{}

	if result, ok := c.completed[stepID]; ok {
		return result, nil
	}

	// A new step was already recorded this invocation. Halt again instead
	// of computing a second one, even if the handler dropped the first
	// control-transfer error.
	if c.advanced != nil {
		return nil, errStepAdvanced
	}

	result, err := fn()
	if err != nil {
		return nil, err
	}

	c.completed[stepID] = result
	c.advanced = &StepAdvanced{
		StepID:         stepID,
		Result:         result,
		CompletedSteps: c.completed,
	}
	return result, errStepAdvanced
}

// Sleep records a durable sleep checkpoint. The recorded result carries the
// sleep duration so the scheduler delays delivery of the next invocation
// instead of blocking the process.
func (c *StepContext) Sleep(stepID string, d time.Duration) error {
	_, err := c.Step(stepID, func() (any, error) {
		return SleepResult(d), nil
	})
	return err
}

// Advanced reports the step advance recorded by this invocation, if any.
func (c *StepContext) Advanced() (*StepAdvanced, bool) {
	return c.advanced, c.advanced != nil
}

// IsStepAdvance reports whether err is the step-advance control transfer.
func IsStepAdvance(err error) bool {
	return errors.Is(err, errStepAdvanced)
}
