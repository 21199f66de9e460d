package engine

import (
	"fmt"
	"runtime/debug"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// Execute runs one invocation of a workflow body against the completed-steps
// cache. Steps already in the cache are replayed from their cached results;
// the first uncompleted step is computed exactly once and execution halts
// there. This bounds each invocation to at most one new step, which is what
// makes the webhook-driven model converge: timeouts and retries apply at
// step granularity.
//
// A panic in workflow code is captured as a Failed outcome rather than
// taking down the handler.
func Execute(wf *hookflow.Workflow, runID string, data map[string]any, completed hookflow.CompletedSteps) (out hookflow.Outcome) {
	ctx := hookflow.NewStepContext(runID, completed)

	defer func() {
		if r := recover(); r != nil {
			out = hookflow.Failed{
				Err: fmt.Errorf("workflow panicked: %v\n%s", r, debug.Stack()),
			}
		}
	}()

	result, err := wf.Handler(ctx, data)
	if err != nil {
		if hookflow.IsStepAdvance(err) {
			adv, ok := ctx.Advanced()
			if !ok {
				// Handler returned the control-transfer error without a
				// recorded advance. Treat as a programming error.
				return hookflow.Failed{Err: fmt.Errorf("step advance signaled without a recorded step (run=%s)", runID)}
			}
			return *adv
		}
		return hookflow.Failed{Err: err}
	}

	if adv, ok := ctx.Advanced(); ok {
		// Handler swallowed the control-transfer error. The step result is
		// already recorded, so honor the advance instead of finishing early.
		return *adv
	}

	return hookflow.Finished{Result: result}
}
