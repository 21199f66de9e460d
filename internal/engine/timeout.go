package engine

import (
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// ExecuteWithTimeout wraps one Execute call with a cooperative deadline.
// A background timer sets a flag when the deadline elapses; the flag is
// checked after the call returns, so a late completion is still reported as
// a timeout even though the running workflow code was never interrupted.
// Only a Finished outcome is converted: a step advance is durable progress
// and must be scheduled rather than recomputed, and a failure keeps its own
// error so it routes through the retry taxonomy instead of the timeout one.
// A timeout of zero or less disables the timer.
func ExecuteWithTimeout(timeout time.Duration, wf *hookflow.Workflow, runID string, data map[string]any, completed hookflow.CompletedSteps) (hookflow.Outcome, error) {
	var timedOut atomic.Bool

	if timeout > 0 {
		timer := time.AfterFunc(timeout, func() {
			timedOut.Store(true)
			slog.Warn("execution timeout triggered",
				"workflow", wf.ID, "run", runID, "timeout", timeout)
		})
		defer timer.Stop()
	}

	outcome := Execute(wf, runID, data, completed)

	if _, finished := outcome.(hookflow.Finished); finished && timedOut.Load() {
		return nil, &hookflow.ExecutionTimeoutError{
			Timeout:    timeout,
			WorkflowID: wf.ID,
			RunID:      runID,
		}
	}
	return outcome, nil
}
