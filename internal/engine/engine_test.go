package engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// threeStepWorkflow counts how often each step body actually runs so the
// replay semantics are observable.
func threeStepWorkflow(counts map[string]int) *hookflow.Workflow {
	return &hookflow.Workflow{
		ID: "three-steps",
		Handler: func(ctx *hookflow.StepContext, data map[string]any) (any, error) {
			a, err := ctx.Step("s1", func() (any, error) {
				counts["s1"]++
				return 1, nil
			})
			if err != nil {
				return nil, err
			}
			b, err := ctx.Step("s2", func() (any, error) {
				counts["s2"]++
				return a.(int) + 1, nil
			})
			if err != nil {
				return nil, err
			}
			c, err := ctx.Step("s3", func() (any, error) {
				counts["s3"]++
				return b.(int) + 1, nil
			})
			if err != nil {
				return nil, err
			}
			return c, nil
		},
	}
}

func TestExecute_OneNewStepPerInvocation(t *testing.T) {
	counts := map[string]int{}
	wf := threeStepWorkflow(counts)

	// Feed each invocation's completed steps into the next, the way the
	// scheduler does. The run must take exactly len(steps)+1 invocations.
	completed := hookflow.CompletedSteps{}
	var final any
	for i := 0; i < 3; i++ {
		out := Execute(wf, "run-1", nil, completed)
		adv, ok := out.(hookflow.StepAdvanced)
		if !ok {
			t.Fatalf("invocation %d: outcome = %T, want StepAdvanced", i+1, out)
		}
		completed = adv.CompletedSteps
	}

	out := Execute(wf, "run-1", nil, completed)
	fin, ok := out.(hookflow.Finished)
	if !ok {
		t.Fatalf("final invocation: outcome = %T, want Finished", out)
	}
	final = fin.Result
	if final != 3 {
		t.Errorf("final result = %v, want 3", final)
	}

	for step, n := range counts {
		if n != 1 {
			t.Errorf("step %s executed %d times, want 1", step, n)
		}
	}
}

func TestExecute_ZeroStepWorkflowFinishesFirstInvocation(t *testing.T) {
	wf := &hookflow.Workflow{
		ID: "zero-steps",
		Handler: func(ctx *hookflow.StepContext, data map[string]any) (any, error) {
			return "done", nil
		},
	}
	out := Execute(wf, "run-1", nil, nil)
	fin, ok := out.(hookflow.Finished)
	if !ok {
		t.Fatalf("outcome = %T, want Finished", out)
	}
	if fin.Result != "done" {
		t.Errorf("result = %v, want %q", fin.Result, "done")
	}
}

func TestExecute_HandlerErrorBecomesFailed(t *testing.T) {
	boom := hookflow.NewRetryableError("external service down")
	wf := &hookflow.Workflow{
		ID: "failing",
		Handler: func(ctx *hookflow.StepContext, data map[string]any) (any, error) {
			return ctx.Step("s1", func() (any, error) { return nil, boom })
		},
	}
	out := Execute(wf, "run-1", nil, nil)
	failed, ok := out.(hookflow.Failed)
	if !ok {
		t.Fatalf("outcome = %T, want Failed", out)
	}
	var we *hookflow.WorkflowError
	if !errors.As(failed.Err, &we) || !we.Retryable {
		t.Errorf("Failed.Err = %v, want retryable workflow error", failed.Err)
	}
}

func TestExecute_PanicBecomesFailed(t *testing.T) {
	wf := &hookflow.Workflow{
		ID: "panicky",
		Handler: func(ctx *hookflow.StepContext, data map[string]any) (any, error) {
			panic("nil map write")
		},
	}
	out := Execute(wf, "run-1", nil, nil)
	failed, ok := out.(hookflow.Failed)
	if !ok {
		t.Fatalf("outcome = %T, want Failed", out)
	}
	if !strings.Contains(failed.Err.Error(), "workflow panicked") {
		t.Errorf("Failed.Err = %v, want panic wrapper", failed.Err)
	}
}

func TestExecute_SwallowedAdvanceStillHonored(t *testing.T) {
	// A buggy handler that drops the control-transfer error and returns
	// normally. The recorded step must still win over the bogus result.
	wf := &hookflow.Workflow{
		ID: "swallower",
		Handler: func(ctx *hookflow.StepContext, data map[string]any) (any, error) {
			ctx.Step("s1", func() (any, error) { return "recorded", nil })
			return "bogus final", nil
		},
	}
	out := Execute(wf, "run-1", nil, nil)
	adv, ok := out.(hookflow.StepAdvanced)
	if !ok {
		t.Fatalf("outcome = %T, want StepAdvanced", out)
	}
	if adv.StepID != "s1" || adv.Result != "recorded" {
		t.Errorf("advance = %+v", adv)
	}
}

func TestExecute_DataReachesHandler(t *testing.T) {
	wf := &hookflow.Workflow{
		ID: "echo",
		Handler: func(ctx *hookflow.StepContext, data map[string]any) (any, error) {
			return data["key"], nil
		},
	}
	out := Execute(wf, "run-1", map[string]any{"key": "value"}, nil)
	fin := out.(hookflow.Finished)
	if fin.Result != "value" {
		t.Errorf("result = %v, want %q", fin.Result, "value")
	}
}
