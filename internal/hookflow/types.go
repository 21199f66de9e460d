package hookflow

import "time"

// RunStatus is the lifecycle state of a workflow run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// Terminal reports whether a run in this status will never change again.
func (s RunStatus) Terminal() bool {
	return s == RunCompleted || s == RunFailed
}

// Run is one instantiated execution of a workflow, identified by a
// caller-supplied run ID. A run is created lazily by the first invocation
// that references an unknown run ID.
type Run struct {
	RunID        string         `json:"run_id"`
	WorkflowID   string         `json:"workflow_id"`
	Status       RunStatus      `json:"status"`
	Input        map[string]any `json:"data"`
	Result       any            `json:"result"`
	ErrorMessage string         `json:"error_message"`
	RetryAttempt int            `json:"retry_attempt"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	CompletedAt  *time.Time     `json:"completed_at"`
}

// StepRecord is the write-once memoization cell for one completed step.
type StepRecord struct {
	RunID      string    `json:"run_id"`
	StepID     string    `json:"step_id"`
	Result     any       `json:"result"`
	ExecutedAt time.Time `json:"executed_at"`
}

// CompletedSteps maps step IDs to their cached results for one run.
type CompletedSteps map[string]any

// Clone returns a shallow copy. A nil receiver yields an empty, usable map.
func (c CompletedSteps) Clone() CompletedSteps {
	out := make(CompletedSteps, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}

// StepIDs returns the IDs of all completed steps, in no particular order.
func (c CompletedSteps) StepIDs() []string {
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	return ids
}

// MergeSteps combines steps loaded from the store with steps carried in the
// inbound payload. Payload entries win on collision. Collisions are an
// idempotency signal (a duplicate delivery replayed a step the store already
// knows about), so the colliding IDs are returned for logging rather than
// treated as an error.
func MergeSteps(stored, payload CompletedSteps) (CompletedSteps, []string) {
	merged := stored.Clone()
	var collisions []string
	for id, result := range payload {
		if _, ok := merged[id]; ok {
			collisions = append(collisions, id)
		}
		merged[id] = result
	}
	return merged, collisions
}

// InvocationPayload is the JSON body of one inbound webhook invocation.
// Attempt defaults to zero when absent.
type InvocationPayload struct {
	WorkflowID     string         `json:"workflow_id"`
	RunID          string         `json:"run_id"`
	Data           map[string]any `json:"data"`
	CompletedSteps CompletedSteps `json:"completed_steps"`
	Attempt        int            `json:"attempt"`
}

// DeadLetterEntry is the permanent record of an invocation that exhausted
// its retries or failed non-retryably. Entries are append-only.
type DeadLetterEntry struct {
	ID             string         `json:"id"`
	WorkflowID     string         `json:"workflow_id"`
	RunID          string         `json:"run_id"`
	Payload        map[string]any `json:"payload"`
	ErrorMessage   string         `json:"error_message"`
	ErrorTraceback string         `json:"error_traceback"`
	AttemptCount   int            `json:"attempt_count"`
	CompletedSteps CompletedSteps `json:"completed_steps"`
	CreatedAt      time.Time      `json:"created_at"`
}

// sleepResultKey marks a step result as a recorded sleep. The scheduler
// turns it into a delivery delay for the next invocation.
const sleepResultKey = "slept_for"

// SleepResult builds the step result recorded by StepContext.Sleep.
func SleepResult(d time.Duration) map[string]any {
	return map[string]any{sleepResultKey: d.Seconds()}
}

// SleepDuration reports whether a cached step result is a sleep marker and,
// if so, how long the sleep was for. Only the exact {"slept_for": N} shape
// is recognized; any other result shape is inert.
func SleepDuration(result any) (time.Duration, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return 0, false
	}
	v, ok := m[sleepResultKey]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return time.Duration(n * float64(time.Second)), true
	case int:
		return time.Duration(n) * time.Second, true
	case int64:
		return time.Duration(n) * time.Second, true
	}
	return 0, false
}
