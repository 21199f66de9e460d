package hookflow

import (
	"errors"
	"fmt"
	"time"
)

// ErrDuplicateStepID reports a workflow body that called the step primitive
// twice with the same ID in a single invocation. This is a caller
// programming error, never retried.
var ErrDuplicateStepID = errors.New("duplicate step id in workflow body")

// WorkflowError is a domain failure raised by workflow code. Retryable
// errors go through the retry policy before reaching the dead-letter queue;
// non-retryable errors are dead-lettered immediately.
type WorkflowError struct {
	Message   string
	Retryable bool
	Cause     error
}

func (e *WorkflowError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *WorkflowError) Unwrap() error { return e.Cause }

// NewWorkflowError creates a non-retryable workflow error.
func NewWorkflowError(format string, args ...any) *WorkflowError {
	return &WorkflowError{Message: fmt.Sprintf(format, args...)}
}

// NewRetryableError creates a workflow error eligible for retry.
func NewRetryableError(format string, args ...any) *WorkflowError {
	return &WorkflowError{Message: fmt.Sprintf(format, args...), Retryable: true}
}

// WrapError attaches a cause to a non-retryable workflow error.
func WrapError(err error, message string) *WorkflowError {
	return &WorkflowError{Message: message, Cause: err}
}

// IsRetryable reports whether err is a workflow error marked retryable.
// Execution timeouts are always retryable.
func IsRetryable(err error) bool {
	var te *ExecutionTimeoutError
	if errors.As(err, &te) {
		return true
	}
	var we *WorkflowError
	if errors.As(err, &we) {
		return we.Retryable
	}
	return false
}

// ExecutionTimeoutError reports that one engine invocation exceeded its
// cooperative execution deadline. The deadline cannot interrupt running
// workflow code; a late finish with no new step is still reported as a
// timeout, while late step progress and late failures keep their own
// outcomes.
type ExecutionTimeoutError struct {
	Timeout    time.Duration
	WorkflowID string
	RunID      string
}

func (e *ExecutionTimeoutError) Error() string {
	return fmt.Sprintf("workflow execution exceeded timeout of %s (workflow=%s run=%s)",
		e.Timeout, e.WorkflowID, e.RunID)
}
