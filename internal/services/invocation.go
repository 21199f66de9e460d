package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmitchel3/hookflow/internal/engine"
	"github.com/jmitchel3/hookflow/internal/hookflow"
	"github.com/jmitchel3/hookflow/internal/hookflow/ports"
	"github.com/jmitchel3/hookflow/internal/repository"
)

// InvocationStatus classifies the result of handling one inbound
// invocation. The HTTP layer maps these onto response codes.
type InvocationStatus string

const (
	StatusCompleted        InvocationStatus = "completed"
	StatusStepCompleted    InvocationStatus = "step_completed"
	StatusRetrying         InvocationStatus = "retrying"
	StatusLockContention   InvocationStatus = "lock_contention"
	StatusShuttingDown     InvocationStatus = "shutting_down"
	StatusWorkflowNotFound InvocationStatus = "workflow_not_found"
	StatusMalformedPayload InvocationStatus = "malformed_payload"
	StatusExecutionTimeout InvocationStatus = "execution_timeout"
	StatusWorkflowFailed   InvocationStatus = "workflow_failed"
	StatusInternalError    InvocationStatus = "internal_error"
)

// InvocationResult is what one handled invocation reports back to the
// delivery service.
type InvocationResult struct {
	Status           InvocationStatus `json:"status"`
	WorkflowID       string           `json:"workflow_id"`
	RunID            string           `json:"run_id"`
	Result           any              `json:"result,omitempty"`
	StepID           string           `json:"step_id,omitempty"`
	CompletedStepIDs []string         `json:"completed_steps,omitempty"`
	Attempt          int              `json:"attempt,omitempty"`
	RetryDelay       time.Duration    `json:"-"`
	RetryDelaySecs   float64          `json:"retry_delay,omitempty"`
	Reason           string           `json:"reason,omitempty"`
	AddedToDLQ       bool             `json:"added_to_dlq,omitempty"`
	Error            string           `json:"error,omitempty"`
}

// InvocationService executes one webhook invocation end to end: admission,
// locking, replay, persistence, and scheduling of the next invocation.
type InvocationService struct {
	registry  *engine.Registry
	store     ports.RunStore
	publisher *Publisher
	dlq       ports.DeadLetterSink
	shutdown  *ShutdownCoordinator
	retry     RetryPolicy

	// defaultTimeout applies when a workflow carries no timeout of its own.
	defaultTimeout time.Duration
}

func NewInvocationService(
	registry *engine.Registry,
	store ports.RunStore,
	publisher *Publisher,
	dlq ports.DeadLetterSink,
	shutdown *ShutdownCoordinator,
	retry RetryPolicy,
	defaultTimeout time.Duration,
) *InvocationService {
	return &InvocationService{
		registry:       registry,
		store:          store,
		publisher:      publisher,
		dlq:            dlq,
		shutdown:       shutdown,
		retry:          retry,
		defaultTimeout: defaultTimeout,
	}
}

// Handle processes one inbound invocation whose signature has already been
// verified. urlWorkflowID is the workflow ID addressed by the request URL;
// a mismatch with the payload is a hard validation error, never retried.
func (s *InvocationService) Handle(ctx context.Context, urlWorkflowID string, payload hookflow.InvocationPayload) *InvocationResult {
	workflowID := payload.WorkflowID
	runID := payload.RunID

	if workflowID == "" || workflowID != urlWorkflowID {
		slog.Error("workflow id mismatch", "url", urlWorkflowID, "payload", workflowID)
		return &InvocationResult{
			Status:     StatusMalformedPayload,
			WorkflowID: urlWorkflowID,
			Error:      "workflow id mismatch",
		}
	}
	if runID == "" {
		slog.Error("missing run_id in invocation payload", "workflow", workflowID)
		return &InvocationResult{
			Status:     StatusMalformedPayload,
			WorkflowID: workflowID,
			Error:      "missing run_id",
		}
	}

	// Merge store-cached steps with payload steps; payload wins. Collisions
	// mean a duplicate delivery replayed a step we already recorded.
	stored, err := s.store.CompletedSteps(ctx, runID)
	if err != nil {
		slog.Error("loading cached steps failed, continuing with payload steps",
			"run", runID, "err", err)
		stored = nil
	}
	completed, collisions := hookflow.MergeSteps(stored, payload.CompletedSteps)
	if len(collisions) > 0 {
		slog.Info("idempotency: duplicate steps in payload, cached results in use",
			"workflow", workflowID, "run", runID, "duplicates", collisions)
	}

	if !s.shutdown.TrackStart(runID) {
		return &InvocationResult{
			Status:     StatusShuttingDown,
			WorkflowID: workflowID,
			RunID:      runID,
			Error:      "service is shutting down",
		}
	}
	defer s.shutdown.TrackEnd(runID)

	wf := s.registry.Get(workflowID)
	if wf == nil {
		slog.Error("workflow not found", "workflow", workflowID)
		return &InvocationResult{
			Status:     StatusWorkflowNotFound,
			WorkflowID: workflowID,
			RunID:      runID,
			Error:      "workflow not found",
		}
	}

	s.ensureRun(ctx, wf.ID, runID, payload.Data)

	// Non-blocking exclusive lock on the run row. Contention means a
	// genuine in-flight duplicate: reject so the delivery service retries
	// later. Never counted as a failed attempt.
	release, acquired, err := s.store.TryLock(ctx, runID)
	if err != nil || !acquired {
		if err != nil {
			slog.Warn("run lock attempt errored, treating as contention",
				"run", runID, "err", err)
		} else {
			slog.Info("idempotency: lock contention rejected duplicate invocation",
				"workflow", workflowID, "run", runID)
		}
		return &InvocationResult{
			Status:     StatusLockContention,
			WorkflowID: workflowID,
			RunID:      runID,
			Error:      "workflow execution in progress",
		}
	}
	unlock := func() {
		if release != nil {
			release()
			release = nil
		}
	}
	defer unlock()

	timeout := s.defaultTimeout
	if wf.Timeout != nil {
		timeout = *wf.Timeout
	}

	outcome, timeoutErr := engine.ExecuteWithTimeout(timeout, wf, runID, payload.Data, completed)
	if timeoutErr != nil {
		return s.handleTimeout(ctx, wf, payload, completed, timeoutErr, unlock)
	}

	switch o := outcome.(type) {
	case hookflow.Finished:
		slog.Info("workflow completed", "workflow", workflowID, "run", runID)
		s.safeMarkCompleted(ctx, runID, o.Result)
		unlock()
		return &InvocationResult{
			Status:     StatusCompleted,
			WorkflowID: workflowID,
			RunID:      runID,
			Result:     o.Result,
		}

	case hookflow.StepAdvanced:
		return s.handleStepAdvanced(ctx, wf, payload, o, unlock)

	case hookflow.Failed:
		return s.handleFailed(ctx, wf, payload, completed, o.Err, unlock)
	}

	// Unreachable: Outcome is a closed sum.
	return &InvocationResult{
		Status:     StatusInternalError,
		WorkflowID: workflowID,
		RunID:      runID,
		Error:      "unknown engine outcome",
	}
}

func (s *InvocationService) handleStepAdvanced(ctx context.Context, wf *hookflow.Workflow, payload hookflow.InvocationPayload, adv hookflow.StepAdvanced, unlock func()) *InvocationResult {
	slog.Info("step completed",
		"workflow", wf.ID, "run", payload.RunID, "step", adv.StepID)

	// Persist the step before publishing so a crash between the two leaves
	// a resumable cache, and reset the retry counter: progress was made.
	s.safeSaveStep(ctx, payload.RunID, adv.StepID, adv.Result)
	if err := s.store.ResetRetryAttempt(ctx, payload.RunID); err != nil {
		slog.Warn("failed to reset retry attempt", "run", payload.RunID, "err", err)
	}

	// The row lock must not be held across the outbound network call.
	unlock()

	msg := ports.Message{
		WorkflowID:     wf.ID,
		RunID:          payload.RunID,
		Data:           payload.Data,
		CompletedSteps: adv.CompletedSteps,
	}
	if err := s.publisher.Publish(ctx, msg, adv.Result); err != nil {
		return &InvocationResult{
			Status:     StatusInternalError,
			WorkflowID: wf.ID,
			RunID:      payload.RunID,
			Error:      "failed to schedule next step after retries",
		}
	}

	return &InvocationResult{
		Status:           StatusStepCompleted,
		WorkflowID:       wf.ID,
		RunID:            payload.RunID,
		StepID:           adv.StepID,
		CompletedStepIDs: adv.CompletedSteps.StepIDs(),
	}
}

func (s *InvocationService) handleTimeout(ctx context.Context, wf *hookflow.Workflow, payload hookflow.InvocationPayload, completed hookflow.CompletedSteps, timeoutErr error, unlock func()) *InvocationResult {
	slog.Warn("workflow execution timed out",
		"workflow", wf.ID, "run", payload.RunID, "err", timeoutErr)

	attempt := payload.Attempt
	if s.retry.ShouldRetry(attempt) {
		delay := s.retry.Delay(attempt)
		unlock()
		msg := ports.Message{
			WorkflowID:     wf.ID,
			RunID:          payload.RunID,
			Data:           payload.Data,
			CompletedSteps: completed,
			Delay:          delay,
			Attempt:        attempt + 1,
		}
		if err := s.publisher.Publish(ctx, msg, nil); err == nil {
			return &InvocationResult{
				Status:         StatusRetrying,
				WorkflowID:     wf.ID,
				RunID:          payload.RunID,
				Reason:         "execution_timeout",
				Attempt:        attempt + 1,
				RetryDelay:     delay,
				RetryDelaySecs: delay.Seconds(),
			}
		}
		slog.Warn("failed to schedule timeout retry", "run", payload.RunID)
	}

	s.deadLetter(ctx, wf.ID, payload, timeoutErr, attempt+1, completed)
	s.safeMarkFailed(ctx, payload.RunID, timeoutErr.Error())
	unlock()

	return &InvocationResult{
		Status:     StatusExecutionTimeout,
		WorkflowID: wf.ID,
		RunID:      payload.RunID,
		Error:      "workflow execution timed out",
		AddedToDLQ: true,
	}
}

func (s *InvocationService) handleFailed(ctx context.Context, wf *hookflow.Workflow, payload hookflow.InvocationPayload, completed hookflow.CompletedSteps, execErr error, unlock func()) *InvocationResult {
	var wfErr *hookflow.WorkflowError
	if !errors.As(execErr, &wfErr) {
		// Unexpected error: dead-letter immediately without consuming retry
		// attempts.
		slog.Error("unexpected error in workflow",
			"workflow", wf.ID, "run", payload.RunID, "err", execErr)
		s.deadLetter(ctx, wf.ID, payload, execErr, payload.Attempt+1, completed)
		s.safeMarkFailed(ctx, payload.RunID, "unexpected internal error")
		unlock()
		return &InvocationResult{
			Status:     StatusInternalError,
			WorkflowID: wf.ID,
			RunID:      payload.RunID,
			Error:      "internal server error",
			AddedToDLQ: true,
		}
	}

	slog.Error("workflow error",
		"workflow", wf.ID, "run", payload.RunID, "err", wfErr)

	attempt := payload.Attempt
	if wfErr.Retryable && s.retry.ShouldRetry(attempt) {
		delay := s.retry.Delay(attempt)
		slog.Info("scheduling retry",
			"workflow", wf.ID, "run", payload.RunID,
			"attempt", attempt+1, "delay", delay)

		if _, err := s.store.IncrementRetryAttempt(ctx, payload.RunID); err != nil {
			slog.Warn("failed to increment retry attempt",
				"run", payload.RunID, "err", err)
		}
		unlock()

		msg := ports.Message{
			WorkflowID:     wf.ID,
			RunID:          payload.RunID,
			Data:           payload.Data,
			CompletedSteps: completed,
			Delay:          delay,
			Attempt:        attempt + 1,
		}
		if err := s.publisher.Publish(ctx, msg, nil); err == nil {
			return &InvocationResult{
				Status:         StatusRetrying,
				WorkflowID:     wf.ID,
				RunID:          payload.RunID,
				Attempt:        attempt + 1,
				RetryDelay:     delay,
				RetryDelaySecs: delay.Seconds(),
			}
		}
		slog.Warn("failed to schedule retry after all publish attempts",
			"run", payload.RunID)
	}

	slog.Warn("adding run to dead letter queue",
		"workflow", wf.ID, "run", payload.RunID, "attempts", attempt+1)
	s.deadLetter(ctx, wf.ID, payload, wfErr, attempt+1, completed)
	s.safeMarkFailed(ctx, payload.RunID, wfErr.Error())
	unlock()

	return &InvocationResult{
		Status:     StatusWorkflowFailed,
		WorkflowID: wf.ID,
		RunID:      payload.RunID,
		Error:      "workflow execution failed",
		AddedToDLQ: true,
	}
}

// ensureRun creates the run row on the first invocation referencing an
// unknown run ID. Best-effort: a storage failure here must not block
// execution.
func (s *InvocationService) ensureRun(ctx context.Context, workflowID, runID string, data map[string]any) {
	_, err := s.store.GetRun(ctx, runID)
	if err == nil {
		return
	}
	if !errors.Is(err, repository.ErrNotFound) {
		slog.Warn("run lookup failed", "run", runID, "err", err)
		return
	}

	now := time.Now().UTC()
	run := &hookflow.Run{
		RunID:      runID,
		WorkflowID: workflowID,
		Status:     hookflow.RunRunning,
		Input:      data,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateRun(ctx, run); err != nil {
		slog.Warn("run creation failed", "run", runID, "err", err)
	}
}

// deadLetter appends a permanent failure record. Append failures are
// logged, never propagated: the caller must still return its response.
func (s *InvocationService) deadLetter(ctx context.Context, workflowID string, payload hookflow.InvocationPayload, cause error, attemptCount int, completed hookflow.CompletedSteps) {
	entry := &hookflow.DeadLetterEntry{
		WorkflowID: workflowID,
		RunID:      payload.RunID,
		Payload: map[string]any{
			"workflow_id":     payload.WorkflowID,
			"run_id":          payload.RunID,
			"data":            payload.Data,
			"completed_steps": payload.CompletedSteps,
			"attempt":         payload.Attempt,
		},
		ErrorMessage:   cause.Error(),
		ErrorTraceback: fmt.Sprintf("%T: %+v", cause, cause),
		AttemptCount:   attemptCount,
		CompletedSteps: completed.Clone(),
		CreatedAt:      time.Now().UTC(),
	}
	if err := s.dlq.AddEntry(ctx, entry); err != nil {
		slog.Error("failed to append dead letter entry",
			"workflow", workflowID, "run", payload.RunID, "err", err)
	}
}

func (s *InvocationService) safeSaveStep(ctx context.Context, runID, stepID string, result any) {
	if err := s.store.SaveStep(ctx, runID, stepID, result); err != nil {
		slog.Error("failed to persist step, workflow will continue",
			"run", runID, "step", stepID, "err", err)
	}
}

func (s *InvocationService) safeMarkCompleted(ctx context.Context, runID string, result any) {
	if err := s.store.MarkCompleted(ctx, runID, result); err != nil {
		slog.Error("failed to persist workflow completion", "run", runID, "err", err)
	}
}

func (s *InvocationService) safeMarkFailed(ctx context.Context, runID, message string) {
	if err := s.store.MarkFailed(ctx, runID, message); err != nil {
		slog.Error("failed to persist workflow failure", "run", runID, "err", err)
	}
}
