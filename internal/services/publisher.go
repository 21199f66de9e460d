package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow"
	"github.com/jmitchel3/hookflow/internal/hookflow/ports"
)

const (
	// defaultMaxPublishFailures bounds the short retry loop around one
	// outbound scheduling call. Independent of the run-level RetryPolicy.
	defaultMaxPublishFailures = 3
	defaultPublishBackoff     = 100 * time.Millisecond
)

// Publisher delivers "next invocation" messages to the scheduler through
// the circuit breaker, with its own short bounded retry loop. Failures here
// are failures of the publish itself, not of the workflow.
type Publisher struct {
	scheduler   ports.Scheduler
	breaker     *CircuitBreaker
	maxFailures int
	backoff     time.Duration

	// sleep is swappable for tests.
	sleep func(time.Duration)
}

func NewPublisher(scheduler ports.Scheduler, breaker *CircuitBreaker, maxFailures int) *Publisher {
	if maxFailures <= 0 {
		maxFailures = defaultMaxPublishFailures
	}
	return &Publisher{
		scheduler:   scheduler,
		breaker:     breaker,
		maxFailures: maxFailures,
		backoff:     defaultPublishBackoff,
		sleep:       time.Sleep,
	}
}

// Publish schedules the next invocation. The delivery delay is the explicit
// delay unless the most recently completed step recorded a sleep, in which
// case the slept-for duration wins.
//
// lastStepResult is the cached result of the step that just completed, or
// nil when no step advanced in this invocation.
func (p *Publisher) Publish(ctx context.Context, msg ports.Message, lastStepResult any) error {
	if d, ok := hookflow.SleepDuration(lastStepResult); ok {
		msg.Delay = d
	}

	var lastErr error
	for attempt := 0; attempt < p.maxFailures; attempt++ {
		err := p.breaker.Call(func() error {
			return p.scheduler.Publish(ctx, msg)
		})
		if err == nil {
			if attempt > 0 {
				slog.Info("publish succeeded after retries",
					"workflow", msg.WorkflowID, "run", msg.RunID, "retries", attempt)
			}
			return nil
		}
		lastErr = err

		if attempt < p.maxFailures-1 {
			backoff := p.backoff << attempt
			slog.Warn("publish attempt failed, retrying",
				"workflow", msg.WorkflowID, "run", msg.RunID,
				"attempt", attempt+1, "max", p.maxFailures,
				"backoff", backoff, "err", err)
			p.sleep(backoff)
		}
	}

	slog.Error("all publish attempts failed",
		"workflow", msg.WorkflowID, "run", msg.RunID,
		"attempts", p.maxFailures, "err", lastErr)
	return fmt.Errorf("publish next invocation after %d attempts: %w", p.maxFailures, lastErr)
}
