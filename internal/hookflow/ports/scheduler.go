package ports

import (
	"context"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// Message is one outbound scheduling request: deliver a new invocation of
// the engine for this run, optionally after a delay.
type Message struct {
	WorkflowID     string
	RunID          string
	Data           map[string]any
	CompletedSteps hookflow.CompletedSteps
	Delay          time.Duration
	Attempt        int
}

// Scheduler accepts a message and guarantees at-least-once future delivery
// of a new invocation back to this engine.
type Scheduler interface {
	Publish(ctx context.Context, msg Message) error
}

// Verifier authenticates an inbound invocation against the scheduling
// service's rotating signing keys.
type Verifier interface {
	// Verify checks the signature over body as delivered to url. A nil
	// return means the invocation genuinely originates from the scheduler.
	Verify(signature string, body []byte, url string) error
}

// DeadLetterSink records permanently-failed invocations for offline
// inspection and replay.
type DeadLetterSink interface {
	AddEntry(ctx context.Context, entry *hookflow.DeadLetterEntry) error
}
