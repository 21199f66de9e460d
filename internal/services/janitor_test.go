package services

import (
	"context"
	"testing"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow"
	"github.com/jmitchel3/hookflow/internal/repository"
)

func TestJanitor_SweepPurgesOldRecords(t *testing.T) {
	runs := repository.NewMemoryRunRepository()
	dlq := repository.NewMemoryDeadLetterRepository()
	ctx := context.Background()

	runs.CreateRun(ctx, &hookflow.Run{RunID: "old", WorkflowID: "wf"})
	runs.MarkCompleted(ctx, "old", nil)
	runs.CreateRun(ctx, &hookflow.Run{RunID: "active", WorkflowID: "wf"})
	dlq.AddEntry(ctx, &hookflow.DeadLetterEntry{
		WorkflowID: "wf", RunID: "old",
		CreatedAt: time.Now().UTC().Add(-48 * time.Hour),
	})

	// Zero retention: everything before now is eligible.
	j := NewJanitor(runs, dlq, "* * * * *", 0)
	j.sweep()

	if _, err := runs.GetRun(ctx, "old"); err == nil {
		t.Error("terminal run survived sweep")
	}
	if _, err := runs.GetRun(ctx, "active"); err != nil {
		t.Error("active run purged by sweep")
	}
	if _, total, _ := dlq.List(ctx, "", 10, 0); total != 0 {
		t.Errorf("dead letters after sweep = %d, want 0", total)
	}
}

func TestJanitor_RetentionWindowKeepsRecent(t *testing.T) {
	runs := repository.NewMemoryRunRepository()
	dlq := repository.NewMemoryDeadLetterRepository()
	ctx := context.Background()

	runs.CreateRun(ctx, &hookflow.Run{RunID: "recent", WorkflowID: "wf"})
	runs.MarkCompleted(ctx, "recent", nil)
	dlq.AddEntry(ctx, &hookflow.DeadLetterEntry{WorkflowID: "wf", RunID: "recent"})

	j := NewJanitor(runs, dlq, "* * * * *", 24*time.Hour)
	j.sweep()

	if _, err := runs.GetRun(ctx, "recent"); err != nil {
		t.Error("recent terminal run purged inside retention window")
	}
	if _, total, _ := dlq.List(ctx, "", 10, 0); total != 1 {
		t.Errorf("recent dead letter purged, total = %d, want 1", total)
	}
}
