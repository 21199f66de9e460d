package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

func TestMemoryDeadLetter_AddAssignsID(t *testing.T) {
	repo := NewMemoryDeadLetterRepository()
	ctx := context.Background()

	entry := &hookflow.DeadLetterEntry{
		WorkflowID:   "charge",
		RunID:        "run-1",
		ErrorMessage: "card declined",
	}
	if err := repo.AddEntry(ctx, entry); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if entry.ID == "" {
		t.Fatal("AddEntry() did not assign an ID")
	}

	got, err := repo.Get(ctx, entry.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.RunID != "run-1" || got.CreatedAt.IsZero() {
		t.Errorf("entry = %+v", got)
	}
}

func TestMemoryDeadLetter_ListFilterAndDelete(t *testing.T) {
	repo := NewMemoryDeadLetterRepository()
	ctx := context.Background()

	a := &hookflow.DeadLetterEntry{WorkflowID: "charge", RunID: "r1"}
	b := &hookflow.DeadLetterEntry{WorkflowID: "refund", RunID: "r2"}
	repo.AddEntry(ctx, a)
	repo.AddEntry(ctx, b)

	entries, total, err := repo.List(ctx, "charge", 10, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if total != 1 || entries[0].RunID != "r1" {
		t.Errorf("List(charge) = %d entries, total %d", len(entries), total)
	}

	_, total, _ = repo.List(ctx, "", 10, 0)
	if total != 2 {
		t.Errorf("List(all) total = %d, want 2", total)
	}

	if err := repo.Delete(ctx, a.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := repo.Get(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Error("deleted entry still present")
	}
	if err := repo.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestMemoryDeadLetter_PurgeBefore(t *testing.T) {
	repo := NewMemoryDeadLetterRepository()
	ctx := context.Background()

	old := &hookflow.DeadLetterEntry{WorkflowID: "wf", RunID: "old", CreatedAt: time.Now().UTC().Add(-48 * time.Hour)}
	fresh := &hookflow.DeadLetterEntry{WorkflowID: "wf", RunID: "fresh"}
	repo.AddEntry(ctx, old)
	repo.AddEntry(ctx, fresh)

	removed, err := repo.PurgeBefore(ctx, time.Now().UTC().Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("PurgeBefore() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, total, _ := repo.List(ctx, "", 10, 0); total != 1 {
		t.Errorf("remaining = %d, want 1", total)
	}
}
