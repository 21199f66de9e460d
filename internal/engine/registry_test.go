package engine

import (
	"testing"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

func noopHandler(ctx *hookflow.StepContext, data map[string]any) (any, error) {
	return nil, nil
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	reg := NewRegistry()
	if err := reg.Register(&hookflow.Workflow{ID: "wf-1", Handler: noopHandler}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	wf := reg.Get("wf-1")
	if wf == nil || wf.ID != "wf-1" {
		t.Errorf("Get(wf-1) = %v", wf)
	}
	if reg.Get("missing") != nil {
		t.Error("Get(missing) != nil, want nil")
	}
}

func TestRegistry_RejectsInvalidRegistrations(t *testing.T) {
	reg := NewRegistry()

	if err := reg.Register(&hookflow.Workflow{ID: "", Handler: noopHandler}); err == nil {
		t.Error("empty id accepted")
	}
	if err := reg.Register(&hookflow.Workflow{ID: "wf-1"}); err == nil {
		t.Error("nil handler accepted")
	}

	if err := reg.Register(&hookflow.Workflow{ID: "wf-1", Handler: noopHandler}); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := reg.Register(&hookflow.Workflow{ID: "wf-1", Handler: noopHandler}); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestRegistry_IDsSorted(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"charlie", "alpha", "bravo"} {
		reg.Register(&hookflow.Workflow{ID: id, Handler: noopHandler})
	}

	ids := reg.IDs()
	want := []string{"alpha", "bravo", "charlie"}
	if len(ids) != len(want) {
		t.Fatalf("IDs() = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("IDs()[%d] = %q, want %q", i, ids[i], want[i])
		}
	}
}
