package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

func authedGet(t *testing.T, handler http.Handler, path, auth string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestManagement_AuthRequired(t *testing.T) {
	f := newServerFixture(t, okVerifier{}, Options{AuthRequired: true, APIKey: "sekrit"}, oneStepWorkflow())
	handler := f.srv.Handler()

	if rec := authedGet(t, handler, "/api/workflows", ""); rec.Code != http.StatusUnauthorized {
		t.Errorf("no auth: status = %d, want 401", rec.Code)
	}
	if rec := authedGet(t, handler, "/api/workflows", "Bearer wrong"); rec.Code != http.StatusUnauthorized {
		t.Errorf("wrong key: status = %d, want 401", rec.Code)
	}
	if rec := authedGet(t, handler, "/api/workflows", "Bearer sekrit"); rec.Code != http.StatusOK {
		t.Errorf("bearer: status = %d, want 200", rec.Code)
	}
	if rec := authedGet(t, handler, "/api/workflows", "Api-Key sekrit"); rec.Code != http.StatusOK {
		t.Errorf("api-key prefix: status = %d, want 200", rec.Code)
	}
}

func TestManagement_AuthDisabled(t *testing.T) {
	f := newServerFixture(t, okVerifier{}, Options{AuthRequired: false}, oneStepWorkflow())

	rec := authedGet(t, f.srv.Handler(), "/api/workflows", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Workflows []string `json:"workflows"`
		Total     int      `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Workflows[0] != "charge" {
		t.Errorf("response = %+v", resp)
	}
}

func TestManagement_GetRunWithSteps(t *testing.T) {
	f := newServerFixture(t, okVerifier{}, Options{})
	ctx := context.Background()

	f.runs.CreateRun(ctx, &hookflow.Run{RunID: "run-1", WorkflowID: "charge", Status: hookflow.RunRunning})
	f.runs.SaveStep(ctx, "run-1", "s1", "done")

	rec := authedGet(t, f.srv.Handler(), "/api/runs/run-1", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Run   *hookflow.Run          `json:"run"`
		Steps []*hookflow.StepRecord `json:"steps"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Run.WorkflowID != "charge" || len(resp.Steps) != 1 || resp.Steps[0].StepID != "s1" {
		t.Errorf("response = %+v", resp)
	}

	if rec := authedGet(t, f.srv.Handler(), "/api/runs/missing", ""); rec.Code != http.StatusNotFound {
		t.Errorf("missing run: status = %d, want 404", rec.Code)
	}
}

func TestManagement_ListRunsFilter(t *testing.T) {
	f := newServerFixture(t, okVerifier{}, Options{})
	ctx := context.Background()

	f.runs.CreateRun(ctx, &hookflow.Run{RunID: "r1", WorkflowID: "charge", Status: hookflow.RunCompleted})
	f.runs.CreateRun(ctx, &hookflow.Run{RunID: "r2", WorkflowID: "refund", Status: hookflow.RunRunning})

	rec := authedGet(t, f.srv.Handler(), "/api/runs/?workflow_id=charge", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var resp struct {
		Runs  []*hookflow.Run `json:"runs"`
		Total int             `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 1 || resp.Runs[0].RunID != "r1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestManagement_DeadLetterReplay(t *testing.T) {
	f := newServerFixture(t, okVerifier{}, Options{})
	ctx := context.Background()

	entry := &hookflow.DeadLetterEntry{
		WorkflowID: "charge",
		RunID:      "run-1",
		Payload: map[string]any{
			"data": map[string]any{"amount": 100},
		},
		CompletedSteps: hookflow.CompletedSteps{"s1": "done"},
	}
	f.dlq.AddEntry(ctx, entry)

	req := httptest.NewRequest(http.MethodPost, "/api/deadletters/"+entry.ID+"/replay", nil)
	rec := httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body: %s", rec.Code, rec.Body.String())
	}
	if len(f.sched.published) != 1 {
		t.Fatalf("published %d messages, want 1", len(f.sched.published))
	}
	msg := f.sched.published[0]
	if msg.WorkflowID != "charge" || msg.RunID != "run-1" {
		t.Errorf("replayed message = %+v", msg)
	}
	if _, ok := msg.CompletedSteps["s1"]; !ok {
		t.Error("replay dropped completed steps")
	}

	// Replay of a missing entry is a 404.
	req = httptest.NewRequest(http.MethodPost, "/api/deadletters/missing/replay", nil)
	rec = httptest.NewRecorder()
	f.srv.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("missing entry: status = %d, want 404", rec.Code)
	}
}

func TestManagement_RateLimit(t *testing.T) {
	f := newServerFixture(t, okVerifier{}, Options{RatePerMinute: 2}, oneStepWorkflow())
	handler := f.srv.Handler()

	// The bucket starts full with a burst of RatePerMinute.
	for i := 0; i < 2; i++ {
		if rec := authedGet(t, handler, "/api/workflows", ""); rec.Code != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, rec.Code)
		}
	}
	if rec := authedGet(t, handler, "/api/workflows", ""); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}
