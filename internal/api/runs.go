package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmitchel3/hookflow/internal/hookflow"
	"github.com/jmitchel3/hookflow/internal/repository"
)

// listWorkflows returns the IDs of all registered workflows.
// GET /api/workflows
func (s *Server) listWorkflows(w http.ResponseWriter, r *http.Request) {
	ids := s.registry.IDs()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"workflows": ids,
		"total":     len(ids),
	})
}

// listRuns returns runs with optional workflow_id/status filters.
// GET /api/runs?workflow_id=...&status=...&limit=20&offset=0
func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	workflowID := r.URL.Query().Get("workflow_id")
	status := r.URL.Query().Get("status")

	runs, total, err := s.runs.ListRuns(r.Context(), workflowID, status, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if runs == nil {
		runs = []*hookflow.Run{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"runs":  runs,
		"total": total,
	})
}

// getRun returns one run with its step records in execution order.
// GET /api/runs/{runID}
func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	run, err := s.runs.GetRun(r.Context(), runID)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "run not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	steps, err := s.runs.ListSteps(r.Context(), runID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"run":   run,
		"steps": steps,
	})
}
