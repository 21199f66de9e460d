package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/jmitchel3/hookflow/internal/hookflow"
	"github.com/jmitchel3/hookflow/internal/hookflow/ports"
	"github.com/jmitchel3/hookflow/internal/repository"
)

// listDeadLetters returns dead letter entries, newest first.
// GET /api/deadletters?workflow_id=...&limit=20&offset=0
func (s *Server) listDeadLetters(w http.ResponseWriter, r *http.Request) {
	limit, offset := parsePagination(r)
	workflowID := r.URL.Query().Get("workflow_id")

	entries, total, err := s.dlq.List(r.Context(), workflowID, limit, offset)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []*hookflow.DeadLetterEntry{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"dead_letters": entries,
		"total":        total,
	})
}

// getDeadLetter returns one dead letter entry.
// GET /api/deadletters/{id}
func (s *Server) getDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := s.dlq.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "dead letter not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// deleteDeadLetter removes one dead letter entry.
// DELETE /api/deadletters/{id}
func (s *Server) deleteDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.dlq.Delete(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "dead letter not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// replayDeadLetter re-publishes a dead letter's original payload through
// the scheduler so the run picks up where it left off. Completed steps are
// carried along, so already-finished work is not redone.
// POST /api/deadletters/{id}/replay
func (s *Server) replayDeadLetter(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, err := s.dlq.Get(r.Context(), id)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "dead letter not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data, _ := entry.Payload["data"].(map[string]any)
	msg := ports.Message{
		WorkflowID:     entry.WorkflowID,
		RunID:          entry.RunID,
		Data:           data,
		CompletedSteps: entry.CompletedSteps,
	}
	if err := s.scheduler.Publish(r.Context(), msg); err != nil {
		slog.Error("dead letter replay publish failed", "id", id, "error", err)
		http.Error(w, "replay publish failed", http.StatusBadGateway)
		return
	}

	slog.Info("dead letter replayed",
		"id", id, "workflow_id", entry.WorkflowID, "run_id", entry.RunID)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status":      "replayed",
		"id":          id,
		"workflow_id": entry.WorkflowID,
		"run_id":      entry.RunID,
	})
}
