package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/jmitchel3/hookflow/internal/hookflow"
	"github.com/jmitchel3/hookflow/internal/services"
)

// handleWorkflowWebhook receives one scheduler delivery for a workflow.
// POST {webhookPath}workflow/{workflowID}/
//
// The delivery loop that makes workflows progress: the scheduler calls
// here, one step runs, and a follow-up delivery is published until the
// workflow finishes or dead-letters.
func (s *Server) handleWorkflowWebhook(w http.ResponseWriter, r *http.Request) {
	workflowID := chi.URLParam(r, "workflowID")

	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxPayloadBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{
				"status": "payload_too_large",
				"error":  "request body exceeds maximum payload size",
			})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "malformed_payload",
			"error":  "failed to read request body",
		})
		return
	}

	signature := r.Header.Get("Upstash-Signature")
	if err := s.verifier.Verify(signature, body, s.deliveryURL(r)); err != nil {
		slog.Warn("webhook signature rejected", "workflow_id", workflowID, "error", err)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"status": "signature_invalid",
			"error":  "signature verification failed",
		})
		return
	}

	var payload hookflow.InvocationPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"status": "malformed_payload",
			"error":  "invalid JSON body",
		})
		return
	}

	result := s.invocations.Handle(r.Context(), workflowID, payload)
	result.RetryDelaySecs = result.RetryDelay.Seconds()
	writeJSON(w, statusCode(result.Status), result)
}

// deliveryURL reconstructs the URL the scheduler signed: the configured
// public domain plus the request path as delivered.
func (s *Server) deliveryURL(r *http.Request) string {
	return strings.TrimSuffix(s.opts.Domain, "/") + r.URL.Path
}

func statusCode(status services.InvocationStatus) int {
	switch status {
	case services.StatusCompleted, services.StatusStepCompleted, services.StatusRetrying:
		return http.StatusOK
	case services.StatusLockContention:
		return http.StatusConflict
	case services.StatusShuttingDown:
		return http.StatusServiceUnavailable
	case services.StatusWorkflowNotFound:
		return http.StatusNotFound
	case services.StatusMalformedPayload:
		return http.StatusBadRequest
	case services.StatusExecutionTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
