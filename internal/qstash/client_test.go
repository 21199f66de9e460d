package qstash

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmitchel3/hookflow/internal/hookflow/ports"
)

type capturedRequest struct {
	path   string
	auth   string
	delay  string
	body   map[string]any
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *capturedRequest) {
	t.Helper()
	captured := &capturedRequest{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.auth = r.Header.Get("Authorization")
		captured.delay = r.Header.Get("Upstash-Delay")
		raw, _ := io.ReadAll(r.Body)
		json.Unmarshal(raw, &captured.body)
		w.WriteHeader(status)
		w.Write([]byte(`{"messageId":"msg_1"}`))
	}))
	t.Cleanup(srv.Close)
	return srv, captured
}

func newTestClient(t *testing.T, baseURL string) *Client {
	t.Helper()
	c, err := NewClient("qs_token", "https://example.com", "/hookflow/", WithBaseURL(baseURL))
	require.NoError(t, err)
	return c
}

func TestPublish_SendsMessage(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	msg := ports.Message{
		WorkflowID:     "charge",
		RunID:          "run-1",
		Data:           map[string]any{"amount": 100.0},
		CompletedSteps: map[string]any{"s1": "done"},
		Attempt:        2,
	}
	require.NoError(t, c.Publish(context.Background(), msg))

	assert.Equal(t, "/v2/publish/https://example.com/hookflow/workflow/charge/", captured.path)
	assert.Equal(t, "Bearer qs_token", captured.auth)
	assert.Empty(t, captured.delay)

	assert.Equal(t, "charge", captured.body["workflow_id"])
	assert.Equal(t, "run-1", captured.body["run_id"])
	assert.Equal(t, float64(2), captured.body["attempt"])
	steps := captured.body["completed_steps"].(map[string]any)
	assert.Equal(t, "done", steps["s1"])
}

func TestPublish_DelayHeader(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	msg := ports.Message{WorkflowID: "charge", RunID: "run-1", Delay: 90 * time.Second}
	require.NoError(t, c.Publish(context.Background(), msg))
	assert.Equal(t, "90s", captured.delay)
}

func TestPublish_SubSecondDelayRoundsUp(t *testing.T) {
	srv, captured := newCaptureServer(t, http.StatusOK)
	c := newTestClient(t, srv.URL)

	// Truncating would send 0s, turning a requested delay into an
	// immediate delivery.
	msg := ports.Message{WorkflowID: "charge", RunID: "run-1", Delay: 500 * time.Millisecond}
	require.NoError(t, c.Publish(context.Background(), msg))
	assert.Equal(t, "1s", captured.delay)

	msg.Delay = 1500 * time.Millisecond
	require.NoError(t, c.Publish(context.Background(), msg))
	assert.Equal(t, "2s", captured.delay)
}

func TestPublish_Non2xxIsError(t *testing.T) {
	srv, _ := newCaptureServer(t, http.StatusTooManyRequests)
	c := newTestClient(t, srv.URL)

	err := c.Publish(context.Background(), ports.Message{WorkflowID: "charge", RunID: "run-1"})
	assert.ErrorContains(t, err, "429")
}

func TestDestinationURL_SlashHandling(t *testing.T) {
	tests := []struct {
		name   string
		domain string
		path   string
		want   string
	}{
		{"plain", "https://example.com", "/hookflow/", "https://example.com/hookflow/workflow/wf/"},
		{"trailing slash domain", "https://example.com/", "/hookflow/", "https://example.com/hookflow/workflow/wf/"},
		{"bare path", "https://example.com", "hookflow", "https://example.com/hookflow/workflow/wf/"},
		{"empty path", "https://example.com", "", "https://example.com/workflow/wf/"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := NewClient("tok", tt.domain, tt.path)
			require.NoError(t, err)
			assert.Equal(t, tt.want, c.DestinationURL("wf"))
		})
	}
}

func TestNewClient_RequiresCredentials(t *testing.T) {
	_, err := NewClient("", "https://example.com", "/hookflow/")
	assert.Error(t, err)
	_, err = NewClient("tok", "", "/hookflow/")
	assert.Error(t, err)
}
