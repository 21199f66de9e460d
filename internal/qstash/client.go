// Package qstash talks to the Upstash QStash HTTP API: publishing delayed
// webhook deliveries and verifying the JWT signatures on inbound ones.
package qstash

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/jmitchel3/hookflow/internal/hookflow/ports"
)

const defaultBaseURL = "https://qstash.upstash.io"

// Client publishes messages through QStash. Each published message becomes
// a signed webhook delivery back to this engine's workflow endpoint.
type Client struct {
	token       string
	domain      string
	webhookPath string
	baseURL     string
	httpClient  *http.Client
}

// ClientOption configures a Client.
type ClientOption func(*Client)

// WithBaseURL overrides the QStash API base URL. Used in tests.
func WithBaseURL(u string) ClientOption {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(u, "/") }
}

// WithHTTPClient overrides the HTTP client used for publishing.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a QStash publish client. domain is the public base URL
// of this engine (e.g. "https://example.com") and webhookPath the mount
// point of the workflow webhook (e.g. "/hookflow/").
func NewClient(token, domain, webhookPath string, opts ...ClientOption) (*Client, error) {
	if token == "" {
		return nil, fmt.Errorf("qstash token is not set")
	}
	if domain == "" {
		return nil, fmt.Errorf("webhook domain is not set")
	}

	c := &Client{
		token:       token,
		domain:      strings.TrimSuffix(domain, "/"),
		webhookPath: normalizePath(webhookPath),
		baseURL:     defaultBaseURL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// DestinationURL returns the webhook URL QStash will deliver to for a
// workflow: {domain}{path}workflow/{workflow_id}/.
func (c *Client) DestinationURL(workflowID string) string {
	return c.domain + c.webhookPath + "workflow/" + workflowID + "/"
}

// Publish sends one message to QStash for future delivery. A positive
// Delay is passed through as an Upstash-Delay header in whole seconds,
// rounded up so a sub-second delay never collapses to zero.
func (c *Client) Publish(ctx context.Context, msg ports.Message) error {
	body := map[string]any{
		"workflow_id":     msg.WorkflowID,
		"run_id":          msg.RunID,
		"data":            msg.Data,
		"completed_steps": msg.CompletedSteps,
		"attempt":         msg.Attempt,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal publish body: %w", err)
	}

	endpoint := c.baseURL + "/v2/publish/" + c.DestinationURL(msg.WorkflowID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build publish request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")
	if msg.Delay > 0 {
		secs := int64((msg.Delay + time.Second - 1) / time.Second)
		req.Header.Set("Upstash-Delay", fmt.Sprintf("%ds", secs))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("publish to qstash: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("qstash publish returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}

// normalizePath forces exactly one leading and one trailing slash.
func normalizePath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if !strings.HasSuffix(p, "/") {
		p += "/"
	}
	return p
}
