// Package api exposes the workflow webhook endpoint and the management API
// over HTTP.
package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/jmitchel3/hookflow/internal/engine"
	"github.com/jmitchel3/hookflow/internal/hookflow/ports"
	"github.com/jmitchel3/hookflow/internal/repository"
	"github.com/jmitchel3/hookflow/internal/services"
)

// Options carries the knobs the HTTP layer needs beyond its collaborators.
type Options struct {
	// WebhookPath is the mount point of the workflow webhook, with leading
	// and trailing slashes (default "/hookflow/").
	WebhookPath string

	// Domain is the public base URL of this server, used to reconstruct
	// the delivery URL for signature verification.
	Domain string

	// MaxPayloadBytes caps the inbound webhook body size.
	MaxPayloadBytes int64

	// AuthRequired gates the management API behind APIKey.
	AuthRequired bool
	APIKey       string

	// RatePerMinute limits management API requests per client IP. Zero
	// disables limiting.
	RatePerMinute int
}

type Server struct {
	registry    *engine.Registry
	invocations *services.InvocationService
	verifier    ports.Verifier
	scheduler   ports.Scheduler
	runs        repository.RunRepository
	dlq         repository.DeadLetterRepository
	opts        Options

	limiter *clientLimiter
}

func NewServer(
	registry *engine.Registry,
	invocations *services.InvocationService,
	verifier ports.Verifier,
	scheduler ports.Scheduler,
	runs repository.RunRepository,
	dlq repository.DeadLetterRepository,
	opts Options,
) *Server {
	if opts.WebhookPath == "" {
		opts.WebhookPath = "/hookflow/"
	}
	if opts.MaxPayloadBytes <= 0 {
		opts.MaxPayloadBytes = 1 << 20
	}
	s := &Server{
		registry:    registry,
		invocations: invocations,
		verifier:    verifier,
		scheduler:   scheduler,
		runs:        runs,
		dlq:         dlq,
		opts:        opts,
	}
	if opts.RatePerMinute > 0 {
		s.limiter = newClientLimiter(opts.RatePerMinute)
	}
	return s
}

func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "Upstash-Signature"},
		AllowCredentials: true,
	}))

	r.Post(s.opts.WebhookPath+"workflow/{workflowID}/", s.handleWorkflowWebhook)
	// chi treats the trailing slash as significant; accept both forms.
	r.Post(s.opts.WebhookPath+"workflow/{workflowID}", s.handleWorkflowWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		if s.limiter != nil {
			r.Use(s.rateLimitMiddleware)
		}
		r.Get("/workflows", s.listWorkflows)
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", s.listRuns)
			r.Get("/{runID}", s.getRun)
		})
		r.Route("/deadletters", func(r chi.Router) {
			r.Get("/", s.listDeadLetters)
			r.Get("/{id}", s.getDeadLetter)
			r.Delete("/{id}", s.deleteDeadLetter)
			r.Post("/{id}/replay", s.replayDeadLetter)
		})
	})

	r.Get("/healthz", s.health)

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func parsePagination(r *http.Request) (int, int) {
	limit := 20
	offset := 0

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			offset = n
		}
	}

	return limit, offset
}
