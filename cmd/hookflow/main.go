package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"golang.org/x/sync/errgroup"

	"github.com/jmitchel3/hookflow/internal/api"
	"github.com/jmitchel3/hookflow/internal/config"
	"github.com/jmitchel3/hookflow/internal/db"
	"github.com/jmitchel3/hookflow/internal/engine"
	"github.com/jmitchel3/hookflow/internal/qstash"
	"github.com/jmitchel3/hookflow/internal/repository"
	"github.com/jmitchel3/hookflow/internal/services"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			serve()
			return
		case "settings":
			settings()
			return
		}
	}
	fmt.Println("hookflow v0.1.0")
	fmt.Println("Usage: hookflow serve | hookflow settings")
}

func settings() {
	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	cfg.WriteSettings(os.Stdout)
}

func serve() {
	cfg, err := config.LoadDefault()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		runs    repository.RunRepository
		dlq     repository.DeadLetterRepository
		janitor *services.Janitor
	)
	if cfg.Database.URL != "" {
		database, err := db.New(ctx, cfg.Database.URL)
		if err != nil {
			slog.Error("database error", "err", err)
			os.Exit(1)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			slog.Error("migration error", "err", err)
			os.Exit(1)
		}
		runs = repository.NewPersistentRunRepository(database)
		dlq = repository.NewPersistentDeadLetterRepository(database)
		slog.Info("using postgresql storage")
	} else {
		runs = repository.NewMemoryRunRepository()
		dlq = repository.NewMemoryDeadLetterRepository()
		slog.Warn("DATABASE_URL not set, using in-memory storage")
	}

	scheduler, err := qstash.NewClient(cfg.QStash.Token, cfg.QStash.Domain, cfg.QStash.WebhookPath)
	if err != nil {
		slog.Error("qstash client error", "err", err)
		os.Exit(1)
	}
	verifier, err := qstash.NewReceiver(cfg.QStash.CurrentSigningKey, cfg.QStash.NextSigningKey, cfg.ClockSkew())
	if err != nil {
		slog.Error("qstash receiver error", "err", err)
		os.Exit(1)
	}

	breaker := services.NewCircuitBreaker("qstash-publish", services.BreakerSettings{
		Enabled:           cfg.Engine.BreakerEnabled,
		FailureThreshold:  cfg.Engine.BreakerFailureThreshold,
		RecoveryTimeout:   time.Duration(cfg.Engine.BreakerRecoverySeconds) * time.Second,
		HalfOpenSuccesses: cfg.Engine.BreakerHalfOpenSuccesses,
	})
	publisher := services.NewPublisher(scheduler, breaker, 0)
	shutdown := services.NewShutdownCoordinator()
	retry := services.RetryPolicy{
		MaxAttempts: cfg.Engine.RetryMaxAttempts,
		BaseDelay:   time.Duration(cfg.Engine.RetryBaseDelaySeconds) * time.Second,
		MaxDelay:    time.Duration(cfg.Engine.RetryMaxDelaySeconds) * time.Second,
	}

	registry := engine.NewRegistry()
	registerWorkflows(registry)

	invocations := services.NewInvocationService(
		registry, runs, publisher, dlq, shutdown, retry, cfg.ExecutionTimeout(),
	)

	srv := api.NewServer(registry, invocations, verifier, scheduler, runs, dlq, api.Options{
		WebhookPath:     cfg.QStash.WebhookPath,
		Domain:          cfg.QStash.Domain,
		MaxPayloadBytes: int64(cfg.Engine.MaxPayloadBytes),
		AuthRequired:    cfg.API.AuthRequired,
		APIKey:          cfg.API.Key,
		RatePerMinute:   cfg.API.RatePerMinute,
	})

	if cfg.Engine.RetentionDays > 0 {
		janitor = services.NewJanitor(runs, dlq, cfg.Engine.JanitorSchedule, cfg.Retention())
		if err := janitor.Start(); err != nil {
			slog.Error("janitor error", "err", err)
			os.Exit(1)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: srv.Handler()}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting hookflow server", "addr", addr, "webhook_path", cfg.QStash.WebhookPath)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		select {
		case sig := <-quit:
			slog.Info("shutdown signal received", "signal", sig.String())
		case <-gctx.Done():
			return nil
		}

		// Stop admitting new invocations and wait for in-flight ones, then
		// close the listener.
		shutdown.InitiateDrain(cfg.ShutdownTimeout())

		if janitor != nil {
			janitor.Stop()
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

// registerWorkflows is where application workflows are attached to the
// engine. The binary ships empty; embedders add their own here or build
// their own main around the packages.
func registerWorkflows(reg *engine.Registry) {
}
