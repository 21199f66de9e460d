package services

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmitchel3/hookflow/internal/repository"
)

// Janitor periodically purges terminal runs and dead letters older than
// the retention window.
type Janitor struct {
	runs      repository.RunRepository
	dlq       repository.DeadLetterRepository
	retention time.Duration
	schedule  string
	cron      *cron.Cron
}

// NewJanitor creates a retention sweeper. schedule is a standard cron
// expression; retention is how long terminal records are kept.
func NewJanitor(runs repository.RunRepository, dlq repository.DeadLetterRepository, schedule string, retention time.Duration) *Janitor {
	return &Janitor{
		runs:      runs,
		dlq:       dlq,
		retention: retention,
		schedule:  schedule,
	}
}

// Start schedules the sweep and begins running it in the background.
func (j *Janitor) Start() error {
	j.cron = cron.New()
	if _, err := j.cron.AddFunc(j.schedule, j.sweep); err != nil {
		return err
	}
	j.cron.Start()
	slog.Info("janitor started", "schedule", j.schedule, "retention", j.retention)
	return nil
}

// Stop halts the schedule and waits for an in-flight sweep to finish.
func (j *Janitor) Stop() {
	if j.cron == nil {
		return
	}
	<-j.cron.Stop().Done()
}

func (j *Janitor) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	cutoff := time.Now().UTC().Add(-j.retention)

	runs, err := j.runs.PurgeTerminalBefore(ctx, cutoff)
	if err != nil {
		slog.Error("janitor run purge failed", "error", err)
	}

	letters, err := j.dlq.PurgeBefore(ctx, cutoff)
	if err != nil {
		slog.Error("janitor dead letter purge failed", "error", err)
	}

	if runs > 0 || letters > 0 {
		slog.Info("janitor sweep", "runs_purged", runs, "dead_letters_purged", letters)
	}
}
