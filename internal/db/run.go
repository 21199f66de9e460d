package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// ErrRunNotFound is returned when a run row does not exist.
var ErrRunNotFound = errors.New("run not found")

// pqLockNotAvailable is the PostgreSQL error code raised by
// FOR UPDATE NOWAIT when another transaction holds the row lock.
const pqLockNotAvailable = "55P03"

// CreateRun stores a new run row.
func (d *DB) CreateRun(ctx context.Context, run *hookflow.Run) error {
	inputJSON, _ := json.Marshal(run.Input)
	resultJSON, _ := json.Marshal(run.Result)

	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO workflow_runs (run_id, workflow_id, status, input, result, error_message, retry_attempt, created_at, updated_at, completed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		run.RunID, run.WorkflowID, string(run.Status), inputJSON, resultJSON,
		run.ErrorMessage, run.RetryAttempt, run.CreatedAt, run.UpdatedAt, run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// GetRun retrieves a run row by run ID.
func (d *DB) GetRun(ctx context.Context, runID string) (*hookflow.Run, error) {
	run := &hookflow.Run{}
	var status string
	var inputJSON, resultJSON []byte

	err := d.Pool.QueryRowContext(ctx,
		`SELECT run_id, workflow_id, status, input, result, error_message, retry_attempt, created_at, updated_at, completed_at
		 FROM workflow_runs WHERE run_id = $1`, runID,
	).Scan(&run.RunID, &run.WorkflowID, &status, &inputJSON, &resultJSON,
		&run.ErrorMessage, &run.RetryAttempt, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get run: %w", err)
	}

	run.Status = hookflow.RunStatus(status)
	json.Unmarshal(inputJSON, &run.Input)
	json.Unmarshal(resultJSON, &run.Result)
	return run, nil
}

// SaveStep records one step result. The primary key makes the cell
// write-once: a conflicting insert is a no-op.
func (d *DB) SaveStep(ctx context.Context, runID, stepID string, result any) error {
	resultJSON, _ := json.Marshal(result)

	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO step_records (run_id, step_id, result, executed_at)
		 VALUES ($1, $2, $3, NOW())
		 ON CONFLICT (run_id, step_id) DO NOTHING`,
		runID, stepID, resultJSON,
	)
	if err != nil {
		return fmt.Errorf("insert step: %w", err)
	}
	return nil
}

// CompletedSteps returns every cached step result for a run.
func (d *DB) CompletedSteps(ctx context.Context, runID string) (hookflow.CompletedSteps, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT step_id, result FROM step_records WHERE run_id = $1`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	out := hookflow.CompletedSteps{}
	for rows.Next() {
		var stepID string
		var resultJSON []byte
		if err := rows.Scan(&stepID, &resultJSON); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		var result any
		json.Unmarshal(resultJSON, &result)
		out[stepID] = result
	}
	return out, rows.Err()
}

// ListSteps returns a run's step records ordered by execution time.
func (d *DB) ListSteps(ctx context.Context, runID string) ([]*hookflow.StepRecord, error) {
	rows, err := d.Pool.QueryContext(ctx,
		`SELECT run_id, step_id, result, executed_at FROM step_records
		 WHERE run_id = $1 ORDER BY executed_at`, runID,
	)
	if err != nil {
		return nil, fmt.Errorf("query steps: %w", err)
	}
	defer rows.Close()

	var out []*hookflow.StepRecord
	for rows.Next() {
		rec := &hookflow.StepRecord{}
		var resultJSON []byte
		if err := rows.Scan(&rec.RunID, &rec.StepID, &resultJSON, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		json.Unmarshal(resultJSON, &rec.Result)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// MarkRunCompleted sets a run terminal with its final result.
func (d *DB) MarkRunCompleted(ctx context.Context, runID string, result any) error {
	resultJSON, _ := json.Marshal(result)

	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflow_runs
		 SET status = $1, result = $2, error_message = '', updated_at = NOW(), completed_at = NOW()
		 WHERE run_id = $3`,
		string(hookflow.RunCompleted), resultJSON, runID,
	)
	if err != nil {
		return fmt.Errorf("mark run completed: %w", err)
	}
	return noRowsAsNotFound(res)
}

// MarkRunFailed sets a run terminal with an error message.
func (d *DB) MarkRunFailed(ctx context.Context, runID, errorMessage string) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflow_runs
		 SET status = $1, error_message = $2, updated_at = NOW(), completed_at = NOW()
		 WHERE run_id = $3`,
		string(hookflow.RunFailed), errorMessage, runID,
	)
	if err != nil {
		return fmt.Errorf("mark run failed: %w", err)
	}
	return noRowsAsNotFound(res)
}

// IncrementRetryAttempt bumps the retry counter and returns the new value.
func (d *DB) IncrementRetryAttempt(ctx context.Context, runID string) (int, error) {
	var attempt int
	err := d.Pool.QueryRowContext(ctx,
		`UPDATE workflow_runs
		 SET retry_attempt = retry_attempt + 1, updated_at = NOW()
		 WHERE run_id = $1
		 RETURNING retry_attempt`, runID,
	).Scan(&attempt)
	if err == sql.ErrNoRows {
		return 0, ErrRunNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("increment retry attempt: %w", err)
	}
	return attempt, nil
}

// ResetRetryAttempt zeroes the retry counter.
func (d *DB) ResetRetryAttempt(ctx context.Context, runID string) error {
	res, err := d.Pool.ExecContext(ctx,
		`UPDATE workflow_runs SET retry_attempt = 0, updated_at = NOW() WHERE run_id = $1`,
		runID,
	)
	if err != nil {
		return fmt.Errorf("reset retry attempt: %w", err)
	}
	return noRowsAsNotFound(res)
}

// TryLockRun attempts a non-blocking row lock via FOR UPDATE NOWAIT inside
// a transaction. The returned release func commits the transaction, which
// is what drops the lock; callers release before any outbound network call.
// A missing row counts as acquired (first invocation for this run).
func (d *DB) TryLockRun(ctx context.Context, runID string) (func(), bool, error) {
	tx, err := d.Pool.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("begin lock tx: %w", err)
	}

	var id string
	err = tx.QueryRowContext(ctx,
		`SELECT run_id FROM workflow_runs WHERE run_id = $1 FOR UPDATE NOWAIT`, runID,
	).Scan(&id)

	if err == sql.ErrNoRows {
		tx.Rollback()
		return func() {}, true, nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqLockNotAvailable {
		tx.Rollback()
		return nil, false, nil
	}
	if err != nil {
		tx.Rollback()
		return nil, false, fmt.Errorf("lock run: %w", err)
	}

	var once sync.Once
	release := func() {
		once.Do(func() { tx.Commit() })
	}
	return release, true, nil
}

// ListRuns returns runs filtered by workflow ID and status, newest first.
func (d *DB) ListRuns(ctx context.Context, workflowID, status string, limit, offset int) ([]*hookflow.Run, int, error) {
	where := "WHERE ($1 = '' OR workflow_id = $1) AND ($2 = '' OR status = $2)"

	var total int
	err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM workflow_runs `+where, workflowID, status,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count runs: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx,
		`SELECT run_id, workflow_id, status, input, result, error_message, retry_attempt, created_at, updated_at, completed_at
		 FROM workflow_runs `+where+` ORDER BY created_at DESC LIMIT $3 OFFSET $4`,
		workflowID, status, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*hookflow.Run
	for rows.Next() {
		run := &hookflow.Run{}
		var st string
		var inputJSON, resultJSON []byte
		if err := rows.Scan(&run.RunID, &run.WorkflowID, &st, &inputJSON, &resultJSON,
			&run.ErrorMessage, &run.RetryAttempt, &run.CreatedAt, &run.UpdatedAt, &run.CompletedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan run: %w", err)
		}
		run.Status = hookflow.RunStatus(st)
		json.Unmarshal(inputJSON, &run.Input)
		json.Unmarshal(resultJSON, &run.Result)
		out = append(out, run)
	}
	return out, total, rows.Err()
}

// PurgeTerminalRunsBefore deletes completed/failed runs and their steps
// last updated before cutoff.
func (d *DB) PurgeTerminalRunsBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.Pool.ExecContext(ctx,
		`WITH steps AS (
		    DELETE FROM step_records WHERE run_id IN (
		        SELECT run_id FROM workflow_runs
		        WHERE status IN ($1, $2) AND updated_at < $3
		    )
		 )
		 DELETE FROM workflow_runs
		 WHERE status IN ($1, $2) AND updated_at < $3`,
		string(hookflow.RunCompleted), string(hookflow.RunFailed), cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func noRowsAsNotFound(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return nil
	}
	if n == 0 {
		return ErrRunNotFound
	}
	return nil
}
