package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// ErrDeadLetterNotFound is returned when a dead letter row does not exist.
var ErrDeadLetterNotFound = errors.New("dead letter not found")

// InsertDeadLetter stores a permanently-failed invocation. An empty ID is
// assigned; the chosen ID and timestamp are written back to the entry.
func (d *DB) InsertDeadLetter(ctx context.Context, entry *hookflow.DeadLetterEntry) error {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	payloadJSON, _ := json.Marshal(entry.Payload)
	stepsJSON, _ := json.Marshal(entry.CompletedSteps)

	_, err := d.Pool.ExecContext(ctx,
		`INSERT INTO dead_letters (id, workflow_id, run_id, payload, completed_steps, error_message, error_traceback, attempt_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.ID, entry.WorkflowID, entry.RunID, payloadJSON, stepsJSON,
		entry.ErrorMessage, entry.ErrorTraceback, entry.AttemptCount, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert dead letter: %w", err)
	}
	return nil
}

// GetDeadLetter retrieves one entry by ID.
func (d *DB) GetDeadLetter(ctx context.Context, id string) (*hookflow.DeadLetterEntry, error) {
	entry := &hookflow.DeadLetterEntry{}
	var payloadJSON, stepsJSON []byte

	err := d.Pool.QueryRowContext(ctx,
		`SELECT id, workflow_id, run_id, payload, completed_steps, error_message, error_traceback, attempt_count, created_at
		 FROM dead_letters WHERE id = $1`, id,
	).Scan(&entry.ID, &entry.WorkflowID, &entry.RunID, &payloadJSON, &stepsJSON,
		&entry.ErrorMessage, &entry.ErrorTraceback, &entry.AttemptCount, &entry.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrDeadLetterNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get dead letter: %w", err)
	}

	json.Unmarshal(payloadJSON, &entry.Payload)
	json.Unmarshal(stepsJSON, &entry.CompletedSteps)
	return entry, nil
}

// ListDeadLetters returns entries filtered by workflow ID, newest first.
func (d *DB) ListDeadLetters(ctx context.Context, workflowID string, limit, offset int) ([]*hookflow.DeadLetterEntry, int, error) {
	where := "WHERE ($1 = '' OR workflow_id = $1)"

	var total int
	err := d.Pool.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM dead_letters `+where, workflowID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("count dead letters: %w", err)
	}

	rows, err := d.Pool.QueryContext(ctx,
		`SELECT id, workflow_id, run_id, payload, completed_steps, error_message, error_traceback, attempt_count, created_at
		 FROM dead_letters `+where+` ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		workflowID, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("list dead letters: %w", err)
	}
	defer rows.Close()

	var out []*hookflow.DeadLetterEntry
	for rows.Next() {
		entry := &hookflow.DeadLetterEntry{}
		var payloadJSON, stepsJSON []byte
		if err := rows.Scan(&entry.ID, &entry.WorkflowID, &entry.RunID, &payloadJSON, &stepsJSON,
			&entry.ErrorMessage, &entry.ErrorTraceback, &entry.AttemptCount, &entry.CreatedAt,
		); err != nil {
			return nil, 0, fmt.Errorf("scan dead letter: %w", err)
		}
		json.Unmarshal(payloadJSON, &entry.Payload)
		json.Unmarshal(stepsJSON, &entry.CompletedSteps)
		out = append(out, entry)
	}
	return out, total, rows.Err()
}

// DeleteDeadLetter removes one entry.
func (d *DB) DeleteDeadLetter(ctx context.Context, id string) error {
	res, err := d.Pool.ExecContext(ctx, `DELETE FROM dead_letters WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete dead letter: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrDeadLetterNotFound
	}
	return nil
}

// PurgeDeadLettersBefore deletes entries created before cutoff.
func (d *DB) PurgeDeadLettersBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := d.Pool.ExecContext(ctx,
		`DELETE FROM dead_letters WHERE created_at < $1`, cutoff,
	)
	if err != nil {
		return 0, fmt.Errorf("purge dead letters: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
