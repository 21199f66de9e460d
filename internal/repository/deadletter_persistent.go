package repository

import (
	"context"
	"errors"
	"time"

	"github.com/jmitchel3/hookflow/internal/db"
	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// PersistentDeadLetterRepository backs the dead letter queue with PostgreSQL.
type PersistentDeadLetterRepository struct {
	db *db.DB
}

// NewPersistentDeadLetterRepository creates a PostgreSQL-backed dead letter
// repository.
func NewPersistentDeadLetterRepository(database *db.DB) *PersistentDeadLetterRepository {
	return &PersistentDeadLetterRepository{db: database}
}

func (r *PersistentDeadLetterRepository) AddEntry(ctx context.Context, entry *hookflow.DeadLetterEntry) error {
	return r.db.InsertDeadLetter(ctx, entry)
}

func (r *PersistentDeadLetterRepository) Get(ctx context.Context, id string) (*hookflow.DeadLetterEntry, error) {
	entry, err := r.db.GetDeadLetter(ctx, id)
	if errors.Is(err, db.ErrDeadLetterNotFound) {
		return nil, ErrNotFound
	}
	return entry, err
}

func (r *PersistentDeadLetterRepository) List(ctx context.Context, workflowID string, limit, offset int) ([]*hookflow.DeadLetterEntry, int, error) {
	return r.db.ListDeadLetters(ctx, workflowID, limit, offset)
}

func (r *PersistentDeadLetterRepository) Delete(ctx context.Context, id string) error {
	err := r.db.DeleteDeadLetter(ctx, id)
	if errors.Is(err, db.ErrDeadLetterNotFound) {
		return ErrNotFound
	}
	return err
}

func (r *PersistentDeadLetterRepository) PurgeBefore(ctx context.Context, cutoff time.Time) (int, error) {
	return r.db.PurgeDeadLettersBefore(ctx, cutoff)
}
