package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmitchel3/hookflow/internal/hookflow"
)

// MemoryDeadLetterRepository keeps dead letter entries in process memory.
type MemoryDeadLetterRepository struct {
	mu      sync.Mutex
	entries map[string]*hookflow.DeadLetterEntry
}

func NewMemoryDeadLetterRepository() *MemoryDeadLetterRepository {
	return &MemoryDeadLetterRepository{
		entries: make(map[string]*hookflow.DeadLetterEntry),
	}
}

func (r *MemoryDeadLetterRepository) AddEntry(_ context.Context, entry *hookflow.DeadLetterEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *entry
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	r.entries[cp.ID] = &cp
	entry.ID = cp.ID
	return nil
}

func (r *MemoryDeadLetterRepository) Get(_ context.Context, id string) (*hookflow.DeadLetterEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *entry
	return &cp, nil
}

func (r *MemoryDeadLetterRepository) List(_ context.Context, workflowID string, limit, offset int) ([]*hookflow.DeadLetterEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var filtered []*hookflow.DeadLetterEntry
	for _, entry := range r.entries {
		if workflowID != "" && entry.WorkflowID != workflowID {
			continue
		}
		cp := *entry
		filtered = append(filtered, &cp)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := len(filtered)
	if offset >= total {
		return nil, total, nil
	}
	end := offset + limit
	if limit <= 0 || end > total {
		end = total
	}
	return filtered[offset:end], total, nil
}

func (r *MemoryDeadLetterRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[id]; !ok {
		return ErrNotFound
	}
	delete(r.entries, id)
	return nil
}

func (r *MemoryDeadLetterRepository) PurgeBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for id, entry := range r.entries {
		if entry.CreatedAt.Before(cutoff) {
			delete(r.entries, id)
			removed++
		}
	}
	return removed, nil
}
