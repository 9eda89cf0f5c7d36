package order

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrNotFound is returned when no order exists for an id.
var ErrNotFound = errors.New("order not found")

// Repository persists order aggregates as event streams. An order is mutated
// by a single writer (the confirmation handler and the lifecycle transitions
// it drives); implementations only need to serialize per-aggregate appends.
type Repository interface {
	Save(ctx context.Context, agg *Aggregate) error
	Load(ctx context.Context, id string) (*Aggregate, error)
	GetEvents(ctx context.Context, aggregateID string) ([]*Event, error)
	ListIDs(ctx context.Context) ([]string, error)
}

// MemoryRepository is an in-process event store for single-node runs and tests.
type MemoryRepository struct {
	mu     sync.RWMutex
	events map[string][]*Event
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{events: make(map[string][]*Event)}
}

// Save appends the aggregate's uncommitted events.
func (r *MemoryRepository) Save(ctx context.Context, agg *Aggregate) error {
	changes := agg.Changes()
	if len(changes) == 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stream := r.events[agg.ID()]
	if len(stream) > 0 && changes[0].Version <= stream[len(stream)-1].Version {
		return fmt.Errorf("order %s: stale aggregate version %d", agg.ID(), changes[0].Version)
	}
	r.events[agg.ID()] = append(stream, changes...)

	agg.ClearChanges()
	return nil
}

// Load rebuilds an aggregate from its event stream.
func (r *MemoryRepository) Load(ctx context.Context, id string) (*Aggregate, error) {
	events, err := r.GetEvents(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}

	agg := NewAggregate(id)
	agg.LoadFromHistory(events)
	return agg, nil
}

// GetEvents returns the event stream for an aggregate, oldest first.
func (r *MemoryRepository) GetEvents(ctx context.Context, aggregateID string) ([]*Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stream := r.events[aggregateID]
	out := make([]*Event, len(stream))
	copy(out, stream)
	return out, nil
}

// ListIDs returns all known aggregate ids in stable order.
func (r *MemoryRepository) ListIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.events))
	for id := range r.events {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
