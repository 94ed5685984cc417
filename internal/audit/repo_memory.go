package audit

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryRepo is a simple in-memory append-only repository useful for tests.
// It is not intended for production use.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{} }

func (r *MemoryRepo) Append(_ context.Context, e Event) error {
	if err := e.check(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *MemoryRepo) List(_ context.Context, businessID uuid.UUID, f Filter) ([]Event, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var matched []Event
	for _, e := range r.events {
		if e.BusinessAccountID == businessID && f.matches(e) {
			matched = append(matched, e)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool { return matched[i].CreatedAt.After(matched[j].CreatedAt) })

	total := len(matched)
	if f.Offset >= total {
		return []Event{}, total, nil
	}
	end := f.Offset + f.Limit
	if end > total {
		end = total
	}
	return append([]Event(nil), matched[f.Offset:end]...), total, nil
}

func (r *MemoryRepo) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}
