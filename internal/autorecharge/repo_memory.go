package autorecharge

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepo is an in-memory Repository useful for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	settings map[uuid.UUID]Settings
	attempts map[uuid.UUID]Attempt
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		settings: make(map[uuid.UUID]Settings),
		attempts: make(map[uuid.UUID]Attempt),
	}
}

func (r *MemoryRepo) Settings(_ context.Context, businessID uuid.UUID) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.settings[businessID]
	if !ok {
		return Settings{BusinessAccountID: businessID}, nil
	}
	return s, nil
}

func (r *MemoryRepo) SaveSettings(_ context.Context, s Settings) (Settings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	r.settings[s.BusinessAccountID] = s
	return s, nil
}

func (r *MemoryRepo) CreateAttempt(_ context.Context, a Attempt) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.attempts {
		if existing.BusinessAccountID == a.BusinessAccountID && existing.Status.Open() {
			return Attempt{}, ErrOpenAttempt
		}
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	a.UpdatedAt = a.CreatedAt
	a.Status = StatusPending
	r.attempts[a.ID] = a
	return a, nil
}

func (r *MemoryRepo) Attempt(_ context.Context, id uuid.UUID) (Attempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, ErrAttemptNotFound
	}
	return a, nil
}

func (r *MemoryRepo) Transition(_ context.Context, id uuid.UUID, from []Status, to Status, p Patch) (Attempt, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.attempts[id]
	if !ok {
		return Attempt{}, false, ErrAttemptNotFound
	}
	if !slices.Contains(from, a.Status) {
		return a, false, nil
	}
	applyTransition(&a, to, p)
	r.attempts[id] = a
	return a, true, nil
}

func (r *MemoryRepo) ListAttempts(_ context.Context, businessID uuid.UUID, f HistoryFilter) ([]Attempt, int, error) {
	matched := r.filtered(businessID, f.matches)
	total := len(matched)
	start := min(f.offset(), total)
	end := min(start+f.Limit, total)
	return matched[start:end], total, nil
}

func (r *MemoryRepo) Statistics(_ context.Context, businessID uuid.UUID, f HistoryFilter) (Statistics, error) {
	return summarize(r.filtered(businessID, f.matchesDates)), nil
}

func (r *MemoryRepo) filtered(businessID uuid.UUID, keep func(Attempt) bool) []Attempt {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Attempt
	for _, a := range r.attempts {
		if a.BusinessAccountID == businessID && keep(a) {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func applyTransition(a *Attempt, to Status, p Patch) {
	at := p.At.UTC()
	a.Status = to
	a.UpdatedAt = at
	if p.PaymentIntentID != "" {
		a.PaymentIntentID = p.PaymentIntentID
	}
	if p.FailureReason != "" {
		a.FailureReason = p.FailureReason
	}
	if !to.Open() {
		a.CompletedAt = &at
	}
}
