package bookings

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MemoryRepo is an in-memory Repository useful for tests.
type MemoryRepo struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]Booking
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{bookings: make(map[uuid.UUID]Booking)}
}

// Put inserts or replaces b, filling in a missing id.
func (r *MemoryRepo) Put(b Booking) Booking {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.UpdatedAt = b.CreatedAt
	r.bookings[b.ID] = b
	return b
}

func (r *MemoryRepo) Get(_ context.Context, id uuid.UUID) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	return b, nil
}

func (r *MemoryRepo) Delete(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bookings[id]; !ok {
		return ErrNotFound
	}
	delete(r.bookings, id)
	return nil
}

func (r *MemoryRepo) MarkPaid(_ context.Context, id uuid.UUID, deduction decimal.Decimal, at time.Time) (Booking, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.bookings[id]
	if !ok {
		return Booking{}, ErrNotFound
	}
	if b.Status != StatusPending {
		return Booking{}, ErrNotPayable
	}
	at = at.UTC()
	b.Status = StatusConfirmed
	b.WalletDeductionAmount = deduction
	b.PaidAt = &at
	b.UpdatedAt = at
	r.bookings[id] = b
	return b, nil
}

func (r *MemoryRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bookings)
}
