package payments

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store useful for tests.
type MemoryStore struct {
	mu        sync.Mutex
	methods   map[uuid.UUID]PaymentMethod
	customers map[uuid.UUID]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		methods:   make(map[uuid.UUID]PaymentMethod),
		customers: make(map[uuid.UUID]string),
	}
}

func (s *MemoryStore) ListMethods(_ context.Context, businessID uuid.UUID) ([]PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []PaymentMethod
	for _, pm := range s.methods {
		if pm.BusinessAccountID == businessID && pm.IsActive {
			out = append(out, pm)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].IsDefault != out[j].IsDefault {
			return out[i].IsDefault
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *MemoryStore) GetMethod(_ context.Context, id uuid.UUID) (PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok {
		return PaymentMethod{}, ErrMethodNotFound
	}
	return pm, nil
}

func (s *MemoryStore) SaveMethod(_ context.Context, pm PaymentMethod) (PaymentMethod, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.methods {
		if existing.BusinessAccountID == pm.BusinessAccountID && existing.ProviderRef == pm.ProviderRef {
			existing.Brand, existing.Last4 = pm.Brand, pm.Last4
			existing.ExpMonth, existing.ExpYear = pm.ExpMonth, pm.ExpYear
			existing.IsActive = true
			s.methods[id] = existing
			return existing, nil
		}
	}
	if pm.ID == uuid.Nil {
		pm.ID = uuid.New()
	}
	if pm.CreatedAt.IsZero() {
		pm.CreatedAt = time.Now().UTC()
	}
	pm.IsActive = true
	s.methods[pm.ID] = pm
	return pm, nil
}

func (s *MemoryStore) DeactivateMethod(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok {
		return ErrMethodNotFound
	}
	pm.IsActive = false
	pm.IsDefault = false
	s.methods[id] = pm
	return nil
}

func (s *MemoryStore) MarkMethodUsed(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	pm, ok := s.methods[id]
	if !ok {
		return ErrMethodNotFound
	}
	at = at.UTC()
	pm.LastUsedAt = &at
	s.methods[id] = pm
	return nil
}

func (s *MemoryStore) CustomerID(_ context.Context, businessID uuid.UUID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.customers[businessID], nil
}

func (s *MemoryStore) SetCustomerID(_ context.Context, businessID uuid.UUID, id string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur := s.customers[businessID]; cur != "" {
		return cur, nil
	}
	s.customers[businessID] = id
	return id, nil
}
