package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bizwallet/internal/apperr"

	"github.com/google/uuid"
)

var (
	ErrMethodNotFound   = apperr.NotFound("payment method not found")
	ErrMethodNotOwned   = apperr.Forbidden("payment method does not belong to this business")
	ErrMethodInactive   = apperr.Validation("payment method is no longer active")
	ErrCustomerNotFound = errors.New("payments: business account not found")
)

// PaymentMethod is a card saved with the provider for later charges.
type PaymentMethod struct {
	ID                uuid.UUID  `json:"id"`
	BusinessAccountID uuid.UUID  `json:"business_account_id"`
	ProviderRef       string     `json:"stripe_payment_method_id"`
	Brand             string     `json:"card_brand"`
	Last4             string     `json:"card_last4"`
	ExpMonth          int        `json:"card_exp_month"`
	ExpYear           int        `json:"card_exp_year"`
	IsDefault         bool       `json:"is_default"`
	IsActive          bool       `json:"is_active"`
	LastUsedAt        *time.Time `json:"last_used_at,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

// Store persists saved payment methods and each account's provider customer.
type Store interface {
	ListMethods(ctx context.Context, businessID uuid.UUID) ([]PaymentMethod, error)
	GetMethod(ctx context.Context, id uuid.UUID) (PaymentMethod, error)
	// SaveMethod inserts or reactivates the method keyed by (business, provider ref).
	SaveMethod(ctx context.Context, pm PaymentMethod) (PaymentMethod, error)
	DeactivateMethod(ctx context.Context, id uuid.UUID) error
	MarkMethodUsed(ctx context.Context, id uuid.UUID, at time.Time) error

	CustomerID(ctx context.Context, businessID uuid.UUID) (string, error)
	// SetCustomerID stores id unless one is already set, and returns the stored value.
	SetCustomerID(ctx context.Context, businessID uuid.UUID, id string) (string, error)
}

// Methods applies ownership rules on top of Store.
type Methods struct {
	store Store
}

func NewMethods(store Store) *Methods { return &Methods{store: store} }

// List returns the active methods of businessID, default first.
func (m *Methods) List(ctx context.Context, businessID uuid.UUID) ([]PaymentMethod, error) {
	out, err := m.store.ListMethods(ctx, businessID)
	if err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	if out == nil {
		out = []PaymentMethod{}
	}
	return out, nil
}

// Get returns the method only when it belongs to businessID.
func (m *Methods) Get(ctx context.Context, businessID, id uuid.UUID) (PaymentMethod, error) {
	pm, err := m.store.GetMethod(ctx, id)
	if err != nil {
		return PaymentMethod{}, err
	}
	if pm.BusinessAccountID != businessID {
		return PaymentMethod{}, ErrMethodNotOwned
	}
	return pm, nil
}

// Usable is Get plus the active check.
func (m *Methods) Usable(ctx context.Context, businessID, id uuid.UUID) (PaymentMethod, error) {
	pm, err := m.Get(ctx, businessID, id)
	if err != nil {
		return PaymentMethod{}, err
	}
	if !pm.IsActive {
		return PaymentMethod{}, ErrMethodInactive
	}
	return pm, nil
}

// Delete soft-deletes the method. Ledger history keeps referring to it.
func (m *Methods) Delete(ctx context.Context, businessID, id uuid.UUID) error {
	pm, err := m.Get(ctx, businessID, id)
	if err != nil {
		return err
	}
	if !pm.IsActive {
		return ErrMethodNotFound
	}
	return m.store.DeactivateMethod(ctx, id)
}

func (m *Methods) MarkUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	return m.store.MarkMethodUsed(ctx, id, at)
}

func (m *Methods) Save(ctx context.Context, pm PaymentMethod) (PaymentMethod, error) {
	return m.store.SaveMethod(ctx, pm)
}
