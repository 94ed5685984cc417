package wallet

import (
	"context"

	"github.com/google/uuid"
)

// Store is the ledger's unit-of-work surface. Every mutating method runs as
// one atomic unit holding the account's lock: read balance, check rules,
// append the transaction (and audit row), write the new balance.
type Store interface {
	Account(ctx context.Context, id uuid.UUID) (Account, error)
	Apply(ctx context.Context, op Operation) (Result, error)
	AdminAdjust(ctx context.Context, adj Adjustment) (Result, error)
	SetFrozen(ctx context.Context, ch FreezeChange) (FreezeResult, error)
	FindByExternalReference(ctx context.Context, businessID uuid.UUID, ref string) (Transaction, bool, error)
	Transaction(ctx context.Context, businessID, id uuid.UUID) (Transaction, error)
}
