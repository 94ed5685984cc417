package reporting

import (
	"context"
	"strings"

	"bizwallet/internal/wallet"

	"github.com/google/uuid"
)

// TransactionSource exposes an account's ledger in append order.
// *wallet.MemoryStore satisfies it.
type TransactionSource interface {
	Transactions(businessID uuid.UUID) []wallet.Transaction
}

// MemoryRepo reads history from an in-memory ledger. Search is a
// case-insensitive substring match standing in for full-text search.
// It is not intended for production use.
type MemoryRepo struct {
	src TransactionSource
}

func NewMemoryRepo(src TransactionSource) *MemoryRepo { return &MemoryRepo{src: src} }

func (r *MemoryRepo) newestFirst(businessID uuid.UUID) []wallet.Transaction {
	rows := r.src.Transactions(businessID)
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows
}

func (r *MemoryRepo) ListTransactions(_ context.Context, businessID uuid.UUID, f Filter) ([]wallet.Transaction, int, error) {
	var matched []wallet.Transaction
	for _, t := range r.newestFirst(businessID) {
		if f.matches(t) {
			matched = append(matched, t)
		}
	}
	total := len(matched)
	start := f.offset()
	if start >= total {
		return nil, total, nil
	}
	end := start + f.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}

func (r *MemoryRepo) SearchTransactions(_ context.Context, businessID uuid.UUID, query string, limit int) ([]wallet.Transaction, error) {
	q := strings.ToLower(query)
	var out []wallet.Transaction
	for _, t := range r.newestFirst(businessID) {
		hay := strings.ToLower(strings.Join([]string{t.Description, t.ReferenceID, t.ExternalPaymentReference, string(t.Type)}, " "))
		if strings.Contains(hay, q) {
			out = append(out, t)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *MemoryRepo) AllTransactions(_ context.Context, businessID uuid.UUID, f Filter, max int) ([]wallet.Transaction, error) {
	var out []wallet.Transaction
	for _, t := range r.newestFirst(businessID) {
		if !f.matches(t) {
			continue
		}
		out = append(out, t)
		if max > 0 && len(out) == max {
			break
		}
	}
	return out, nil
}
