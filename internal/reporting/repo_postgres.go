package reporting

import (
	"context"
	"fmt"
	"strings"

	"bizwallet/internal/wallet"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepo reads wallet_transactions. Full-text search goes through the
// search_wallet_transactions SQL function.
type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo { return &PostgresRepo{db: db} }

func buildWhere(businessID uuid.UUID, f Filter) (string, []any) {
	where := []string{"business_account_id = $1"}
	args := []any{businessID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if len(f.Types) > 0 {
		types := make([]string, 0, len(f.Types))
		for _, t := range f.Types {
			types = append(types, string(t))
		}
		add("transaction_type = ANY($%d)", types)
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= $%d", *f.EndDate)
	}
	if f.MinAmount != nil {
		add("abs(amount) >= $%d", *f.MinAmount)
	}
	if f.MaxAmount != nil {
		add("abs(amount) <= $%d", *f.MaxAmount)
	}
	if f.Currency != "" {
		add("currency = $%d", f.Currency)
	}
	if f.ReferenceID != "" {
		add("reference_id = $%d", f.ReferenceID)
	}
	return strings.Join(where, " AND "), args
}

func collect(rows pgx.Rows) ([]wallet.Transaction, error) {
	defer rows.Close()
	var out []wallet.Transaction
	for rows.Next() {
		t, err := wallet.ScanTransaction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) ListTransactions(ctx context.Context, businessID uuid.UUID, f Filter) ([]wallet.Transaction, int, error) {
	cond, args := buildWhere(businessID, f)

	var total int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM wallet_transactions WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count transactions: %w", err)
	}

	args = append(args, f.Limit, f.offset())
	q := fmt.Sprintf(`SELECT %s FROM wallet_transactions WHERE %s ORDER BY seq DESC LIMIT $%d OFFSET $%d`,
		wallet.TransactionColumns, cond, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list transactions: %w", err)
	}
	out, err := collect(rows)
	return out, total, err
}

func (r *PostgresRepo) SearchTransactions(ctx context.Context, businessID uuid.UUID, query string, limit int) ([]wallet.Transaction, error) {
	q := fmt.Sprintf(`SELECT %s FROM search_wallet_transactions($1, $2, $3)`, wallet.TransactionColumns)
	rows, err := r.db.Query(ctx, q, businessID, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search transactions: %w", err)
	}
	return collect(rows)
}

func (r *PostgresRepo) AllTransactions(ctx context.Context, businessID uuid.UUID, f Filter, max int) ([]wallet.Transaction, error) {
	cond, args := buildWhere(businessID, f)
	q := fmt.Sprintf(`SELECT %s FROM wallet_transactions WHERE %s ORDER BY seq DESC`, wallet.TransactionColumns, cond)
	if max > 0 {
		args = append(args, max)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list all transactions: %w", err)
	}
	return collect(rows)
}
