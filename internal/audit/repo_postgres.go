package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresRepo stores events in admin_wallet_audit_log. The table has no
// UPDATE or DELETE path in this codebase.
type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo { return &PostgresRepo{db: db} }

// AppendTx inserts e inside the caller's transaction, so the audit row
// commits or rolls back with the wallet change.
func AppendTx(ctx context.Context, tx pgx.Tx, e Event) error {
	if err := e.check(); err != nil {
		return err
	}
	const q = `
INSERT INTO admin_wallet_audit_log (
  id, business_account_id, admin_user_id, action_type, reason,
  amount, previous_balance, new_balance, currency, ip_address, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NULLIF($9,''),NULLIF($10,''),$11)
`
	_, err := tx.Exec(ctx, q,
		e.ID,
		e.BusinessAccountID,
		e.AdminUserID,
		string(e.ActionType),
		e.Reason,
		e.Amount,
		e.PreviousBalance,
		e.NewBalance,
		e.Currency,
		e.IPAddress,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

func (r *PostgresRepo) List(ctx context.Context, businessID uuid.UUID, f Filter) ([]Event, int, error) {
	where := []string{"business_account_id = $1"}
	args := []any{businessID}
	if f.StartDate != nil {
		args = append(args, *f.StartDate)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if f.EndDate != nil {
		args = append(args, *f.EndDate)
		where = append(where, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(f.ActionTypes) > 0 {
		types := make([]string, 0, len(f.ActionTypes))
		for _, a := range f.ActionTypes {
			types = append(types, string(a))
		}
		args = append(args, types)
		where = append(where, fmt.Sprintf("action_type = ANY($%d)", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRow(ctx, "SELECT count(*) FROM admin_wallet_audit_log WHERE "+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count audit events: %w", err)
	}

	args = append(args, f.Limit, f.Offset)
	q := fmt.Sprintf(`
SELECT id, business_account_id, admin_user_id, action_type, reason,
       amount, previous_balance, new_balance, COALESCE(currency, ''), COALESCE(ip_address, ''), created_at
FROM admin_wallet_audit_log
WHERE %s
ORDER BY created_at DESC, id
LIMIT $%d OFFSET $%d`, cond, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	out := []Event{}
	for rows.Next() {
		var e Event
		var action string
		if err := rows.Scan(
			&e.ID,
			&e.BusinessAccountID,
			&e.AdminUserID,
			&action,
			&e.Reason,
			&e.Amount,
			&e.PreviousBalance,
			&e.NewBalance,
			&e.Currency,
			&e.IPAddress,
			&e.CreatedAt,
		); err != nil {
			return nil, 0, err
		}
		e.ActionType = ActionType(action)
		out = append(out, e)
	}
	return out, total, rows.Err()
}
