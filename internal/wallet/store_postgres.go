package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bizwallet/internal/audit"
	"bizwallet/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Name of the partial unique index on
// (business_account_id, external_payment_reference).
const externalRefConstraint = "wallet_transactions_external_ref_uniq"

// PostgresStore implements Store on pgx. Each mutating call is one
// transaction that starts with SELECT ... FOR UPDATE on the account row, so
// concurrent operations on one account serialize in the database.
type PostgresStore struct {
	db    *pgxpool.Pool
	clock func() time.Time
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{db: db, clock: time.Now}
}

const accountColumns = `
id, name, wallet_balance, currency, wallet_frozen, wallet_frozen_at,
COALESCE(wallet_frozen_reason, ''), is_active, COALESCE(stripe_customer_id, ''), created_at, updated_at`

func scanAccount(row pgx.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.Name,
		&a.Balance,
		&a.Currency,
		&a.Frozen,
		&a.FrozenAt,
		&a.FrozenReason,
		&a.IsActive,
		&a.StripeCustomerID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Account{}, ErrAccountNotFound
	}
	return a, err
}

// TransactionColumns is the select list matching ScanTransaction.
const TransactionColumns = `
id, business_account_id, transaction_type, amount, currency, balance_after,
COALESCE(description, ''), COALESCE(reference_id, ''), COALESCE(external_payment_reference, ''),
COALESCE(created_by, ''), created_at`

// ScanTransaction reads one wallet_transactions row selected with TransactionColumns.
func ScanTransaction(row pgx.Row) (Transaction, error) {
	var t Transaction
	var typ string
	err := row.Scan(
		&t.ID,
		&t.BusinessAccountID,
		&typ,
		&t.Amount,
		&t.Currency,
		&t.BalanceAfter,
		&t.Description,
		&t.ReferenceID,
		&t.ExternalPaymentReference,
		&t.CreatedBy,
		&t.CreatedAt,
	)
	t.Type = TransactionType(typ)
	return t, err
}

func lockAccount(ctx context.Context, tx pgx.Tx, id uuid.UUID) (Account, error) {
	return scanAccount(tx.QueryRow(ctx, `SELECT `+accountColumns+` FROM business_accounts WHERE id = $1 FOR UPDATE`, id))
}

func findByRef(ctx context.Context, q interface {
	QueryRow(context.Context, string, ...any) pgx.Row
}, businessID uuid.UUID, ref string) (Transaction, bool, error) {
	t, err := ScanTransaction(q.QueryRow(ctx, `
SELECT `+TransactionColumns+`
FROM wallet_transactions
WHERE business_account_id = $1 AND external_payment_reference = $2
LIMIT 1`, businessID, ref))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, false, nil
	}
	if err != nil {
		return Transaction{}, false, err
	}
	return t, true, nil
}

func insertTransaction(ctx context.Context, tx pgx.Tx, t Transaction) error {
	const q = `
INSERT INTO wallet_transactions (
  id, business_account_id, transaction_type, amount, currency, balance_after,
  description, reference_id, external_payment_reference, created_by, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,NULLIF($8,''),NULLIF($9,''),$10,$11)
`
	_, err := tx.Exec(ctx, q,
		t.ID,
		t.BusinessAccountID,
		string(t.Type),
		t.Amount,
		t.Currency,
		t.BalanceAfter,
		t.Description,
		t.ReferenceID,
		t.ExternalPaymentReference,
		t.CreatedBy,
		t.CreatedAt,
	)
	return err
}

// post appends t to a locked account and moves the balance to t.BalanceAfter.
func post(ctx context.Context, tx pgx.Tx, a Account, t Transaction) error {
	if err := insertTransaction(ctx, tx, t); err != nil {
		return err
	}
	tag, err := tx.Exec(ctx, `UPDATE business_accounts SET wallet_balance = $1, updated_at = $2 WHERE id = $3`, t.BalanceAfter, t.CreatedAt, a.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return fmt.Errorf("update balance: %d rows affected", tag.RowsAffected())
	}
	return nil
}

func (s *PostgresStore) Account(ctx context.Context, id uuid.UUID) (Account, error) {
	return scanAccount(s.db.QueryRow(ctx, `SELECT `+accountColumns+` FROM business_accounts WHERE id = $1`, id))
}

func (s *PostgresStore) Apply(ctx context.Context, op Operation) (Result, error) {
	var out Result
	err := utils.WithTx(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, op.BusinessAccountID)
		if err != nil {
			return err
		}

		if op.ExternalPaymentReference != "" {
			existing, ok, err := findByRef(ctx, tx, a.ID, op.ExternalPaymentReference)
			if err != nil {
				return err
			}
			if ok {
				out = Result{Transaction: existing, PreviousBalance: existing.BalanceAfter, Balance: existing.BalanceAfter, AlreadyProcessed: true}
				return nil
			}
		}
		if a.Frozen {
			return ErrWalletFrozen
		}
		next := a.Balance.Add(op.Amount)
		if op.Amount.IsNegative() && next.IsNegative() {
			return ErrInsufficientBalance
		}

		t := Transaction{
			ID:                       uuid.New(),
			BusinessAccountID:        a.ID,
			Type:                     op.Type,
			Amount:                   op.Amount,
			Currency:                 a.Currency,
			BalanceAfter:             next,
			Description:              op.Description,
			ReferenceID:              op.ReferenceID,
			ExternalPaymentReference: op.ExternalPaymentReference,
			CreatedBy:                op.CreatedBy,
			CreatedAt:                s.clock().UTC(),
		}
		if err := post(ctx, tx, a, t); err != nil {
			return err
		}
		out = Result{Transaction: t, PreviousBalance: a.Balance, Balance: next}
		return nil
	})
	if err != nil && op.ExternalPaymentReference != "" && utils.IsUniqueViolation(err, externalRefConstraint) {
		// Lost a race with a writer that bypassed the row lock; the
		// constraint is the final word.
		existing, ok, ferr := findByRef(ctx, s.db, op.BusinessAccountID, op.ExternalPaymentReference)
		if ferr != nil {
			return Result{}, ferr
		}
		if ok {
			return Result{Transaction: existing, PreviousBalance: existing.BalanceAfter, Balance: existing.BalanceAfter, AlreadyProcessed: true}, nil
		}
	}
	if err != nil {
		return Result{}, fmt.Errorf("apply ledger operation: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) AdminAdjust(ctx context.Context, adj Adjustment) (Result, error) {
	var out Result
	err := utils.WithTx(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, adj.BusinessAccountID)
		if err != nil {
			return err
		}
		if a.Frozen {
			return ErrWalletFrozen
		}
		if adj.Currency != a.Currency {
			return ErrCurrencyMismatch
		}
		next := a.Balance.Add(adj.Amount)
		if adj.Amount.IsNegative() && next.IsNegative() && !adj.AllowNegative {
			return ErrInsufficientBalance
		}

		now := s.clock().UTC()
		ev := audit.Stamp(audit.Event{
			BusinessAccountID: a.ID,
			AdminUserID:       adj.AdminUserID,
			ActionType:        audit.ActionAdjustment,
			Reason:            adj.Reason,
			Amount:            decimalPtr(adj.Amount),
			PreviousBalance:   decimalPtr(a.Balance),
			NewBalance:        decimalPtr(next),
			Currency:          a.Currency,
			IPAddress:         adj.IPAddress,
		}, now)

		t := Transaction{
			ID:                uuid.New(),
			BusinessAccountID: a.ID,
			Type:              TypeAdminAdjustment,
			Amount:            adj.Amount,
			Currency:          a.Currency,
			BalanceAfter:      next,
			Description:       adjustmentDescription(adj.Reason),
			ReferenceID:       ev.ID.String(),
			CreatedBy:         adj.AdminUserID,
			CreatedAt:         now,
		}
		if err := post(ctx, tx, a, t); err != nil {
			return err
		}
		if err := audit.AppendTx(ctx, tx, ev); err != nil {
			return err
		}
		out = Result{Transaction: t, PreviousBalance: a.Balance, Balance: next}
		return nil
	})
	if err != nil {
		return Result{}, fmt.Errorf("admin adjust: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) SetFrozen(ctx context.Context, ch FreezeChange) (FreezeResult, error) {
	var out FreezeResult
	err := utils.WithTx(ctx, s.db, func(ctx context.Context, tx pgx.Tx) error {
		a, err := lockAccount(ctx, tx, ch.BusinessAccountID)
		if err != nil {
			return err
		}
		if ch.Freeze && a.Frozen {
			return ErrAlreadyFrozen
		}
		if !ch.Freeze && !a.Frozen {
			return ErrNotFrozen
		}

		now := s.clock().UTC()
		action := audit.ActionUnfreeze
		q := `UPDATE business_accounts
SET wallet_frozen = false, wallet_frozen_at = NULL, wallet_frozen_reason = NULL, wallet_frozen_by = NULL, updated_at = $1
WHERE id = $2`
		args := []any{now, a.ID}
		if ch.Freeze {
			action = audit.ActionFreeze
			q = `UPDATE business_accounts
SET wallet_frozen = true, wallet_frozen_at = $1, wallet_frozen_reason = $3, wallet_frozen_by = $4, updated_at = $1
WHERE id = $2`
			args = append(args, ch.Reason, ch.AdminUserID)
		}
		if _, err := tx.Exec(ctx, q, args...); err != nil {
			return err
		}

		ev := audit.Stamp(audit.Event{
			BusinessAccountID: a.ID,
			AdminUserID:       ch.AdminUserID,
			ActionType:        action,
			Reason:            ch.Reason,
			IPAddress:         ch.IPAddress,
		}, now)
		if err := audit.AppendTx(ctx, tx, ev); err != nil {
			return err
		}
		out = FreezeResult{BusinessAccountID: a.ID, Frozen: ch.Freeze, AuditID: ev.ID, ChangedAt: now}
		return nil
	})
	if err != nil {
		return FreezeResult{}, fmt.Errorf("set wallet frozen: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) FindByExternalReference(ctx context.Context, businessID uuid.UUID, ref string) (Transaction, bool, error) {
	return findByRef(ctx, s.db, businessID, ref)
}

func (s *PostgresStore) Transaction(ctx context.Context, businessID, id uuid.UUID) (Transaction, error) {
	t, err := ScanTransaction(s.db.QueryRow(ctx, `
SELECT `+TransactionColumns+`
FROM wallet_transactions
WHERE business_account_id = $1 AND id = $2`, businessID, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, ErrTransactionNotFound
	}
	return t, err
}
