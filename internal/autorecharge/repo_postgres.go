package autorecharge

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bizwallet/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

const openAttemptConstraint = "auto_recharge_attempts_one_open"

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo { return &PostgresRepo{db: db} }

func (r *PostgresRepo) Settings(ctx context.Context, businessID uuid.UUID) (Settings, error) {
	s := Settings{BusinessAccountID: businessID}
	err := r.db.QueryRow(ctx, `
SELECT auto_recharge_enabled, auto_recharge_threshold, auto_recharge_amount,
       auto_recharge_payment_method_id, updated_at
FROM business_accounts WHERE id = $1`, businessID).Scan(
		&s.Enabled, &s.Threshold, &s.Amount, &s.PaymentMethodID, &s.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, ErrSettingsNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("load auto-recharge settings: %w", err)
	}
	return s, nil
}

func (r *PostgresRepo) SaveSettings(ctx context.Context, s Settings) (Settings, error) {
	err := r.db.QueryRow(ctx, `
UPDATE business_accounts
SET auto_recharge_enabled = $2,
    auto_recharge_threshold = $3,
    auto_recharge_amount = $4,
    auto_recharge_payment_method_id = $5,
    updated_at = now()
WHERE id = $1
RETURNING updated_at`, s.BusinessAccountID, s.Enabled, s.Threshold, s.Amount, s.PaymentMethodID).Scan(&s.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settings{}, ErrSettingsNotFound
	}
	if err != nil {
		return Settings{}, fmt.Errorf("save auto-recharge settings: %w", err)
	}
	return s, nil
}

const attemptColumns = `
  id, business_account_id, status, amount, currency, trigger_balance, threshold,
  payment_method_id, COALESCE(payment_intent_id,''), COALESCE(failure_reason,''),
  created_at, updated_at, completed_at`

func scanAttempt(row pgx.Row) (Attempt, error) {
	var (
		a      Attempt
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.BusinessAccountID,
		&status,
		&a.Amount,
		&a.Currency,
		&a.TriggerBalance,
		&a.Threshold,
		&a.PaymentMethodID,
		&a.PaymentIntentID,
		&a.FailureReason,
		&a.CreatedAt,
		&a.UpdatedAt,
		&a.CompletedAt,
	)
	a.Status = Status(status)
	return a, err
}

func (r *PostgresRepo) CreateAttempt(ctx context.Context, a Attempt) (Attempt, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	created, err := scanAttempt(r.db.QueryRow(ctx, `
INSERT INTO auto_recharge_attempts (
  id, business_account_id, status, amount, currency, trigger_balance, threshold, payment_method_id
) VALUES ($1,$2,'pending',$3,$4,$5,$6,$7)
RETURNING `+attemptColumns,
		a.ID, a.BusinessAccountID, a.Amount, a.Currency, a.TriggerBalance, a.Threshold, a.PaymentMethodID,
	))
	if utils.IsUniqueViolation(err, openAttemptConstraint) {
		return Attempt{}, ErrOpenAttempt
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("create auto-recharge attempt: %w", err)
	}
	return created, nil
}

func (r *PostgresRepo) Attempt(ctx context.Context, id uuid.UUID) (Attempt, error) {
	a, err := scanAttempt(r.db.QueryRow(ctx, `SELECT `+attemptColumns+` FROM auto_recharge_attempts WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Attempt{}, ErrAttemptNotFound
	}
	if err != nil {
		return Attempt{}, fmt.Errorf("get auto-recharge attempt: %w", err)
	}
	return a, nil
}

func (r *PostgresRepo) Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, p Patch) (Attempt, bool, error) {
	froms := make([]string, len(from))
	for i, s := range from {
		froms[i] = string(s)
	}
	a, err := scanAttempt(r.db.QueryRow(ctx, `
UPDATE auto_recharge_attempts
SET status = $3,
    payment_intent_id = COALESCE(NULLIF($4,''), payment_intent_id),
    failure_reason = COALESCE(NULLIF($5,''), failure_reason),
    updated_at = $6,
    completed_at = CASE WHEN $7 THEN $6 ELSE completed_at END
WHERE id = $1 AND status = ANY($2)
RETURNING `+attemptColumns,
		id, froms, string(to), p.PaymentIntentID, p.FailureReason, p.At.UTC(), !to.Open(),
	))
	if errors.Is(err, pgx.ErrNoRows) {
		current, getErr := r.Attempt(ctx, id)
		if getErr != nil {
			return Attempt{}, false, getErr
		}
		return current, false, nil
	}
	if err != nil {
		return Attempt{}, false, fmt.Errorf("transition auto-recharge attempt: %w", err)
	}
	return a, true, nil
}

func buildWhere(businessID uuid.UUID, f HistoryFilter, withStatus bool) (string, []any) {
	where := []string{"business_account_id = $1"}
	args := []any{businessID}
	add := func(cond string, v any) {
		args = append(args, v)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if withStatus && f.Status != "" {
		add("status = $%d", string(f.Status))
	}
	if f.StartDate != nil {
		add("created_at >= $%d", *f.StartDate)
	}
	if f.EndDate != nil {
		add("created_at <= $%d", *f.EndDate)
	}
	return strings.Join(where, " AND "), args
}

func (r *PostgresRepo) ListAttempts(ctx context.Context, businessID uuid.UUID, f HistoryFilter) ([]Attempt, int, error) {
	where, args := buildWhere(businessID, f, true)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT count(*) FROM auto_recharge_attempts WHERE `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count auto-recharge attempts: %w", err)
	}

	args = append(args, f.Limit, f.offset())
	q := fmt.Sprintf(`SELECT %s FROM auto_recharge_attempts WHERE %s ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d`,
		attemptColumns, where, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list auto-recharge attempts: %w", err)
	}
	defer rows.Close()

	var out []Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, a)
	}
	return out, total, rows.Err()
}

func (r *PostgresRepo) Statistics(ctx context.Context, businessID uuid.UUID, f HistoryFilter) (Statistics, error) {
	where, args := buildWhere(businessID, f, false)
	var (
		s         Statistics
		recharged decimal.Decimal
	)
	err := r.db.QueryRow(ctx, `
SELECT count(*),
       count(*) FILTER (WHERE status = 'pending'),
       count(*) FILTER (WHERE status = 'processing'),
       count(*) FILTER (WHERE status = 'succeeded'),
       count(*) FILTER (WHERE status = 'failed'),
       count(*) FILTER (WHERE status = 'cancelled'),
       COALESCE(sum(amount) FILTER (WHERE status = 'succeeded'), 0)
FROM auto_recharge_attempts WHERE `+where, args...).Scan(
		&s.Total, &s.Pending, &s.Processing, &s.Succeeded, &s.Failed, &s.Cancelled, &recharged,
	)
	if err != nil {
		return Statistics{}, fmt.Errorf("auto-recharge statistics: %w", err)
	}
	s.TotalRecharged = recharged
	s.SuccessRate = successRate(s.Succeeded, s.Failed)
	return s, nil
}
