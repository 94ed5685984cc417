package payments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PostgresStore struct {
	db *pgxpool.Pool
}

func NewPostgresStore(db *pgxpool.Pool) *PostgresStore { return &PostgresStore{db: db} }

const methodColumns = `
  id, business_account_id, stripe_payment_method_id,
  COALESCE(card_brand,''), COALESCE(card_last4,''),
  COALESCE(card_exp_month,0), COALESCE(card_exp_year,0),
  is_default, is_active, last_used_at, created_at`

func scanMethod(row pgx.Row) (PaymentMethod, error) {
	var pm PaymentMethod
	err := row.Scan(
		&pm.ID,
		&pm.BusinessAccountID,
		&pm.ProviderRef,
		&pm.Brand,
		&pm.Last4,
		&pm.ExpMonth,
		&pm.ExpYear,
		&pm.IsDefault,
		&pm.IsActive,
		&pm.LastUsedAt,
		&pm.CreatedAt,
	)
	return pm, err
}

func (s *PostgresStore) ListMethods(ctx context.Context, businessID uuid.UUID) ([]PaymentMethod, error) {
	rows, err := s.db.Query(ctx, `SELECT `+methodColumns+`
FROM payment_methods
WHERE business_account_id = $1 AND is_active
ORDER BY is_default DESC, created_at DESC`, businessID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentMethod
	for rows.Next() {
		pm, err := scanMethod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetMethod(ctx context.Context, id uuid.UUID) (PaymentMethod, error) {
	pm, err := scanMethod(s.db.QueryRow(ctx, `SELECT `+methodColumns+` FROM payment_methods WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentMethod{}, ErrMethodNotFound
	}
	if err != nil {
		return PaymentMethod{}, fmt.Errorf("get payment method: %w", err)
	}
	return pm, nil
}

func (s *PostgresStore) SaveMethod(ctx context.Context, pm PaymentMethod) (PaymentMethod, error) {
	if pm.ID == uuid.Nil {
		pm.ID = uuid.New()
	}
	const q = `
INSERT INTO payment_methods (
  id, business_account_id, stripe_payment_method_id,
  card_brand, card_last4, card_exp_month, card_exp_year, is_default, is_active
) VALUES ($1,$2,$3,NULLIF($4,''),NULLIF($5,''),NULLIF($6,0),NULLIF($7,0),$8,true)
ON CONFLICT (business_account_id, stripe_payment_method_id) DO UPDATE SET
  card_brand = EXCLUDED.card_brand,
  card_last4 = EXCLUDED.card_last4,
  card_exp_month = EXCLUDED.card_exp_month,
  card_exp_year = EXCLUDED.card_exp_year,
  is_active = true
RETURNING ` + methodColumns
	saved, err := scanMethod(s.db.QueryRow(ctx, q,
		pm.ID, pm.BusinessAccountID, pm.ProviderRef,
		pm.Brand, pm.Last4, pm.ExpMonth, pm.ExpYear, pm.IsDefault,
	))
	if err != nil {
		return PaymentMethod{}, fmt.Errorf("save payment method: %w", err)
	}
	return saved, nil
}

func (s *PostgresStore) DeactivateMethod(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `
UPDATE payment_methods SET is_active = false, is_default = false WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deactivate payment method: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrMethodNotFound
	}
	return nil
}

func (s *PostgresStore) MarkMethodUsed(ctx context.Context, id uuid.UUID, at time.Time) error {
	_, err := s.db.Exec(ctx, `UPDATE payment_methods SET last_used_at = $2 WHERE id = $1`, id, at.UTC())
	if err != nil {
		return fmt.Errorf("mark payment method used: %w", err)
	}
	return nil
}

func (s *PostgresStore) CustomerID(ctx context.Context, businessID uuid.UUID) (string, error) {
	var id string
	err := s.db.QueryRow(ctx, `
SELECT COALESCE(stripe_customer_id,'') FROM business_accounts WHERE id = $1`, businessID).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCustomerNotFound
	}
	return id, err
}

func (s *PostgresStore) SetCustomerID(ctx context.Context, businessID uuid.UUID, id string) (string, error) {
	var stored string
	err := s.db.QueryRow(ctx, `
UPDATE business_accounts
SET stripe_customer_id = COALESCE(stripe_customer_id, $2), updated_at = now()
WHERE id = $1
RETURNING stripe_customer_id`, businessID, id).Scan(&stored)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCustomerNotFound
	}
	if err != nil {
		return "", fmt.Errorf("set stripe customer: %w", err)
	}
	return stored, nil
}
