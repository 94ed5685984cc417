package bookings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type PostgresRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRepo(db *pgxpool.Pool) *PostgresRepo { return &PostgresRepo{db: db} }

const bookingColumns = `
  id, business_account_id, booking_status, total_price,
  wallet_deduction_amount, currency, paid_at, created_at, updated_at`

func scanBooking(row pgx.Row) (Booking, error) {
	var (
		b      Booking
		status string
	)
	err := row.Scan(
		&b.ID,
		&b.BusinessAccountID,
		&status,
		&b.TotalPrice,
		&b.WalletDeductionAmount,
		&b.Currency,
		&b.PaidAt,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	b.Status = Status(status)
	return b, err
}

func (r *PostgresRepo) Get(ctx context.Context, id uuid.UUID) (Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Booking{}, ErrNotFound
	}
	if err != nil {
		return Booking{}, fmt.Errorf("get booking: %w", err)
	}
	return b, nil
}

func (r *PostgresRepo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete booking: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) MarkPaid(ctx context.Context, id uuid.UUID, deduction decimal.Decimal, at time.Time) (Booking, error) {
	b, err := scanBooking(r.db.QueryRow(ctx, `
UPDATE bookings
SET booking_status = 'confirmed', wallet_deduction_amount = $2, paid_at = $3, updated_at = $3
WHERE id = $1 AND booking_status = 'pending'
RETURNING `+bookingColumns, id, deduction, at.UTC()))
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := r.Get(ctx, id); getErr != nil {
			return Booking{}, getErr
		}
		return Booking{}, ErrNotPayable
	}
	if err != nil {
		return Booking{}, fmt.Errorf("mark booking paid: %w", err)
	}
	return b, nil
}
