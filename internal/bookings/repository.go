package bookings

import (
	"context"
	"time"

	"bizwallet/internal/apperr"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrNotFound   = apperr.NotFound("booking not found")
	ErrNotPayable = apperr.Conflict("booking is not awaiting payment")
)

type Repository interface {
	Get(ctx context.Context, id uuid.UUID) (Booking, error)
	Delete(ctx context.Context, id uuid.UUID) error
	// MarkPaid moves a pending booking to confirmed and records the deduction.
	// It returns ErrNotPayable when the booking is no longer pending.
	MarkPaid(ctx context.Context, id uuid.UUID, deduction decimal.Decimal, at time.Time) (Booking, error)
}
