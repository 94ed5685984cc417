package autorecharge

import (
	"context"

	"bizwallet/internal/apperr"

	"github.com/google/uuid"
)

var (
	ErrAttemptNotFound  = apperr.NotFound("auto-recharge attempt not found")
	ErrAttemptNotOwned  = apperr.Forbidden("auto-recharge attempt does not belong to this business")
	ErrNotCancellable   = apperr.Conflict("auto-recharge attempt can no longer be cancelled")
	ErrOpenAttempt      = apperr.Conflict("an auto-recharge attempt is already in progress")
	ErrSettingsNotFound = apperr.NotFound("business account not found")
)

type Repository interface {
	Settings(ctx context.Context, businessID uuid.UUID) (Settings, error)
	SaveSettings(ctx context.Context, s Settings) (Settings, error)

	// CreateAttempt inserts a pending attempt. It returns ErrOpenAttempt when
	// the account already has a pending or processing one.
	CreateAttempt(ctx context.Context, a Attempt) (Attempt, error)
	Attempt(ctx context.Context, id uuid.UUID) (Attempt, error)
	// Transition moves the attempt to `to` only while its status is one of
	// `from`. moved is false when another caller got there first.
	Transition(ctx context.Context, id uuid.UUID, from []Status, to Status, p Patch) (a Attempt, moved bool, err error)
	ListAttempts(ctx context.Context, businessID uuid.UUID, f HistoryFilter) ([]Attempt, int, error)
	Statistics(ctx context.Context, businessID uuid.UUID, f HistoryFilter) (Statistics, error)
}
