package auth

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxBusinessAccountID
	ctxBusinessRole
)

var (
	ErrNoIdentity = errors.New("user_id not in context")
	ErrNoBusiness = errors.New("business_account_id not in context")
)

// WithIdentity records the authenticated user. The token's role is not
// carried: admin checks re-read the profile role on every request.
func WithIdentity(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ctxUserID, userID)
}

// WithBusiness records the business account the caller acts for, as resolved
// from membership storage for this request.
func WithBusiness(ctx context.Context, businessAccountID uuid.UUID, businessRole string) context.Context {
	ctx = context.WithValue(ctx, ctxBusinessAccountID, businessAccountID)
	ctx = context.WithValue(ctx, ctxBusinessRole, businessRole)
	return ctx
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", ErrNoIdentity
}

func BusinessAccountID(ctx context.Context) (uuid.UUID, error) {
	v := ctx.Value(ctxBusinessAccountID)
	if id, ok := v.(uuid.UUID); ok && id != uuid.Nil {
		return id, nil
	}
	return uuid.Nil, ErrNoBusiness
}

func BusinessRole(ctx context.Context) string {
	s, _ := ctx.Value(ctxBusinessRole).(string)
	return s
}
