package rbac

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("rbac: not found")

// Membership is a caller's link to the business account they act for.
type Membership struct {
	BusinessAccountID uuid.UUID
	Role              string
	Active            bool
	AccountActive     bool
}

// Directory answers authorization lookups. Guards call it on every request.
type Directory interface {
	ProfileRole(ctx context.Context, userID string) (string, error)
	Membership(ctx context.Context, userID string) (Membership, error)
}

type PostgresDirectory struct {
	db *pgxpool.Pool
}

func NewPostgresDirectory(db *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) ProfileRole(ctx context.Context, userID string) (string, error) {
	var role string
	err := d.db.QueryRow(ctx, `SELECT role FROM users WHERE id::text = $1`, userID).Scan(&role)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrNotFound
	}
	return role, err
}

// Membership prefers an active membership when a user has several rows.
func (d *PostgresDirectory) Membership(ctx context.Context, userID string) (Membership, error) {
	var m Membership
	err := d.db.QueryRow(ctx, `
		SELECT bu.business_account_id, bu.role, bu.is_active, ba.is_active
		FROM business_users bu
		JOIN business_accounts ba ON ba.id = bu.business_account_id
		WHERE bu.user_id::text = $1
		ORDER BY bu.is_active DESC, bu.created_at ASC
		LIMIT 1
	`, userID).Scan(&m.BusinessAccountID, &m.Role, &m.Active, &m.AccountActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return Membership{}, ErrNotFound
	}
	return m, err
}
