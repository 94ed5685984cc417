package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"bizwallet/internal/apperr"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

var ErrInvalidCredentials = apperr.Unauthenticated("invalid email or password")

// User is the profile row consulted at login and by the admin guard.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         string
}

type UserStore interface {
	UserByEmail(ctx context.Context, email string) (User, error)
	UserByID(ctx context.Context, id string) (User, error)
}

// LoginService exchanges credentials or refresh tokens for token pairs.
type LoginService struct {
	users UserStore
	m     *Manager
	now   func() time.Time
}

func NewLoginService(users UserStore, m *Manager) *LoginService {
	return &LoginService{users: users, m: m, now: time.Now}
}

func (s *LoginService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return TokenPair{}, apperr.Validation("email and password are required")
	}
	u, err := s.users.UserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			// Burn comparable time so unknown emails are not distinguishable.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return TokenPair{}, ErrInvalidCredentials
		}
		return TokenPair{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return TokenPair{}, ErrInvalidCredentials
	}
	return s.m.IssuePair(s.now(), u.ID, u.Role)
}

// Refresh issues a new pair for a valid refresh token, re-reading the user's role.
func (s *LoginService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	claims, err := s.m.Verify(refreshToken, TokenTypeRefresh, s.now())
	if err != nil {
		return TokenPair{}, apperr.Unauthenticated("invalid refresh token")
	}
	u, err := s.users.UserByID(ctx, claims.UserID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return TokenPair{}, apperr.Unauthenticated("invalid refresh token")
		}
		return TokenPair{}, err
	}
	return s.m.IssuePair(s.now(), u.ID, u.Role)
}

// HashPassword is used by seeding and tests.
func HashPassword(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("not-a-real-password"), bcrypt.MinCost)

var ErrUserNotFound = errors.New("user not found")

// PostgresUsers reads the users table.
type PostgresUsers struct {
	db *pgxpool.Pool
}

func NewPostgresUsers(db *pgxpool.Pool) *PostgresUsers { return &PostgresUsers{db: db} }

func (r *PostgresUsers) UserByEmail(ctx context.Context, email string) (User, error) {
	return r.one(ctx, `SELECT id::text, email, password_hash, role FROM users WHERE lower(email) = $1`, email)
}

func (r *PostgresUsers) UserByID(ctx context.Context, id string) (User, error) {
	return r.one(ctx, `SELECT id::text, email, password_hash, role FROM users WHERE id::text = $1`, id)
}

func (r *PostgresUsers) one(ctx context.Context, q string, arg string) (User, error) {
	var u User
	err := r.db.QueryRow(ctx, q, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrUserNotFound
	}
	return u, err
}
