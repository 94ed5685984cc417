// Package testutil starts a throwaway Postgres for integration tests.
package testutil

import (
	"context"
	"testing"
	"time"

	"bizwallet/migrations"
	"bizwallet/pkg/utils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// SetupTestDB returns a migrated pool on a fresh container.
func SetupTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("bizwallet_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	db, err := utils.OpenPostgres(ctx, dsn, utils.PostgresPoolConfig{MaxConns: 30})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(db.Close)

	if err := migrations.Apply(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	return db
}

// SeedAccount inserts an active business account.
func SeedAccount(t *testing.T, db *pgxpool.Pool, name, currency string, balance decimal.Decimal) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := db.Exec(context.Background(),
		`INSERT INTO business_accounts (id, name, currency, wallet_balance) VALUES ($1, $2, $3, $4)`,
		id, name, currency, balance)
	if err != nil {
		t.Fatalf("seed account: %v", err)
	}
	return id
}
