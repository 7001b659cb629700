// Package dbtest levanta un Postgres efimero con las migraciones aplicadas.
package dbtest

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"civic-identity/internal/db"
)

const image = "postgres:16-alpine"

// NewPool arranca un contenedor, aplica las migraciones y devuelve un pool.
// Se salta el test si no hay Docker o si se ejecuta con -short.
func NewPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	container, err := tcpostgres.Run(ctx, image,
		tcpostgres.WithDatabase("identity"),
		tcpostgres.WithUsername("identity"),
		tcpostgres.WithPassword("identity"),
		tcpostgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("failed to start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("failed to get postgres connection string: %v", err)
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("failed to open pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if err := db.Migrate(ctx, pool); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	return pool
}

// Truncate vacia todas las tablas entre tests.
func Truncate(t *testing.T, pool *pgxpool.Pool) {
	t.Helper()
	const query = `
		TRUNCATE subscriptions, account_deletion_tokens, email_verification_tokens, sessions, users
	`
	if _, err := pool.Exec(context.Background(), query); err != nil {
		t.Fatalf("truncate: %v", err)
	}
}
