package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"civic-identity/internal/db/dbtest"
	"civic-identity/internal/domain"
	"civic-identity/internal/repository"
)

func pgAddSubscription(t *testing.T, pool *pgxpool.Pool, userID string) string {
	t.Helper()
	id := uuid.NewString()
	const query = `INSERT INTO subscriptions (id, user_id, status) VALUES ($1, $2, $3)`
	if _, err := pool.Exec(context.Background(), query, id, userID, domain.SubscriptionActive); err != nil {
		t.Fatalf("insert subscription: %v", err)
	}
	return id
}

func pgSubscriptionStatus(t *testing.T, pool *pgxpool.Pool, id string) string {
	t.Helper()
	var status string
	if err := pool.QueryRow(context.Background(), `SELECT status FROM subscriptions WHERE id = $1`, id).Scan(&status); err != nil {
		t.Fatalf("read subscription: %v", err)
	}
	return status
}

func TestServicesOnPostgres(t *testing.T) {
	pool := dbtest.NewPool(t)
	store := repository.NewPgStore(pool)

	t.Run("register verify login delete", func(t *testing.T) {
		dbtest.Truncate(t, pool)
		ctx := context.Background()
		env := newTestEnvWithStore(t, nil, store)

		user := env.verifiedUser(t, "mario.rossi@example.it")
		if !user.EmailVerified || user.UniqueCode == "" {
			t.Fatalf("expected verified user with code, got %+v", user)
		}
		subID := pgAddSubscription(t, pool, user.ID)

		login, err := env.accounts.Login(ctx, user.Email, "correct-horse", "c1")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		if _, validated, err := env.sessions.Validate(ctx, login.Session.Token); err != nil || validated.ID != user.ID {
			t.Fatalf("validate session: %v", err)
		}

		token, err := env.deletions.Request(ctx, user.ID, "moving abroad")
		if err != nil {
			t.Fatalf("request deletion: %v", err)
		}
		former, err := env.deletions.Confirm(ctx, token.Token)
		if err != nil {
			t.Fatalf("confirm deletion: %v", err)
		}
		if former.State() != domain.AccountDeleted || !strings.HasPrefix(former.Email, "deleted_"+user.ID+"_") {
			t.Fatalf("expected soft-deleted user with mangled email, got %+v", former)
		}
		if _, _, err := env.sessions.Validate(ctx, login.Session.Token); !errors.Is(err, ErrUnauthenticated) {
			t.Fatalf("expected sessions revoked, got %v", err)
		}
		if status := pgSubscriptionStatus(t, pool, subID); status != domain.SubscriptionCancelled {
			t.Fatalf("expected cancelled subscription, got %q", status)
		}
		if _, err := env.deletions.Confirm(ctx, token.Token); !errors.Is(err, ErrTokenInvalid) {
			t.Fatalf("expected consumed token invalid, got %v", err)
		}

		again := env.register(t, "mario.rossi@example.it")
		if again.ID == user.ID || again.UniqueCode == user.UniqueCode {
			t.Fatalf("expected a fresh account, got %+v", again)
		}
	})

	t.Run("register conflict and code collision", func(t *testing.T) {
		dbtest.Truncate(t, pool)
		env := newTestEnvWithStore(t, nil, store)
		first := env.register(t, "mario.rossi@example.it")

		env.tokens.codes = []string{first.UniqueCode}
		second := env.register(t, "giulia.verdi@example.it")
		if second.UniqueCode == first.UniqueCode {
			t.Fatalf("unique code reused")
		}

		_, err := env.accounts.Register(context.Background(), RegisterInput{
			Email:     "Mario.Rossi@example.it",
			Password:  "another-pass",
			FirstName: "Mario",
			LastName:  "Bianchi",
		}, "198.51.100.2", nil)
		if !errors.Is(err, ErrConflict) {
			t.Fatalf("expected ErrConflict, got %v", err)
		}
	})

	t.Run("session token collision regenerates", func(t *testing.T) {
		dbtest.Truncate(t, pool)
		ctx := context.Background()
		env := newTestEnvWithStore(t, nil, store)
		user := env.verifiedUser(t, "mario.rossi@example.it")

		env.tokens.tokens = []string{"fixed-token"}
		if _, err := env.sessions.Create(ctx, user.ID); err != nil {
			t.Fatalf("first session: %v", err)
		}
		env.tokens.tokens = []string{"fixed-token"}
		second, err := env.sessions.Create(ctx, user.ID)
		if err != nil {
			t.Fatalf("second session: %v", err)
		}
		if second.Token == "fixed-token" {
			t.Fatalf("expected regenerated token")
		}
	})

	t.Run("confirm deletion rolls back on failure", func(t *testing.T) {
		dbtest.Truncate(t, pool)
		ctx := context.Background()
		env := newTestEnvWithStore(t, nil, store)
		user := env.verifiedUser(t, "mario.rossi@example.it")
		subID := pgAddSubscription(t, pool, user.ID)
		login, err := env.accounts.Login(ctx, user.Email, "correct-horse", "c1")
		if err != nil {
			t.Fatalf("login: %v", err)
		}
		token, err := env.deletions.Request(ctx, user.ID, "")
		if err != nil {
			t.Fatalf("request deletion: %v", err)
		}

		faulty := newTestEnvWithStore(t, nil, &faultStore{Store: store, failSubscriptions: true})
		faulty.clock.t = env.clock.Now()
		if _, err := faulty.deletions.Confirm(ctx, token.Token); !errors.Is(err, errInjected) {
			t.Fatalf("expected injected failure, got %v", err)
		}

		after := env.user(t, user.ID)
		if !after.IsActive || after.DeletionConfirmedAt != nil || after.Email != user.Email {
			t.Fatalf("user must be untouched, got %+v", after)
		}
		if _, _, err := env.sessions.Validate(ctx, login.Session.Token); err != nil {
			t.Fatalf("session must survive rollback: %v", err)
		}
		if status := pgSubscriptionStatus(t, pool, subID); status != domain.SubscriptionActive {
			t.Fatalf("subscription must stay active, got %q", status)
		}

		if _, err := env.deletions.Confirm(ctx, token.Token); err != nil {
			t.Fatalf("retry after rollback: %v", err)
		}
		if status := pgSubscriptionStatus(t, pool, subID); status != domain.SubscriptionCancelled {
			t.Fatalf("expected cancelled subscription after retry, got %q", status)
		}
	})
}
