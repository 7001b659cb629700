package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"civic-identity/internal/domain"
	"civic-identity/internal/repository"
)

func TestDeletionService_RequestConfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.verifiedUser(t, "mario.rossi@example.it")
	env.store.AddSubscription(domain.Subscription{ID: "sub-1", UserID: user.ID, Status: domain.SubscriptionActive})

	login, err := env.accounts.Login(ctx, user.Email, "correct-horse", "c1")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := env.verifications.Issue(ctx, user.ID); err != nil {
		t.Fatalf("issue verification: %v", err)
	}

	token, err := env.deletions.Request(ctx, user.ID, "moving abroad")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if !token.ExpiresAt.Equal(env.clock.Now().Add(DefaultDeletionTTL)) {
		t.Fatalf("unexpected expiry %v", token.ExpiresAt)
	}
	requested := env.user(t, user.ID)
	if requested.State() != domain.AccountDeletionRequested || requested.DeletionReason != "moving abroad" {
		t.Fatalf("expected deletion requested, got %+v", requested)
	}
	if mail, ok := env.sender.last("deletion"); !ok || mail.token != token.Token {
		t.Fatalf("expected deletion email with token")
	}

	former, err := env.deletions.Confirm(ctx, token.Token)
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if former.IsActive || former.DeletionConfirmedAt == nil || former.State() != domain.AccountDeleted {
		t.Fatalf("expected soft-deleted user, got %+v", former)
	}
	if !strings.HasPrefix(former.Email, "deleted_"+user.ID+"_") || !strings.HasSuffix(former.Email, user.Email) {
		t.Fatalf("expected mangled email, got %q", former.Email)
	}
	if _, _, err := env.sessions.Validate(ctx, login.Session.Token); !errors.Is(err, ErrUnauthenticated) {
		t.Fatalf("expected sessions revoked, got %v", err)
	}
	subs := env.store.Subscriptions(user.ID)
	if len(subs) != 1 || subs[0].Status != domain.SubscriptionCancelled {
		t.Fatalf("expected cancelled subscription, got %+v", subs)
	}
	if _, err := env.deletions.Confirm(ctx, token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected consumed token invalid, got %v", err)
	}
}

func TestDeletionService_RequestReplacesPriorToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "mario.rossi@example.it")

	first, err := env.deletions.Request(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	second, err := env.deletions.Request(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	if _, err := env.deletions.Confirm(ctx, first.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected first token invalid, got %v", err)
	}
	if _, err := env.deletions.Confirm(ctx, second.Token); err != nil {
		t.Fatalf("confirm second: %v", err)
	}
}

func TestDeletionService_ExpiredToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "mario.rossi@example.it")
	token, err := env.deletions.Request(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	env.clock.Advance(DefaultDeletionTTL + time.Minute)
	if _, err := env.deletions.Confirm(ctx, token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
	if !env.user(t, user.ID).IsActive {
		t.Fatalf("user must stay active")
	}
}

func TestDeletionService_ConfirmRollsBackOnFailure(t *testing.T) {
	cases := []struct {
		name  string
		store func(mem *repository.MemoryStore) *faultStore
	}{
		{"fail deleting sessions", func(mem *repository.MemoryStore) *faultStore {
			return &faultStore{Store: mem, failSessionsDelete: true}
		}},
		{"fail cancelling subscriptions", func(mem *repository.MemoryStore) *faultStore {
			return &faultStore{Store: mem, failSubscriptions: true}
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			mem := repository.NewMemoryStore()
			// Primero se prepara el estado con un store sano y despues se inyecta el fallo.
			env := newTestEnvWithStore(t, mem, nil)
			user := env.verifiedUser(t, "mario.rossi@example.it")
			mem.AddSubscription(domain.Subscription{ID: "sub-1", UserID: user.ID, Status: domain.SubscriptionActive})
			login, err := env.accounts.Login(ctx, user.Email, "correct-horse", "c1")
			if err != nil {
				t.Fatalf("login: %v", err)
			}
			verification, err := env.verifications.Issue(ctx, user.ID)
			if err != nil {
				t.Fatalf("issue verification: %v", err)
			}
			token, err := env.deletions.Request(ctx, user.ID, "")
			if err != nil {
				t.Fatalf("request: %v", err)
			}
			before := env.user(t, user.ID)

			faulty := newTestEnvWithStore(t, mem, tc.store(mem))
			faulty.clock.t = env.clock.Now()
			_, err = faulty.deletions.Confirm(ctx, token.Token)
			if !errors.Is(err, ErrStorageUnavailable) || !errors.Is(err, errInjected) {
				t.Fatalf("expected injected storage failure, got %v", err)
			}

			after := env.user(t, user.ID)
			if !after.IsActive || after.DeletionConfirmedAt != nil {
				t.Fatalf("user must stay active, got %+v", after)
			}
			if after.Email != before.Email || after.FiscalCode != before.FiscalCode {
				t.Fatalf("identifiers must not be mangled, got %q", after.Email)
			}
			if _, _, err := env.sessions.Validate(ctx, login.Session.Token); err != nil {
				t.Fatalf("session must survive rollback: %v", err)
			}
			if _, err := mem.Repos().Verifications.GetValidForUpdate(ctx, verification.Token, env.clock.Now()); err != nil {
				t.Fatalf("verification token must survive rollback: %v", err)
			}
			if subs := mem.Subscriptions(user.ID); subs[0].Status != domain.SubscriptionActive {
				t.Fatalf("subscription must stay active, got %+v", subs)
			}

			// El token sigue siendo valido: un reintento con el store sano completa la baja.
			if _, err := env.deletions.Confirm(ctx, token.Token); err != nil {
				t.Fatalf("retry confirm: %v", err)
			}
		})
	}
}

func TestDeletionService_Cancel(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "mario.rossi@example.it")

	if err := env.deletions.Cancel(ctx, user.ID); !errors.Is(err, ErrNothingToCancel) {
		t.Fatalf("expected ErrNothingToCancel without request, got %v", err)
	}

	token, err := env.deletions.Request(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if err := env.deletions.Cancel(ctx, user.ID); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	restored := env.user(t, user.ID)
	if restored.State() != domain.AccountActive || restored.DeletionReason != "" {
		t.Fatalf("expected active user, got %+v", restored)
	}
	if _, err := env.deletions.Confirm(ctx, token.Token); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected cancelled token invalid, got %v", err)
	}
}

func TestDeletionService_CancelAfterConfirm(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "mario.rossi@example.it")
	token, err := env.deletions.Request(ctx, user.ID, "")
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, err := env.deletions.Confirm(ctx, token.Token); err != nil {
		t.Fatalf("confirm: %v", err)
	}

	if err := env.deletions.Cancel(ctx, user.ID); !errors.Is(err, ErrNothingToCancel) {
		t.Fatalf("expected ErrNothingToCancel, got %v", err)
	}
	if got := env.user(t, user.ID); got.IsActive || got.State() != domain.AccountDeleted {
		t.Fatalf("account must stay deleted, got %+v", got)
	}
}

func TestDeletionService_RequestOnDeletedUser(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	user := env.register(t, "mario.rossi@example.it")
	token, _ := env.deletions.Request(ctx, user.ID, "")
	if _, err := env.deletions.Confirm(ctx, token.Token); err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if _, err := env.deletions.Request(ctx, user.ID, ""); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestDeletionService_ReasonTooLong(t *testing.T) {
	env := newTestEnv(t)
	user := env.register(t, "mario.rossi@example.it")
	_, err := env.deletions.Request(context.Background(), user.ID, strings.Repeat("x", maxDeletionReasonSize+1))
	var vErr *ValidationError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestDeletionService_StaleRequests(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	stale := env.register(t, "mario.rossi@example.it")
	fresh := env.register(t, "giulia.verdi@example.it")

	if _, err := env.deletions.Request(ctx, stale.ID, ""); err != nil {
		t.Fatalf("request stale: %v", err)
	}
	env.clock.Advance(6 * 24 * time.Hour)
	if _, err := env.deletions.Request(ctx, fresh.ID, ""); err != nil {
		t.Fatalf("request fresh: %v", err)
	}
	env.clock.Advance(2 * 24 * time.Hour)

	users, err := env.deletions.StaleRequests(ctx)
	if err != nil {
		t.Fatalf("stale: %v", err)
	}
	if len(users) != 1 || users[0].ID != stale.ID {
		t.Fatalf("expected only the stale request, got %+v", users)
	}
}
