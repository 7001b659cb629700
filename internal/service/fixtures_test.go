package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"civic-identity/internal/domain"
	"civic-identity/internal/guard"
	"civic-identity/internal/repository"
	"civic-identity/internal/security"
)

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func newTestClock() *testClock {
	return &testClock{t: time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type sentMail struct {
	kind  string
	to    string
	token string
}

type mockSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *mockSender) record(kind, to, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentMail{kind: kind, to: to, token: token})
	return m.err
}

func (m *mockSender) SendVerification(_ context.Context, to, token string, _ time.Time) error {
	return m.record("verification", to, token)
}

func (m *mockSender) SendDeletionConfirmation(_ context.Context, to, token string, _ time.Time) error {
	return m.record("deletion", to, token)
}

func (m *mockSender) SendFounderReceipt(_ context.Context, to, _ string) error {
	return m.record("founder", to, "")
}

func (m *mockSender) count(kind string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, s := range m.sent {
		if s.kind == kind {
			n++
		}
	}
	return n
}

func (m *mockSender) last(kind string) (sentMail, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.sent) - 1; i >= 0; i-- {
		if m.sent[i].kind == kind {
			return m.sent[i], true
		}
	}
	return sentMail{}, false
}

// scriptedTokens devuelve primero los valores programados y despues delega en el generador real.
type scriptedTokens struct {
	mu     sync.Mutex
	tokens []string
	codes  []string
	real   security.RandomTokenGenerator
}

func (s *scriptedTokens) Token() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.tokens) > 0 {
		t := s.tokens[0]
		s.tokens = s.tokens[1:]
		return t, nil
	}
	return s.real.Token()
}

func (s *scriptedTokens) UniqueCode() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.codes) > 0 {
		c := s.codes[0]
		s.codes = s.codes[1:]
		return c, nil
	}
	return s.real.UniqueCode()
}

var errInjected = errors.New("injected failure")

// faultStore envuelve un Store y hace fallar pasos concretos dentro de las transacciones.
type faultStore struct {
	repository.Store
	failSessionsDelete bool
	failSubscriptions  bool
}

func (f *faultStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos repository.Repos) error) error {
	return f.Store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		if f.failSessionsDelete {
			repos.Sessions = failingSessions{repos.Sessions}
		}
		if f.failSubscriptions {
			repos.Subscriptions = failingSubscriptions{repos.Subscriptions}
		}
		return fn(ctx, repos)
	})
}

type failingSessions struct {
	repository.SessionRepository
}

func (failingSessions) DeleteByUser(context.Context, string) (int64, error) {
	return 0, errInjected
}

type failingSubscriptions struct {
	repository.SubscriptionRepository
}

func (failingSubscriptions) CancelActiveByUser(context.Context, string, time.Time) (int64, error) {
	return 0, errInjected
}

type testEnv struct {
	store         *repository.MemoryStore
	backend       repository.Store
	clock         *testClock
	sender        *mockSender
	tokens        *scriptedTokens
	guard         *guard.Guard
	sessions      *SessionService
	verifications *VerificationService
	deletions     *DeletionService
	founders      *FounderService
	accounts      *AccountService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithStore(t, repository.NewMemoryStore(), nil)
}

// newTestEnvWithStore monta todos los servicios sobre mem; si store no es nil,
// todo el acceso pasa por el y mem puede ser nil.
func newTestEnvWithStore(t *testing.T, mem *repository.MemoryStore, store repository.Store) *testEnv {
	t.Helper()
	if store == nil {
		store = mem
	}
	logger := zap.NewNop()
	clock := newTestClock()
	sender := &mockSender{}
	tokens := &scriptedTokens{real: security.NewRandomTokenGenerator()}
	limiter := guard.NewRateLimiter(guard.WithClock(clock.Now))
	g := guard.NewGuard(logger, limiter, guard.NewSpamScorer(), nil, nil)

	sessions := NewSessionService(logger, store, tokens, 0)
	sessions.now = clock.Now
	verifications := NewVerificationService(logger, store, tokens, sender, 0)
	verifications.now = clock.Now
	deletions := NewDeletionService(logger, store, tokens, sender, 0)
	deletions.now = clock.Now
	founders := NewFounderService(logger, store, sender)
	founders.now = clock.Now
	accounts := NewAccountService(logger, store, g, security.NewBcryptHasher(bcrypt.MinCost), tokens, sessions, verifications)
	accounts.now = clock.Now

	return &testEnv{
		store:         mem,
		backend:       store,
		clock:         clock,
		sender:        sender,
		tokens:        tokens,
		guard:         g,
		sessions:      sessions,
		verifications: verifications,
		deletions:     deletions,
		founders:      founders,
		accounts:      accounts,
	}
}

func (e *testEnv) register(t *testing.T, emailAddr string) domain.User {
	t.Helper()
	user, err := e.accounts.Register(context.Background(), RegisterInput{
		Email:     emailAddr,
		Password:  "correct-horse",
		FirstName: "Mario",
		LastName:  "Rossi",
	}, "client-"+emailAddr, nil)
	if err != nil {
		t.Fatalf("register %s: %v", emailAddr, err)
	}
	return user
}

// verifiedUser registra y verifica un usuario usando el token enviado por email.
func (e *testEnv) verifiedUser(t *testing.T, emailAddr string) domain.User {
	t.Helper()
	e.register(t, emailAddr)
	mail, ok := e.sender.last("verification")
	if !ok {
		t.Fatalf("expected verification email for %s", emailAddr)
	}
	user, err := e.verifications.Confirm(context.Background(), mail.token)
	if err != nil {
		t.Fatalf("confirm verification: %v", err)
	}
	return user
}

func (e *testEnv) user(t *testing.T, id string) domain.User {
	t.Helper()
	user, err := e.backend.Repos().Users.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("get user %s: %v", id, err)
	}
	return user
}
