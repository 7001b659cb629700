package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"civic-identity/internal/domain"
)

type memState struct {
	users         map[string]domain.User
	sessions      map[string]domain.Session
	verifications map[string]domain.EmailVerificationToken
	deletions     map[string]domain.AccountDeletionToken
	subscriptions map[string]domain.Subscription
}

func newMemState() *memState {
	return &memState{
		users:         make(map[string]domain.User),
		sessions:      make(map[string]domain.Session),
		verifications: make(map[string]domain.EmailVerificationToken),
		deletions:     make(map[string]domain.AccountDeletionToken),
		subscriptions: make(map[string]domain.Subscription),
	}
}

func (st *memState) clone() *memState {
	cp := newMemState()
	for k, v := range st.users {
		cp.users[k] = v
	}
	for k, v := range st.sessions {
		cp.sessions[k] = v
	}
	for k, v := range st.verifications {
		cp.verifications[k] = v
	}
	for k, v := range st.deletions {
		cp.deletions[k] = v
	}
	for k, v := range st.subscriptions {
		cp.subscriptions[k] = v
	}
	return cp
}

// MemoryStore es un Store en memoria con transacciones por snapshot.
// Sirve para desarrollo local (STORAGE_DRIVER=memory) y para tests.
type MemoryStore struct {
	mu    sync.Mutex
	state *memState
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{state: newMemState()}
}

func (s *MemoryStore) Repos() Repos {
	return s.repos(false)
}

// WithinTx serializa la unidad de trabajo con un lock global y restaura el snapshot si fn falla.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	defer func() {
		if p := recover(); p != nil {
			s.state = snapshot
			panic(p)
		}
		if err != nil {
			s.state = snapshot
		}
	}()
	return fn(ctx, s.repos(true))
}

// AddSubscription registra una suscripcion; el flujo de pago vive fuera de este servicio.
func (s *MemoryStore) AddSubscription(sub domain.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.subscriptions[sub.ID] = sub
}

// Subscriptions devuelve una copia de las suscripciones de un usuario.
func (s *MemoryStore) Subscriptions(userID string) []domain.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Subscription
	for _, sub := range s.state.subscriptions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	return out
}

func (s *MemoryStore) repos(inTx bool) Repos {
	b := memBase{store: s, inTx: inTx}
	return Repos{
		Users:         memUsers{b},
		Sessions:      memSessions{b},
		Verifications: memVerifications{b},
		Deletions:     memDeletions{b},
		Subscriptions: memSubscriptions{b},
	}
}

type memBase struct {
	store *MemoryStore
	inTx  bool
}

func (b memBase) with(fn func(st *memState) error) error {
	if !b.inTx {
		b.store.mu.Lock()
		defer b.store.mu.Unlock()
	}
	return fn(b.store.state)
}

type memUsers struct{ memBase }

func (r memUsers) Create(_ context.Context, user domain.User) error {
	return r.with(func(st *memState) error {
		for _, u := range st.users {
			if u.UniqueCode == user.UniqueCode {
				return &UniqueViolationError{Constraint: ConstraintUserUniqueCode}
			}
			if !u.IsActive || !user.IsActive {
				continue
			}
			if u.Email == user.Email {
				return &UniqueViolationError{Constraint: ConstraintUserEmailActive}
			}
			if user.FiscalCode != "" && u.FiscalCode == user.FiscalCode {
				return &UniqueViolationError{Constraint: ConstraintUserFiscalActive}
			}
		}
		st.users[user.ID] = user
		return nil
	})
}

func (r memUsers) GetByID(_ context.Context, id string) (domain.User, error) {
	var out domain.User
	err := r.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return pgx.ErrNoRows
		}
		out = u
		return nil
	})
	return out, err
}

func (r memUsers) GetActiveByEmail(_ context.Context, email string) (domain.User, error) {
	var out domain.User
	err := r.with(func(st *memState) error {
		for _, u := range st.users {
			if u.IsActive && u.Email == email {
				out = u
				return nil
			}
		}
		return pgx.ErrNoRows
	})
	return out, err
}

func (r memUsers) UniqueCodeExists(_ context.Context, code string) (bool, error) {
	var exists bool
	err := r.with(func(st *memState) error {
		for _, u := range st.users {
			if u.UniqueCode == code {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func (r memUsers) MarkEmailVerified(_ context.Context, id string) error {
	return r.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok {
			return pgx.ErrNoRows
		}
		u.EmailVerified = true
		st.users[id] = u
		return nil
	})
}

func (r memUsers) SetDeletionRequest(_ context.Context, id string, requestedAt *time.Time, reason string) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok || !u.IsActive || u.DeletionConfirmedAt != nil {
			return nil
		}
		u.DeletionRequestedAt = requestedAt
		u.DeletionReason = reason
		st.users[id] = u
		n = 1
		return nil
	})
	return n, err
}

func (r memUsers) SoftDelete(_ context.Context, id string, deletedAt time.Time, email, fiscalCode string) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok || !u.IsActive {
			return nil
		}
		u.IsActive = false
		u.DeletionConfirmedAt = &deletedAt
		u.Email = email
		u.FiscalCode = fiscalCode
		st.users[id] = u
		n = 1
		return nil
	})
	return n, err
}

func (r memUsers) SetFounder(_ context.Context, id string, founder bool, at time.Time) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		u, ok := st.users[id]
		if !ok || !u.IsActive {
			return nil
		}
		u.IsFounder = founder
		switch {
		case !founder:
			u.FounderSince = nil
		case u.FounderSince == nil:
			u.FounderSince = &at
		}
		st.users[id] = u
		n = 1
		return nil
	})
	return n, err
}

func (r memUsers) ListStaleDeletionRequests(_ context.Context, requestedBefore time.Time) ([]domain.User, error) {
	var out []domain.User
	err := r.with(func(st *memState) error {
		for _, u := range st.users {
			if !u.IsActive || u.DeletionConfirmedAt != nil || u.DeletionRequestedAt == nil {
				continue
			}
			if u.DeletionRequestedAt.Before(requestedBefore) {
				out = append(out, u)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		return out[i].DeletionRequestedAt.Before(*out[j].DeletionRequestedAt)
	})
	return out, err
}

type memSessions struct{ memBase }

func (r memSessions) Create(_ context.Context, session domain.Session) error {
	return r.with(func(st *memState) error {
		if _, ok := st.sessions[session.Token]; ok {
			return &UniqueViolationError{Constraint: ConstraintSessionToken}
		}
		st.sessions[session.Token] = session
		return nil
	})
}

func (r memSessions) GetValid(_ context.Context, token string, now time.Time) (domain.Session, domain.User, error) {
	var (
		session domain.Session
		user    domain.User
	)
	err := r.with(func(st *memState) error {
		s, ok := st.sessions[token]
		if !ok || s.ExpiredAt(now) {
			return pgx.ErrNoRows
		}
		u, ok := st.users[s.UserID]
		if !ok || !u.IsActive {
			return pgx.ErrNoRows
		}
		session, user = s, u
		return nil
	})
	return session, user, err
}

func (r memSessions) Delete(_ context.Context, token string) error {
	return r.with(func(st *memState) error {
		delete(st.sessions, token)
		return nil
	})
}

func (r memSessions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		for token, s := range st.sessions {
			if s.UserID == userID {
				delete(st.sessions, token)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r memSessions) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		for token, s := range st.sessions {
			if s.ExpiredAt(now) {
				delete(st.sessions, token)
				n++
			}
		}
		return nil
	})
	return n, err
}

type memVerifications struct{ memBase }

func (r memVerifications) Create(_ context.Context, token domain.EmailVerificationToken) error {
	return r.with(func(st *memState) error {
		if _, ok := st.verifications[token.Token]; ok {
			return &UniqueViolationError{Constraint: ConstraintVerificationToken}
		}
		st.verifications[token.Token] = token
		return nil
	})
}

func (r memVerifications) GetValidForUpdate(_ context.Context, token string, now time.Time) (domain.EmailVerificationToken, error) {
	var out domain.EmailVerificationToken
	err := r.with(func(st *memState) error {
		t, ok := st.verifications[token]
		if !ok || !now.Before(t.ExpiresAt) {
			return pgx.ErrNoRows
		}
		if u, ok := st.users[t.UserID]; !ok || !u.IsActive {
			return pgx.ErrNoRows
		}
		out = t
		return nil
	})
	return out, err
}

func (r memVerifications) Delete(_ context.Context, token string) error {
	return r.with(func(st *memState) error {
		delete(st.verifications, token)
		return nil
	})
}

func (r memVerifications) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		for token, t := range st.verifications {
			if t.UserID == userID {
				delete(st.verifications, token)
				n++
			}
		}
		return nil
	})
	return n, err
}

type memDeletions struct{ memBase }

func (r memDeletions) Create(_ context.Context, token domain.AccountDeletionToken) error {
	return r.with(func(st *memState) error {
		if _, ok := st.deletions[token.Token]; ok {
			return &UniqueViolationError{Constraint: ConstraintDeletionToken}
		}
		st.deletions[token.Token] = token
		return nil
	})
}

func (r memDeletions) GetValidForUpdate(_ context.Context, token string, now time.Time) (domain.AccountDeletionToken, error) {
	var out domain.AccountDeletionToken
	err := r.with(func(st *memState) error {
		t, ok := st.deletions[token]
		if !ok || !now.Before(t.ExpiresAt) {
			return pgx.ErrNoRows
		}
		if u, ok := st.users[t.UserID]; !ok || !u.IsActive {
			return pgx.ErrNoRows
		}
		out = t
		return nil
	})
	return out, err
}

func (r memDeletions) Delete(_ context.Context, token string) error {
	return r.with(func(st *memState) error {
		delete(st.deletions, token)
		return nil
	})
}

func (r memDeletions) DeleteByUser(_ context.Context, userID string) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		for token, t := range st.deletions {
			if t.UserID == userID {
				delete(st.deletions, token)
				n++
			}
		}
		return nil
	})
	return n, err
}

type memSubscriptions struct{ memBase }

func (r memSubscriptions) CancelActiveByUser(_ context.Context, userID string, at time.Time) (int64, error) {
	var n int64
	err := r.with(func(st *memState) error {
		for id, sub := range st.subscriptions {
			if sub.UserID != userID || sub.Status == domain.SubscriptionCancelled {
				continue
			}
			sub.Status = domain.SubscriptionCancelled
			sub.CancelledAt = &at
			st.subscriptions[id] = sub
			n++
		}
		return nil
	})
	return n, err
}
