package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"civic-identity/internal/domain"
	"civic-identity/internal/repository"
	"civic-identity/internal/security"
)

const (
	DefaultSessionTTL = 30 * 24 * time.Hour
	maxTokenAttempts  = 5
)

// SessionService crea, valida y revoca sesiones opacas.
// El TTL se fija al crear la sesion; no hay renovacion deslizante.
type SessionService struct {
	logger *zap.Logger
	store  repository.Store
	tokens security.TokenGenerator
	ttl    time.Duration
	now    func() time.Time
}

func NewSessionService(logger *zap.Logger, store repository.Store, tokens security.TokenGenerator, ttl time.Duration) *SessionService {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &SessionService{
		logger: logger,
		store:  store,
		tokens: tokens,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create abre una sesion nueva; un usuario puede tener varias en paralelo.
func (s *SessionService) Create(ctx context.Context, userID string) (domain.Session, error) {
	sessions := s.store.Repos().Sessions
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := s.tokens.Token()
		if err != nil {
			return domain.Session{}, err
		}
		now := s.now()
		session := domain.Session{
			Token:     token,
			UserID:    userID,
			ExpiresAt: now.Add(s.ttl),
			CreatedAt: now,
		}
		err = sessions.Create(ctx, session)
		if err == nil {
			return session, nil
		}
		if !repository.IsUniqueViolation(err, repository.ConstraintSessionToken) {
			return domain.Session{}, storageError(err)
		}
		s.logger.Warn("session token collision, regenerating", zap.Int("attempt", attempt+1))
	}
	return domain.Session{}, storageError(errors.New("could not allocate a unique session token"))
}

// Validate devuelve la sesion y su usuario, o ErrUnauthenticated si no existe,
// expiro o el usuario ya no esta activo.
func (s *SessionService) Validate(ctx context.Context, token string) (domain.Session, domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.Session{}, domain.User{}, ErrUnauthenticated
	}
	session, user, err := s.store.Repos().Sessions.GetValid(ctx, token, s.now())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.User{}, ErrUnauthenticated
		}
		return domain.Session{}, domain.User{}, storageError(err)
	}
	return session, user, nil
}

// Revoke es idempotente: revocar un token inexistente no es un error.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil
	}
	return storageError(s.store.Repos().Sessions.Delete(ctx, token))
}

// SweepExpired borra las sesiones caducadas.
func (s *SessionService) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.store.Repos().Sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, storageError(err)
	}
	return n, nil
}
