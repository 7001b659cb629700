package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"civic-identity/internal/domain"
	"civic-identity/internal/email"
	"civic-identity/internal/repository"
	"civic-identity/internal/security"
)

const DefaultVerificationTTL = 24 * time.Hour

// VerificationService emite y consume tokens de verificacion de email.
type VerificationService struct {
	logger *zap.Logger
	store  repository.Store
	tokens security.TokenGenerator
	sender email.Sender
	ttl    time.Duration
	now    func() time.Time
}

func NewVerificationService(logger *zap.Logger, store repository.Store, tokens security.TokenGenerator, sender email.Sender, ttl time.Duration) *VerificationService {
	if ttl <= 0 {
		ttl = DefaultVerificationTTL
	}
	return &VerificationService{
		logger: logger,
		store:  store,
		tokens: tokens,
		sender: sender,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Issue reemplaza cualquier token previo del usuario por uno nuevo.
func (s *VerificationService) Issue(ctx context.Context, userID string) (domain.EmailVerificationToken, error) {
	var issued domain.EmailVerificationToken
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := s.tokens.Token()
		if err != nil {
			return domain.EmailVerificationToken{}, err
		}
		err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			user, err := repos.Users.GetByID(ctx, userID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrUserNotFound
				}
				return err
			}
			if !user.IsActive {
				return ErrUserNotFound
			}
			if _, err := repos.Verifications.DeleteByUser(ctx, userID); err != nil {
				return err
			}
			now := s.now()
			issued = domain.EmailVerificationToken{
				Token:     token,
				UserID:    userID,
				ExpiresAt: now.Add(s.ttl),
				CreatedAt: now,
			}
			return repos.Verifications.Create(ctx, issued)
		})
		if err == nil {
			return issued, nil
		}
		if !repository.IsUniqueViolation(err, repository.ConstraintVerificationToken) {
			return domain.EmailVerificationToken{}, storageError(err)
		}
	}
	return domain.EmailVerificationToken{}, storageError(errors.New("could not allocate a unique verification token"))
}

// Request emite un token y lo envia al email del usuario.
// Un fallo de entrega se registra pero no invalida el token emitido.
func (s *VerificationService) Request(ctx context.Context, userID string) (domain.EmailVerificationToken, error) {
	user, err := s.store.Repos().Users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.EmailVerificationToken{}, ErrUserNotFound
		}
		return domain.EmailVerificationToken{}, storageError(err)
	}
	token, err := s.Issue(ctx, userID)
	if err != nil {
		return domain.EmailVerificationToken{}, err
	}
	s.deliver(ctx, user.Email, token)
	return token, nil
}

// Resend reenvia el token si el email pertenece a un usuario activo sin verificar.
// Nunca revela si la direccion esta registrada.
func (s *VerificationService) Resend(ctx context.Context, emailAddr string) error {
	emailAddr = normalizeEmail(emailAddr)
	if emailAddr == "" {
		return nil
	}
	user, err := s.store.Repos().Users.GetActiveByEmail(ctx, emailAddr)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return storageError(err)
	}
	if user.EmailVerified {
		return nil
	}
	token, err := s.Issue(ctx, user.ID)
	if err != nil {
		return err
	}
	s.deliver(ctx, user.Email, token)
	return nil
}

// Confirm consume el token: marca el email como verificado y borra el token.
// Un segundo intento con el mismo token devuelve ErrTokenInvalid.
func (s *VerificationService) Confirm(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrTokenInvalid
	}
	var user domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		t, err := repos.Verifications.GetValidForUpdate(ctx, token, s.now())
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTokenInvalid
			}
			return err
		}
		if err := repos.Users.MarkEmailVerified(ctx, t.UserID); err != nil {
			return err
		}
		if err := repos.Verifications.Delete(ctx, t.Token); err != nil {
			return err
		}
		user, err = repos.Users.GetByID(ctx, t.UserID)
		return err
	})
	if err != nil {
		return domain.User{}, storageError(err)
	}
	return user, nil
}

func (s *VerificationService) deliver(ctx context.Context, to string, token domain.EmailVerificationToken) {
	if s.sender == nil {
		s.logger.Warn("verification email not sent: sender not configured")
		return
	}
	if err := s.sender.SendVerification(ctx, to, token.Token, token.ExpiresAt); err != nil {
		s.logger.Warn("send verification email failed", zap.Error(err), zap.String("user_id", token.UserID))
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
