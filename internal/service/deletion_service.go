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

const (
	DefaultDeletionTTL    = 2 * time.Hour
	StaleDeletionAge      = 7 * 24 * time.Hour
	deletedMarkerPrefix   = "deleted_"
	maxDeletionReasonSize = 500
)

// DeletionService gestiona el flujo de baja:
// Active -> DeletionRequested -> Deleted, con cancelacion antes de confirmar.
type DeletionService struct {
	logger *zap.Logger
	store  repository.Store
	tokens security.TokenGenerator
	sender email.Sender
	ttl    time.Duration
	now    func() time.Time
}

func NewDeletionService(logger *zap.Logger, store repository.Store, tokens security.TokenGenerator, sender email.Sender, ttl time.Duration) *DeletionService {
	if ttl <= 0 {
		ttl = DefaultDeletionTTL
	}
	return &DeletionService{
		logger: logger,
		store:  store,
		tokens: tokens,
		sender: sender,
		ttl:    ttl,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Request reemplaza cualquier token de baja previo, marca la solicitud y envia el enlace de confirmacion.
func (s *DeletionService) Request(ctx context.Context, userID, reason string) (domain.AccountDeletionToken, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) > maxDeletionReasonSize {
		return domain.AccountDeletionToken{}, &ValidationError{Fields: map[string]string{"reason": "too long"}}
	}

	var (
		issued domain.AccountDeletionToken
		user   domain.User
	)
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		token, err := s.tokens.Token()
		if err != nil {
			return domain.AccountDeletionToken{}, err
		}
		err = s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
			var err error
			user, err = repos.Users.GetByID(ctx, userID)
			if err != nil {
				if errors.Is(err, pgx.ErrNoRows) {
					return ErrUserNotFound
				}
				return err
			}
			if !user.IsActive {
				return ErrUserNotFound
			}
			if _, err := repos.Deletions.DeleteByUser(ctx, userID); err != nil {
				return err
			}
			now := s.now()
			issued = domain.AccountDeletionToken{
				Token:     token,
				UserID:    userID,
				Reason:    reason,
				ExpiresAt: now.Add(s.ttl),
				CreatedAt: now,
			}
			if err := repos.Deletions.Create(ctx, issued); err != nil {
				return err
			}
			rows, err := repos.Users.SetDeletionRequest(ctx, userID, &now, reason)
			if err != nil {
				return err
			}
			if rows == 0 {
				return ErrUserNotFound
			}
			return nil
		})
		if err == nil {
			break
		}
		if !repository.IsUniqueViolation(err, repository.ConstraintDeletionToken) {
			return domain.AccountDeletionToken{}, storageError(err)
		}
		if attempt == maxTokenAttempts-1 {
			return domain.AccountDeletionToken{}, storageError(errors.New("could not allocate a unique deletion token"))
		}
	}

	s.logger.Info("account deletion requested", zap.String("user_id", userID))
	if s.sender == nil {
		s.logger.Warn("deletion email not sent: sender not configured")
	} else if err := s.sender.SendDeletionConfirmation(ctx, user.Email, issued.Token, issued.ExpiresAt); err != nil {
		s.logger.Warn("send deletion confirmation failed", zap.Error(err), zap.String("user_id", userID))
	}
	return issued, nil
}

// Confirm consume el token y ejecuta la baja completa en una sola transaccion.
// Si cualquier paso falla no persiste ninguno.
func (s *DeletionService) Confirm(ctx context.Context, token string) (domain.User, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return domain.User{}, ErrTokenInvalid
	}

	var former domain.User
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		now := s.now()
		t, err := repos.Deletions.GetValidForUpdate(ctx, token, now)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrTokenInvalid
			}
			return err
		}
		user, err := repos.Users.GetByID(ctx, t.UserID)
		if err != nil {
			return err
		}

		rows, err := repos.Users.SoftDelete(ctx, user.ID, now, mangle(user.ID, user.Email), mangle(user.ID, user.FiscalCode))
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrTokenInvalid
		}
		if _, err := repos.Sessions.DeleteByUser(ctx, user.ID); err != nil {
			return err
		}
		if _, err := repos.Verifications.DeleteByUser(ctx, user.ID); err != nil {
			return err
		}
		if err := repos.Deletions.Delete(ctx, t.Token); err != nil {
			return err
		}
		if _, err := repos.Subscriptions.CancelActiveByUser(ctx, user.ID, now); err != nil {
			return err
		}

		former, err = repos.Users.GetByID(ctx, user.ID)
		return err
	})
	if err != nil {
		if !errors.Is(err, ErrTokenInvalid) {
			s.logger.Error("account deletion rolled back", zap.Error(err))
		}
		return domain.User{}, storageError(err)
	}
	s.logger.Info("account deleted", zap.String("user_id", former.ID))
	return former, nil
}

// Cancel anula una solicitud pendiente. Tras la confirmacion no hay nada que cancelar.
func (s *DeletionService) Cancel(ctx context.Context, userID string) error {
	err := s.store.WithinTx(ctx, func(ctx context.Context, repos repository.Repos) error {
		user, err := repos.Users.GetByID(ctx, userID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrNothingToCancel
			}
			return err
		}
		if user.State() != domain.AccountDeletionRequested {
			return ErrNothingToCancel
		}
		rows, err := repos.Users.SetDeletionRequest(ctx, userID, nil, "")
		if err != nil {
			return err
		}
		if rows == 0 {
			return ErrNothingToCancel
		}
		_, err = repos.Deletions.DeleteByUser(ctx, userID)
		return err
	})
	if err != nil {
		return storageError(err)
	}
	s.logger.Info("account deletion cancelled", zap.String("user_id", userID))
	return nil
}

// StaleRequests lista solicitudes pendientes hace mas de StaleDeletionAge.
// Solo informa; no confirma ni cancela nada.
func (s *DeletionService) StaleRequests(ctx context.Context) ([]domain.User, error) {
	users, err := s.store.Repos().Users.ListStaleDeletionRequests(ctx, s.now().Add(-StaleDeletionAge))
	if err != nil {
		return nil, storageError(err)
	}
	return users, nil
}

func mangle(userID, value string) string {
	if value == "" {
		return ""
	}
	return deletedMarkerPrefix + userID + "_" + value
}
