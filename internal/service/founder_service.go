package service

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"civic-identity/internal/email"
	"civic-identity/internal/repository"
)

// FounderService activa o retira la insignia de founder a peticion del sistema de pagos.
// Ambas operaciones son idempotentes; un usuario inexistente o inactivo es un no-op.
type FounderService struct {
	logger *zap.Logger
	store  repository.Store
	sender email.Sender
	now    func() time.Time
}

func NewFounderService(logger *zap.Logger, store repository.Store, sender email.Sender) *FounderService {
	return &FounderService{
		logger: logger,
		store:  store,
		sender: sender,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *FounderService) SetFounder(ctx context.Context, userID string) error {
	users := s.store.Repos().Users
	user, err := users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			s.logger.Info("set founder skipped: user not found", zap.String("user_id", userID))
			return nil
		}
		return storageError(err)
	}
	rows, err := users.SetFounder(ctx, userID, true, s.now())
	if err != nil {
		return storageError(err)
	}
	if rows == 0 {
		s.logger.Info("set founder skipped: user inactive", zap.String("user_id", userID))
		return nil
	}
	if user.IsFounder {
		return nil
	}
	s.logger.Info("founder status set", zap.String("user_id", userID))
	if s.sender != nil {
		if err := s.sender.SendFounderReceipt(ctx, user.Email, user.FirstName); err != nil {
			s.logger.Warn("send founder receipt failed", zap.Error(err), zap.String("user_id", userID))
		}
	}
	return nil
}

func (s *FounderService) RemoveFounder(ctx context.Context, userID string) error {
	rows, err := s.store.Repos().Users.SetFounder(ctx, userID, false, s.now())
	if err != nil {
		return storageError(err)
	}
	if rows == 0 {
		s.logger.Info("remove founder skipped: user missing or inactive", zap.String("user_id", userID))
		return nil
	}
	s.logger.Info("founder status removed", zap.String("user_id", userID))
	return nil
}
