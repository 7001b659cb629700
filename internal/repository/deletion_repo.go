package repository

import (
	"context"
	"time"

	"civic-identity/internal/domain"
)

// DeletionTokenRepository persiste tokens de confirmacion de baja.
type DeletionTokenRepository interface {
	Create(ctx context.Context, token domain.AccountDeletionToken) error
	GetValidForUpdate(ctx context.Context, token string, now time.Time) (domain.AccountDeletionToken, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type PgDeletionTokenRepository struct {
	db DBTX
}

func NewPgDeletionTokenRepository(db DBTX) *PgDeletionTokenRepository {
	return &PgDeletionTokenRepository{db: db}
}

func (r *PgDeletionTokenRepository) Create(ctx context.Context, token domain.AccountDeletionToken) error {
	const query = `
		INSERT INTO account_deletion_tokens (token, user_id, reason, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := r.db.Exec(ctx, query, token.Token, token.UserID, token.Reason, token.ExpiresAt, token.CreatedAt)
	return translateError(err)
}

func (r *PgDeletionTokenRepository) GetValidForUpdate(ctx context.Context, token string, now time.Time) (domain.AccountDeletionToken, error) {
	const query = `
		SELECT t.token, t.user_id, COALESCE(t.reason, ''), t.expires_at, t.created_at
		FROM account_deletion_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1 AND t.expires_at > $2 AND u.is_active
		FOR UPDATE OF t, u
	`
	var t domain.AccountDeletionToken
	err := r.db.QueryRow(ctx, query, token, now).Scan(&t.Token, &t.UserID, &t.Reason, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return domain.AccountDeletionToken{}, err
	}
	return t, nil
}

func (r *PgDeletionTokenRepository) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM account_deletion_tokens WHERE token = $1`
	_, err := r.db.Exec(ctx, query, token)
	return err
}

func (r *PgDeletionTokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM account_deletion_tokens WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
