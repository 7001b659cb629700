package repository

import (
	"context"
	"time"

	"civic-identity/internal/domain"
)

// VerificationTokenRepository persiste tokens de verificacion de email.
type VerificationTokenRepository interface {
	Create(ctx context.Context, token domain.EmailVerificationToken) error
	// GetValidForUpdate bloquea el token vigente cuyo usuario sigue activo.
	GetValidForUpdate(ctx context.Context, token string, now time.Time) (domain.EmailVerificationToken, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
}

type PgVerificationTokenRepository struct {
	db DBTX
}

func NewPgVerificationTokenRepository(db DBTX) *PgVerificationTokenRepository {
	return &PgVerificationTokenRepository{db: db}
}

func (r *PgVerificationTokenRepository) Create(ctx context.Context, token domain.EmailVerificationToken) error {
	const query = `
		INSERT INTO email_verification_tokens (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query, token.Token, token.UserID, token.ExpiresAt, token.CreatedAt)
	return translateError(err)
}

func (r *PgVerificationTokenRepository) GetValidForUpdate(ctx context.Context, token string, now time.Time) (domain.EmailVerificationToken, error) {
	const query = `
		SELECT t.token, t.user_id, t.expires_at, t.created_at
		FROM email_verification_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token = $1 AND t.expires_at > $2 AND u.is_active
		FOR UPDATE OF t
	`
	var t domain.EmailVerificationToken
	err := r.db.QueryRow(ctx, query, token, now).Scan(&t.Token, &t.UserID, &t.ExpiresAt, &t.CreatedAt)
	if err != nil {
		return domain.EmailVerificationToken{}, err
	}
	return t, nil
}

func (r *PgVerificationTokenRepository) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM email_verification_tokens WHERE token = $1`
	_, err := r.db.Exec(ctx, query, token)
	return err
}

func (r *PgVerificationTokenRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM email_verification_tokens WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
