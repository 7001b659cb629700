package repository

import (
	"context"
	"time"

	"civic-identity/internal/domain"
)

// SessionRepository persiste sesiones opacas.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	// GetValid devuelve la sesion y su usuario si no expiro y el usuario sigue activo.
	GetValid(ctx context.Context, token string, now time.Time) (domain.Session, domain.User, error)
	Delete(ctx context.Context, token string) error
	DeleteByUser(ctx context.Context, userID string) (int64, error)
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type PgSessionRepository struct {
	db DBTX
}

func NewPgSessionRepository(db DBTX) *PgSessionRepository {
	return &PgSessionRepository{db: db}
}

func (r *PgSessionRepository) Create(ctx context.Context, session domain.Session) error {
	const query = `
		INSERT INTO sessions (token, user_id, expires_at, created_at)
		VALUES ($1, $2, $3, $4)
	`
	_, err := r.db.Exec(ctx, query,
		session.Token,
		session.UserID,
		session.ExpiresAt,
		session.CreatedAt,
	)
	return translateError(err)
}

func (r *PgSessionRepository) GetValid(ctx context.Context, token string, now time.Time) (domain.Session, domain.User, error) {
	query := `
		SELECT s.token, s.user_id, s.expires_at, s.created_at, ` + prefixed("u", userColumns) + `
		FROM sessions s
		JOIN users u ON u.id = s.user_id
		WHERE s.token = $1 AND s.expires_at > $2 AND u.is_active
	`
	var session domain.Session
	user, err := scanUserWithPrefix(r.db.QueryRow(ctx, query, token, now),
		&session.Token,
		&session.UserID,
		&session.ExpiresAt,
		&session.CreatedAt,
	)
	if err != nil {
		return domain.Session{}, domain.User{}, err
	}
	return session, user, nil
}

func (r *PgSessionRepository) Delete(ctx context.Context, token string) error {
	const query = `DELETE FROM sessions WHERE token = $1`
	_, err := r.db.Exec(ctx, query, token)
	return err
}

func (r *PgSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	const query = `DELETE FROM sessions WHERE user_id = $1`
	tag, err := r.db.Exec(ctx, query, userID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgSessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at <= $1`
	tag, err := r.db.Exec(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
