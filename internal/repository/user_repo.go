package repository

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"civic-identity/internal/domain"
)

// UserRepository define el contrato de persistencia para usuarios.
type UserRepository interface {
	Create(ctx context.Context, user domain.User) error
	GetByID(ctx context.Context, id string) (domain.User, error)
	GetActiveByEmail(ctx context.Context, email string) (domain.User, error)
	UniqueCodeExists(ctx context.Context, code string) (bool, error)
	MarkEmailVerified(ctx context.Context, id string) error
	SetDeletionRequest(ctx context.Context, id string, requestedAt *time.Time, reason string) (int64, error)
	SoftDelete(ctx context.Context, id string, deletedAt time.Time, email, fiscalCode string) (int64, error)
	SetFounder(ctx context.Context, id string, founder bool, at time.Time) (int64, error)
	ListStaleDeletionRequests(ctx context.Context, requestedBefore time.Time) ([]domain.User, error)
}

// PgUserRepository implementa UserRepository usando pgx.
type PgUserRepository struct {
	db DBTX
}

func NewPgUserRepository(db DBTX) *PgUserRepository {
	return &PgUserRepository{db: db}
}

const userColumns = `
	id, email, password_hash, first_name, last_name, fiscal_code, unique_code,
	email_verified, is_active, is_founder, founder_since,
	deletion_requested_at, deletion_confirmed_at, deletion_reason, created_at`

func (r *PgUserRepository) Create(ctx context.Context, user domain.User) error {
	const query = `
		INSERT INTO users (id, email, password_hash, first_name, last_name, fiscal_code, unique_code,
			email_verified, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.FiscalCode,
		user.UniqueCode,
		user.EmailVerified,
		user.IsActive,
		user.CreatedAt,
	)
	return translateError(err)
}

func (r *PgUserRepository) GetByID(ctx context.Context, id string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUser(r.db.QueryRow(ctx, query, id))
}

func (r *PgUserRepository) GetActiveByEmail(ctx context.Context, email string) (domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1 AND is_active`
	return scanUser(r.db.QueryRow(ctx, query, email))
}

func (r *PgUserRepository) UniqueCodeExists(ctx context.Context, code string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM users WHERE unique_code = $1)`
	var exists bool
	err := r.db.QueryRow(ctx, query, code).Scan(&exists)
	return exists, err
}

func (r *PgUserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	const query = `UPDATE users SET email_verified = TRUE WHERE id = $1`
	tag, err := r.db.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *PgUserRepository) SetDeletionRequest(ctx context.Context, id string, requestedAt *time.Time, reason string) (int64, error) {
	const query = `
		UPDATE users
		SET deletion_requested_at = $2, deletion_reason = $3
		WHERE id = $1 AND is_active AND deletion_confirmed_at IS NULL
	`
	tag, err := r.db.Exec(ctx, query, id, requestedAt, reason)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgUserRepository) SoftDelete(ctx context.Context, id string, deletedAt time.Time, email, fiscalCode string) (int64, error) {
	const query = `
		UPDATE users
		SET is_active = FALSE, deletion_confirmed_at = $2, email = $3, fiscal_code = $4
		WHERE id = $1 AND is_active
	`
	tag, err := r.db.Exec(ctx, query, id, deletedAt, email, fiscalCode)
	if err != nil {
		return 0, translateError(err)
	}
	return tag.RowsAffected(), nil
}

func (r *PgUserRepository) SetFounder(ctx context.Context, id string, founder bool, at time.Time) (int64, error) {
	query := `
		UPDATE users
		SET is_founder = TRUE, founder_since = COALESCE(founder_since, $2)
		WHERE id = $1 AND is_active
	`
	args := []any{id, at}
	if !founder {
		query = `
			UPDATE users
			SET is_founder = FALSE, founder_since = NULL
			WHERE id = $1 AND is_active
		`
		args = args[:1]
	}
	tag, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *PgUserRepository) ListStaleDeletionRequests(ctx context.Context, requestedBefore time.Time) ([]domain.User, error) {
	query := `SELECT ` + userColumns + `
		FROM users
		WHERE is_active AND deletion_confirmed_at IS NULL
			AND deletion_requested_at IS NOT NULL AND deletion_requested_at < $1
		ORDER BY deletion_requested_at
	`
	rows, err := r.db.Query(ctx, query, requestedBefore)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(row pgx.Row) (domain.User, error) {
	return scanUserWithPrefix(row)
}

// scanUserWithPrefix escanea columnas previas (leading) seguidas de userColumns.
func scanUserWithPrefix(row pgx.Row, leading ...any) (domain.User, error) {
	var (
		u          domain.User
		fiscalCode *string
		reason     *string
	)
	dest := append(leading,
		&u.ID,
		&u.Email,
		&u.PasswordHash,
		&u.FirstName,
		&u.LastName,
		&fiscalCode,
		&u.UniqueCode,
		&u.EmailVerified,
		&u.IsActive,
		&u.IsFounder,
		&u.FounderSince,
		&u.DeletionRequestedAt,
		&u.DeletionConfirmedAt,
		&reason,
		&u.CreatedAt,
	)
	if err := row.Scan(dest...); err != nil {
		return domain.User{}, err
	}
	if fiscalCode != nil {
		u.FiscalCode = *fiscalCode
	}
	if reason != nil {
		u.DeletionReason = *reason
	}
	return u, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
