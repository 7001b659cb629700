package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Nombres de los indices unicos. Los servicios los usan para decidir si reintentar.
const (
	ConstraintUserEmailActive   = "users_email_active_key"
	ConstraintUserFiscalActive  = "users_fiscal_code_active_key"
	ConstraintUserUniqueCode    = "users_unique_code_key"
	ConstraintSessionToken      = "sessions_pkey"
	ConstraintVerificationToken = "email_verification_tokens_pkey"
	ConstraintDeletionToken     = "account_deletion_tokens_pkey"
)

const pgUniqueViolation = "23505"

// UniqueViolationError indica que una escritura choco con un indice unico.
type UniqueViolationError struct {
	Constraint string
}

func (e *UniqueViolationError) Error() string {
	return fmt.Sprintf("unique violation on %s", e.Constraint)
}

// IsUniqueViolation reporta si err es una violacion del indice indicado.
// Con constraint vacio acepta cualquier indice.
func IsUniqueViolation(err error, constraint string) bool {
	var uv *UniqueViolationError
	if !errors.As(err, &uv) {
		return false
	}
	return constraint == "" || uv.Constraint == constraint
}

func translateError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &UniqueViolationError{Constraint: pgErr.ConstraintName}
	}
	return err
}

// DBTX es el subconjunto de pgx que usan los repositorios.
// Lo satisfacen tanto *pgxpool.Pool como pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repos agrupa los repositorios ligados a una misma conexion o transaccion.
type Repos struct {
	Users         UserRepository
	Sessions      SessionRepository
	Verifications VerificationTokenRepository
	Deletions     DeletionTokenRepository
	Subscriptions SubscriptionRepository
}

// Store entrega repositorios fuera de transaccion y una unidad de trabajo atomica.
type Store interface {
	Repos() Repos
	// WithinTx ejecuta fn dentro de una transaccion; cualquier error revierte todos los efectos.
	WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error
}

// PgStore implementa Store sobre pgxpool.
type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Repos() Repos {
	return pgRepos(s.pool)
}

func (s *PgStore) WithinTx(ctx context.Context, fn func(ctx context.Context, repos Repos) error) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		return fn(ctx, pgRepos(tx))
	})
}

func pgRepos(db DBTX) Repos {
	return Repos{
		Users:         NewPgUserRepository(db),
		Sessions:      NewPgSessionRepository(db),
		Verifications: NewPgVerificationTokenRepository(db),
		Deletions:     NewPgDeletionTokenRepository(db),
		Subscriptions: NewPgSubscriptionRepository(db),
	}
}
