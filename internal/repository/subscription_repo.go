package repository

import (
	"context"
	"time"
)

// SubscriptionRepository expone lo unico que el nucleo de identidad toca de las suscripciones.
type SubscriptionRepository interface {
	CancelActiveByUser(ctx context.Context, userID string, at time.Time) (int64, error)
}

type PgSubscriptionRepository struct {
	db DBTX
}

func NewPgSubscriptionRepository(db DBTX) *PgSubscriptionRepository {
	return &PgSubscriptionRepository{db: db}
}

func (r *PgSubscriptionRepository) CancelActiveByUser(ctx context.Context, userID string, at time.Time) (int64, error) {
	const query = `
		UPDATE subscriptions
		SET status = 'cancelled', cancelled_at = $2
		WHERE user_id = $1 AND status <> 'cancelled'
	`
	tag, err := r.db.Exec(ctx, query, userID, at)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
