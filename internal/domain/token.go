package domain

import "time"

// EmailVerificationToken prueba el control de la direccion de correo. Uso unico.
type EmailVerificationToken struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// AccountDeletionToken confirma una solicitud de baja. Uso unico.
type AccountDeletionToken struct {
	Token     string    `json:"-"`
	UserID    string    `json:"user_id"`
	Reason    string    `json:"reason,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at"`
}

// Subscription es la vista minima de una suscripcion de pago.
type Subscription struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	Status      string     `json:"status"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

const (
	SubscriptionActive    = "active"
	SubscriptionCancelled = "cancelled"
)
