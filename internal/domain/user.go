package domain

import "time"

// User es el registro de identidad de un ciudadano registrado.
// Nunca se borra fisicamente: la baja desactiva la fila y altera email y codigo fiscal.
type User struct {
	ID                  string     `json:"id"`
	Email               string     `json:"email"`
	PasswordHash        string     `json:"-"`
	FirstName           string     `json:"first_name"`
	LastName            string     `json:"last_name"`
	FiscalCode          string     `json:"fiscal_code,omitempty"`
	UniqueCode          string     `json:"unique_code"`
	EmailVerified       bool       `json:"email_verified"`
	IsActive            bool       `json:"is_active"`
	IsFounder           bool       `json:"is_founder"`
	FounderSince        *time.Time `json:"founder_since,omitempty"`
	DeletionRequestedAt *time.Time `json:"deletion_requested_at,omitempty"`
	DeletionConfirmedAt *time.Time `json:"deletion_confirmed_at,omitempty"`
	DeletionReason      string     `json:"deletion_reason,omitempty"`
	CreatedAt           time.Time  `json:"created_at"`
}

// AccountState deriva el estado del flujo de baja a partir de los timestamps.
type AccountState string

const (
	AccountActive            AccountState = "active"
	AccountDeletionRequested AccountState = "deletion_requested"
	AccountDeleted           AccountState = "deleted"
)

func (u User) State() AccountState {
	switch {
	case !u.IsActive || u.DeletionConfirmedAt != nil:
		return AccountDeleted
	case u.DeletionRequestedAt != nil:
		return AccountDeletionRequested
	default:
		return AccountActive
	}
}
