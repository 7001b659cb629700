package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"civic-identity/internal/guard"
)

var (
	ErrConflict           = errors.New("email already registered")
	ErrTokenInvalid       = errors.New("token invalid")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrEmailNotVerified   = errors.New("email not verified")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNothingToCancel    = errors.New("nothing to cancel")
	ErrUserNotFound       = errors.New("user not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrCodeSpaceExhausted = errors.New("unique code space exhausted")
)

// RateLimitedError y SpamRejectedError los produce el guard; se reexportan para los llamadores del servicio.
type (
	RateLimitedError  = guard.RateLimitedError
	SpamRejectedError = guard.SpamRejectedError
)

// ValidationError lista errores corregibles por el cliente, por campo.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

var domainErrors = []error{
	ErrConflict,
	ErrTokenInvalid,
	ErrUnauthenticated,
	ErrEmailNotVerified,
	ErrInvalidCredentials,
	ErrNothingToCancel,
	ErrUserNotFound,
	ErrStorageUnavailable,
	ErrCodeSpaceExhausted,
}

// storageError envuelve fallos de infraestructura como ErrStorageUnavailable
// y deja pasar los errores de dominio tal cual.
func storageError(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	var validationErr *ValidationError
	if errors.As(err, &validationErr) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
}
