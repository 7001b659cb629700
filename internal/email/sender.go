package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para el envio de avisos de cuenta.
type Sender interface {
	SendVerification(ctx context.Context, toEmail, token string, expiresAt time.Time) error
	SendDeletionConfirmation(ctx context.Context, toEmail, token string, expiresAt time.Time) error
	SendFounderReceipt(ctx context.Context, toEmail, firstName string) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) err() error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}

func (s *disabledSender) SendVerification(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendDeletionConfirmation(_ context.Context, _, _ string, _ time.Time) error {
	return s.err()
}

func (s *disabledSender) SendFounderReceipt(_ context.Context, _, _ string) error {
	return s.err()
}
