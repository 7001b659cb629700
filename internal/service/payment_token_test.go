package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestPaymentTokenVerifier_SignVerify(t *testing.T) {
	v := NewPaymentTokenVerifier("secret")
	token, err := v.Sign(time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	claims, err := v.Verify(token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if claims.Issuer != PaymentsIssuer || claims.ID == "" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
}

func TestPaymentTokenVerifier_RejectsWrongSecret(t *testing.T) {
	token, err := NewPaymentTokenVerifier("other").Sign(time.Minute)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewPaymentTokenVerifier("secret").Verify(token); !errors.Is(err, ErrPaymentTokenInvalid) {
		t.Fatalf("expected ErrPaymentTokenInvalid, got %v", err)
	}
}

func TestPaymentTokenVerifier_RejectsWrongIssuer(t *testing.T) {
	now := time.Now().UTC()
	claims := PaymentClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    "someone-else",
		ExpiresAt: jwt.NewNumericDate(now.Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewPaymentTokenVerifier("secret").Verify(token); !errors.Is(err, ErrPaymentTokenInvalid) {
		t.Fatalf("expected ErrPaymentTokenInvalid, got %v", err)
	}
}

func TestPaymentTokenVerifier_Expired(t *testing.T) {
	past := time.Now().UTC().Add(-time.Hour)
	claims := PaymentClaims{RegisteredClaims: jwt.RegisteredClaims{
		Issuer:    PaymentsIssuer,
		IssuedAt:  jwt.NewNumericDate(past),
		ExpiresAt: jwt.NewNumericDate(past.Add(time.Minute)),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := NewPaymentTokenVerifier("secret").Verify(token); !errors.Is(err, ErrPaymentTokenExpired) {
		t.Fatalf("expected ErrPaymentTokenExpired, got %v", err)
	}
}

func TestPaymentTokenVerifier_DisabledWithoutSecret(t *testing.T) {
	v := NewPaymentTokenVerifier("")
	if v.Enabled() {
		t.Fatalf("expected verifier disabled")
	}
	if _, err := v.Sign(time.Minute); !errors.Is(err, ErrPaymentTokenInvalid) {
		t.Fatalf("expected ErrPaymentTokenInvalid on sign, got %v", err)
	}
	if _, err := v.Verify("anything"); !errors.Is(err, ErrPaymentTokenInvalid) {
		t.Fatalf("expected ErrPaymentTokenInvalid on verify, got %v", err)
	}
}
