package service

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// PaymentsIssuer es el issuer que deben llevar los callbacks del sistema de pagos.
const PaymentsIssuer = "payments"

var (
	ErrPaymentTokenInvalid = errors.New("payment token invalid")
	ErrPaymentTokenExpired = errors.New("payment token expired")
)

// PaymentClaims son los claims de un callback firmado por el sistema de pagos.
type PaymentClaims struct {
	jwt.RegisteredClaims
}

// PaymentTokenVerifier valida los JWT HS256 con los que el sistema de pagos
// se autentica al invocar el callback de founder.
type PaymentTokenVerifier struct {
	secret []byte
	issuer string
}

func NewPaymentTokenVerifier(secret string) *PaymentTokenVerifier {
	return &PaymentTokenVerifier{
		secret: []byte(secret),
		issuer: PaymentsIssuer,
	}
}

// Enabled indica si hay un secreto configurado. Sin secreto todo token se rechaza.
func (v *PaymentTokenVerifier) Enabled() bool {
	return v != nil && len(v.secret) > 0
}

// Sign emite un token de callback. Lo usan los tests y las herramientas de operacion.
func (v *PaymentTokenVerifier) Sign(ttl time.Duration) (string, error) {
	if !v.Enabled() {
		return "", ErrPaymentTokenInvalid
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	now := time.Now().UTC()
	claims := PaymentClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    v.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *PaymentTokenVerifier) Verify(tokenString string) (PaymentClaims, error) {
	if !v.Enabled() {
		return PaymentClaims{}, ErrPaymentTokenInvalid
	}
	if strings.TrimSpace(tokenString) == "" {
		return PaymentClaims{}, ErrPaymentTokenInvalid
	}
	var claims PaymentClaims
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(v.issuer),
		jwt.WithExpirationRequired(),
	)
	_, err := parser.ParseWithClaims(tokenString, &claims, func(_ *jwt.Token) (any, error) {
		return v.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return PaymentClaims{}, ErrPaymentTokenExpired
		}
		return PaymentClaims{}, ErrPaymentTokenInvalid
	}
	return claims, nil
}
