package security

import (
	"crypto/rand"
	"encoding/base64"
	"math/big"
)

// UniqueCodeAlphabet son mayusculas y digitos sin I ni O, confundibles con 1 y 0.
const UniqueCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ0123456789"

const (
	UniqueCodeLength = 8
	tokenBytes       = 32
)

// TokenGenerator produce identificadores opacos. La unicidad la garantiza el store.
type TokenGenerator interface {
	Token() (string, error)
	UniqueCode() (string, error)
}

// RandomTokenGenerator usa crypto/rand.
type RandomTokenGenerator struct{}

func NewRandomTokenGenerator() RandomTokenGenerator {
	return RandomTokenGenerator{}
}

// Token devuelve 256 bits aleatorios en base64url sin padding.
func (RandomTokenGenerator) Token() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func (RandomTokenGenerator) UniqueCode() (string, error) {
	max := big.NewInt(int64(len(UniqueCodeAlphabet)))
	code := make([]byte, UniqueCodeLength)
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = UniqueCodeAlphabet[n.Int64()]
	}
	return string(code), nil
}

// IsUniqueCode valida forma y alfabeto de un codigo publico.
func IsUniqueCode(code string) bool {
	if len(code) != UniqueCodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if !containsByte(UniqueCodeAlphabet, code[i]) {
			return false
		}
	}
	return true
}

func containsByte(s string, b byte) bool {
	for i := 0; i < len(s); i++ {
		if s[i] == b {
			return true
		}
	}
	return false
}
