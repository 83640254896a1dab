package crypto

import (
	"crypto/subtle"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// Ошибки хеширования
var (
	ErrEmptySecret    = errors.New("secret cannot be empty")
	ErrSecretTooLong  = errors.New("secret exceeds maximum length of 72 bytes")
	ErrSecretMismatch = errors.New("secret does not match")
)

// DefaultCost - стоимость bcrypt для HashSecret
const DefaultCost = 12

// MaxSecretLength - ограничение bcrypt
const MaxSecretLength = 72

// HashSecret возвращает bcrypt хеш секрета (например DEBUG_PASSWORD).
// cost вне [bcrypt.MinCost, bcrypt.MaxCost] приводится к границе.
func HashSecret(secret string, cost int) (string, error) {
	if secret == "" {
		return "", ErrEmptySecret
	}
	if len(secret) > MaxSecretLength {
		return "", ErrSecretTooLong
	}

	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// IsHash - строка похожа на bcrypt хеш ($2a$, $2b$, $2y$)
func IsHash(s string) bool {
	if len(s) != 60 {
		return false
	}
	return strings.HasPrefix(s, "$2a$") || strings.HasPrefix(s, "$2b$") || strings.HasPrefix(s, "$2y$")
}

// VerifySecret сравнивает введенный секрет с ожидаемым.
// expected может быть bcrypt хешем или открытым значением:
// открытое значение сравнивается за постоянное время.
func VerifySecret(provided, expected string) error {
	if provided == "" || expected == "" {
		return ErrEmptySecret
	}

	if IsHash(expected) {
		if err := bcrypt.CompareHashAndPassword([]byte(expected), []byte(provided)); err != nil {
			return ErrSecretMismatch
		}
		return nil
	}

	if subtle.ConstantTimeCompare([]byte(provided), []byte(expected)) != 1 {
		return ErrSecretMismatch
	}
	return nil
}
