package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// SecretSize размер случайного секрета устройства в байтах
const SecretSize = 32

// ErrSecretMismatch секрет не совпадает с сохранённым хешем
var ErrSecretMismatch = errors.New("secret does not match")

// GenerateSecret создает случайный секрет устройства (base64url, SecretSize байт)
func GenerateSecret() (string, error) {
	buf := make([]byte, SecretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate random secret: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashSecret хеширует секрет устройства bcrypt'ом для хранения на сервере
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", fmt.Errorf("secret cannot be empty")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash secret: %w", err)
	}
	return string(hash), nil
}

// VerifySecret проверяет секрет по сохранённому хешу
func VerifySecret(secret, hash string) error {
	if secret == "" {
		return fmt.Errorf("secret cannot be empty")
	}
	if hash == "" {
		return fmt.Errorf("hashed secret cannot be empty")
	}

	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return ErrSecretMismatch
	}
	if err != nil {
		return fmt.Errorf("failed to verify secret: %w", err)
	}
	return nil
}
