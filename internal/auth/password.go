package auth

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// HashPassword produces a bcrypt hash for storage on a principal record.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("%w: password is empty", ErrInvalidInput)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifyPassword checks a plaintext password against the principal's
// stored bcrypt hash. An empty stored hash marks an invited principal
// that has not activated yet; it fails the same way a wrong password
// does, so activation state is not observable through login.
func VerifyPassword(hash, password string) error {
	if hash == "" || password == "" {
		return ErrUnauthenticated
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrUnauthenticated
	}
	return nil
}
