package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultPasswordCost is the minimum bcrypt cost accepted for stored credentials.
const DefaultPasswordCost = 12

// maxBcryptInput is the longest input bcrypt accepts.
const maxBcryptInput = 72

// HashPassword returns a bcrypt hash using DefaultPasswordCost.
func HashPassword(password string) (string, error) {
	return HashPasswordWithCost(password, DefaultPasswordCost)
}

// HashPasswordWithCost returns a bcrypt hash with an explicit cost.
// A non-positive cost falls back to DefaultPasswordCost.
func HashPasswordWithCost(password string, cost int) (string, error) {
	if cost <= 0 {
		cost = DefaultPasswordCost
	}
	hash, err := bcrypt.GenerateFromPassword(bcryptInput(password), cost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword validates a password against a bcrypt hash.
func CheckPassword(password, stored string) bool {
	if stored == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), bcryptInput(password)) == nil
}

// bcryptInput passes passwords up to 72 bytes through unchanged. Longer ones
// are reduced to the base64 sha256 digest (44 bytes) so every byte counts.
func bcryptInput(password string) []byte {
	if len(password) <= maxBcryptInput {
		return []byte(password)
	}
	sum := sha256.Sum256([]byte(password))
	return []byte(base64.StdEncoding.EncodeToString(sum[:]))
}
