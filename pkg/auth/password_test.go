package auth

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHashPasswordAndCheckPasswordBcrypt(t *testing.T) {
	hash, err := HashPasswordWithCost("s3cret", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if hash == "" {
		t.Fatalf("expected non-empty hash")
	}
	if !CheckPassword("s3cret", hash) {
		t.Fatalf("expected bcrypt password check to pass")
	}
	if CheckPassword("wrong", hash) {
		t.Fatalf("expected bcrypt password check to fail")
	}
}

func TestHashPasswordUsesDefaultCost(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	cost, err := bcrypt.Cost([]byte(hash))
	if err != nil {
		t.Fatalf("read cost: %v", err)
	}
	if cost != DefaultPasswordCost {
		t.Fatalf("unexpected cost: got %d want %d", cost, DefaultPasswordCost)
	}
}

func TestCheckPasswordRejectsEmptyHash(t *testing.T) {
	if CheckPassword("anything", "") {
		t.Fatalf("federated accounts without a hash must never match")
	}
}

func TestLongPasswordsHashAndCompareInFull(t *testing.T) {
	long := strings.Repeat("p", 80)
	hash, err := HashPasswordWithCost(long, bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash 80-byte password: %v", err)
	}
	if !CheckPassword(long, hash) {
		t.Fatalf("expected long password to match its hash")
	}
	// Differs only after byte 72, which plain bcrypt would ignore.
	if CheckPassword(strings.Repeat("p", 79)+"q", hash) {
		t.Fatalf("bytes past 72 must still be compared")
	}
	if CheckPassword(long[:maxBcryptInput], hash) {
		t.Fatalf("a 72-byte prefix must not match the long password")
	}
}
