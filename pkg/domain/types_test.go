package domain

import (
	"testing"
	"time"
)

func TestRefreshTokenExpiryBoundaryIsInclusive(t *testing.T) {
	exp := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tok := RefreshToken{ExpiresAt: exp}
	if tok.Expired(exp.Add(-time.Nanosecond)) {
		t.Fatalf("token should be valid just before expires_at")
	}
	if !tok.Expired(exp) {
		t.Fatalf("token should be expired at exactly expires_at")
	}
	if !tok.Expired(exp.Add(time.Second)) {
		t.Fatalf("token should be expired after expires_at")
	}
}
