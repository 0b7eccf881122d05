package tokens

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/store"
)

const (
	refreshSecretBytes = 48

	DefaultRefreshTTL = 7 * 24 * time.Hour
)

// ErrInvalidRefreshToken covers unknown, expired and already-rotated secrets.
var ErrInvalidRefreshToken = errors.New("invalid refresh token")

// Service issues access tokens and manages the refresh token lifecycle.
type Service struct {
	access     *AccessTokens
	refresh    store.RefreshTokenStore
	refreshTTL time.Duration
	now        func() time.Time
}

type Option func(*Service)

// WithClock overrides the time source used for refresh expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(access *AccessTokens, refresh store.RefreshTokenStore, refreshTTL time.Duration, opts ...Option) *Service {
	if refreshTTL <= 0 {
		refreshTTL = DefaultRefreshTTL
	}
	s := &Service{
		access:     access,
		refresh:    refresh,
		refreshTTL: refreshTTL,
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Access exposes the access token signer, e.g. for the JWKS endpoint.
func (s *Service) Access() *AccessTokens {
	return s.access
}

func (s *Service) IssueAccess(u domain.User) (string, error) {
	token, _, err := s.access.Issue(IdentityOf(u))
	return token, err
}

func (s *Service) VerifyAccess(token string) (Identity, error) {
	return s.access.Verify(token)
}

// GenerateSecret returns a random refresh secret, hex encoded.
func GenerateSecret() (string, error) {
	buf := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// HashSecret is the lookup digest stored in place of a refresh secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// IssueRefresh persists a new refresh token for userID and returns its
// plaintext. The plaintext is not recoverable afterwards.
func (s *Service) IssueRefresh(ctx context.Context, userID string) (string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	row := domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: HashSecret(secret),
		ExpiresAt: now.Add(s.refreshTTL),
		CreatedAt: now,
	}
	if err := s.refresh.CreateRefreshToken(ctx, row); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return secret, nil
}

// VerifyRefresh returns the stored row matching (userID, secret). An expired
// match is deleted before ErrInvalidRefreshToken is returned.
func (s *Service) VerifyRefresh(ctx context.Context, userID, secret string) (domain.RefreshToken, error) {
	userID = strings.TrimSpace(userID)
	secret = strings.TrimSpace(secret)
	if userID == "" || secret == "" {
		return domain.RefreshToken{}, ErrInvalidRefreshToken
	}
	row, ok, err := s.refresh.FindRefreshToken(ctx, userID, HashSecret(secret))
	if err != nil {
		return domain.RefreshToken{}, fmt.Errorf("find refresh token: %w", err)
	}
	if !ok {
		return domain.RefreshToken{}, ErrInvalidRefreshToken
	}
	if row.Expired(s.now()) {
		if err := s.refresh.DeleteRefreshTokenByID(ctx, row.ID); err != nil {
			return domain.RefreshToken{}, fmt.Errorf("delete expired refresh token: %w", err)
		}
		return domain.RefreshToken{}, ErrInvalidRefreshToken
	}
	return row, nil
}

// RotateRefresh overwrites row's hash and expiry in place. Only one caller
// can rotate a given secret; the others get ErrInvalidRefreshToken.
func (s *Service) RotateRefresh(ctx context.Context, row domain.RefreshToken) (string, error) {
	secret, err := GenerateSecret()
	if err != nil {
		return "", err
	}
	expiresAt := s.now().UTC().Add(s.refreshTTL)
	ok, err := s.refresh.RotateRefreshToken(ctx, row.ID, row.TokenHash, HashSecret(secret), expiresAt)
	if err != nil {
		return "", fmt.Errorf("rotate refresh token: %w", err)
	}
	if !ok {
		return "", ErrInvalidRefreshToken
	}
	return secret, nil
}

// RevokeRefresh deletes the matching token. Unknown tokens are not an error.
func (s *Service) RevokeRefresh(ctx context.Context, userID, secret string) error {
	if _, err := s.refresh.DeleteRefreshToken(ctx, strings.TrimSpace(userID), HashSecret(strings.TrimSpace(secret))); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// PurgeExpired removes every expired refresh token and reports how many.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	n, err := s.refresh.DeleteExpiredRefreshTokens(ctx, s.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return n, nil
}
