package tokens

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/store"
)

var hexSecret = regexp.MustCompile(`^[0-9a-f]{96}$`)

func newTestService(t *testing.T, opts ...Option) (*Service, *store.MemoryStore) {
	t.Helper()
	access, err := NewHS256(testSecret, Options{})
	if err != nil {
		t.Fatalf("new access tokens: %v", err)
	}
	mem := store.NewMemoryStore()
	return NewService(access, mem, time.Hour, opts...), mem
}

func TestIssueRefreshReturnsHexSecretAndStoresOnlyHash(t *testing.T) {
	svc, mem := newTestService(t)
	ctx := context.Background()
	secret, err := svc.IssueRefresh(ctx, "user-1")
	if err != nil {
		t.Fatalf("issue refresh: %v", err)
	}
	if !hexSecret.MatchString(secret) {
		t.Fatalf("expected 96 hex chars, got %q", secret)
	}
	if _, ok, _ := mem.FindRefreshToken(ctx, "user-1", secret); ok {
		t.Fatalf("plaintext secret must not be stored")
	}
	if _, ok, _ := mem.FindRefreshToken(ctx, "user-1", HashSecret(secret)); !ok {
		t.Fatalf("expected hashed secret to be stored")
	}
}

func TestVerifyRefreshIsBoundToUser(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	secret, _ := svc.IssueRefresh(ctx, "user-1")
	if _, err := svc.VerifyRefresh(ctx, "user-2", secret); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected other user to be rejected, got %v", err)
	}
	row, err := svc.VerifyRefresh(ctx, "user-1", secret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if row.UserID != "user-1" {
		t.Fatalf("unexpected row: %+v", row)
	}
}

func TestRotateInvalidatesPreviousSecret(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	secret, _ := svc.IssueRefresh(ctx, "user-1")
	row, err := svc.VerifyRefresh(ctx, "user-1", secret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	next, err := svc.RotateRefresh(ctx, row)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if next == secret || !hexSecret.MatchString(next) {
		t.Fatalf("unexpected rotated secret %q", next)
	}
	if _, err := svc.VerifyRefresh(ctx, "user-1", secret); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("pre-rotation secret must fail, got %v", err)
	}
	rotated, err := svc.VerifyRefresh(ctx, "user-1", next)
	if err != nil {
		t.Fatalf("verify rotated: %v", err)
	}
	if rotated.ID != row.ID {
		t.Fatalf("rotation must update the same row: %q != %q", rotated.ID, row.ID)
	}
}

func TestConcurrentRotationHasSingleWinner(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	secret, _ := svc.IssueRefresh(ctx, "user-1")
	row, err := svc.VerifyRefresh(ctx, "user-1", secret)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}

	const workers = 4
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := svc.RotateRefresh(ctx, row)
			errs <- err
		}()
	}
	close(start)
	wg.Wait()
	close(errs)

	successes, lost := 0, 0
	for err := range errs {
		switch {
		case err == nil:
			successes++
		case errors.Is(err, ErrInvalidRefreshToken):
			lost++
		default:
			t.Fatalf("unexpected rotate error: %v", err)
		}
	}
	if successes != 1 || lost != workers-1 {
		t.Fatalf("expected one winner, got successes=%d lost=%d", successes, lost)
	}
}

func TestVerifyRefreshDeletesExpiredRow(t *testing.T) {
	now := time.Now()
	svc, mem := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	secret, _ := svc.IssueRefresh(ctx, "user-1")

	now = now.Add(2 * time.Hour)
	if _, err := svc.VerifyRefresh(ctx, "user-1", secret); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
	if _, ok, _ := mem.FindRefreshToken(ctx, "user-1", HashSecret(secret)); ok {
		t.Fatalf("expired row should be deleted on verification")
	}
}

func TestRevokeRefreshIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	secret, _ := svc.IssueRefresh(ctx, "user-1")
	for i := 0; i < 2; i++ {
		if err := svc.RevokeRefresh(ctx, "user-1", secret); err != nil {
			t.Fatalf("revoke #%d: %v", i+1, err)
		}
	}
	if _, err := svc.VerifyRefresh(ctx, "user-1", secret); !errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("revoked token must fail verification, got %v", err)
	}
}

func TestPurgeExpired(t *testing.T) {
	now := time.Now()
	svc, _ := newTestService(t, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	_, _ = svc.IssueRefresh(ctx, "user-1")
	_, _ = svc.IssueRefresh(ctx, "user-2")
	now = now.Add(2 * time.Hour)
	live, _ := svc.IssueRefresh(ctx, "user-3")

	n, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected 2 purged rows, got %d", n)
	}
	if _, err := svc.VerifyRefresh(ctx, "user-3", live); err != nil {
		t.Fatalf("live token should survive purge: %v", err)
	}
}

type failingRefreshStore struct {
	store.RefreshTokenStore
}

func (failingRefreshStore) CreateRefreshToken(context.Context, domain.RefreshToken) error {
	return errors.New("db down")
}

func TestIssueRefreshWrapsStorageErrors(t *testing.T) {
	access, _ := NewHS256(testSecret, Options{})
	svc := NewService(access, failingRefreshStore{}, 0)
	_, err := svc.IssueRefresh(context.Background(), "user-1")
	if err == nil || errors.Is(err, ErrInvalidRefreshToken) {
		t.Fatalf("expected storage failure, got %v", err)
	}
}
