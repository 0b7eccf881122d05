package app

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
)

func TestUpdateProfile(t *testing.T) {
	a, mem := newTestApp(t)
	ctx := context.Background()
	s := registerAna(t, a)
	who := tokens.IdentityOf(s.User)

	u, err := a.UpdateProfile(ctx, who, UpdateProfileInput{Name: strPtr(" Ana María "), PhotoURL: strPtr("https://img/a.png")})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if u.Name != "Ana María" || u.PhotoURL != "https://img/a.png" {
		t.Fatalf("unexpected user: %+v", u)
	}

	u, err = a.UpdateProfile(ctx, who, UpdateProfileInput{})
	if err != nil || u.Name != "Ana María" {
		t.Fatalf("empty update should return the current user: %+v err=%v", u, err)
	}

	if _, err := a.UpdateProfile(ctx, who, UpdateProfileInput{PhotoURL: strPtr("")}); err != nil {
		t.Fatalf("clear photo: %v", err)
	}
	stored, _, _ := mem.GetUserByID(ctx, s.User.ID)
	if stored.PhotoURL != "" || stored.Email != "ana@gmail.com" || stored.PasswordHash == "" {
		t.Fatalf("unexpected stored user: %+v", stored)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	a, _ := newTestApp(t)
	s := registerAna(t, a)
	who := tokens.IdentityOf(s.User)
	_, err := a.UpdateProfile(context.Background(), who, UpdateProfileInput{Name: strPtr("Al"), PhotoURL: strPtr(strings.Repeat("p", 256))})
	var verr *ValidationError
	if !errors.As(err, &verr) || len(verr.Fields) != 2 {
		t.Fatalf("expected two field errors, got %v", err)
	}
	if verr.Fields[0].Field != "name" || verr.Fields[0].Message != msgInvalidName {
		t.Fatalf("unexpected first field: %+v", verr.Fields[0])
	}

	if _, err := a.UpdateProfile(context.Background(), tokens.Identity{UserID: "ghost"}, UpdateProfileInput{}); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected user not found, got %v", err)
	}
}
