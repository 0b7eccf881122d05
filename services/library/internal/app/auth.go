package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/Mirko-ez/biblioteca-backend/pkg/auth"
	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/store"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
)

// Session is an access token plus refresh secret issued to a user.
type Session struct {
	Token        string      `json:"token"`
	RefreshToken string      `json:"refresh_token"`
	User         domain.User `json:"user"`
}

type RegisterInput struct {
	Name     string
	Email    string
	Password string
	Role     domain.UserRole
}

// Register creates a local account and signs it in.
func (a *App) Register(ctx context.Context, in RegisterInput) (Session, error) {
	name := strings.TrimSpace(in.Name)
	email := auth.NormalizeEmail(in.Email)
	role := domain.UserRole(strings.TrimSpace(string(in.Role)))

	verr := &ValidationError{}
	if !auth.IsValidName(name) {
		verr.add("name", msgInvalidName)
	}
	if !auth.IsValidEmail(email) {
		verr.add("email", msgInvalidEmail)
	}
	if !auth.IsValidPassword(in.Password) {
		verr.add("password", msgWeakPassword)
	}
	if role == "" {
		role = domain.RoleUser
	} else if !domain.IsSignupRole(role) {
		verr.add("role", msgInvalidRole)
	}
	if err := verr.orNil(); err != nil {
		return Session{}, err
	}
	if !auth.IsAllowedSignupDomain(email) {
		return Session{}, ErrDomainNotAllowed
	}

	if _, exists, err := a.store.GetUserByEmail(ctx, email); err != nil {
		return Session{}, fmt.Errorf("check email: %w", err)
	} else if exists {
		return Session{}, ErrEmailExists
	}
	hash, err := auth.HashPasswordWithCost(in.Password, a.passwordCost)
	if err != nil {
		return Session{}, err
	}
	now := a.now().UTC()
	user := domain.User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		Provider:     domain.ProviderLocal,
		Role:         role,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := a.store.CreateUser(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			return Session{}, ErrEmailExists
		}
		return Session{}, fmt.Errorf("create user: %w", err)
	}
	return a.issueSession(ctx, user)
}

// Login authenticates a local account by password.
func (a *App) Login(ctx context.Context, email, password string) (Session, error) {
	email = auth.NormalizeEmail(email)
	verr := &ValidationError{}
	if !auth.IsValidEmail(email) {
		verr.add("email", msgInvalidEmail)
	}
	if password == "" {
		verr.add("password", msgPasswordMissing)
	}
	if err := verr.orNil(); err != nil {
		return Session{}, err
	}
	if !auth.IsGmailOnly(email) {
		return Session{}, ErrLoginDomain
	}

	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	if !ok || !user.HasPassword() || !auth.CheckPassword(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}
	return a.issueSession(ctx, user)
}

type GoogleInput struct {
	Email    string
	Name     string
	PhotoURL string
}

// GoogleSignIn signs in with a client-asserted Google profile, creating or
// linking the account as needed. The assertion is not verified server-side.
func (a *App) GoogleSignIn(ctx context.Context, in GoogleInput) (Session, error) {
	email := auth.NormalizeEmail(in.Email)
	name := strings.TrimSpace(in.Name)
	photo := strings.TrimSpace(in.PhotoURL)

	verr := &ValidationError{}
	if !auth.IsValidEmail(email) {
		verr.add("email", msgInvalidEmail)
	}
	if !auth.IsValidName(name) {
		verr.add("name", msgInvalidName)
	}
	if err := verr.orNil(); err != nil {
		return Session{}, err
	}

	user, ok, err := a.store.GetUserByEmail(ctx, email)
	if err != nil {
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	now := a.now().UTC()
	switch {
	case !ok:
		user = domain.User{
			ID:        uuid.NewString(),
			Email:     email,
			Name:      name,
			Provider:  domain.ProviderGoogle,
			Role:      domain.RoleUser,
			PhotoURL:  photo,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := a.store.CreateUser(ctx, user); err != nil {
			if !errors.Is(err, store.ErrDuplicateEmail) {
				return Session{}, fmt.Errorf("create user: %w", err)
			}
			// Lost a race with a concurrent first sign-in for the same email.
			user, ok, err = a.store.GetUserByEmail(ctx, email)
			if err != nil {
				return Session{}, fmt.Errorf("get user: %w", err)
			}
			if !ok {
				return Session{}, ErrUserNotFound
			}
		}
	case user.Provider != domain.ProviderGoogle:
		user.Provider = domain.ProviderGoogle
		if photo != "" {
			user.PhotoURL = photo
		}
		user.UpdatedAt = now
		if err := a.store.SaveUser(ctx, user); err != nil {
			return Session{}, fmt.Errorf("link google account: %w", err)
		}
	}
	return a.issueSession(ctx, user)
}

// Refresh exchanges a refresh secret for a new pair. The access token reflects
// the user's current record, not the one at original sign-in.
func (a *App) Refresh(ctx context.Context, userID, secret string) (Session, error) {
	userID = strings.TrimSpace(userID)
	secret = strings.TrimSpace(secret)
	if userID == "" || secret == "" {
		return Session{}, ErrMissingFields
	}
	row, err := a.tokens.VerifyRefresh(ctx, userID, secret)
	if err != nil {
		return Session{}, mapRefreshErr(err)
	}
	user, ok, err := a.store.GetUserByID(ctx, userID)
	if err != nil {
		return Session{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return Session{}, ErrUserNotFound
	}
	next, err := a.tokens.RotateRefresh(ctx, row)
	if err != nil {
		return Session{}, mapRefreshErr(err)
	}
	access, err := a.tokens.IssueAccess(user)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: access, RefreshToken: next, User: user}, nil
}

// Logout revokes a refresh secret. Unknown secrets succeed silently.
func (a *App) Logout(ctx context.Context, userID, secret string) error {
	userID = strings.TrimSpace(userID)
	secret = strings.TrimSpace(secret)
	if userID == "" || secret == "" {
		return ErrMissingFields
	}
	return a.tokens.RevokeRefresh(ctx, userID, secret)
}

// Authenticate verifies an access token.
func (a *App) Authenticate(token string) (tokens.Identity, error) {
	return a.tokens.VerifyAccess(token)
}

func (a *App) issueSession(ctx context.Context, user domain.User) (Session, error) {
	access, err := a.tokens.IssueAccess(user)
	if err != nil {
		return Session{}, err
	}
	refresh, err := a.tokens.IssueRefresh(ctx, user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: access, RefreshToken: refresh, User: user}, nil
}

func mapRefreshErr(err error) error {
	if errors.Is(err, tokens.ErrInvalidRefreshToken) {
		return ErrInvalidRefreshToken
	}
	return err
}
