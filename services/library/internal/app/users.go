package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Mirko-ez/biblioteca-backend/pkg/auth"
	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
)

type UpdateProfileInput struct {
	Name     *string `json:"name"`
	PhotoURL *string `json:"photo_url" validate:"omitempty,max=255"`
}

// UpdateProfile edits the caller's own name and avatar. An empty photo_url
// clears the avatar.
func (a *App) UpdateProfile(ctx context.Context, who tokens.Identity, in UpdateProfileInput) (domain.User, error) {
	verr := &ValidationError{}
	if in.Name != nil && !auth.IsValidName(*in.Name) {
		verr.add("name", msgInvalidName)
	}
	if err := validateStruct(&in); err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			return domain.User{}, err
		}
		verr.Fields = append(verr.Fields, ve.Fields...)
	}
	if err := verr.orNil(); err != nil {
		return domain.User{}, err
	}

	user, ok, err := a.store.GetUserByID(ctx, who.UserID)
	if err != nil {
		return domain.User{}, fmt.Errorf("get user: %w", err)
	}
	if !ok {
		return domain.User{}, ErrUserNotFound
	}
	if in.Name == nil && in.PhotoURL == nil {
		return user, nil
	}
	if in.Name != nil {
		user.Name = strings.TrimSpace(*in.Name)
	}
	if in.PhotoURL != nil {
		user.PhotoURL = strings.TrimSpace(*in.PhotoURL)
	}
	user.UpdatedAt = a.now().UTC()
	if err := a.store.SaveUser(ctx, user); err != nil {
		return domain.User{}, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}
