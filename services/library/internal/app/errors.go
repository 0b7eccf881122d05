package app

import (
	"errors"
	"strings"
)

var (
	// ErrInvalidCredentials covers unknown accounts, federated-only accounts and
	// wrong passwords alike so login never reveals which accounts exist.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrLoginDomain rejects password login outside the login allow-list.
	// Clients see the same message as ErrInvalidCredentials.
	ErrLoginDomain = errors.New("login domain not allowed")

	ErrDomainNotAllowed = errors.New("signup domain not allowed")
	ErrEmailExists      = errors.New("email already registered")
	ErrMissingFields    = errors.New("missing fields")

	ErrInvalidRefreshToken = errors.New("invalid refresh token")
	ErrUserNotFound        = errors.New("user not found")

	ErrBookNotFound = errors.New("book not found")
	ErrForbidden    = errors.New("forbidden")
	ErrInvalidPage  = errors.New("invalid page")

	// ErrInvalidTransition rejects moderation of a book that is not pending.
	ErrInvalidTransition = errors.New("book is not pending moderation")

	ErrUploadsDisabled   = errors.New("object storage not configured")
	ErrUnsupportedUpload = errors.New("unsupported upload type")
	ErrUploadTooLarge    = errors.New("upload too large")
)

// FieldError describes one rejected input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) add(field, message string) {
	e.Fields = append(e.Fields, FieldError{Field: field, Message: message})
}

// orNil returns e only when it holds at least one field error.
func (e *ValidationError) orNil() error {
	if e == nil || len(e.Fields) == 0 {
		return nil
	}
	return e
}
