package store

import (
	"context"
	"errors"
	"time"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
)

// ErrDuplicateEmail is returned when a user insert collides on email.
var ErrDuplicateEmail = errors.New("email already registered")

// BookFilter narrows ListBooks. Zero values mean "no constraint".
type BookFilter struct {
	Status        domain.BookStatus
	AuthorID      string
	TitleContains string
	OldestFirst   bool
	Limit         int
	Offset        int
}

// UserStore persists identity records.
type UserStore interface {
	CreateUser(ctx context.Context, u domain.User) error
	SaveUser(ctx context.Context, u domain.User) error
	GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error)
	GetUserByID(ctx context.Context, id string) (domain.User, bool, error)
}

// BookStore persists books and their text pages.
type BookStore interface {
	// CreateBook inserts the book and its pages atomically.
	CreateBook(ctx context.Context, b domain.Book, pages []domain.BookPage) error
	// UpdateBook overwrites the mutable columns of b. When replacePages is
	// set, existing pages are deleted and pages inserted in the same transaction.
	UpdateBook(ctx context.Context, b domain.Book, pages []domain.BookPage, replacePages bool) error
	GetBook(ctx context.Context, id string) (domain.Book, bool, error)
	ListBooks(ctx context.Context, filter BookFilter) ([]domain.Book, error)
	ListPages(ctx context.Context, bookID string) ([]domain.BookPage, error)
	DeleteBook(ctx context.Context, id string) error
}

// RefreshTokenStore persists hashed refresh tokens. Plaintext secrets never
// reach this layer.
type RefreshTokenStore interface {
	CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error
	FindRefreshToken(ctx context.Context, userID, tokenHash string) (domain.RefreshToken, bool, error)
	// RotateRefreshToken overwrites hash and expiry of row id only while its
	// hash still equals oldHash. It reports whether the row was updated.
	RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error)
	DeleteRefreshTokenByID(ctx context.Context, id string) error
	DeleteRefreshToken(ctx context.Context, userID, tokenHash string) (int64, error)
	DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

// Store is the full persistence surface used by the library service.
type Store interface {
	UserStore
	BookStore
	RefreshTokenStore
}
