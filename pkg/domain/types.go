package domain

import "time"

type UserRole string

const (
	RoleUser      UserRole = "USUARIO"
	RoleAuthor    UserRole = "AUTOR"
	RoleLibrarian UserRole = "BIBLIOTECARIO"
	RoleAdmin     UserRole = "ADMIN"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	switch r {
	case RoleUser, RoleAuthor, RoleLibrarian, RoleAdmin:
		return true
	default:
		return false
	}
}

type Provider string

const (
	ProviderLocal  Provider = "local"
	ProviderGoogle Provider = "google"
)

type BookStatus string

const (
	StatusPending  BookStatus = "PENDING"
	StatusApproved BookStatus = "APPROVED"
	StatusRejected BookStatus = "REJECTED"
)

type ContentType string

const (
	ContentText ContentType = "TEXT"
	ContentPDF  ContentType = "PDF"
	ContentDOCX ContentType = "DOCX"
)

func (c ContentType) Valid() bool {
	switch c {
	case ContentText, ContentPDF, ContentDOCX:
		return true
	default:
		return false
	}
}

// ObjectRefScheme prefixes content references that point at the object store
// rather than at an external URL.
const ObjectRefScheme = "object://"

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	Provider     Provider  `json:"provider"`
	Role         UserRole  `json:"role"`
	PhotoURL     string    `json:"photo_url"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HasPassword is false for accounts created through federated sign-in.
func (u User) HasPassword() bool {
	return u.PasswordHash != ""
}

type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
}

// Expired reports whether the token is past its lifetime. The boundary is
// inclusive: a token is already expired at exactly ExpiresAt.
func (t RefreshToken) Expired(now time.Time) bool {
	return !now.Before(t.ExpiresAt)
}

type Book struct {
	ID          string      `json:"id"`
	AuthorID    string      `json:"author_id"`
	AuthorName  string      `json:"author_name,omitempty"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	CoverURL    string      `json:"cover_url"`
	ContentType ContentType `json:"content_type"`
	ContentURL  string      `json:"content_url"`
	Status      BookStatus  `json:"status"`
	ApprovedBy  *string     `json:"approved_by"`
	ApprovedAt  *time.Time  `json:"approved_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

type BookPage struct {
	BookID     string `json:"book_id"`
	PageNumber int    `json:"page_number"`
	Text       string `json:"text"`
}
