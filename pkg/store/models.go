package store

import "time"

// GORM models used for persistence.
type UserModel struct {
	ID           string    `gorm:"primaryKey;size:36"`
	Email        string    `gorm:"uniqueIndex;size:255;not null"`
	Name         string    `gorm:"size:255;not null"`
	PasswordHash string    `gorm:"size:255"`
	Provider     string    `gorm:"size:16;not null;default:local"`
	Role         string    `gorm:"size:16;not null;default:USUARIO"`
	PhotoURL     string    `gorm:"size:255"`
	CreatedAt    time.Time `gorm:"not null"`
	UpdatedAt    time.Time `gorm:"not null"`
}

func (UserModel) TableName() string { return "users" }

type RefreshTokenModel struct {
	ID        string    `gorm:"primaryKey;size:36"`
	UserID    string    `gorm:"size:36;not null;index"`
	TokenHash string    `gorm:"size:64;not null;uniqueIndex"`
	ExpiresAt time.Time `gorm:"not null;index"`
	CreatedAt time.Time `gorm:"not null"`
}

func (RefreshTokenModel) TableName() string { return "refresh_tokens" }

type BookModel struct {
	ID          string     `gorm:"primaryKey;size:36"`
	AuthorID    string     `gorm:"size:36;not null;index"`
	Title       string     `gorm:"size:255;not null"`
	Description string     `gorm:"size:800"`
	CoverURL    string     `gorm:"size:1024"`
	ContentType string     `gorm:"size:8;not null;default:TEXT"`
	ContentURL  string     `gorm:"size:1024"`
	Status      string     `gorm:"size:16;not null;default:PENDING;index"`
	ApprovedBy  *string    `gorm:"size:36"`
	ApprovedAt  *time.Time `gorm:"default:null"`
	CreatedAt   time.Time  `gorm:"not null"`
	UpdatedAt   time.Time  `gorm:"not null;index"`
}

func (BookModel) TableName() string { return "books" }

type BookPageModel struct {
	BookID     string `gorm:"primaryKey;size:36"`
	PageNumber int    `gorm:"primaryKey;autoIncrement:false"`
	Text       string `gorm:"type:text;not null"`
}

func (BookPageModel) TableName() string { return "book_pages" }

// bookRow is a book joined with its author's display name.
type bookRow struct {
	BookModel
	AuthorName string
}
