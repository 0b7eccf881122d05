package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
)

const (
	migrateLockID   int64 = 51810427
	migrateLockName       = "biblioteca_migrate"

	pageInsertBatch = 200
)

// GormOptions configures the relational store.
type GormOptions struct {
	Driver          string
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	SlowThreshold   time.Duration
}

// GormStore implements Store using GORM over Postgres or MySQL.
type GormStore struct {
	db     *gorm.DB
	driver string
}

var _ Store = (*GormStore)(nil)

// NewGormStore opens the database. Schema changes are applied by Migrate.
func NewGormStore(opts GormOptions) (*GormStore, error) {
	dialector, driver, err := dialectorFor(opts.Driver, opts.DSN)
	if err != nil {
		return nil, err
	}
	slow := opts.SlowThreshold
	if slow <= 0 {
		slow = time.Second
	}
	gormLog := gormlogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormlogger.Config{
			SlowThreshold:             slow,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog, TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(opts.ConnMaxLifetime)
	}
	return &GormStore{db: db, driver: driver}, nil
}

func dialectorFor(driver, dsn string) (gorm.Dialector, string, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, "", errors.New("database dsn is required")
	}
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "postgresql":
		return postgres.Open(dsn), "postgres", nil
	case "mysql":
		return mysql.Open(dsn), "mysql", nil
	default:
		return nil, "", fmt.Errorf("unsupported database driver %q", driver)
	}
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks database connectivity.
func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Migrate creates or updates the schema while holding a cross-process lock so
// concurrent replicas do not race on DDL.
func (s *GormStore) Migrate(ctx context.Context) error {
	return s.withMigrationLock(ctx, func(tx *gorm.DB) error {
		if err := tx.AutoMigrate(&UserModel{}, &RefreshTokenModel{}, &BookModel{}, &BookPageModel{}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
		return nil
	})
}

func (s *GormStore) withMigrationLock(ctx context.Context, fn func(*gorm.DB) error) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("get sql db: %w", err)
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open sql conn: %w", err)
	}
	defer conn.Close()

	switch s.driver {
	case "mysql":
		var acquired sql.NullInt64
		if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 30)", migrateLockName).Scan(&acquired); err != nil {
			return fmt.Errorf("acquire migrate lock: %w", err)
		}
		if !acquired.Valid || acquired.Int64 != 1 {
			return errors.New("acquire migrate lock: timed out")
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT RELEASE_LOCK(?)", migrateLockName)
		}()
	default:
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock($1)", migrateLockID); err != nil {
			return fmt.Errorf("acquire migrate lock: %w", err)
		}
		defer func() {
			_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrateLockID)
		}()
	}
	return fn(s.db.WithContext(ctx))
}

// CreateUser inserts a new user. A duplicate email yields ErrDuplicateEmail.
func (s *GormStore) CreateUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	if err := s.db.WithContext(ctx).Create(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEmail
		}
		return err
	}
	return nil
}

// SaveUser registers or updates a user.
func (s *GormStore) SaveUser(ctx context.Context, u domain.User) error {
	model := userToModel(u)
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "password_hash", "provider", "role", "photo_url", "updated_at"}),
	}).Create(&model).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateEmail
	}
	return err
}

// GetUserByEmail looks up a user by its normalized email.
func (s *GormStore) GetUserByEmail(ctx context.Context, email string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// GetUserByID returns a user by ID.
func (s *GormStore) GetUserByID(ctx context.Context, id string) (domain.User, bool, error) {
	var model UserModel
	if err := s.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.User{}, false, nil
		}
		return domain.User{}, false, err
	}
	return userFromModel(model), true, nil
}

// CreateBook stores a book and its pages in one transaction.
func (s *GormStore) CreateBook(ctx context.Context, b domain.Book, pages []domain.BookPage) error {
	model := bookToModel(b)
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return insertPages(tx, b.ID, pages)
	})
}

// UpdateBook overwrites the book's mutable columns and optionally its pages.
func (s *GormStore) UpdateBook(ctx context.Context, b domain.Book, pages []domain.BookPage, replacePages bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&BookModel{}).
			Where("id = ?", b.ID).
			Updates(map[string]any{
				"title":        b.Title,
				"description":  b.Description,
				"cover_url":    b.CoverURL,
				"content_type": string(b.ContentType),
				"content_url":  b.ContentURL,
				"status":       string(b.Status),
				"approved_by":  b.ApprovedBy,
				"approved_at":  b.ApprovedAt,
				"updated_at":   b.UpdatedAt,
			}).Error; err != nil {
			return err
		}
		if !replacePages {
			return nil
		}
		if err := tx.Where("book_id = ?", b.ID).Delete(&BookPageModel{}).Error; err != nil {
			return err
		}
		return insertPages(tx, b.ID, pages)
	})
}

func insertPages(tx *gorm.DB, bookID string, pages []domain.BookPage) error {
	if len(pages) == 0 {
		return nil
	}
	models := make([]BookPageModel, 0, len(pages))
	for _, p := range pages {
		models = append(models, BookPageModel{BookID: bookID, PageNumber: p.PageNumber, Text: p.Text})
	}
	return tx.CreateInBatches(&models, pageInsertBatch).Error
}

func (s *GormStore) bookQuery(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("books").
		Select("books.*, users.name AS author_name").
		Joins("LEFT JOIN users ON users.id = books.author_id")
}

// GetBook retrieves a book with its author's name.
func (s *GormStore) GetBook(ctx context.Context, id string) (domain.Book, bool, error) {
	var rows []bookRow
	if err := s.bookQuery(ctx).Where("books.id = ?", id).Limit(1).Scan(&rows).Error; err != nil {
		return domain.Book{}, false, err
	}
	if len(rows) == 0 {
		return domain.Book{}, false, nil
	}
	return bookFromRow(rows[0]), true, nil
}

// ListBooks returns books matching filter, newest update first unless
// filter.OldestFirst is set.
func (s *GormStore) ListBooks(ctx context.Context, filter BookFilter) ([]domain.Book, error) {
	tx := s.bookQuery(ctx)
	if filter.Status != "" {
		tx = tx.Where("books.status = ?", string(filter.Status))
	}
	if filter.AuthorID != "" {
		tx = tx.Where("books.author_id = ?", filter.AuthorID)
	}
	if q := strings.TrimSpace(filter.TitleContains); q != "" {
		tx = tx.Where("LOWER(books.title) LIKE ? ESCAPE '!'", likePattern(q))
	}
	if filter.OldestFirst {
		tx = tx.Order("books.updated_at ASC").Order("books.id ASC")
	} else {
		tx = tx.Order("books.updated_at DESC").Order("books.id DESC")
	}
	if filter.Limit > 0 {
		tx = tx.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		tx = tx.Offset(filter.Offset)
	}
	var rows []bookRow
	if err := tx.Scan(&rows).Error; err != nil {
		return nil, err
	}
	res := make([]domain.Book, 0, len(rows))
	for _, r := range rows {
		res = append(res, bookFromRow(r))
	}
	return res, nil
}

// likeEscaper escapes LIKE wildcards with '!', which needs no quoting in any
// supported dialect.
var likeEscaper = strings.NewReplacer(`!`, `!!`, `%`, `!%`, `_`, `!_`)

func likePattern(q string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(q)) + "%"
}

// ListPages returns a book's pages in reading order.
func (s *GormStore) ListPages(ctx context.Context, bookID string) ([]domain.BookPage, error) {
	var models []BookPageModel
	if err := s.db.WithContext(ctx).Where("book_id = ?", bookID).Order("page_number ASC").Find(&models).Error; err != nil {
		return nil, err
	}
	res := make([]domain.BookPage, 0, len(models))
	for _, m := range models {
		res = append(res, domain.BookPage{BookID: m.BookID, PageNumber: m.PageNumber, Text: m.Text})
	}
	return res, nil
}

// DeleteBook removes a book and its pages.
func (s *GormStore) DeleteBook(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("book_id = ?", id).Delete(&BookPageModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&BookModel{}).Error
	})
}

func (s *GormStore) CreateRefreshToken(ctx context.Context, t domain.RefreshToken) error {
	model := RefreshTokenModel{
		ID:        t.ID,
		UserID:    t.UserID,
		TokenHash: t.TokenHash,
		ExpiresAt: t.ExpiresAt.UTC(),
		CreatedAt: t.CreatedAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&model).Error
}

func (s *GormStore) FindRefreshToken(ctx context.Context, userID, tokenHash string) (domain.RefreshToken, bool, error) {
	var model RefreshTokenModel
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.RefreshToken{}, false, nil
		}
		return domain.RefreshToken{}, false, err
	}
	return domain.RefreshToken{
		ID:        model.ID,
		UserID:    model.UserID,
		TokenHash: model.TokenHash,
		ExpiresAt: model.ExpiresAt,
		CreatedAt: model.CreatedAt,
	}, true, nil
}

// RotateRefreshToken is a compare-and-swap on token_hash.
func (s *GormStore) RotateRefreshToken(ctx context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	res := s.db.WithContext(ctx).
		Model(&RefreshTokenModel{}).
		Where("id = ? AND token_hash = ?", id, oldHash).
		Updates(map[string]any{
			"token_hash": newHash,
			"expires_at": expiresAt.UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (s *GormStore) DeleteRefreshTokenByID(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Where("id = ?", id).Delete(&RefreshTokenModel{}).Error
}

func (s *GormStore) DeleteRefreshToken(ctx context.Context, userID, tokenHash string) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("user_id = ? AND token_hash = ?", userID, tokenHash).
		Delete(&RefreshTokenModel{})
	return res.RowsAffected, res.Error
}

func (s *GormStore) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", now.UTC()).
		Delete(&RefreshTokenModel{})
	return res.RowsAffected, res.Error
}

func userToModel(u domain.User) UserModel {
	return UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		Provider:     string(u.Provider),
		Role:         string(u.Role),
		PhotoURL:     u.PhotoURL,
		CreatedAt:    u.CreatedAt.UTC(),
		UpdatedAt:    u.UpdatedAt.UTC(),
	}
}

func userFromModel(m UserModel) domain.User {
	return domain.User{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		PasswordHash: m.PasswordHash,
		Provider:     domain.Provider(m.Provider),
		Role:         domain.UserRole(m.Role),
		PhotoURL:     m.PhotoURL,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

func bookToModel(b domain.Book) BookModel {
	return BookModel{
		ID:          b.ID,
		AuthorID:    b.AuthorID,
		Title:       b.Title,
		Description: b.Description,
		CoverURL:    b.CoverURL,
		ContentType: string(b.ContentType),
		ContentURL:  b.ContentURL,
		Status:      string(b.Status),
		ApprovedBy:  b.ApprovedBy,
		ApprovedAt:  b.ApprovedAt,
		CreatedAt:   b.CreatedAt.UTC(),
		UpdatedAt:   b.UpdatedAt.UTC(),
	}
}

func bookFromRow(r bookRow) domain.Book {
	m := r.BookModel
	return domain.Book{
		ID:          m.ID,
		AuthorID:    m.AuthorID,
		AuthorName:  r.AuthorName,
		Title:       m.Title,
		Description: m.Description,
		CoverURL:    m.CoverURL,
		ContentType: domain.ContentType(m.ContentType),
		ContentURL:  m.ContentURL,
		Status:      domain.BookStatus(m.Status),
		ApprovedBy:  m.ApprovedBy,
		ApprovedAt:  m.ApprovedAt,
		CreatedAt:   m.CreatedAt,
		UpdatedAt:   m.UpdatedAt,
	}
}
