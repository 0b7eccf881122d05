package app

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/Mirko-ez/biblioteca-backend/internal/util"
	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/storage"
	"github.com/Mirko-ez/biblioteca-backend/pkg/store"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
)

// MaxUploadBytes bounds PDF/DOCX uploads.
const MaxUploadBytes = 25 << 20

var uploadTypes = map[string]domain.ContentType{
	".pdf":  domain.ContentPDF,
	".docx": domain.ContentDOCX,
}

var uploadMIME = map[domain.ContentType]string{
	domain.ContentPDF:  "application/pdf",
	domain.ContentDOCX: "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

type CreateBookInput struct {
	Title       string `json:"title" validate:"required,min=2,max=255"`
	Description string `json:"description" validate:"max=800"`
	CoverURL    string `json:"cover_url" validate:"max=1024"`
	ContentType string `json:"content_type" validate:"required,oneof=TEXT PDF DOCX"`
	Content     string `json:"content"`
	ContentURL  string `json:"content_url" validate:"max=1024"`
}

// UpdateBookInput is a partial update; nil fields are left unchanged.
type UpdateBookInput struct {
	Title       *string `json:"title" validate:"omitempty,min=2,max=255"`
	Description *string `json:"description" validate:"omitempty,max=800"`
	CoverURL    *string `json:"cover_url" validate:"omitempty,max=1024"`
	ContentType *string `json:"content_type" validate:"omitempty,oneof=TEXT PDF DOCX"`
	Content     *string `json:"content"`
	ContentURL  *string `json:"content_url" validate:"omitempty,max=1024"`
}

// BookDetail is a book with its text pages and, for uploaded files, a
// short-lived download link.
type BookDetail struct {
	Book        domain.Book       `json:"book"`
	Pages       []domain.BookPage `json:"pages"`
	DownloadURL string            `json:"download_url,omitempty"`
}

// ListApproved returns one page of approved books whose title contains q.
func (a *App) ListApproved(ctx context.Context, q string, page int) ([]domain.Book, error) {
	if page < 1 {
		return nil, ErrInvalidPage
	}
	books, err := a.store.ListBooks(ctx, store.BookFilter{
		Status:        domain.StatusApproved,
		TitleContains: q,
		Limit:         a.listPageSize,
		Offset:        (page - 1) * a.listPageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("list books: %w", err)
	}
	return books, nil
}

// ListMine returns every book authored by the caller regardless of status.
func (a *App) ListMine(ctx context.Context, who tokens.Identity) ([]domain.Book, error) {
	books, err := a.store.ListBooks(ctx, store.BookFilter{AuthorID: who.UserID})
	if err != nil {
		return nil, fmt.Errorf("list own books: %w", err)
	}
	return books, nil
}

// ListPending returns the moderation queue, oldest first.
func (a *App) ListPending(ctx context.Context) ([]domain.Book, error) {
	books, err := a.store.ListBooks(ctx, store.BookFilter{Status: domain.StatusPending, OldestFirst: true})
	if err != nil {
		return nil, fmt.Errorf("list pending books: %w", err)
	}
	return books, nil
}

func (a *App) GetBook(ctx context.Context, id string) (BookDetail, error) {
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return BookDetail{}, err
	}
	detail := BookDetail{Book: book, Pages: []domain.BookPage{}}
	if book.ContentType == domain.ContentText {
		pages, err := a.store.ListPages(ctx, book.ID)
		if err != nil {
			return BookDetail{}, fmt.Errorf("list pages: %w", err)
		}
		detail.Pages = append(detail.Pages, pages...)
	}
	if key, ok := storage.KeyFromRef(book.ContentURL); ok && a.objects != nil {
		filename := book.Title + filepath.Ext(key)
		url, err := a.objects.PresignGet(ctx, key, filename, a.downloadURLTTL)
		if err != nil {
			return BookDetail{}, err
		}
		detail.DownloadURL = url
	}
	return detail, nil
}

// CreateBook submits a new book for moderation.
func (a *App) CreateBook(ctx context.Context, who tokens.Identity, in CreateBookInput) (domain.Book, error) {
	if err := validateStruct(&in); err != nil {
		return domain.Book{}, err
	}
	now := a.now().UTC()
	book := domain.Book{
		ID:          uuid.NewString(),
		AuthorID:    who.UserID,
		Title:       in.Title,
		Description: in.Description,
		CoverURL:    in.CoverURL,
		ContentType: domain.ContentType(in.ContentType),
		ContentURL:  in.ContentURL,
		Status:      domain.StatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	var pages []domain.BookPage
	if book.ContentType == domain.ContentText {
		pages = SplitPages(book.ID, in.Content, a.textPageSize)
	}
	if err := a.store.CreateBook(ctx, book, pages); err != nil {
		return domain.Book{}, fmt.Errorf("create book: %w", err)
	}
	return book, nil
}

// UpdateBook applies a partial edit. Any edit sends the book back to
// moderation and clears the previous approval.
func (a *App) UpdateBook(ctx context.Context, who tokens.Identity, id string, in UpdateBookInput) (domain.Book, error) {
	if err := validateStruct(&in); err != nil {
		return domain.Book{}, err
	}
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	if book.AuthorID != who.UserID && !who.Can(domain.PermEditAnyBook) {
		return domain.Book{}, ErrForbidden
	}

	if in.Title != nil {
		book.Title = *in.Title
	}
	if in.Description != nil {
		book.Description = *in.Description
	}
	if in.CoverURL != nil {
		book.CoverURL = *in.CoverURL
	}
	if in.ContentURL != nil {
		book.ContentURL = *in.ContentURL
	}
	if in.ContentType != nil {
		book.ContentType = domain.ContentType(*in.ContentType)
	}
	book.Status = domain.StatusPending
	book.ApprovedBy = nil
	book.ApprovedAt = nil
	book.UpdatedAt = a.now().UTC()

	var pages []domain.BookPage
	replacePages := in.Content != nil
	if replacePages && book.ContentType == domain.ContentText {
		pages = SplitPages(book.ID, *in.Content, a.textPageSize)
	}
	if err := a.store.UpdateBook(ctx, book, pages, replacePages); err != nil {
		return domain.Book{}, fmt.Errorf("update book: %w", err)
	}
	return book, nil
}

// DeleteBook removes a book. Only its author may delete it.
func (a *App) DeleteBook(ctx context.Context, who tokens.Identity, id string) error {
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return err
	}
	if book.AuthorID != who.UserID {
		return ErrForbidden
	}
	if err := a.store.DeleteBook(ctx, book.ID); err != nil {
		return fmt.Errorf("delete book: %w", err)
	}
	if key, ok := storage.KeyFromRef(book.ContentURL); ok && a.objects != nil {
		if err := a.objects.Delete(ctx, key); err != nil {
			util.LoggerFromContext(ctx).Warn("book object cleanup failed", "book_id", book.ID, "key", key, "err", err)
		}
	}
	return nil
}

func (a *App) Approve(ctx context.Context, who tokens.Identity, id string) (domain.Book, error) {
	book, err := a.pendingBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	now := a.now().UTC()
	approver := who.UserID
	book.Status = domain.StatusApproved
	book.ApprovedBy = &approver
	book.ApprovedAt = &now
	book.UpdatedAt = now
	if err := a.store.UpdateBook(ctx, book, nil, false); err != nil {
		return domain.Book{}, fmt.Errorf("approve book: %w", err)
	}
	return book, nil
}

func (a *App) Reject(ctx context.Context, id string) (domain.Book, error) {
	book, err := a.pendingBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	book.Status = domain.StatusRejected
	book.ApprovedBy = nil
	book.ApprovedAt = nil
	book.UpdatedAt = a.now().UTC()
	if err := a.store.UpdateBook(ctx, book, nil, false); err != nil {
		return domain.Book{}, fmt.Errorf("reject book: %w", err)
	}
	return book, nil
}

// UploadContent stores a PDF or DOCX file and returns the content reference
// to use as content_url.
func (a *App) UploadContent(ctx context.Context, filename string, r io.Reader, size int64) (string, domain.ContentType, error) {
	if a.objects == nil {
		return "", "", ErrUploadsDisabled
	}
	ext := strings.ToLower(filepath.Ext(filename))
	kind, ok := uploadTypes[ext]
	if !ok {
		return "", "", ErrUnsupportedUpload
	}
	if size <= 0 {
		return "", "", ErrMissingFields
	}
	if size > MaxUploadBytes {
		return "", "", ErrUploadTooLarge
	}
	key := storage.NewContentKey(ext)
	if err := a.objects.Put(ctx, key, r, size, uploadMIME[kind]); err != nil {
		return "", "", err
	}
	return storage.ContentRef(key), kind, nil
}

func (a *App) loadBook(ctx context.Context, id string) (domain.Book, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.Book{}, ErrBookNotFound
	}
	book, ok, err := a.store.GetBook(ctx, id)
	if err != nil {
		return domain.Book{}, fmt.Errorf("get book: %w", err)
	}
	if !ok {
		return domain.Book{}, ErrBookNotFound
	}
	return book, nil
}

func (a *App) pendingBook(ctx context.Context, id string) (domain.Book, error) {
	book, err := a.loadBook(ctx, id)
	if err != nil {
		return domain.Book{}, err
	}
	if book.Status != domain.StatusPending {
		return domain.Book{}, ErrInvalidTransition
	}
	return book, nil
}
