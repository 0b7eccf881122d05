package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
)

// MemoryStore is an in-process Store for tests and local development.
type MemoryStore struct {
	mu            sync.RWMutex
	users         map[string]domain.User
	emailIndex    map[string]string
	books         map[string]domain.Book
	pages         map[string][]domain.BookPage
	refreshTokens map[string]domain.RefreshToken
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:         make(map[string]domain.User),
		emailIndex:    make(map[string]string),
		books:         make(map[string]domain.Book),
		pages:         make(map[string][]domain.BookPage),
		refreshTokens: make(map[string]domain.RefreshToken),
	}
}

func (s *MemoryStore) CreateUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.emailIndex[u.Email]; ok {
		return ErrDuplicateEmail
	}
	s.users[u.ID] = u
	s.emailIndex[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) SaveUser(_ context.Context, u domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.emailIndex[u.Email]; ok && id != u.ID {
		return ErrDuplicateEmail
	}
	if prev, ok := s.users[u.ID]; ok && prev.Email != u.Email {
		delete(s.emailIndex, prev.Email)
	}
	s.users[u.ID] = u
	s.emailIndex[u.Email] = u.ID
	return nil
}

func (s *MemoryStore) GetUserByEmail(_ context.Context, email string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.emailIndex[email]
	if !ok {
		return domain.User{}, false, nil
	}
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) GetUserByID(_ context.Context, id string) (domain.User, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[id]
	return u, ok, nil
}

func (s *MemoryStore) CreateBook(_ context.Context, b domain.Book, pages []domain.BookPage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b.AuthorName = ""
	s.books[b.ID] = b
	s.pages[b.ID] = clonePages(b.ID, pages)
	return nil
}

func (s *MemoryStore) UpdateBook(_ context.Context, b domain.Book, pages []domain.BookPage, replacePages bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.books[b.ID]
	if !ok {
		return nil
	}
	b.AuthorID = prev.AuthorID
	b.CreatedAt = prev.CreatedAt
	b.AuthorName = ""
	s.books[b.ID] = b
	if replacePages {
		s.pages[b.ID] = clonePages(b.ID, pages)
	}
	return nil
}

func clonePages(bookID string, pages []domain.BookPage) []domain.BookPage {
	out := make([]domain.BookPage, 0, len(pages))
	for _, p := range pages {
		p.BookID = bookID
		out = append(out, p)
	}
	return out
}

func (s *MemoryStore) GetBook(_ context.Context, id string) (domain.Book, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.books[id]
	if !ok {
		return domain.Book{}, false, nil
	}
	return s.withAuthor(b), true, nil
}

func (s *MemoryStore) withAuthor(b domain.Book) domain.Book {
	if u, ok := s.users[b.AuthorID]; ok {
		b.AuthorName = u.Name
	}
	return b
}

func (s *MemoryStore) ListBooks(_ context.Context, filter BookFilter) ([]domain.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q := strings.ToLower(strings.TrimSpace(filter.TitleContains))
	res := make([]domain.Book, 0)
	for _, b := range s.books {
		if filter.Status != "" && b.Status != filter.Status {
			continue
		}
		if filter.AuthorID != "" && b.AuthorID != filter.AuthorID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(b.Title), q) {
			continue
		}
		res = append(res, s.withAuthor(b))
	}
	sort.Slice(res, func(i, j int) bool {
		a, b := res[i], res[j]
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			if filter.OldestFirst {
				return a.UpdatedAt.Before(b.UpdatedAt)
			}
			return a.UpdatedAt.After(b.UpdatedAt)
		}
		if filter.OldestFirst {
			return a.ID < b.ID
		}
		return a.ID > b.ID
	})
	if filter.Offset > 0 {
		if filter.Offset >= len(res) {
			return []domain.Book{}, nil
		}
		res = res[filter.Offset:]
	}
	if filter.Limit > 0 && len(res) > filter.Limit {
		res = res[:filter.Limit]
	}
	return res, nil
}

func (s *MemoryStore) ListPages(_ context.Context, bookID string) ([]domain.BookPage, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := append([]domain.BookPage(nil), s.pages[bookID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].PageNumber < out[j].PageNumber })
	return out, nil
}

func (s *MemoryStore) DeleteBook(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.books, id)
	delete(s.pages, id)
	return nil
}

func (s *MemoryStore) CreateRefreshToken(_ context.Context, t domain.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refreshTokens[t.ID] = t
	return nil
}

func (s *MemoryStore) FindRefreshToken(_ context.Context, userID, tokenHash string) (domain.RefreshToken, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.refreshTokens {
		if t.UserID == userID && t.TokenHash == tokenHash {
			return t, true, nil
		}
	}
	return domain.RefreshToken{}, false, nil
}

func (s *MemoryStore) RotateRefreshToken(_ context.Context, id, oldHash, newHash string, expiresAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.refreshTokens[id]
	if !ok || t.TokenHash != oldHash {
		return false, nil
	}
	t.TokenHash = newHash
	t.ExpiresAt = expiresAt
	s.refreshTokens[id] = t
	return true, nil
}

func (s *MemoryStore) DeleteRefreshTokenByID(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refreshTokens, id)
	return nil
}

func (s *MemoryStore) DeleteRefreshToken(_ context.Context, userID, tokenHash string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.refreshTokens {
		if t.UserID == userID && t.TokenHash == tokenHash {
			delete(s.refreshTokens, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) DeleteExpiredRefreshTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.refreshTokens {
		if t.Expired(now) {
			delete(s.refreshTokens, id)
			n++
		}
	}
	return n, nil
}
