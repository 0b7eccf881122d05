package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
)

func TestMemoryStoreCreateUserRejectsDuplicateEmail(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	if err := s.CreateUser(ctx, domain.User{ID: "u1", Email: "ana@gmail.com"}); err != nil {
		t.Fatalf("create user: %v", err)
	}
	err := s.CreateUser(ctx, domain.User{ID: "u2", Email: "ana@gmail.com"})
	if !errors.Is(err, ErrDuplicateEmail) {
		t.Fatalf("expected duplicate email, got %v", err)
	}
	got, ok, err := s.GetUserByEmail(ctx, "ana@gmail.com")
	if err != nil || !ok || got.ID != "u1" {
		t.Fatalf("unexpected lookup result: %+v ok=%v err=%v", got, ok, err)
	}
}

func TestMemoryStoreRotateIsCompareAndSwap(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)
	if err := s.CreateRefreshToken(ctx, domain.RefreshToken{ID: "rt1", UserID: "u1", TokenHash: "old", ExpiresAt: exp}); err != nil {
		t.Fatalf("create token: %v", err)
	}

	const workers = 8
	start := make(chan struct{})
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			next := fmt.Sprintf("new-%d", i)
			ok, err := s.RotateRefreshToken(ctx, "rt1", "old", next, exp)
			if err != nil {
				t.Errorf("rotate: %v", err)
				return
			}
			if ok {
				wins <- next
			}
		}(i)
	}
	close(start)
	wg.Wait()
	close(wins)

	var winners []string
	for w := range wins {
		winners = append(winners, w)
	}
	if len(winners) != 1 {
		t.Fatalf("expected exactly one rotation to win, got %d", len(winners))
	}
	if _, ok, _ := s.FindRefreshToken(ctx, "u1", "old"); ok {
		t.Fatalf("old hash must no longer match")
	}
	got, ok, _ := s.FindRefreshToken(ctx, "u1", winners[0])
	if !ok || got.ID != "rt1" {
		t.Fatalf("rotation must keep the same row, got %+v ok=%v", got, ok)
	}
}

func TestMemoryStoreDeleteRefreshTokenIsIdempotent(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateRefreshToken(ctx, domain.RefreshToken{ID: "rt1", UserID: "u1", TokenHash: "h", ExpiresAt: time.Now().Add(time.Hour)})
	n, err := s.DeleteRefreshToken(ctx, "u1", "h")
	if err != nil || n != 1 {
		t.Fatalf("first delete: n=%d err=%v", n, err)
	}
	n, err = s.DeleteRefreshToken(ctx, "u1", "h")
	if err != nil || n != 0 {
		t.Fatalf("second delete: n=%d err=%v", n, err)
	}
}

func TestMemoryStoreDeleteExpiredRefreshTokens(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()
	_ = s.CreateRefreshToken(ctx, domain.RefreshToken{ID: "old", UserID: "u1", TokenHash: "a", ExpiresAt: now.Add(-time.Minute)})
	_ = s.CreateRefreshToken(ctx, domain.RefreshToken{ID: "live", UserID: "u1", TokenHash: "b", ExpiresAt: now.Add(time.Minute)})
	n, err := s.DeleteExpiredRefreshTokens(ctx, now)
	if err != nil || n != 1 {
		t.Fatalf("purge: n=%d err=%v", n, err)
	}
	if _, ok, _ := s.FindRefreshToken(ctx, "u1", "b"); !ok {
		t.Fatalf("live token should survive purge")
	}
}

func TestMemoryStoreListBooksFiltersAndOrders(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	_ = s.CreateUser(ctx, domain.User{ID: "author", Email: "a@gmail.com", Name: "Autora"})
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	books := []domain.Book{
		{ID: "b1", AuthorID: "author", Title: "Java Basics", Status: domain.StatusApproved, UpdatedAt: base},
		{ID: "b2", AuthorID: "author", Title: "Advanced java", Status: domain.StatusApproved, UpdatedAt: base.Add(2 * time.Hour)},
		{ID: "b3", AuthorID: "author", Title: "Java Pending", Status: domain.StatusPending, UpdatedAt: base.Add(3 * time.Hour)},
		{ID: "b4", AuthorID: "author", Title: "Go in Action", Status: domain.StatusApproved, UpdatedAt: base.Add(time.Hour)},
	}
	for _, b := range books {
		if err := s.CreateBook(ctx, b, nil); err != nil {
			t.Fatalf("create book: %v", err)
		}
	}

	got, err := s.ListBooks(ctx, BookFilter{Status: domain.StatusApproved, TitleContains: "Java", Limit: 20})
	if err != nil {
		t.Fatalf("list books: %v", err)
	}
	if len(got) != 2 || got[0].ID != "b2" || got[1].ID != "b1" {
		t.Fatalf("unexpected listing: %+v", got)
	}
	if got[0].AuthorName != "Autora" {
		t.Fatalf("expected author name join, got %q", got[0].AuthorName)
	}

	page2, err := s.ListBooks(ctx, BookFilter{Status: domain.StatusApproved, Limit: 2, Offset: 2})
	if err != nil {
		t.Fatalf("list page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != "b1" {
		t.Fatalf("unexpected second page: %+v", page2)
	}

	pending, _ := s.ListBooks(ctx, BookFilter{Status: domain.StatusPending, OldestFirst: true})
	if len(pending) != 1 || pending[0].ID != "b3" {
		t.Fatalf("unexpected pending listing: %+v", pending)
	}
}

func TestMemoryStoreUpdateBookReplacesPages(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	b := domain.Book{ID: "b1", AuthorID: "u1", Title: "Libro", ContentType: domain.ContentText}
	pages := []domain.BookPage{{PageNumber: 1, Text: "a"}, {PageNumber: 2, Text: "b"}}
	if err := s.CreateBook(ctx, b, pages); err != nil {
		t.Fatalf("create book: %v", err)
	}
	b.Title = "Libro 2"
	if err := s.UpdateBook(ctx, b, nil, false); err != nil {
		t.Fatalf("update without pages: %v", err)
	}
	if got, _ := s.ListPages(ctx, "b1"); len(got) != 2 {
		t.Fatalf("pages should be untouched, got %d", len(got))
	}
	if err := s.UpdateBook(ctx, b, []domain.BookPage{{PageNumber: 1, Text: "z"}}, true); err != nil {
		t.Fatalf("update with pages: %v", err)
	}
	got, _ := s.ListPages(ctx, "b1")
	if len(got) != 1 || got[0].Text != "z" || got[0].BookID != "b1" {
		t.Fatalf("unexpected pages after replace: %+v", got)
	}
}
