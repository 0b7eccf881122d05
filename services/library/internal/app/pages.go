package app

import "github.com/Mirko-ez/biblioteca-backend/pkg/domain"

// SplitPages cuts content into size-character chunks numbered from 1.
// Empty content yields no pages.
func SplitPages(bookID, content string, size int) []domain.BookPage {
	if size <= 0 {
		size = DefaultTextPageSize
	}
	if content == "" {
		return nil
	}
	runes := []rune(content)
	pages := make([]domain.BookPage, 0, len(runes)/size+1)
	for start, n := 0, 1; start < len(runes); start, n = start+size, n+1 {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		pages = append(pages, domain.BookPage{
			BookID:     bookID,
			PageNumber: n,
			Text:       string(runes[start:end]),
		})
	}
	return pages
}
