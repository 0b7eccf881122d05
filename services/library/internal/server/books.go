package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/app"
)

type listResponse struct {
	OK   bool          `json:"ok"`
	Data []domain.Book `json:"data"`
}

type bookStatusResponse struct {
	OK     bool              `json:"ok"`
	ID     string            `json:"id"`
	Status domain.BookStatus `json:"status"`
}

func writeBooks(w http.ResponseWriter, books []domain.Book) {
	if books == nil {
		books = []domain.Book{}
	}
	writeJSON(w, http.StatusOK, listResponse{OK: true, Data: books})
}

// parsePage reads the 1-based page query parameter. Missing means 1.
func parsePage(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 1, nil
	}
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 0, app.ErrInvalidPage
	}
	return page, nil
}

func (s *Server) handleListBooks(w http.ResponseWriter, r *http.Request) {
	page, err := parsePage(r.URL.Query().Get("page"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	books, err := s.app.ListApproved(r.Context(), r.URL.Query().Get("q"), page)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeBooks(w, books)
}

func (s *Server) handleMyBooks(w http.ResponseWriter, r *http.Request, who tokens.Identity) {
	books, err := s.app.ListMine(r.Context(), who)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeBooks(w, books)
}

func (s *Server) handlePendingBooks(w http.ResponseWriter, r *http.Request, _ tokens.Identity) {
	books, err := s.app.ListPending(r.Context())
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeBooks(w, books)
}

func (s *Server) handleGetBook(w http.ResponseWriter, r *http.Request) {
	detail, err := s.app.GetBook(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "data": detail})
}

func (s *Server) handleCreateBook(w http.ResponseWriter, r *http.Request, who tokens.Identity) {
	var req app.CreateBookInput
	if !s.decodeJSON(w, r, &req) {
		return
	}
	book, err := s.app.CreateBook(r.Context(), who, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookStatusResponse{OK: true, ID: book.ID, Status: book.Status})
}

func (s *Server) handleUpdateBook(w http.ResponseWriter, r *http.Request, who tokens.Identity) {
	var req app.UpdateBookInput
	if !s.decodeJSON(w, r, &req) {
		return
	}
	book, err := s.app.UpdateBook(r.Context(), who, r.PathValue("id"), req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookStatusResponse{OK: true, ID: book.ID, Status: book.Status})
}

func (s *Server) handleDeleteBook(w http.ResponseWriter, r *http.Request, who tokens.Identity) {
	id := r.PathValue("id")
	if err := s.app.DeleteBook(r.Context(), who, id); err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "deleted": id})
}

func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request, who tokens.Identity) {
	book, err := s.app.Approve(r.Context(), who, r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookStatusResponse{OK: true, ID: book.ID, Status: book.Status})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, _ tokens.Identity) {
	book, err := s.app.Reject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, bookStatusResponse{OK: true, ID: book.ID, Status: book.Status})
}

// handleUpload accepts a multipart "file" part and stores it in object
// storage. The returned content_url is then used in POST /books.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request, _ tokens.Identity) {
	if !s.app.UploadsEnabled() {
		writeAppError(w, r, app.ErrUploadsDisabled)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, app.MaxUploadBytes+(1<<20))
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeAppError(w, r, app.ErrUploadTooLarge)
			return
		}
		writeError(w, http.StatusBadRequest, "Archivo requerido")
		return
	}
	defer file.Close()

	ref, kind, err := s.app.UploadContent(r.Context(), header.Filename, file, header.Size)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "content_url": ref, "content_type": kind})
}
