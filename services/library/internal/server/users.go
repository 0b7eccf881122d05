package server

import (
	"net/http"

	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/app"
)

func (s *Server) handleUpdateMe(w http.ResponseWriter, r *http.Request, who tokens.Identity) {
	var req app.UpdateProfileInput
	if !s.decodeJSON(w, r, &req) {
		return
	}
	user, err := s.app.UpdateProfile(r.Context(), who, req)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "user": user})
}
