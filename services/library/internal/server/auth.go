package server

import (
	"errors"
	"net/http"

	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/app"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/security"
)

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type googleRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	PhotoURL string `json:"photo_url"`
}

type refreshRequest struct {
	UserID       string `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}

type sessionResponse struct {
	OK bool `json:"ok"`
	app.Session
}

func (s *Server) handleAuthPing(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "scope": "auth"})
}

func (s *Server) handleJWKS(w http.ResponseWriter, _ *http.Request) {
	keys := s.app.Tokens().Access().JWKS()
	if keys == nil {
		keys = []tokens.JWK{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": keys})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.limiters.Register, "auth.register") {
		return
	}
	var req registerRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.Register(r.Context(), app.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Password: req.Password,
		Role:     domain.UserRole(req.Role),
	})
	s.writeSession(w, r, "auth.register", session, err)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.limiters.Login, "auth.login") {
		return
	}
	var req loginRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.Login(r.Context(), req.Email, req.Password)
	s.writeSession(w, r, "auth.login", session, err)
}

func (s *Server) handleGoogle(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.limiters.Google, "auth.google") {
		return
	}
	var req googleRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.GoogleSignIn(r.Context(), app.GoogleInput{
		Email:    req.Email,
		Name:     req.Name,
		PhotoURL: req.PhotoURL,
	})
	s.writeSession(w, r, "auth.google", session, err)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if !s.allowRate(w, r, s.limiters.Refresh, "auth.refresh") {
		return
	}
	var req refreshRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	session, err := s.app.Refresh(r.Context(), req.UserID, req.RefreshToken)
	s.writeSession(w, r, "auth.refresh", session, err)
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !s.decodeJSON(w, r, &req) {
		return
	}
	if err := s.app.Logout(r.Context(), req.UserID, req.RefreshToken); err != nil {
		if errors.Is(err, app.ErrMissingFields) {
			s.audit(r, "auth.logout", security.OutcomeFail, "reason", "missing_fields")
		}
		writeAppError(w, r, err)
		return
	}
	s.audit(r, "auth.logout", security.OutcomeSuccess, "user_id", req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// writeSession answers an auth attempt and records its outcome. Server
// failures are not counted as failed attempts.
func (s *Server) writeSession(w http.ResponseWriter, r *http.Request, event string, session app.Session, err error) {
	if err != nil {
		if status, _ := statusOf(err); status < http.StatusInternalServerError {
			s.audit(r, event, security.OutcomeFail, "status", status)
		}
		writeAppError(w, r, err)
		return
	}
	s.audit(r, event, security.OutcomeSuccess, "user_id", session.User.ID)
	writeJSON(w, http.StatusOK, sessionResponse{OK: true, Session: session})
}
