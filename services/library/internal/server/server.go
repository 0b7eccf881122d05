package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Mirko-ez/biblioteca-backend/internal/metrics"
	"github.com/Mirko-ez/biblioteca-backend/internal/ratelimit"
	"github.com/Mirko-ez/biblioteca-backend/internal/util"
	"github.com/Mirko-ez/biblioteca-backend/pkg/domain"
	"github.com/Mirko-ez/biblioteca-backend/pkg/tokens"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/app"
	"github.com/Mirko-ez/biblioteca-backend/services/library/internal/security"
)

const defaultMaxBodyBytes = 4 << 20

// Limiters throttle the unauthenticated auth endpoints per client address.
// Nil limiters allow everything.
type Limiters struct {
	Register *ratelimit.FixedWindowLimiter
	Login    *ratelimit.FixedWindowLimiter
	Google   *ratelimit.FixedWindowLimiter
	Refresh  *ratelimit.FixedWindowLimiter
}

// Config wires required dependencies for the HTTP server.
type Config struct {
	App      *app.App
	Limiters Limiters
	Alerter  *security.Alerter
	Metrics  *metrics.Metrics

	TrustedProxies *util.TrustedProxies
	BasePath       string
	CORSOrigins    []string
	MaxBodyBytes   int64
}

// Server exposes the library HTTP API.
type Server struct {
	app      *app.App
	limiters Limiters
	alerter  *security.Alerter
	metrics  *metrics.Metrics
	trusted  *util.TrustedProxies
	cors     *util.CORS
	basePath string
	maxBody  int64
	api      *http.ServeMux
	now      func() time.Time
}

func New(cfg Config) (*Server, error) {
	if cfg.App == nil {
		return nil, errors.New("server requires an app")
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}
	s := &Server{
		app:      cfg.App,
		limiters: cfg.Limiters,
		alerter:  cfg.Alerter,
		metrics:  cfg.Metrics,
		trusted:  cfg.TrustedProxies,
		cors:     util.NewCORS(cfg.CORSOrigins),
		basePath: normalizeBasePath(cfg.BasePath),
		maxBody:  maxBody,
		api:      http.NewServeMux(),
		now:      time.Now,
	}
	s.routes()
	return s, nil
}

func normalizeBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// Handler returns the API mounted under the base path plus /metrics, wrapped
// in the request id, logging, security header and CORS middleware.
func (s *Server) Handler() http.Handler {
	root := http.NewServeMux()
	if s.basePath == "" {
		root.Handle("/", s.api)
	} else {
		root.Handle(s.basePath+"/", http.StripPrefix(s.basePath, s.api))
	}
	if s.metrics != nil {
		root.Handle("GET /metrics", s.metrics.Handler())
	}
	return util.WithRequestID(util.WithRequestLog(util.WithSecurityHeaders(s.cors.Wrap(root))))
}

func (s *Server) routes() {
	s.handle("GET /health", http.HandlerFunc(s.handleHealth))

	// auth
	s.handle("GET /auth/ping", http.HandlerFunc(s.handleAuthPing))
	s.handle("GET /auth/jwks", http.HandlerFunc(s.handleJWKS))
	s.handle("POST /auth/register", http.HandlerFunc(s.handleRegister))
	s.handle("POST /auth/login", http.HandlerFunc(s.handleLogin))
	s.handle("POST /auth/google", http.HandlerFunc(s.handleGoogle))
	s.handle("POST /auth/refresh", http.HandlerFunc(s.handleRefresh))
	s.handle("POST /auth/logout", http.HandlerFunc(s.handleLogout))

	// books
	s.handle("GET /books", http.HandlerFunc(s.handleListBooks))
	s.handle("GET /books/mine", s.authenticated(s.handleMyBooks))
	s.handle("GET /books/requests", s.authorized(domain.PermModerateBooks, s.handlePendingBooks))
	s.handle("GET /books/{id}", http.HandlerFunc(s.handleGetBook))
	s.handle("POST /books", s.authorized(domain.PermSubmitBooks, s.handleCreateBook))
	s.handle("POST /books/uploads", s.authorized(domain.PermSubmitBooks, s.handleUpload))
	s.handle("PUT /books/{id}", s.authenticated(s.handleUpdateBook))
	s.handle("DELETE /books/{id}", s.authenticated(s.handleDeleteBook))
	s.handle("POST /books/{id}/approve", s.authorized(domain.PermModerateBooks, s.handleApprove))
	s.handle("POST /books/{id}/reject", s.authorized(domain.PermModerateBooks, s.handleReject))

	// users
	s.handle("PUT /users/me", s.authenticated(s.handleUpdateMe))
}

func (s *Server) handle(pattern string, h http.Handler) {
	s.api.Handle(pattern, s.metrics.Instrument(pattern, h))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "time": s.now().UTC().Format(time.RFC3339)})
}

// auth wrappers
type authHandler func(http.ResponseWriter, *http.Request, tokens.Identity)

func (s *Server) authenticated(next authHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "Token requerido")
			return
		}
		who, err := s.app.Authenticate(token)
		if err != nil {
			s.audit(r, "api.authorize", security.OutcomeFail, "reason", "invalid_token")
			writeError(w, http.StatusUnauthorized, "Token inválido")
			return
		}
		ctx := util.ContextWithLogger(r.Context(), util.LoggerFromContext(r.Context()).With("user_id", who.UserID))
		next(w, r.WithContext(ctx), who)
	})
}

func (s *Server) authorized(perm domain.Permission, next authHandler) http.Handler {
	return s.authenticated(func(w http.ResponseWriter, r *http.Request, who tokens.Identity) {
		if !who.Can(perm) {
			s.audit(r, "api.authorize", security.OutcomeFail, "reason", "forbidden", "permission", string(perm), "role", string(who.Role))
			writeError(w, http.StatusForbidden, "No autorizado")
			return
		}
		next(w, r, who)
	})
}

func bearerToken(r *http.Request) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(r.Header.Get("Authorization")), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// audit logs a security_event and feeds it to the metrics and the alerter.
func (s *Server) audit(r *http.Request, event, outcome string, attrs ...any) {
	ip := util.ClientIP(r, s.trusted)
	logger := util.LoggerFromContext(r.Context())
	logAttrs := append([]any{"event", event, "outcome", outcome, "ip", ip, "path", r.URL.Path}, attrs...)
	if outcome == security.OutcomeSuccess {
		logger.Info("security_event", logAttrs...)
	} else {
		logger.Warn("security_event", logAttrs...)
	}
	s.metrics.AuthEvent(event, outcome)

	res, err := s.alerter.Observe(r.Context(), event, outcome, ip)
	if err != nil {
		logger.Warn("security alerter unavailable", "event", event, "err", err)
		return
	}
	if res.Triggered {
		logger.Error("security_alert",
			"event", event,
			"outcome", outcome,
			"ip", ip,
			"count", res.Count,
			"window", res.Rule.Window.String(),
		)
	}
}

// allowRate answers 429 and returns false when the caller is over quota.
func (s *Server) allowRate(w http.ResponseWriter, r *http.Request, limiter *ratelimit.FixedWindowLimiter, event string) bool {
	ok, err := limiter.Allow(r.Context(), util.ClientIP(r, s.trusted))
	if err != nil {
		util.LoggerFromContext(r.Context()).Error("rate limiter unavailable", "event", event, "err", err)
	}
	if ok {
		return true
	}
	s.metrics.RateLimited(event)
	s.audit(r, event, security.OutcomeRateLimited)
	if secs := int(limiter.Window().Seconds()); secs > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(secs))
	}
	writeError(w, http.StatusTooManyRequests, "Demasiadas solicitudes")
	return false
}

func (s *Server) decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "Solicitud demasiado grande")
			return false
		}
		writeError(w, http.StatusBadRequest, "JSON inválido")
		return false
	}
	return true
}

type errorResponse struct {
	OK      bool             `json:"ok"`
	Message string           `json:"message"`
	Errors  []app.FieldError `json:"errors,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Message: msg})
}

var errorStatus = []struct {
	err     error
	status  int
	message string
}{
	{app.ErrDomainNotAllowed, http.StatusBadRequest, "Dominio no permitido para registro"},
	{app.ErrLoginDomain, http.StatusBadRequest, "Credenciales inválidas"},
	{app.ErrMissingFields, http.StatusBadRequest, "Datos faltantes"},
	{app.ErrInvalidPage, http.StatusBadRequest, "Página inválida"},
	{app.ErrUnsupportedUpload, http.StatusBadRequest, "Tipo de archivo no permitido"},
	{app.ErrUploadTooLarge, http.StatusRequestEntityTooLarge, "Archivo demasiado grande"},
	{app.ErrInvalidCredentials, http.StatusUnauthorized, "Credenciales inválidas"},
	{app.ErrInvalidRefreshToken, http.StatusUnauthorized, "Refresh inválido"},
	{app.ErrForbidden, http.StatusForbidden, "No autorizado"},
	{app.ErrUserNotFound, http.StatusNotFound, "Usuario no encontrado"},
	{app.ErrBookNotFound, http.StatusNotFound, "No encontrado"},
	{app.ErrEmailExists, http.StatusConflict, "Email ya registrado"},
	{app.ErrInvalidTransition, http.StatusConflict, "Estado inválido"},
	{app.ErrUploadsDisabled, http.StatusServiceUnavailable, "Almacenamiento no disponible"},
}

// statusOf returns the HTTP status and client message for an app error.
func statusOf(err error) (int, string) {
	var verr *app.ValidationError
	if errors.As(err, &verr) && len(verr.Fields) > 0 {
		return http.StatusBadRequest, verr.Fields[0].Message
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			return e.status, e.message
		}
	}
	return http.StatusInternalServerError, "Error de servidor"
}

// writeAppError maps app errors onto responses. Unknown errors are logged and
// reported as a generic 500.
func writeAppError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := statusOf(err)
	if status >= http.StatusInternalServerError {
		util.LoggerFromContext(r.Context()).Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	resp := errorResponse{Message: msg}
	var verr *app.ValidationError
	if errors.As(err, &verr) {
		resp.Errors = verr.Fields
	}
	writeJSON(w, status, resp)
}
