package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/jakechorley/incident-desk/internal/config"
	"github.com/jakechorley/incident-desk/pkg/core/clock"
	"github.com/jakechorley/incident-desk/pkg/core/eligibility"
	"github.com/jakechorley/incident-desk/pkg/core/incident"
	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/core/schedule"
	"github.com/jakechorley/incident-desk/pkg/core/services"
	"github.com/jakechorley/incident-desk/pkg/db"
	"github.com/jakechorley/incident-desk/pkg/session"
)

// Deps are the collaborators the API serves from
type Deps struct {
	Cfg      *config.Config
	Store    db.Database
	Sessions session.Store
	Catalog  *schedule.Catalog
	Checker  *eligibility.Checker
	Clock    clock.Clock
	Logger   *zap.Logger
}

type Server struct {
	cfg      *config.Config
	store    db.Database
	sessions session.Store
	catalog  *schedule.Catalog
	checker  *eligibility.Checker
	machine  *incident.Machine
	clock    clock.Clock
	logger   *zap.Logger
	metrics  *metrics
	validate *validator.Validate
}

func NewServer(deps Deps) *Server {
	clk := deps.Clock
	if clk == nil {
		clk = clock.System{}
	}
	return &Server{
		cfg:      deps.Cfg,
		store:    deps.Store,
		sessions: deps.Sessions,
		catalog:  deps.Catalog,
		checker:  deps.Checker,
		machine:  incident.NewMachine(),
		clock:    clk,
		logger:   deps.Logger,
		metrics:  newMetrics(),
		validate: validator.New(),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", s.metrics.handler())

	r.Post("/auth/login", s.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/me", s.handleMe)

		r.Get("/reports", s.handleListReports)
		r.Post("/reports", s.handleCreateReport)
		r.Get("/reports/{id}", s.handleGetReport)
		r.Patch("/reports/{id}", s.handlePatchReport)
		r.Post("/reports/{id}/submit", s.handleTransition(model.EventSubmit))
		r.Post("/reports/{id}/approve", s.handleTransition(model.EventApprove))
		r.Post("/reports/{id}/reject", s.handleTransition(model.EventReject))
		r.Post("/reports/{id}/close", s.handleTransition(model.EventClose))

		r.Get("/audit", s.handleListAudit)

		r.Get("/users", s.handleListUsers)
		r.Post("/users", s.handleCreateUser)
		r.Patch("/users/{username}", s.handlePatchUser)

		r.Get("/shifts", s.handleListShifts)
		r.Get("/shifts/{id}/eligibility", s.handleShiftEligibility)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("HTTP request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

// Auth

type principalKey struct{}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token")
			return
		}
		principal, err := services.Authenticate(r.Context(), s.store, s.sessions, s.logger, token)
		if errors.Is(err, session.ErrNotFound) || errors.Is(err, services.ErrSessionRevoked) {
			writeError(w, http.StatusUnauthorized, "invalid_token")
			return
		}
		if err != nil {
			s.logger.Error("Failed to resolve session", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "server_error")
			return
		}
		ctx := context.WithValue(r.Context(), principalKey{}, principal)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func principalFromContext(ctx context.Context) model.Principal {
	principal, _ := ctx.Value(principalKey{}).(model.Principal)
	return principal
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token   string          `json:"token"`
	User    model.Principal `json:"user"`
	EnTurno bool            `json:"enTurno"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	result, err := services.Login(r.Context(), s.store, s.sessions, s.checker, s.clock, s.logger, req.Username, req.Password)
	s.metrics.observeLogin(err)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Token: result.Token, User: result.Principal, EnTurno: result.EnTurno})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := services.Logout(r.Context(), s.sessions, bearerToken(r.Header.Get("Authorization"))); err != nil {
		s.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, principalFromContext(r.Context()))
}

// Errors

// statusFor maps service errors onto an HTTP status and a stable error code
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, services.ErrSessionRevoked):
		return http.StatusUnauthorized, "invalid_token"
	case errors.Is(err, services.ErrOutOfShift):
		return http.StatusForbidden, "out_of_shift"
	case errors.Is(err, services.ErrPermissionDenied):
		return http.StatusForbidden, "permission_denied"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, incident.ErrUnknownField):
		return http.StatusBadRequest, "unknown_field"
	case errors.Is(err, incident.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, db.ErrStaleState):
		return http.StatusConflict, "stale_state"
	case errors.Is(err, db.ErrConflict):
		return http.StatusConflict, "already_exists"
	case errors.Is(err, db.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, schedule.ErrUnknownShift):
		return http.StatusNotFound, "unknown_shift"
	}
	return http.StatusInternalServerError, "server_error"
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", zap.Error(err))
	} else {
		s.logger.Debug("Request refused", zap.String("code", code), zap.Error(err))
	}
	writeError(w, status, code)
}

// Utilities

// decodeAndValidate decodes the JSON body into out and runs its validate tags.
// It writes the error response and returns false on failure.
func (s *Server) decodeAndValidate(w http.ResponseWriter, r *http.Request, out any) bool {
	if err := decodeJSON(r, out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	if err := s.validate.Struct(out); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return false
	}
	return true
}

func bearerToken(header string) string {
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func decodeJSON(r *http.Request, out any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(out)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
