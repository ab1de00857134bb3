package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jakechorley/incident-desk/pkg/core/model"
	"github.com/jakechorley/incident-desk/pkg/core/services"
)

type createUserRequest struct {
	Username string `json:"username" validate:"required,max=64"`
	Password string `json:"password" validate:"required"`
	Role     string `json:"role" validate:"required"`
	ShiftID  string `json:"shift_id" validate:"required"`
}

type updateUserRequest struct {
	Password *string `json:"password,omitempty"`
	Role     *string `json:"role,omitempty"`
	ShiftID  *string `json:"shift_id,omitempty"`
	Active   *bool   `json:"active,omitempty"`
}

// userResponse never carries the password hash
type userResponse struct {
	Username  string     `json:"username"`
	Role      model.Role `json:"role"`
	ShiftID   string     `json:"shift_id"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
}

func toUserResponse(u model.User) userResponse {
	return userResponse{
		Username:  u.Username,
		Role:      u.Role,
		ShiftID:   u.ShiftID,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
	}
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := services.ListUsers(r.Context(), s.store, principalFromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := services.CreateUser(r.Context(), s.store, s.catalog, s.clock, s.logger, principalFromContext(r.Context()), services.NewUser{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		ShiftID:  req.ShiftID,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUserResponse(*user))
}

func (s *Server) handlePatchUser(w http.ResponseWriter, r *http.Request) {
	var req updateUserRequest
	if !s.decodeAndValidate(w, r, &req) {
		return
	}

	user, err := services.UpdateUser(r.Context(), s.store, s.catalog, s.clock, s.logger, principalFromContext(r.Context()), chi.URLParam(r, "username"), services.UserPatch{
		Password: req.Password,
		Role:     req.Role,
		ShiftID:  req.ShiftID,
		Active:   req.Active,
	})
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserResponse(*user))
}
