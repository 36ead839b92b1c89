package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/storefront/api/internal/domain"
	"github.com/storefront/api/internal/platform/auth"
	"github.com/storefront/api/internal/platform/httpx"
	"github.com/storefront/api/internal/services"
)

const maxUserRoleBodySize = 1024

// UserHandlers serves the caller's own account.
type UserHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewUserHandlers constructs UserHandlers.
func NewUserHandlers(authn *auth.Authenticator, users services.UserService) *UserHandlers {
	return &UserHandlers{authn: authn, users: users}
}

// Routes registers the /users endpoints.
func (h *UserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	if h.authn != nil {
		r.Use(h.authn.RequireAuth())
	}
	r.Get("/me", h.me)
}

// AdminUserHandlers exposes account management for admins: listing, inspection, role changes, and deletion.
type AdminUserHandlers struct {
	authn *auth.Authenticator
	users services.UserService
}

// NewAdminUserHandlers constructs AdminUserHandlers.
func NewAdminUserHandlers(authn *auth.Authenticator, users services.UserService) *AdminUserHandlers {
	return &AdminUserHandlers{authn: authn, users: users}
}

// Routes registers the /admin/users endpoints.
func (h *AdminUserHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Route("/users", func(g chi.Router) {
		if h.authn != nil {
			g.Use(h.authn.RequireAuth(string(domain.RoleAdmin)))
		}
		g.Get("/", h.listUsers)
		g.Get("/{userID}", h.getUser)
		g.Put("/{userID}/role", h.updateRole)
		g.Delete("/{userID}", h.deleteUser)
	})
}

type userPayload struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Role      string `json:"role"`
	Verified  bool   `json:"verified"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

type userResponse struct {
	Success bool        `json:"success"`
	User    userPayload `json:"user"`
}

type userListResponse struct {
	Success bool          `json:"success"`
	Users   []userPayload `json:"users"`
}

type updateUserRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user seller admin"`
}

func (h *UserHandlers) me(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUserServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	user, err := h.users.SyncUser(ctx, actor)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{Success: true, User: buildUserPayload(user)})
}

func (h *AdminUserHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.users == nil {
		writeUserServiceUnavailable(ctx, w)
		return
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return
	}
	users, err := h.users.ListUsers(ctx, actor)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	payload := make([]userPayload, 0, len(users))
	for _, user := range users {
		payload = append(payload, buildUserPayload(user))
	}
	writeJSONResponse(w, http.StatusOK, userListResponse{Success: true, Users: payload})
}

func (h *AdminUserHandlers) getUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, userID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	user, err := h.users.GetUser(ctx, actor, userID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{Success: true, User: buildUserPayload(user)})
}

func (h *AdminUserHandlers) updateRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, userID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	var req updateUserRoleRequest
	if !decodeRequest(w, r, maxUserRoleBodySize, &req) {
		return
	}
	user, err := h.users.UpdateUserRole(ctx, services.UpdateUserRoleCommand{
		Actor:  actor,
		UserID: userID,
		Role:   domain.Role(req.Role),
	})
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{Success: true, User: buildUserPayload(user)})
}

func (h *AdminUserHandlers) deleteUser(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	actor, userID, ok := h.prepare(w, r)
	if !ok {
		return
	}
	user, err := h.users.DeleteUser(ctx, actor, userID)
	if err != nil {
		writeUserError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, userResponse{Success: true, User: buildUserPayload(user)})
}

func (h *AdminUserHandlers) prepare(w http.ResponseWriter, r *http.Request) (domain.Actor, string, bool) {
	ctx := r.Context()
	if h.users == nil {
		writeUserServiceUnavailable(ctx, w)
		return domain.Actor{}, "", false
	}
	actor, ok := requireActor(ctx, w)
	if !ok {
		return domain.Actor{}, "", false
	}
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))
	if userID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "user id is required", http.StatusBadRequest))
		return domain.Actor{}, "", false
	}
	return actor, userID, true
}

func buildUserPayload(user domain.User) userPayload {
	return userPayload{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Role:      string(user.Role),
		Verified:  user.Verified,
		CreatedAt: formatTime(user.CreatedAt),
		UpdatedAt: formatTime(user.UpdatedAt),
	}
}

func writeUserServiceUnavailable(ctx context.Context, w http.ResponseWriter) {
	httpx.WriteError(ctx, w, httpx.NewError("user_service_unavailable", "user service unavailable", http.StatusServiceUnavailable))
}

func writeUserError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrUserInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrUserForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", "only admins can manage users", http.StatusForbidden))
	case errors.Is(err, services.ErrUserNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("user_not_found", "user not found", http.StatusNotFound))
	case errors.Is(err, services.ErrUserSelfModification):
		httpx.WriteError(ctx, w, httpx.NewError("user_self_modification", "admins cannot change or delete their own account", http.StatusConflict))
	case errors.Is(err, services.ErrUserDirectory):
		httpx.WriteError(ctx, w, httpx.NewError("identity_provider_error", "identity provider rejected the change", http.StatusBadGateway))
	case errors.Is(err, services.ErrUserUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("user_store_unavailable", "user store unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("user_error", "failed to process user request", http.StatusInternalServerError))
	}
}
