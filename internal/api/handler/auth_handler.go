package handler

import (
	"errors"
	"net/http"

	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"

	"github.com/go-chi/chi/v5"
)

// AuthHandler serves portal accounts. Candidates register themselves; admin
// accounts are provisioned at startup and can only log in.
type AuthHandler struct {
	authService *service.AuthService
}

func NewAuthHandler(authService *service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

func (h *AuthHandler) RegisterRoutes(r chi.Router) {
	r.Post("/signup", h.signup)
	r.Post("/login", h.login)

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.Authenticator)
		authed.Get("/me", h.me)
	})
}

func (h *AuthHandler) signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Signup(r.Context(), req)
	switch {
	case err == nil:
		common.RespondWithJSON(w, http.StatusCreated, resp)
	case errors.Is(err, common.ErrConflict):
		common.RespondWithError(w, http.StatusConflict, "Username or email is already registered")
	case errors.Is(err, common.ErrBadRequest):
		common.RespondWithError(w, http.StatusBadRequest, "username, email and password are required")
	default:
		common.RespondWithDomainError(w, err)
	}
}

// login never says which half of the credentials was wrong.
func (h *AuthHandler) login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.authService.Login(r.Context(), req)
	switch {
	case err == nil:
		common.RespondWithJSON(w, http.StatusOK, resp)
	case errors.Is(err, common.ErrBadRequest):
		common.RespondWithError(w, http.StatusBadRequest, "login_field and password are required")
	case errors.Is(err, common.ErrUnauthorized):
		common.RespondWithError(w, http.StatusUnauthorized, "Invalid username, email or password")
	default:
		common.RespondWithDomainError(w, err)
	}
}

func (h *AuthHandler) me(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	user, err := h.authService.Me(r.Context(), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, user)
}
