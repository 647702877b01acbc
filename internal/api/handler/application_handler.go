package handler

import (
	"net/http"

	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"

	"github.com/go-chi/chi/v5"
)

type ApplicationHandler struct {
	applicationService *service.ApplicationService
	assignmentService  *service.AssignmentService
}

func NewApplicationHandler(aps *service.ApplicationService, as *service.AssignmentService) *ApplicationHandler {
	return &ApplicationHandler{applicationService: aps, assignmentService: as}
}

func (h *ApplicationHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.CandidateOnly)

	r.Post("/", h.apply)
	r.Get("/{applicationID}", h.get)
	r.Post("/{applicationID}/withdraw", h.withdraw)
}

func (h *ApplicationHandler) apply(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req service.CreateApplicationRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	app, err := h.applicationService.Apply(r.Context(), userID, req)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, app)
}

func (h *ApplicationHandler) get(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	app, err := h.applicationService.Get(r.Context(), userID, chi.URLParam(r, "applicationID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, app)
}

func (h *ApplicationHandler) withdraw(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	resp, err := h.assignmentService.Withdraw(r.Context(), userID, chi.URLParam(r, "applicationID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}
