package handler

import (
	"net/http"

	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"

	"github.com/go-chi/chi/v5"
)

// ProctorHandler serves the admin console: session liveness, control
// actions and the audit trail.
type ProctorHandler struct {
	tracker *service.SessionTracker
	control *service.AdminControlService
}

func NewProctorHandler(tracker *service.SessionTracker, control *service.AdminControlService) *ProctorHandler {
	return &ProctorHandler{tracker: tracker, control: control}
}

// RegisterSessionRoutes mounts /proctor.
func (h *ProctorHandler) RegisterSessionRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.AdminOnly)
	r.Get("/sessions/{assignmentID}", h.getSession)
}

// RegisterAdminRoutes mounts /admin.
func (h *ProctorHandler) RegisterAdminRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.AdminOnly)
	r.Post("/control", h.applyControl)
	r.Get("/logs/{assignmentID}", h.listLogs)
}

func (h *ProctorHandler) getSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.tracker.GetSession(r.Context(), chi.URLParam(r, "assignmentID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, view)
}

func (h *ProctorHandler) applyControl(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.GetUserIDFromContext(r.Context())

	var req service.AdminControlRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.control.Apply(r.Context(), req, adminID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *ProctorHandler) listLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := h.control.ListLogs(r.Context(), chi.URLParam(r, "assignmentID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, entries)
}
