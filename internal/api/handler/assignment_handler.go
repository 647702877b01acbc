package handler

import (
	"net/http"

	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"

	"github.com/go-chi/chi/v5"
)

type AssignmentHandler struct {
	assignmentService *service.AssignmentService
}

func NewAssignmentHandler(as *service.AssignmentService) *AssignmentHandler {
	return &AssignmentHandler{assignmentService: as}
}

func (h *AssignmentHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)

	r.Group(func(admin chi.Router) {
		admin.Use(middleware.AdminOnly)
		admin.Post("/", h.assign)
		admin.Get("/exam/{examID}", h.listForExam)
	})

	r.Group(func(candidate chi.Router) {
		candidate.Use(middleware.CandidateOnly)
		candidate.Get("/me", h.listMine)
		candidate.Post("/{assignmentID}/start", h.start)
		candidate.Post("/{assignmentID}/complete", h.complete)
	})
}

func (h *AssignmentHandler) assign(w http.ResponseWriter, r *http.Request) {
	adminID, _ := middleware.GetUserIDFromContext(r.Context())

	var req service.AssignExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	assignment, err := h.assignmentService.Assign(r.Context(), req, adminID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusCreated, assignment)
}

func (h *AssignmentHandler) listForExam(w http.ResponseWriter, r *http.Request) {
	assignments, err := h.assignmentService.ListForExam(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, assignments)
}

func (h *AssignmentHandler) listMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	assignments, err := h.assignmentService.ListMine(r.Context(), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, assignments)
}

func (h *AssignmentHandler) start(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	assignment, err := h.assignmentService.Start(r.Context(), chi.URLParam(r, "assignmentID"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, assignment)
}

func (h *AssignmentHandler) complete(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())
	assignment, err := h.assignmentService.Complete(r.Context(), chi.URLParam(r, "assignmentID"), userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, assignment)
}
