package handler

import (
	"net/http"
	"strconv"

	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"

	"github.com/go-chi/chi/v5"
)

type ExamHandler struct {
	examService *service.ExamService
}

func NewExamHandler(es *service.ExamService) *ExamHandler {
	return &ExamHandler{examService: es}
}

// RegisterRoutes mounts admin-only exam management.
func (h *ExamHandler) RegisterRoutes(r chi.Router) {
	r.Use(middleware.Authenticator)
	r.Use(middleware.AdminOnly)

	r.Post("/", h.createExam)
	r.Get("/", h.listExams)
	r.Get("/{examID}", h.getExam)
	r.Get("/{examID}/status", h.getStatus)
	r.Post("/{examID}/retry", h.retryGeneration)
	r.Post("/{examID}/publish", h.publish)
}

func (h *ExamHandler) createExam(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		common.RespondWithError(w, http.StatusUnauthorized, "Missing user context")
		return
	}

	var req service.CreateExamRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	exam, err := h.examService.CreateExam(r.Context(), req, userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, exam)
}

func (h *ExamHandler) listExams(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	status := model.ExamStatus(r.URL.Query().Get("status"))

	resp, err := h.examService.ListExams(r.Context(), status, page, limit)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

func (h *ExamHandler) getExam(w http.ResponseWriter, r *http.Request) {
	exam, err := h.examService.GetExam(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, exam)
}

func (h *ExamHandler) getStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.examService.GetStatus(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, status)
}

// retryGeneration answers 202 once GENERATING is committed; 409 carries the
// current status when a retry is not allowed.
func (h *ExamHandler) retryGeneration(w http.ResponseWriter, r *http.Request) {
	resp, err := h.examService.RequestGeneration(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusAccepted, resp)
}

func (h *ExamHandler) publish(w http.ResponseWriter, r *http.Request) {
	exam, err := h.examService.Publish(r.Context(), chi.URLParam(r, "examID"))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, exam)
}
