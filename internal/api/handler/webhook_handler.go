package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const webhookSecretHeader = "X-Webhook-Secret"

type WebhookHandler struct {
	results *service.GenerationResultService
	secret  string
	log     *zap.Logger
}

func NewWebhookHandler(results *service.GenerationResultService, secret string, log *zap.Logger) *WebhookHandler {
	return &WebhookHandler{results: results, secret: secret, log: log}
}

func (h *WebhookHandler) RegisterRoutes(r chi.Router) {
	r.Post("/generation", h.handleGenerationResult)
}

func (h *WebhookHandler) handleGenerationResult(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		common.RespondWithError(w, http.StatusServiceUnavailable, "Webhook secret not configured")
		return
	}
	got := r.Header.Get(webhookSecretHeader)
	if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
		common.RespondWithError(w, http.StatusUnauthorized, "Invalid webhook secret")
		return
	}

	var payload service.GenerationResultPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.log.Warn("Webhook: invalid payload", zap.Error(err))
		common.RespondWithError(w, http.StatusBadRequest, "Invalid webhook payload")
		return
	}
	defer r.Body.Close()

	status, err := h.results.HandleGenerationResult(r.Context(), payload)
	if err != nil {
		h.log.Error("Webhook: error handling result", zap.String("job_id", payload.JobID), zap.Error(err))
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, map[string]string{
		"message": "Webhook processed for job " + payload.JobID,
		"status":  string(status),
	})
}
