package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type PairingHandler struct {
	pairingService *service.PairingService
	log            *zap.Logger
}

func NewPairingHandler(ps *service.PairingService, log *zap.Logger) *PairingHandler {
	return &PairingHandler{pairingService: ps, log: log}
}

type pairingTokenRequest struct {
	ExamID string `json:"examId"`
}

type pairingCredential struct {
	Token string `json:"token"`
}

type trackerResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func (h *PairingHandler) RegisterRoutes(r chi.Router) {
	r.Group(func(candidate chi.Router) {
		candidate.Use(middleware.Authenticator)
		candidate.Use(middleware.CandidateOnly)
		candidate.Post("/token", h.issueToken)
	})

	// Mobile endpoints authenticate with the pairing token only.
	r.Post("/verify", h.verify)
	r.Post("/connect", h.connect)
	r.Post("/heartbeat", h.heartbeat)
	r.Post("/disconnect", h.disconnect)
}

func (h *PairingHandler) issueToken(w http.ResponseWriter, r *http.Request) {
	userID, _ := middleware.GetUserIDFromContext(r.Context())

	var req pairingTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	resp, err := h.pairingService.IssueForCandidate(r.Context(), req.ExamID, userID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, resp)
}

// tokenFrom prefers the header or query parameter and falls back to a JSON
// body of the form {"token": "..."}.
func tokenFrom(r *http.Request) string {
	if t := middleware.PairingTokenFromRequest(r); t != "" {
		return t
	}
	var body pairingCredential
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&body)
	}
	return body.Token
}

func (h *PairingHandler) verify(w http.ResponseWriter, r *http.Request) {
	entry, err := h.pairingService.Verify(tokenFrom(r))
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	common.RespondWithJSON(w, http.StatusOK, entry)
}

func (h *PairingHandler) connect(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, "connect", h.pairingService.Connect)
}

func (h *PairingHandler) heartbeat(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, "heartbeat", h.pairingService.Heartbeat)
}

func (h *PairingHandler) disconnect(w http.ResponseWriter, r *http.Request) {
	h.track(w, r, "disconnect", h.pairingService.Disconnect)
}

// track runs a tracker operation and answers with the uniform
// {"success": bool} shape.
func (h *PairingHandler) track(w http.ResponseWriter, r *http.Request, op string, fn func(ctx context.Context, token string) error) {
	err := fn(r.Context(), tokenFrom(r))
	if err == nil {
		common.RespondWithJSON(w, http.StatusOK, trackerResponse{Success: true})
		return
	}

	code := common.HTTPStatusFromError(err)
	msg := err.Error()
	switch {
	case errors.Is(err, common.ErrPairingLinkExpired):
		msg = common.ErrPairingLinkExpired.Error()
	case code == http.StatusInternalServerError:
		h.log.Error("Tracker operation failed", zap.String("op", op), zap.Error(err))
		msg = common.ErrInternalServer.Error()
	}
	common.RespondWithJSON(w, code, trackerResponse{Success: false, Error: msg})
}
