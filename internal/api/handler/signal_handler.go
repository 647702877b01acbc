package handler

import (
	"net/http"

	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/app/signaling"
	"recruit_proctor/internal/common"
	"recruit_proctor/internal/common/security"
	"recruit_proctor/internal/domain/model"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"
)

// SignalHandler upgrades authenticated clients onto an exam's signaling
// channel. Phones present the pairing token; desktops and admins present
// the portal JWT.
type SignalHandler struct {
	hub               *signaling.Hub
	pairingService    *service.PairingService
	assignmentService *service.AssignmentService
	log               *zap.Logger
}

func NewSignalHandler(hub *signaling.Hub, ps *service.PairingService, as *service.AssignmentService, log *zap.Logger) *SignalHandler {
	return &SignalHandler{hub: hub, pairingService: ps, assignmentService: as, log: log}
}

func (h *SignalHandler) RegisterRoutes(r chi.Router) {
	r.Get("/{examID}/ws", h.serveWS)
}

func (h *SignalHandler) serveWS(w http.ResponseWriter, r *http.Request) {
	examID := chi.URLParam(r, "examID")

	id, err := h.identify(r, examID)
	if err != nil {
		common.RespondWithDomainError(w, err)
		return
	}
	if err := h.hub.Serve(w, r, examID, id); err != nil {
		h.log.Warn("Signaling session ended with error", zap.String("exam_id", examID), zap.Error(err))
	}
}

func (h *SignalHandler) identify(r *http.Request, examID string) (signaling.Identity, error) {
	if token := middleware.PairingTokenFromRequest(r); token != "" {
		claims, err := h.pairingService.ViewerClaims(r.Context(), token, examID)
		if err != nil {
			return signaling.Identity{}, err
		}
		return signaling.Identity{PeerID: "viewer-" + claims.UserID, Role: signaling.RoleViewer}, nil
	}

	token, claims, err := jwtauth.FromContext(r.Context())
	if err != nil || token == nil {
		return signaling.Identity{}, common.ErrUnauthorized
	}
	userID, err := security.GetUserIDFromClaims(claims)
	if err != nil {
		return signaling.Identity{}, common.ErrUnauthorized
	}
	role, _ := security.GetUserRoleFromClaims(claims)

	switch role {
	case model.RoleAdmin:
		return signaling.Identity{PeerID: "admin-" + userID, Role: signaling.RoleViewer}, nil
	case model.RoleCandidate:
		if _, err := h.assignmentService.OpenAttempt(r.Context(), examID, userID); err != nil {
			return signaling.Identity{}, err
		}
		return signaling.Identity{PeerID: "host-" + userID, Role: signaling.RoleHost}, nil
	}
	return signaling.Identity{}, common.ErrForbidden
}
