package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/common/security"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"

	"go.uber.org/zap"
)

// PairingService links a candidate's phone to their exam attempt. The token's
// sessionId is the assignment ID, which keys the session tracker.
type PairingService struct {
	tokens         *security.PairingTokens
	assignmentRepo repository.AssignmentRepository
	tracker        *SessionTracker
	log            *zap.Logger
}

func NewPairingService(tokens *security.PairingTokens, assignmentRepo repository.AssignmentRepository, tracker *SessionTracker, log *zap.Logger) *PairingService {
	return &PairingService{tokens: tokens, assignmentRepo: assignmentRepo, tracker: tracker, log: log}
}

type PairingTokenResponse struct {
	Token     string    `json:"token"`
	ExamID    string    `json:"examId"`
	SessionID string    `json:"sessionId"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type PairingEntry struct {
	ExamID    string `json:"examId"`
	UserID    string `json:"userId"`
	SessionID string `json:"sessionId,omitempty"`
}

// IssueForCandidate issues a token for the candidate's open attempt on examID.
func (s *PairingService) IssueForCandidate(ctx context.Context, examID, candidateID string) (*PairingTokenResponse, error) {
	if examID == "" {
		return nil, fmt.Errorf("examId is required: %w", common.ErrValidation)
	}
	a, err := s.assignmentRepo.FindOpenAssignment(ctx, examID, candidateID)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, common.NewStateConflict("assignment", "pair", string(a.Status), common.ErrIllegalTransition)
	}

	token, expiresAt, err := s.tokens.Issue(examID, candidateID, a.ID)
	if err != nil {
		return nil, err
	}
	s.log.Info("Pairing token issued", zap.String("assignment_id", a.ID), zap.Time("expires_at", expiresAt))
	return &PairingTokenResponse{Token: token, ExamID: examID, SessionID: a.ID, ExpiresAt: expiresAt}, nil
}

// Verify returns the pairing entry for a token, or ErrPairingLinkExpired.
func (s *PairingService) Verify(token string) (*PairingEntry, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	return &PairingEntry{ExamID: claims.ExamID, UserID: claims.UserID, SessionID: claims.SessionID}, nil
}

func (s *PairingService) sessionFor(token string) (*security.PairingClaims, error) {
	claims, err := s.tokens.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.SessionID == "" {
		return nil, common.ErrPairingLinkExpired
	}
	return claims, nil
}

// openAttempt loads the token's assignment and refuses attempts that
// already ended.
func (s *PairingService) openAttempt(ctx context.Context, claims *security.PairingClaims, op string) (*model.ExamAssignment, error) {
	a, err := s.assignmentRepo.FindAssignmentByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrPairingLinkExpired
		}
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, common.NewStateConflict("assignment", op, string(a.Status), common.ErrIllegalTransition)
	}
	return a, nil
}

// Connect marks the phone connected. Attempts that already ended cannot pair.
func (s *PairingService) Connect(ctx context.Context, token string) error {
	claims, err := s.sessionFor(token)
	if err != nil {
		return err
	}
	a, err := s.openAttempt(ctx, claims, "pair")
	if err != nil {
		return err
	}
	return s.tracker.OnConnect(ctx, a.ID, claims.UserID)
}

// ViewerClaims authorizes a phone to join examID's signaling channel. The
// token must name that exam and an attempt that has not ended.
func (s *PairingService) ViewerClaims(ctx context.Context, token, examID string) (*security.PairingClaims, error) {
	claims, err := s.sessionFor(token)
	if err != nil {
		return nil, err
	}
	if claims.ExamID != examID {
		return nil, common.ErrPairingLinkExpired
	}
	a, err := s.openAttempt(ctx, claims, "signal")
	if err != nil {
		return nil, err
	}
	if a.ExamID != examID {
		return nil, common.ErrPairingLinkExpired
	}
	return claims, nil
}

func (s *PairingService) Heartbeat(ctx context.Context, token string) error {
	claims, err := s.sessionFor(token)
	if err != nil {
		return err
	}
	return s.tracker.OnHeartbeat(ctx, claims.SessionID)
}

func (s *PairingService) Disconnect(ctx context.Context, token string) error {
	claims, err := s.sessionFor(token)
	if err != nil {
		return err
	}
	return s.tracker.OnDisconnect(ctx, claims.SessionID, claims.UserID)
}
