package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"
	"recruit_proctor/internal/platform/metrics"

	"go.uber.org/zap"
)

type AdminControlService struct {
	assignmentRepo repository.AssignmentRepository
	logRepo        repository.ProctorLogRepository
	txr            repository.Transactor
	log            *zap.Logger
	now            func() time.Time
}

func NewAdminControlService(
	assignmentRepo repository.AssignmentRepository,
	logRepo repository.ProctorLogRepository,
	txr repository.Transactor,
	log *zap.Logger,
	now func() time.Time,
) *AdminControlService {
	if now == nil {
		now = time.Now
	}
	return &AdminControlService{assignmentRepo: assignmentRepo, logRepo: logRepo, txr: txr, log: log, now: now}
}

type AdminControlRequest struct {
	AssignmentID string            `json:"assignmentId"`
	Action       model.AdminAction `json:"action"`
	Remarks      *string           `json:"remarks,omitempty"`
}

type AdminControlResponse struct {
	AssignmentID string                 `json:"assignmentId"`
	Status       model.AssignmentStatus `json:"status"`
}

// NextStatus is the admin transition table.
func NextStatus(current model.AssignmentStatus, action model.AdminAction) (model.AssignmentStatus, bool) {
	switch action {
	case model.AdminActionPause:
		if current == model.AssignmentActive {
			return model.AssignmentPaused, true
		}
	case model.AdminActionResume:
		if current == model.AssignmentPaused {
			return model.AssignmentActive, true
		}
	case model.AdminActionTerminate:
		switch current {
		case model.AssignmentAssigned, model.AssignmentActive, model.AssignmentPaused:
			return model.AssignmentTerminated, true
		}
	}
	return "", false
}

func eventFor(action model.AdminAction) string {
	switch action {
	case model.AdminActionPause:
		return model.EventAdminPause
	case model.AdminActionResume:
		return model.EventAdminResume
	default:
		return model.EventAdminTerminate
	}
}

// Apply performs an admin action on an assignment. The row is locked for
// the status change and the audit append so entries for one assignment are
// ordered. Illegal transitions write nothing.
func (s *AdminControlService) Apply(ctx context.Context, req AdminControlRequest, actor string) (*AdminControlResponse, error) {
	switch req.Action {
	case model.AdminActionPause, model.AdminActionResume, model.AdminActionTerminate:
	default:
		return nil, fmt.Errorf("unknown action %q: %w", req.Action, common.ErrValidation)
	}
	if req.AssignmentID == "" {
		return nil, fmt.Errorf("assignmentId is required: %w", common.ErrValidation)
	}

	var (
		next      model.AssignmentStatus
		from      model.AssignmentStatus
		updateErr error
	)
	err := s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		a, err := s.assignmentRepo.FindAssignmentForUpdate(ctx, tx, req.AssignmentID)
		if err != nil {
			return err
		}
		from = a.Status
		var ok bool
		next, ok = NextStatus(a.Status, req.Action)
		if !ok {
			return common.NewStateConflict("assignment", string(req.Action), string(a.Status), common.ErrIllegalTransition)
		}

		if err := s.assignmentRepo.UpdateAssignmentStatus(ctx, tx, a.ID, next, req.Remarks); err != nil {
			updateErr = err
			return err
		}

		details := map[string]any{"from": string(from), "to": string(next)}
		if req.Remarks != nil {
			details["remarks"] = *req.Remarks
		}
		return s.logRepo.Append(ctx, tx, newLogEntry(a.ID, eventFor(req.Action), actor, details, s.now()))
	})
	if err != nil {
		if updateErr != nil {
			s.recordFailure(ctx, req, actor, updateErr)
		}
		result := "error"
		var conflict *common.StateConflictError
		if errors.As(err, &conflict) {
			result = "rejected"
		}
		metrics.AdminActions.WithLabelValues(string(req.Action), result).Inc()
		return nil, err
	}

	metrics.AdminActions.WithLabelValues(string(req.Action), "applied").Inc()
	s.log.Info("Admin action applied",
		zap.String("assignment_id", req.AssignmentID), zap.String("action", string(req.Action)),
		zap.String("from", string(from)), zap.String("to", string(next)), zap.String("actor", actor))
	return &AdminControlResponse{AssignmentID: req.AssignmentID, Status: next}, nil
}

func (s *AdminControlService) recordFailure(ctx context.Context, req AdminControlRequest, actor string, cause error) {
	entry := newLogEntry(req.AssignmentID, model.EventAdminActionFailed, actor, map[string]any{
		"action": string(req.Action),
		"error":  cause.Error(),
	}, s.now())
	if err := s.logRepo.Append(ctx, nil, entry); err != nil {
		s.log.Error("Failed to record failed admin action",
			zap.String("assignment_id", req.AssignmentID), zap.NamedError("cause", cause), zap.Error(err))
	}
}

// ListLogs returns the assignment's audit trail, oldest first.
func (s *AdminControlService) ListLogs(ctx context.Context, assignmentID string) ([]model.ProctorLogEntry, error) {
	if _, err := s.assignmentRepo.FindAssignmentByID(ctx, assignmentID); err != nil {
		return nil, err
	}
	return s.logRepo.ListByAssignment(ctx, assignmentID)
}
