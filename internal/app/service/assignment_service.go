package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type AssignmentService struct {
	assignmentRepo repository.AssignmentRepository
	examRepo       repository.ExamRepository
	appRepo        repository.ApplicationRepository
	logRepo        repository.ProctorLogRepository
	txr            repository.Transactor
	log            *zap.Logger
	now            func() time.Time
}

func NewAssignmentService(
	assignmentRepo repository.AssignmentRepository,
	examRepo repository.ExamRepository,
	appRepo repository.ApplicationRepository,
	logRepo repository.ProctorLogRepository,
	txr repository.Transactor,
	log *zap.Logger,
	now func() time.Time,
) *AssignmentService {
	if now == nil {
		now = time.Now
	}
	return &AssignmentService{
		assignmentRepo: assignmentRepo,
		examRepo:       examRepo,
		appRepo:        appRepo,
		logRepo:        logRepo,
		txr:            txr,
		log:            log,
		now:            now,
	}
}

// ProctoringConfigOverride lets the admin override individual defaults.
type ProctoringConfigOverride struct {
	Camera    *bool `json:"camera,omitempty"`
	Mic       *bool `json:"mic,omitempty"`
	TabSwitch *bool `json:"tab_switch,omitempty"`
	CopyPaste *bool `json:"copy_paste,omitempty"`
}

func (o *ProctoringConfigOverride) apply(cfg model.ProctoringConfig) model.ProctoringConfig {
	if o == nil {
		return cfg
	}
	if o.Camera != nil {
		cfg.Camera = *o.Camera
	}
	if o.Mic != nil {
		cfg.Mic = *o.Mic
	}
	if o.TabSwitch != nil {
		cfg.TabSwitch = *o.TabSwitch
	}
	if o.CopyPaste != nil {
		cfg.CopyPaste = *o.CopyPaste
	}
	return cfg
}

type AssignExamRequest struct {
	ExamID           string                    `json:"examId"`
	CandidateID      string                    `json:"candidateId"`
	ApplicationID    *string                   `json:"applicationId,omitempty"`
	ScheduledAt      *time.Time                `json:"scheduledAt,omitempty"`
	AdminRemarks     *string                   `json:"adminRemarks,omitempty"`
	ProctoringConfig *ProctoringConfigOverride `json:"proctoringConfig,omitempty"`
}

type WithdrawResponse struct {
	ApplicationID        string                  `json:"application_id"`
	Status               model.ApplicationStatus `json:"status"`
	CancelledAssignments []string                `json:"cancelled_assignments"`
}

// Assign attaches a candidate to a ready exam. Preconditions are checked in a
// fixed order so each failure has a distinct error: exam exists, no open
// assignment for the pair, exam ready, exam has questions.
func (s *AssignmentService) Assign(ctx context.Context, req AssignExamRequest, actor string) (*model.ExamAssignment, error) {
	req.ExamID = strings.TrimSpace(req.ExamID)
	req.CandidateID = strings.TrimSpace(req.CandidateID)
	if req.ExamID == "" || req.CandidateID == "" {
		return nil, fmt.Errorf("examId and candidateId are required: %w", common.ErrValidation)
	}

	exam, err := s.examRepo.FindExamByID(ctx, req.ExamID)
	if err != nil {
		return nil, err
	}

	if _, err := s.assignmentRepo.FindOpenAssignment(ctx, req.ExamID, req.CandidateID); err == nil {
		return nil, common.ErrAlreadyAssigned
	} else if !errors.Is(err, common.ErrNotFound) {
		return nil, err
	}

	if !exam.Status.Assignable() {
		return nil, common.NewStateConflict("exam", "assign", string(exam.Status), common.ErrExamNotReady)
	}
	if len(exam.Questions) == 0 {
		return nil, common.ErrExamHasNoQuestions
	}

	now := s.now()
	assignment := &model.ExamAssignment{
		ID:               uuid.NewString(),
		ExamID:           exam.ID,
		CandidateID:      req.CandidateID,
		ApplicationID:    req.ApplicationID,
		Status:           model.AssignmentAssigned,
		ScheduledAt:      req.ScheduledAt,
		ProctoringConfig: req.ProctoringConfig.apply(model.DefaultProctoringConfig()),
		AdminRemarks:     req.AdminRemarks,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.assignmentRepo.CreateAssignment(ctx, tx, assignment); err != nil {
			return err
		}
		entry := newLogEntry(assignment.ID, model.EventExamAssigned, actor, map[string]any{
			"exam_id":      exam.ID,
			"candidate_id": req.CandidateID,
		}, now)
		return s.logRepo.Append(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info("Exam assigned",
		zap.String("assignment_id", assignment.ID), zap.String("exam_id", exam.ID), zap.String("candidate_id", req.CandidateID))
	s.mirrorApplication(ctx, req.CandidateID, req.ApplicationID, exam.Role, model.ApplicationExamAssigned)
	return assignment, nil
}

// mirrorApplication copies a milestone onto the candidate's application. It
// never fails the caller.
func (s *AssignmentService) mirrorApplication(ctx context.Context, candidateID string, applicationID *string, role string, status model.ApplicationStatus) {
	var app *model.Application
	var err error
	if applicationID != nil && *applicationID != "" {
		app, err = s.appRepo.FindByID(ctx, *applicationID)
		if err == nil && app.CandidateID != candidateID {
			err = fmt.Errorf("application %s belongs to another candidate", app.ID)
		}
	} else {
		app, err = s.appRepo.FindOpenByCandidateRole(ctx, candidateID, role)
	}
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			s.log.Debug("No application to mirror onto", zap.String("candidate_id", candidateID), zap.String("role", role))
			return
		}
		s.log.Warn("Application lookup for mirror failed", zap.String("candidate_id", candidateID), zap.Error(err))
		return
	}
	if app.Status.Terminal() || app.Status == status {
		return
	}
	if err := s.appRepo.UpdateStatus(ctx, nil, app.ID, status); err != nil {
		s.log.Warn("Failed to mirror application status",
			zap.String("application_id", app.ID), zap.String("status", string(status)), zap.Error(err))
	}
}

// Withdraw moves the candidate's application to WITHDRAWN and cancels their
// not-yet-started assignments for exams of the same role. Active attempts
// are left alone.
func (s *AssignmentService) Withdraw(ctx context.Context, candidateID, applicationID string) (*WithdrawResponse, error) {
	app, err := s.appRepo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.CandidateID != candidateID {
		return nil, fmt.Errorf("application %s: %w", applicationID, common.ErrForbidden)
	}
	if app.Status.Terminal() {
		return nil, common.NewStateConflict("application", "withdraw", string(app.Status), common.ErrIllegalTransition)
	}

	now := s.now()
	var cancelled []string
	err = s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.appRepo.UpdateStatus(ctx, tx, app.ID, model.ApplicationWithdrawn); err != nil {
			return err
		}
		ids, err := s.assignmentRepo.CancelAssignedForRole(ctx, tx, candidateID, app.Role)
		if err != nil {
			return err
		}
		for _, id := range ids {
			entry := newLogEntry(id, model.EventAssignmentCanceled, candidateID, map[string]any{
				"reason":         "application withdrawn",
				"application_id": app.ID,
			}, now)
			if err := s.logRepo.Append(ctx, tx, entry); err != nil {
				return err
			}
		}
		cancelled = ids
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to withdraw application %s: %w", applicationID, err)
	}
	if cancelled == nil {
		cancelled = []string{}
	}

	s.log.Info("Application withdrawn",
		zap.String("application_id", app.ID), zap.Int("cancelled_assignments", len(cancelled)))
	return &WithdrawResponse{ApplicationID: app.ID, Status: model.ApplicationWithdrawn, CancelledAssignments: cancelled}, nil
}

func (s *AssignmentService) ownAssignment(ctx context.Context, assignmentID, candidateID string) (*model.ExamAssignment, error) {
	a, err := s.assignmentRepo.FindAssignmentByID(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	if a.CandidateID != candidateID {
		// Do not reveal other candidates' assignments.
		return nil, common.ErrAssignmentNotFound
	}
	return a, nil
}

// Start opens the attempt. It refuses before the scheduled time.
func (s *AssignmentService) Start(ctx context.Context, assignmentID, candidateID string) (*model.ExamAssignment, error) {
	a, err := s.ownAssignment(ctx, assignmentID, candidateID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AssignmentAssigned {
		return nil, common.NewStateConflict("assignment", "start", string(a.Status), common.ErrIllegalTransition)
	}
	now := s.now()
	if a.ScheduledAt != nil && now.Before(*a.ScheduledAt) {
		return nil, fmt.Errorf("opens at %s: %w", a.ScheduledAt.UTC().Format(time.RFC3339), common.ErrExamWindowNotOpen)
	}

	if err := s.stamp(ctx, a, now, model.EventAttemptStarted, s.assignmentRepo.MarkStarted); err != nil {
		return nil, err
	}
	a.Status = model.AssignmentActive
	a.StartedAt = &now
	return a, nil
}

// Complete closes an active attempt and mirrors EXAM_COMPLETED.
func (s *AssignmentService) Complete(ctx context.Context, assignmentID, candidateID string) (*model.ExamAssignment, error) {
	a, err := s.ownAssignment(ctx, assignmentID, candidateID)
	if err != nil {
		return nil, err
	}
	if a.Status != model.AssignmentActive {
		return nil, common.NewStateConflict("assignment", "complete", string(a.Status), common.ErrIllegalTransition)
	}

	now := s.now()
	if err := s.stamp(ctx, a, now, model.EventAttemptCompleted, s.assignmentRepo.MarkCompleted); err != nil {
		return nil, err
	}
	a.Status = model.AssignmentCompleted
	a.CompletedAt = &now

	if exam, err := s.examRepo.FindExamByID(ctx, a.ExamID); err == nil {
		s.mirrorApplication(ctx, a.CandidateID, a.ApplicationID, exam.Role, model.ApplicationExamCompleted)
	} else {
		s.log.Warn("Exam lookup for completion mirror failed", zap.String("exam_id", a.ExamID), zap.Error(err))
	}
	return a, nil
}

type stampFunc func(ctx context.Context, tx *sql.Tx, id string, at time.Time) (bool, error)

func (s *AssignmentService) stamp(ctx context.Context, a *model.ExamAssignment, now time.Time, event string, mark stampFunc) error {
	var applied bool
	err := s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		ok, err := mark(ctx, tx, a.ID, now)
		if err != nil || !ok {
			applied = ok
			return err
		}
		applied = true
		return s.logRepo.Append(ctx, tx, newLogEntry(a.ID, event, a.CandidateID, nil, now))
	})
	if err != nil {
		return err
	}
	if !applied {
		// Lost a race with an admin action.
		current := a.Status
		if fresh, ferr := s.assignmentRepo.FindAssignmentByID(ctx, a.ID); ferr == nil {
			current = fresh.Status
		}
		op := "start"
		if event == model.EventAttemptCompleted {
			op = "complete"
		}
		return common.NewStateConflict("assignment", op, string(current), common.ErrIllegalTransition)
	}
	return nil
}

func (s *AssignmentService) ListMine(ctx context.Context, candidateID string) ([]model.ExamAssignment, error) {
	return s.assignmentRepo.ListByCandidate(ctx, candidateID)
}

func (s *AssignmentService) ListForExam(ctx context.Context, examID string) ([]model.ExamAssignment, error) {
	if _, err := s.examRepo.FindExamByID(ctx, examID); err != nil {
		return nil, err
	}
	return s.assignmentRepo.ListByExam(ctx, examID)
}

// OpenAttempt returns the candidate's assignment for examID if it has not
// ended. It gates the desktop side of the signaling channel.
func (s *AssignmentService) OpenAttempt(ctx context.Context, examID, candidateID string) (*model.ExamAssignment, error) {
	a, err := s.assignmentRepo.FindOpenAssignment(ctx, examID, candidateID)
	if err != nil {
		return nil, err
	}
	if a.Status.Terminal() {
		return nil, common.NewStateConflict("assignment", "join", string(a.Status), common.ErrIllegalTransition)
	}
	return a, nil
}
