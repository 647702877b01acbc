package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

const (
	defaultQuestionCount = 10
	maxQuestionCount     = 50
)

type ExamService struct {
	examRepo   repository.ExamRepository
	jobService *GenerationJobService
	txr        repository.Transactor
	log        *zap.Logger
}

func NewExamService(examRepo repository.ExamRepository, jobService *GenerationJobService, txr repository.Transactor, log *zap.Logger) *ExamService {
	return &ExamService{examRepo: examRepo, jobService: jobService, txr: txr, log: log}
}

type CreateExamRequest struct {
	Title         string               `json:"title"`
	Role          string               `json:"role"`
	Difficulty    model.ExamDifficulty `json:"difficulty"`
	QuestionCount int                  `json:"question_count"`
	AutoPublish   *bool                `json:"auto_publish,omitempty"`
}

type ExamStatusResponse struct {
	ExamID             string           `json:"exam_id"`
	Status             model.ExamStatus `json:"status"`
	GenerationAttempts int              `json:"generation_attempts"`
	LastError          *string          `json:"last_error,omitempty"`
	QuestionCount      int              `json:"question_count"`
}

type GenerationRequestResponse struct {
	ExamID string           `json:"exam_id"`
	JobID  string           `json:"job_id"`
	Status model.ExamStatus `json:"status"`
}

type PaginatedExamsResponse struct {
	Exams      []model.Exam `json:"exams"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	Limit      int          `json:"limit"`
}

// CreateExam stores a DRAFT exam and requests its first generation in the
// same transaction.
func (s *ExamService) CreateExam(ctx context.Context, req CreateExamRequest, adminID string) (*model.Exam, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.Role = strings.TrimSpace(req.Role)
	if req.Title == "" || req.Role == "" {
		return nil, fmt.Errorf("title and role are required: %w", common.ErrValidation)
	}
	if req.Difficulty == "" {
		req.Difficulty = model.DifficultyMedium
	}
	if !req.Difficulty.Valid() {
		return nil, fmt.Errorf("unknown difficulty %q: %w", req.Difficulty, common.ErrValidation)
	}
	if req.QuestionCount == 0 {
		req.QuestionCount = defaultQuestionCount
	}
	if req.QuestionCount < 1 || req.QuestionCount > maxQuestionCount {
		return nil, fmt.Errorf("question_count must be between 1 and %d: %w", maxQuestionCount, common.ErrValidation)
	}
	autoPublish := true
	if req.AutoPublish != nil {
		autoPublish = *req.AutoPublish
	}

	id := uuid.NewString()
	exam := &model.Exam{
		ID:            id,
		Title:         req.Title,
		Slug:          slug.Make(req.Title) + "-" + id[:8],
		Role:          req.Role,
		Difficulty:    req.Difficulty,
		QuestionCount: req.QuestionCount,
		AutoPublish:   autoPublish,
		Questions:     []model.Question{},
		Status:        model.ExamStatusDraft,
	}
	if adminID != "" {
		exam.CreatedByID = &adminID
	}

	err := s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		if err := s.examRepo.CreateExam(ctx, tx, exam); err != nil {
			return err
		}
		_, err := s.startGeneration(ctx, tx, exam)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create exam: %w", err)
	}

	exam.Status = model.ExamStatusGenerating
	exam.GenerationAttempts = 1
	s.log.Info("Exam created", zap.String("exam_id", exam.ID), zap.String("role", exam.Role))
	return exam, nil
}

// RequestGeneration starts a (re)generation and returns once the GENERATING
// transition and the job are committed. It fails with a state conflict when
// the exam is READY or already GENERATING.
func (s *ExamService) RequestGeneration(ctx context.Context, examID string) (*GenerationRequestResponse, error) {
	exam, err := s.examRepo.FindExamByID(ctx, examID)
	if err != nil {
		return nil, err
	}

	var job *model.GenerationJob
	err = s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		j, err := s.startGeneration(ctx, tx, exam)
		job = j
		return err
	})
	if err != nil {
		var conflict *common.StateConflictError
		if errors.As(err, &conflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to request generation for exam %s: %w", examID, err)
	}
	return &GenerationRequestResponse{ExamID: examID, JobID: job.ID, Status: model.ExamStatusGenerating}, nil
}

func (s *ExamService) startGeneration(ctx context.Context, tx *sql.Tx, exam *model.Exam) (*model.GenerationJob, error) {
	ok, err := s.examRepo.BeginGeneration(ctx, tx, exam.ID)
	if err != nil {
		return nil, err
	}
	if !ok {
		// Someone else won the race or the exam is final; report what is stored now.
		current := exam.Status
		if fresh, ferr := s.examRepo.FindExamByID(ctx, exam.ID); ferr == nil {
			current = fresh.Status
		}
		return nil, common.NewStateConflict("exam", "regenerate", string(current), common.ErrIllegalTransition)
	}
	return s.jobService.EnqueueGenerationJob(ctx, tx, exam.ID)
}

func (s *ExamService) GetExam(ctx context.Context, examID string) (*model.Exam, error) {
	return s.examRepo.FindExamByID(ctx, examID)
}

func (s *ExamService) GetStatus(ctx context.Context, examID string) (*ExamStatusResponse, error) {
	exam, err := s.examRepo.FindExamByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	return &ExamStatusResponse{
		ExamID:             exam.ID,
		Status:             exam.Status,
		GenerationAttempts: exam.GenerationAttempts,
		LastError:          exam.LastError,
		QuestionCount:      len(exam.Questions),
	}, nil
}

func (s *ExamService) ListExams(ctx context.Context, status model.ExamStatus, page, limit int) (*PaginatedExamsResponse, error) {
	if page <= 0 {
		page = 1
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	exams, total, err := s.examRepo.ListExams(ctx, status, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &PaginatedExamsResponse{Exams: exams, TotalCount: total, Page: page, Limit: limit}, nil
}

// Publish moves a reviewed DRAFT exam to READY.
func (s *ExamService) Publish(ctx context.Context, examID string) (*model.Exam, error) {
	exam, err := s.examRepo.FindExamByID(ctx, examID)
	if err != nil {
		return nil, err
	}
	if exam.Status == model.ExamStatusDraft && len(exam.Questions) == 0 {
		return nil, common.ErrExamHasNoQuestions
	}

	ok, err := s.examRepo.Publish(ctx, examID)
	if err != nil {
		return nil, err
	}
	if !ok {
		current := exam.Status
		if fresh, ferr := s.examRepo.FindExamByID(ctx, examID); ferr == nil {
			current = fresh.Status
		}
		return nil, common.NewStateConflict("exam", "publish", string(current), common.ErrIllegalTransition)
	}

	exam.Status = model.ExamStatusReady
	s.log.Info("Exam published", zap.String("exam_id", examID))
	return exam, nil
}
