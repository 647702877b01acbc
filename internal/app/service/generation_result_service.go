package service

import (
	"context"
	"database/sql"
	"fmt"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"
	"recruit_proctor/internal/platform/generator"
	"recruit_proctor/internal/platform/metrics"

	"go.uber.org/zap"
)

// GenerationResultService applies the outcome of a generation job. It is the
// only writer of an exam's terminal generation state, whether the outcome
// comes from the in-process worker or from an external generator's callback.
type GenerationResultService struct {
	examRepo        repository.ExamRepository
	jobRepo         repository.GenerationJobRepository
	txr             repository.Transactor
	fallback        *generator.FallbackBank
	fallbackEnabled bool
	log             *zap.Logger
}

func NewGenerationResultService(
	examRepo repository.ExamRepository,
	jobRepo repository.GenerationJobRepository,
	txr repository.Transactor,
	fallback *generator.FallbackBank,
	fallbackEnabled bool,
	log *zap.Logger,
) *GenerationResultService {
	return &GenerationResultService{
		examRepo:        examRepo,
		jobRepo:         jobRepo,
		txr:             txr,
		fallback:        fallback,
		fallbackEnabled: fallbackEnabled,
		log:             log,
	}
}

// GenerationResultPayload is what an external generator posts back.
type GenerationResultPayload struct {
	JobID     string           `json:"job_id"`
	Success   bool             `json:"success"`
	Questions []model.Question `json:"questions,omitempty"`
	Error     *string          `json:"error,omitempty"`
}

// HandleGenerationResult is the webhook entry point. Results for jobs that
// already finished are ignored.
func (s *GenerationResultService) HandleGenerationResult(ctx context.Context, payload GenerationResultPayload) (model.ExamStatus, error) {
	if payload.JobID == "" {
		return "", fmt.Errorf("job_id is required: %w", common.ErrValidation)
	}
	job, err := s.jobRepo.GetJobByID(ctx, payload.JobID)
	if err != nil {
		return "", err
	}

	var genErr error
	if !payload.Success {
		msg := "generator reported failure"
		if payload.Error != nil && *payload.Error != "" {
			msg = *payload.Error
		}
		genErr = fmt.Errorf("%s", msg)
	}
	return s.Complete(ctx, job, payload.Questions, genErr)
}

// Complete resolves the terminal exam status for a finished job and writes
// it, together with the job's final status, in one transaction. The exam
// write is conditional on GENERATING, so repeated completions are no-ops.
func (s *GenerationResultService) Complete(ctx context.Context, job *model.GenerationJob, questions []model.Question, genErr error) (model.ExamStatus, error) {
	if job.Status == model.JobStatusCompleted || job.Status == model.JobStatusFailed {
		s.log.Warn("Generation job already processed, ignoring result",
			zap.String("job_id", job.ID), zap.String("job_status", job.Status))
		exam, err := s.examRepo.FindExamByID(ctx, job.ExamID)
		if err != nil {
			return "", err
		}
		return exam.Status, nil
	}

	exam, err := s.examRepo.FindExamByID(ctx, job.ExamID)
	if err != nil {
		return "", err
	}

	if genErr == nil && len(questions) == 0 {
		genErr = generator.ErrEmptyResult
	}

	status, finalQuestions, lastError := s.resolve(exam, questions, genErr)
	jobStatus := model.JobStatusCompleted
	if status == model.ExamStatusError {
		jobStatus = model.JobStatusFailed
	}

	var applied bool
	err = s.txr.WithinTx(ctx, func(tx *sql.Tx) error {
		ok, err := s.examRepo.FinishGeneration(ctx, tx, exam.ID, status, finalQuestions, lastError)
		if err != nil {
			return err
		}
		applied = ok
		return s.jobRepo.UpdateJobStatus(ctx, tx, job.ID, jobStatus, lastError)
	})
	if err != nil {
		return "", fmt.Errorf("failed to apply generation result for job %s: %w", job.ID, err)
	}

	if !applied {
		// The exam left GENERATING through another path; keep what is stored.
		s.log.Warn("Exam no longer generating, result discarded",
			zap.String("exam_id", exam.ID), zap.String("job_id", job.ID))
		fresh, err := s.examRepo.FindExamByID(ctx, exam.ID)
		if err != nil {
			return "", err
		}
		return fresh.Status, nil
	}

	metrics.GenerationOutcomes.WithLabelValues(string(status)).Inc()
	fields := []zap.Field{zap.String("exam_id", exam.ID), zap.String("job_id", job.ID), zap.String("status", string(status))}
	if lastError != nil {
		fields = append(fields, zap.String("last_error", *lastError))
	}
	s.log.Info("Generation finished", fields...)
	return status, nil
}

func (s *GenerationResultService) resolve(exam *model.Exam, questions []model.Question, genErr error) (model.ExamStatus, []model.Question, *string) {
	if genErr == nil {
		if exam.AutoPublish {
			return model.ExamStatusReady, questions, nil
		}
		return model.ExamStatusDraft, questions, nil
	}

	msg := genErr.Error()
	if s.fallbackEnabled {
		if fallback := s.fallback.Pick(exam.Difficulty, exam.QuestionCount); len(fallback) > 0 {
			return model.ExamStatusReadyFallback, fallback, &msg
		}
	}
	return model.ExamStatusError, nil, &msg
}
