package service

import (
	"context"
	"database/sql"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"
	"recruit_proctor/internal/platform/queue"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type GenerationJobService struct {
	jobRepo repository.GenerationJobRepository
	queue   queue.JobQueue
	log     *zap.Logger
}

func NewGenerationJobService(jobRepo repository.GenerationJobRepository, q queue.JobQueue, log *zap.Logger) *GenerationJobService {
	return &GenerationJobService{jobRepo: jobRepo, queue: q, log: log}
}

// EnqueueGenerationJob creates a job record inside tx and pushes its ID to the
// queue. A push failure is returned so the caller's transaction rolls back and
// the exam never stays GENERATING without a job.
func (s *GenerationJobService) EnqueueGenerationJob(ctx context.Context, tx *sql.Tx, examID string) (*model.GenerationJob, error) {
	job := &model.GenerationJob{
		ID:     uuid.NewString(),
		ExamID: examID,
		Status: model.JobStatusQueued,
	}

	if err := s.jobRepo.CreateJob(ctx, tx, job); err != nil {
		return nil, common.Errorf("failed to create generation job in DB: %w", err)
	}

	// The message may be consumed before tx commits; the worker retries the
	// job lookup briefly to cover that window.
	if err := s.queue.Enqueue(ctx, job.ID); err != nil {
		return nil, common.Errorf("failed to push generation job ID to queue: %w", err)
	}

	s.log.Info("Generation job enqueued", zap.String("job_id", job.ID), zap.String("exam_id", examID))
	return job, nil
}
