package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
)

type GenerationJobRepository interface {
	CreateJob(ctx context.Context, tx *sql.Tx, job *model.GenerationJob) error
	GetJobByID(ctx context.Context, id string) (*model.GenerationJob, error)
	UpdateJobStatus(ctx context.Context, tx *sql.Tx, jobID string, status string, lastError *string) error
	IncrementJobAttempts(ctx context.Context, tx *sql.Tx, jobID string) error
	// TransitionJobStatus moves the job to status only while it is still in
	// from, and reports whether it did.
	TransitionJobStatus(ctx context.Context, tx *sql.Tx, jobID, from, status string) (bool, error)
}

type pgGenerationJobRepository struct {
	db *sql.DB
}

func NewPgGenerationJobRepository(db *sql.DB) GenerationJobRepository {
	return &pgGenerationJobRepository{db: db}
}

func (r *pgGenerationJobRepository) CreateJob(ctx context.Context, tx *sql.Tx, job *model.GenerationJob) error {
	query := `INSERT INTO generation_jobs (id, exam_id, status, attempts) VALUES ($1, $2, $3, $4)`
	_, err := conn(r.db, tx).ExecContext(ctx, query, job.ID, job.ExamID, job.Status, job.Attempts)
	if err != nil {
		return fmt.Errorf("pgGenerationJobRepository.CreateJob: %w", err)
	}
	return nil
}

func (r *pgGenerationJobRepository) GetJobByID(ctx context.Context, id string) (*model.GenerationJob, error) {
	query := `SELECT id, exam_id, status, attempts, last_error, created_at, updated_at
	          FROM generation_jobs WHERE id = $1`
	job := &model.GenerationJob{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&job.ID, &job.ExamID, &job.Status, &job.Attempts, &job.LastError, &job.CreatedAt, &job.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("generation job %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgGenerationJobRepository.GetJobByID: %w", err)
	}
	return job, nil
}

func (r *pgGenerationJobRepository) UpdateJobStatus(ctx context.Context, tx *sql.Tx, jobID string, status string, lastError *string) error {
	query := `UPDATE generation_jobs SET status = $2, last_error = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := conn(r.db, tx).ExecContext(ctx, query, jobID, status, lastError)
	if err != nil {
		return fmt.Errorf("pgGenerationJobRepository.UpdateJobStatus: %w", err)
	}
	return nil
}

func (r *pgGenerationJobRepository) IncrementJobAttempts(ctx context.Context, tx *sql.Tx, jobID string) error {
	query := `UPDATE generation_jobs SET attempts = attempts + 1, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	_, err := conn(r.db, tx).ExecContext(ctx, query, jobID)
	if err != nil {
		return fmt.Errorf("pgGenerationJobRepository.IncrementJobAttempts: %w", err)
	}
	return nil
}

func (r *pgGenerationJobRepository) TransitionJobStatus(ctx context.Context, tx *sql.Tx, jobID, from, status string) (bool, error) {
	query := `UPDATE generation_jobs SET status = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1 AND status = $2`
	res, err := conn(r.db, tx).ExecContext(ctx, query, jobID, from, status)
	if err != nil {
		return false, fmt.Errorf("pgGenerationJobRepository.TransitionJobStatus: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgGenerationJobRepository.TransitionJobStatus: %w", err)
	}
	return n == 1, nil
}
