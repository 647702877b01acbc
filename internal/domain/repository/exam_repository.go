package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
)

type ExamRepository interface {
	CreateExam(ctx context.Context, tx *sql.Tx, exam *model.Exam) error
	FindExamByID(ctx context.Context, id string) (*model.Exam, error)
	ListExams(ctx context.Context, status model.ExamStatus, limit, offset int) ([]model.Exam, int, error)

	// BeginGeneration atomically moves the exam to GENERATING unless it is
	// already GENERATING or READY. It reports whether a row changed.
	BeginGeneration(ctx context.Context, tx *sql.Tx, id string) (bool, error)
	// FinishGeneration writes the terminal outcome of a generation, only while
	// the exam is still GENERATING. Nil questions keep the stored ones. It
	// reports whether a row changed.
	FinishGeneration(ctx context.Context, tx *sql.Tx, id string, status model.ExamStatus, questions []model.Question, lastError *string) (bool, error)
	// Publish moves a DRAFT exam that already holds questions to READY.
	Publish(ctx context.Context, id string) (bool, error)
}

type pgExamRepository struct {
	db *sql.DB
}

func NewPgExamRepository(db *sql.DB) ExamRepository {
	return &pgExamRepository{db: db}
}

const examColumns = `id, title, slug, role, difficulty, question_count, auto_publish, questions,
	status, generation_attempts, last_error, created_by, created_at, updated_at`

func scanExam(row interface{ Scan(dest ...any) error }) (*model.Exam, error) {
	e := &model.Exam{}
	var questions []byte
	err := row.Scan(&e.ID, &e.Title, &e.Slug, &e.Role, &e.Difficulty, &e.QuestionCount, &e.AutoPublish, &questions,
		&e.Status, &e.GenerationAttempts, &e.LastError, &e.CreatedByID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(questions) > 0 {
		if err := json.Unmarshal(questions, &e.Questions); err != nil {
			return nil, fmt.Errorf("failed to decode questions for exam %s: %w", e.ID, err)
		}
	}
	if e.Questions == nil {
		e.Questions = []model.Question{}
	}
	return e, nil
}

func encodeQuestions(questions []model.Question) (string, error) {
	if questions == nil {
		questions = []model.Question{}
	}
	b, err := json.Marshal(questions)
	if err != nil {
		return "", fmt.Errorf("failed to encode questions: %w", err)
	}
	return string(b), nil
}

func (r *pgExamRepository) CreateExam(ctx context.Context, tx *sql.Tx, e *model.Exam) error {
	questions, err := encodeQuestions(e.Questions)
	if err != nil {
		return err
	}
	query := `INSERT INTO exams (id, title, slug, role, difficulty, question_count, auto_publish, questions, status, created_by)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	_, err = conn(r.db, tx).ExecContext(ctx, query,
		e.ID, e.Title, e.Slug, e.Role, e.Difficulty, e.QuestionCount, e.AutoPublish, questions, e.Status, e.CreatedByID)
	if err != nil {
		return fmt.Errorf("pgExamRepository.CreateExam: %w", err)
	}
	return nil
}

func (r *pgExamRepository) FindExamByID(ctx context.Context, id string) (*model.Exam, error) {
	query := `SELECT ` + examColumns + ` FROM exams WHERE id = $1`
	exam, err := scanExam(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrExamNotFound
		}
		return nil, fmt.Errorf("pgExamRepository.FindExamByID: %w", err)
	}
	return exam, nil
}

func (r *pgExamRepository) ListExams(ctx context.Context, status model.ExamStatus, limit, offset int) ([]model.Exam, int, error) {
	var total int
	countQuery := `SELECT COUNT(*) FROM exams WHERE ($1 = '' OR status = $1)`
	if err := r.db.QueryRowContext(ctx, countQuery, string(status)).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgExamRepository.ListExams count: %w", err)
	}

	query := `SELECT ` + examColumns + ` FROM exams WHERE ($1 = '' OR status = $1)
	          ORDER BY created_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, string(status), limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("pgExamRepository.ListExams: %w", err)
	}
	defer rows.Close()

	exams := []model.Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("pgExamRepository.ListExams scan: %w", err)
		}
		exams = append(exams, *e)
	}
	return exams, total, rows.Err()
}

func (r *pgExamRepository) BeginGeneration(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	query := `UPDATE exams SET status = $2, generation_attempts = generation_attempts + 1,
	                 last_error = NULL, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 AND status NOT IN ($2, $3)`
	res, err := conn(r.db, tx).ExecContext(ctx, query, id, model.ExamStatusGenerating, model.ExamStatusReady)
	if err != nil {
		return false, fmt.Errorf("pgExamRepository.BeginGeneration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgExamRepository.BeginGeneration rows: %w", err)
	}
	return n == 1, nil
}

func (r *pgExamRepository) FinishGeneration(ctx context.Context, tx *sql.Tx, id string, status model.ExamStatus, questions []model.Question, lastError *string) (bool, error) {
	var encoded *string
	if questions != nil {
		q, err := encodeQuestions(questions)
		if err != nil {
			return false, err
		}
		encoded = &q
	}
	query := `UPDATE exams SET status = $2, questions = COALESCE($3::jsonb, questions), last_error = $4, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 AND status = $5`
	res, err := conn(r.db, tx).ExecContext(ctx, query, id, status, encoded, lastError, model.ExamStatusGenerating)
	if err != nil {
		return false, fmt.Errorf("pgExamRepository.FinishGeneration: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgExamRepository.FinishGeneration rows: %w", err)
	}
	return n == 1, nil
}

func (r *pgExamRepository) Publish(ctx context.Context, id string) (bool, error) {
	query := `UPDATE exams SET status = $2, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 AND status = $3 AND jsonb_array_length(questions) > 0`
	res, err := r.db.ExecContext(ctx, query, id, model.ExamStatusReady, model.ExamStatusDraft)
	if err != nil {
		return false, fmt.Errorf("pgExamRepository.Publish: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("pgExamRepository.Publish rows: %w", err)
	}
	return n == 1, nil
}
