package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
)

type AssignmentRepository interface {
	CreateAssignment(ctx context.Context, tx *sql.Tx, a *model.ExamAssignment) error
	FindAssignmentByID(ctx context.Context, id string) (*model.ExamAssignment, error)
	// FindAssignmentForUpdate locks the row for the rest of tx.
	FindAssignmentForUpdate(ctx context.Context, tx *sql.Tx, id string) (*model.ExamAssignment, error)
	// FindOpenAssignment returns the non-cancelled assignment for the pair.
	FindOpenAssignment(ctx context.Context, examID, candidateID string) (*model.ExamAssignment, error)
	UpdateAssignmentStatus(ctx context.Context, tx *sql.Tx, id string, status model.AssignmentStatus, remarks *string) error
	// MarkStarted and MarkCompleted are conditional on the expected prior status.
	MarkStarted(ctx context.Context, tx *sql.Tx, id string, at time.Time) (bool, error)
	MarkCompleted(ctx context.Context, tx *sql.Tx, id string, at time.Time) (bool, error)
	// CancelAssignedForRole cancels the candidate's still-unstarted assignments
	// for exams of the given role and returns their IDs.
	CancelAssignedForRole(ctx context.Context, tx *sql.Tx, candidateID, role string) ([]string, error)
	ListByCandidate(ctx context.Context, candidateID string) ([]model.ExamAssignment, error)
	ListByExam(ctx context.Context, examID string) ([]model.ExamAssignment, error)
}

type pgAssignmentRepository struct {
	db *sql.DB
}

func NewPgAssignmentRepository(db *sql.DB) AssignmentRepository {
	return &pgAssignmentRepository{db: db}
}

const assignmentColumns = `id, exam_id, candidate_id, application_id, status, scheduled_at, proctoring_config,
	admin_remarks, started_at, completed_at, created_at, updated_at`

func scanAssignment(row interface{ Scan(dest ...any) error }) (*model.ExamAssignment, error) {
	a := &model.ExamAssignment{}
	var cfg []byte
	err := row.Scan(&a.ID, &a.ExamID, &a.CandidateID, &a.ApplicationID, &a.Status, &a.ScheduledAt, &cfg,
		&a.AdminRemarks, &a.StartedAt, &a.CompletedAt, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(cfg) > 0 {
		if err := json.Unmarshal(cfg, &a.ProctoringConfig); err != nil {
			return nil, fmt.Errorf("failed to decode proctoring config for assignment %s: %w", a.ID, err)
		}
	}
	return a, nil
}

func (r *pgAssignmentRepository) CreateAssignment(ctx context.Context, tx *sql.Tx, a *model.ExamAssignment) error {
	cfg, err := json.Marshal(a.ProctoringConfig)
	if err != nil {
		return fmt.Errorf("failed to encode proctoring config: %w", err)
	}
	query := `INSERT INTO exam_assignments (id, exam_id, candidate_id, application_id, status, scheduled_at, proctoring_config, admin_remarks)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	_, err = conn(r.db, tx).ExecContext(ctx, query,
		a.ID, a.ExamID, a.CandidateID, a.ApplicationID, a.Status, a.ScheduledAt, string(cfg), a.AdminRemarks)
	if err != nil {
		if common.IsUniqueViolation(err) { // partial unique index on open (exam, candidate) pairs
			return common.ErrAlreadyAssigned
		}
		return fmt.Errorf("pgAssignmentRepository.CreateAssignment: %w", err)
	}
	return nil
}

func (r *pgAssignmentRepository) FindAssignmentByID(ctx context.Context, id string) (*model.ExamAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM exam_assignments WHERE id = $1`
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("pgAssignmentRepository.FindAssignmentByID: %w", err)
	}
	return a, nil
}

func (r *pgAssignmentRepository) FindAssignmentForUpdate(ctx context.Context, tx *sql.Tx, id string) (*model.ExamAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM exam_assignments WHERE id = $1 FOR UPDATE`
	a, err := scanAssignment(conn(r.db, tx).QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("pgAssignmentRepository.FindAssignmentForUpdate: %w", err)
	}
	return a, nil
}

func (r *pgAssignmentRepository) FindOpenAssignment(ctx context.Context, examID, candidateID string) (*model.ExamAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM exam_assignments
	          WHERE exam_id = $1 AND candidate_id = $2 AND status <> $3`
	a, err := scanAssignment(r.db.QueryRowContext(ctx, query, examID, candidateID, model.AssignmentCancelled))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrAssignmentNotFound
		}
		return nil, fmt.Errorf("pgAssignmentRepository.FindOpenAssignment: %w", err)
	}
	return a, nil
}

func (r *pgAssignmentRepository) UpdateAssignmentStatus(ctx context.Context, tx *sql.Tx, id string, status model.AssignmentStatus, remarks *string) error {
	query := `UPDATE exam_assignments SET status = $2, admin_remarks = COALESCE($3, admin_remarks), updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1`
	res, err := conn(r.db, tx).ExecContext(ctx, query, id, status, remarks)
	if err != nil {
		return fmt.Errorf("pgAssignmentRepository.UpdateAssignmentStatus: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.ErrAssignmentNotFound
	}
	return nil
}

func (r *pgAssignmentRepository) conditionalStamp(ctx context.Context, tx *sql.Tx, query, id string, at time.Time, from, to model.AssignmentStatus) (bool, error) {
	res, err := conn(r.db, tx).ExecContext(ctx, query, id, to, at, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (r *pgAssignmentRepository) MarkStarted(ctx context.Context, tx *sql.Tx, id string, at time.Time) (bool, error) {
	query := `UPDATE exam_assignments SET status = $2, started_at = $3, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 AND status = $4`
	ok, err := r.conditionalStamp(ctx, tx, query, id, at, model.AssignmentAssigned, model.AssignmentActive)
	if err != nil {
		return false, fmt.Errorf("pgAssignmentRepository.MarkStarted: %w", err)
	}
	return ok, nil
}

func (r *pgAssignmentRepository) MarkCompleted(ctx context.Context, tx *sql.Tx, id string, at time.Time) (bool, error) {
	query := `UPDATE exam_assignments SET status = $2, completed_at = $3, updated_at = CURRENT_TIMESTAMP
	          WHERE id = $1 AND status = $4`
	ok, err := r.conditionalStamp(ctx, tx, query, id, at, model.AssignmentActive, model.AssignmentCompleted)
	if err != nil {
		return false, fmt.Errorf("pgAssignmentRepository.MarkCompleted: %w", err)
	}
	return ok, nil
}

func (r *pgAssignmentRepository) CancelAssignedForRole(ctx context.Context, tx *sql.Tx, candidateID, role string) ([]string, error) {
	query := `UPDATE exam_assignments a SET status = $3, updated_at = CURRENT_TIMESTAMP
	          FROM exams e
	          WHERE a.exam_id = e.id AND a.candidate_id = $1 AND e.role = $2 AND a.status = $4
	          RETURNING a.id`
	rows, err := conn(r.db, tx).QueryContext(ctx, query, candidateID, role, model.AssignmentCancelled, model.AssignmentAssigned)
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.CancelAssignedForRole: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("pgAssignmentRepository.CancelAssignedForRole scan: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *pgAssignmentRepository) list(ctx context.Context, where string, arg string) ([]model.ExamAssignment, error) {
	query := `SELECT ` + assignmentColumns + ` FROM exam_assignments WHERE ` + where + ` ORDER BY created_at DESC`
	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	assignments := []model.ExamAssignment{}
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		assignments = append(assignments, *a)
	}
	return assignments, rows.Err()
}

func (r *pgAssignmentRepository) ListByCandidate(ctx context.Context, candidateID string) ([]model.ExamAssignment, error) {
	assignments, err := r.list(ctx, "candidate_id = $1", candidateID)
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.ListByCandidate: %w", err)
	}
	return assignments, nil
}

func (r *pgAssignmentRepository) ListByExam(ctx context.Context, examID string) ([]model.ExamAssignment, error) {
	assignments, err := r.list(ctx, "exam_id = $1", examID)
	if err != nil {
		return nil, fmt.Errorf("pgAssignmentRepository.ListByExam: %w", err)
	}
	return assignments, nil
}
