package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
)

type ApplicationRepository interface {
	Create(ctx context.Context, app *model.Application) error
	FindByID(ctx context.Context, id string) (*model.Application, error)
	// FindOpenByCandidateRole returns the candidate's most recent application
	// for role that is not in a terminal status.
	FindOpenByCandidateRole(ctx context.Context, candidateID, role string) (*model.Application, error)
	UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status model.ApplicationStatus) error
}

type pgApplicationRepository struct {
	db *sql.DB
}

func NewPgApplicationRepository(db *sql.DB) ApplicationRepository {
	return &pgApplicationRepository{db: db}
}

func (r *pgApplicationRepository) Create(ctx context.Context, app *model.Application) error {
	query := `INSERT INTO applications (id, candidate_id, role, status) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, app.ID, app.CandidateID, app.Role, app.Status)
	if err != nil {
		return fmt.Errorf("pgApplicationRepository.Create: %w", err)
	}
	return nil
}

func (r *pgApplicationRepository) FindByID(ctx context.Context, id string) (*model.Application, error) {
	query := `SELECT id, candidate_id, role, status, created_at, updated_at FROM applications WHERE id = $1`
	app := &model.Application{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&app.ID, &app.CandidateID, &app.Role, &app.Status, &app.CreatedAt, &app.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("application %s: %w", id, common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgApplicationRepository.FindByID: %w", err)
	}
	return app, nil
}

func (r *pgApplicationRepository) FindOpenByCandidateRole(ctx context.Context, candidateID, role string) (*model.Application, error) {
	query := `SELECT id, candidate_id, role, status, created_at, updated_at FROM applications
	          WHERE candidate_id = $1 AND role = $2 AND status NOT IN ($3, $4, $5)
	          ORDER BY created_at DESC LIMIT 1`
	app := &model.Application{}
	err := r.db.QueryRowContext(ctx, query, candidateID, role,
		model.ApplicationHired, model.ApplicationRejected, model.ApplicationWithdrawn,
	).Scan(&app.ID, &app.CandidateID, &app.Role, &app.Status, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("open application for role %q: %w", role, common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgApplicationRepository.FindOpenByCandidateRole: %w", err)
	}
	return app, nil
}

func (r *pgApplicationRepository) UpdateStatus(ctx context.Context, tx *sql.Tx, id string, status model.ApplicationStatus) error {
	query := `UPDATE applications SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`
	res, err := conn(r.db, tx).ExecContext(ctx, query, id, status)
	if err != nil {
		return fmt.Errorf("pgApplicationRepository.UpdateStatus: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("application %s: %w", id, common.ErrNotFound)
	}
	return nil
}
