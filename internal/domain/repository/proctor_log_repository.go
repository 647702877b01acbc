package repository

import (
	"context"
	"database/sql"
	"fmt"

	"recruit_proctor/internal/domain/model"
)

// ProctorLogRepository is append-only: there is no update or delete.
type ProctorLogRepository interface {
	Append(ctx context.Context, tx *sql.Tx, entry *model.ProctorLogEntry) error
	ListByAssignment(ctx context.Context, assignmentID string) ([]model.ProctorLogEntry, error)
}

type pgProctorLogRepository struct {
	db *sql.DB
}

func NewPgProctorLogRepository(db *sql.DB) ProctorLogRepository {
	return &pgProctorLogRepository{db: db}
}

func (r *pgProctorLogRepository) Append(ctx context.Context, tx *sql.Tx, entry *model.ProctorLogEntry) error {
	details := string(entry.Details)
	if details == "" {
		details = "{}"
	}
	query := `INSERT INTO proctor_logs (id, assignment_id, event_type, details, actor, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6)`
	_, err := conn(r.db, tx).ExecContext(ctx, query,
		entry.ID, entry.AssignmentID, entry.EventType, details, entry.Actor, entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgProctorLogRepository.Append: %w", err)
	}
	return nil
}

func (r *pgProctorLogRepository) ListByAssignment(ctx context.Context, assignmentID string) ([]model.ProctorLogEntry, error) {
	query := `SELECT id, assignment_id, event_type, details, actor, created_at
	          FROM proctor_logs WHERE assignment_id = $1
	          ORDER BY created_at ASC, seq ASC`
	rows, err := r.db.QueryContext(ctx, query, assignmentID)
	if err != nil {
		return nil, fmt.Errorf("pgProctorLogRepository.ListByAssignment: %w", err)
	}
	defer rows.Close()

	entries := []model.ProctorLogEntry{}
	for rows.Next() {
		var e model.ProctorLogEntry
		var details []byte
		if err := rows.Scan(&e.ID, &e.AssignmentID, &e.EventType, &details, &e.Actor, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("pgProctorLogRepository.ListByAssignment scan: %w", err)
		}
		e.Details = details
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
