package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
)

type ProctoringSessionRepository interface {
	// MarkConnected upserts the session as connected. last_ping only moves
	// forward, and an empty userID keeps the stored one. It reports whether
	// the phone was already marked connected.
	MarkConnected(ctx context.Context, assignmentID, userID string, at time.Time) (wasConnected bool, err error)
	// MarkDisconnected clears the connected flag and leaves last_ping alone.
	// It reports whether the phone was marked connected before the call.
	MarkDisconnected(ctx context.Context, assignmentID string, at time.Time) (wasConnected bool, err error)
	FindSession(ctx context.Context, assignmentID string) (*model.ProctoringSession, error)
}

type pgProctoringSessionRepository struct {
	db *sql.DB
}

func NewPgProctoringSessionRepository(db *sql.DB) ProctoringSessionRepository {
	return &pgProctoringSessionRepository{db: db}
}

// prev locks the existing row so concurrent calls see each other's flag.
const previousSession = `WITH prev AS (
	              SELECT mobile_connected FROM proctoring_sessions WHERE assignment_id = $1 FOR UPDATE
	          ) `

func (r *pgProctoringSessionRepository) MarkConnected(ctx context.Context, assignmentID, userID string, at time.Time) (bool, error) {
	query := previousSession + `INSERT INTO proctoring_sessions (assignment_id, user_id, mobile_connected, last_ping)
	          VALUES ($1, $2, TRUE, $3)
	          ON CONFLICT (assignment_id) DO UPDATE SET
	              user_id = CASE WHEN EXCLUDED.user_id = '' THEN proctoring_sessions.user_id ELSE EXCLUDED.user_id END,
	              mobile_connected = TRUE,
	              last_ping = GREATEST(proctoring_sessions.last_ping, EXCLUDED.last_ping),
	              updated_at = CURRENT_TIMESTAMP
	          RETURNING (SELECT mobile_connected FROM prev)`
	var was sql.NullBool
	if err := r.db.QueryRowContext(ctx, query, assignmentID, userID, at).Scan(&was); err != nil {
		return false, fmt.Errorf("pgProctoringSessionRepository.MarkConnected: %w", err)
	}
	return was.Valid && was.Bool, nil
}

func (r *pgProctoringSessionRepository) MarkDisconnected(ctx context.Context, assignmentID string, at time.Time) (bool, error) {
	// A disconnect for a never-seen assignment still leaves a row behind.
	query := previousSession + `INSERT INTO proctoring_sessions (assignment_id, mobile_connected, last_ping)
	          VALUES ($1, FALSE, $2)
	          ON CONFLICT (assignment_id) DO UPDATE SET
	              mobile_connected = FALSE,
	              updated_at = CURRENT_TIMESTAMP
	          RETURNING (SELECT mobile_connected FROM prev)`
	var was sql.NullBool
	if err := r.db.QueryRowContext(ctx, query, assignmentID, at).Scan(&was); err != nil {
		return false, fmt.Errorf("pgProctoringSessionRepository.MarkDisconnected: %w", err)
	}
	return was.Valid && was.Bool, nil
}

func (r *pgProctoringSessionRepository) FindSession(ctx context.Context, assignmentID string) (*model.ProctoringSession, error) {
	query := `SELECT assignment_id, user_id, mobile_connected, last_ping, created_at, updated_at
	          FROM proctoring_sessions WHERE assignment_id = $1`
	s := &model.ProctoringSession{}
	err := r.db.QueryRowContext(ctx, query, assignmentID).Scan(
		&s.AssignmentID, &s.UserID, &s.MobileConnected, &s.LastPing, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("proctoring session %s: %w", assignmentID, common.ErrNotFound)
		}
		return nil, fmt.Errorf("pgProctoringSessionRepository.FindSession: %w", err)
	}
	return s, nil
}
