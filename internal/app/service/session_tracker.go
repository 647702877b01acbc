package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"

	"go.uber.org/zap"
)

const DefaultLivenessThreshold = 30 * time.Second

// SessionTracker records the phone's connection state per assignment.
// Liveness is computed on read; nothing sweeps stale sessions.
type SessionTracker struct {
	sessionRepo repository.ProctoringSessionRepository
	logRepo     repository.ProctorLogRepository
	threshold   time.Duration
	log         *zap.Logger
	now         func() time.Time
}

func NewSessionTracker(
	sessionRepo repository.ProctoringSessionRepository,
	logRepo repository.ProctorLogRepository,
	threshold time.Duration,
	log *zap.Logger,
	now func() time.Time,
) *SessionTracker {
	if threshold <= 0 {
		threshold = DefaultLivenessThreshold
	}
	if now == nil {
		now = time.Now
	}
	return &SessionTracker{sessionRepo: sessionRepo, logRepo: logRepo, threshold: threshold, log: log, now: now}
}

type SessionView struct {
	*model.ProctoringSession
	Live      bool          `json:"live"`
	Threshold time.Duration `json:"-"`
}

func (t *SessionTracker) Threshold() time.Duration { return t.threshold }

// OnConnect marks the phone connected. Only a change from disconnected (or
// never seen) to connected is written to the audit log.
func (t *SessionTracker) OnConnect(ctx context.Context, assignmentID, userID string) error {
	if assignmentID == "" {
		return fmt.Errorf("assignment id is required: %w", common.ErrValidation)
	}
	now := t.now()
	wasConnected, err := t.sessionRepo.MarkConnected(ctx, assignmentID, userID, now)
	if err != nil {
		return err
	}
	if !wasConnected {
		t.audit(ctx, assignmentID, model.EventMobileConnected, userID, now)
	}
	return nil
}

// OnHeartbeat refreshes last_ping. A heartbeat for an unknown assignment
// creates the session as connected.
func (t *SessionTracker) OnHeartbeat(ctx context.Context, assignmentID string) error {
	if assignmentID == "" {
		return fmt.Errorf("assignment id is required: %w", common.ErrValidation)
	}
	_, err := t.sessionRepo.MarkConnected(ctx, assignmentID, "", t.now())
	return err
}

func (t *SessionTracker) OnDisconnect(ctx context.Context, assignmentID, actor string) error {
	if assignmentID == "" {
		return fmt.Errorf("assignment id is required: %w", common.ErrValidation)
	}
	now := t.now()
	wasConnected, err := t.sessionRepo.MarkDisconnected(ctx, assignmentID, now)
	if err != nil {
		return err
	}
	if wasConnected {
		t.audit(ctx, assignmentID, model.EventMobileDisconnected, actor, now)
	}
	return nil
}

// IsLive reports whether the phone is connected and pinged within the
// threshold. An assignment that never paired is not live.
func (t *SessionTracker) IsLive(ctx context.Context, assignmentID string, now time.Time) (bool, error) {
	s, err := t.sessionRepo.FindSession(ctx, assignmentID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.IsLive(now, t.threshold), nil
}

func (t *SessionTracker) GetSession(ctx context.Context, assignmentID string) (*SessionView, error) {
	s, err := t.sessionRepo.FindSession(ctx, assignmentID)
	if err != nil {
		return nil, err
	}
	return &SessionView{ProctoringSession: s, Live: s.IsLive(t.now(), t.threshold), Threshold: t.threshold}, nil
}

func (t *SessionTracker) audit(ctx context.Context, assignmentID, event, actor string, at time.Time) {
	if actor == "" {
		actor = "mobile"
	}
	if err := t.logRepo.Append(ctx, nil, newLogEntry(assignmentID, event, actor, nil, at)); err != nil {
		t.log.Warn("Failed to append tracker audit entry",
			zap.String("assignment_id", assignmentID), zap.String("event", event), zap.Error(err))
	}
}
