package model

import (
	"encoding/json"
	"time"
)

// ProctoringSession is the pairing state of the phone for one assignment.
type ProctoringSession struct {
	AssignmentID    string    `json:"assignment_id"`
	UserID          string    `json:"user_id"`
	MobileConnected bool      `json:"mobile_connected"`
	LastPing        time.Time `json:"last_ping"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// IsLive is derived, never stored: connected and pinged within threshold.
func (s *ProctoringSession) IsLive(now time.Time, threshold time.Duration) bool {
	if s == nil || !s.MobileConnected {
		return false
	}
	return now.Sub(s.LastPing) <= threshold
}

const (
	EventExamAssigned       = "EXAM_ASSIGNED"
	EventAssignmentCanceled = "ASSIGNMENT_CANCELLED"
	EventAttemptStarted     = "ATTEMPT_STARTED"
	EventAttemptCompleted   = "ATTEMPT_COMPLETED"
	EventMobileConnected    = "MOBILE_CONNECTED"
	EventMobileDisconnected = "MOBILE_DISCONNECTED"
	EventAdminPause         = "ADMIN_PAUSE"
	EventAdminResume        = "ADMIN_RESUME"
	EventAdminTerminate     = "ADMIN_TERMINATE"
	EventAdminActionFailed  = "ADMIN_ACTION_FAILED"
)

// ProctorLogEntry is write-once.
type ProctorLogEntry struct {
	ID           string          `json:"id"`
	AssignmentID string          `json:"assignment_id"`
	EventType    string          `json:"event_type"`
	Details      json.RawMessage `json:"details"`
	Actor        string          `json:"actor"`
	CreatedAt    time.Time       `json:"created_at"`
}
