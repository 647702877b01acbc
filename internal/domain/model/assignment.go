package model

import "time"

type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentActive     AssignmentStatus = "active"
	AssignmentPaused     AssignmentStatus = "paused"
	AssignmentCancelled  AssignmentStatus = "cancelled"
	AssignmentTerminated AssignmentStatus = "terminated"
	AssignmentCompleted  AssignmentStatus = "completed"
)

// Terminal statuses have no outgoing transitions.
func (s AssignmentStatus) Terminal() bool {
	switch s {
	case AssignmentCancelled, AssignmentTerminated, AssignmentCompleted:
		return true
	}
	return false
}

type AdminAction string

const (
	AdminActionPause     AdminAction = "pause"
	AdminActionResume    AdminAction = "resume"
	AdminActionTerminate AdminAction = "terminate"
)

type ProctoringConfig struct {
	Camera    bool `json:"camera"`
	Mic       bool `json:"mic"`
	TabSwitch bool `json:"tab_switch"`
	CopyPaste bool `json:"copy_paste"`
}

func DefaultProctoringConfig() ProctoringConfig {
	return ProctoringConfig{Camera: false, Mic: false, TabSwitch: true, CopyPaste: true}
}

type ExamAssignment struct {
	ID               string           `json:"id"`
	ExamID           string           `json:"exam_id"`
	CandidateID      string           `json:"candidate_id"`
	ApplicationID    *string          `json:"application_id,omitempty"`
	Status           AssignmentStatus `json:"status"`
	ScheduledAt      *time.Time       `json:"scheduled_at,omitempty"`
	ProctoringConfig ProctoringConfig `json:"proctoring_config"`
	AdminRemarks     *string          `json:"admin_remarks,omitempty"`
	StartedAt        *time.Time       `json:"started_at,omitempty"`
	CompletedAt      *time.Time       `json:"completed_at,omitempty"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
}
