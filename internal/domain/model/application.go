package model

import "time"

type ApplicationStatus string

const (
	ApplicationApplied       ApplicationStatus = "APPLIED"
	ApplicationScreening     ApplicationStatus = "SCREENING"
	ApplicationExamAssigned  ApplicationStatus = "EXAM_ASSIGNED"
	ApplicationExamCompleted ApplicationStatus = "EXAM_COMPLETED"
	ApplicationInterview     ApplicationStatus = "INTERVIEW"
	ApplicationOffered       ApplicationStatus = "OFFERED"
	ApplicationHired         ApplicationStatus = "HIRED"
	ApplicationRejected      ApplicationStatus = "REJECTED"
	ApplicationWithdrawn     ApplicationStatus = "WITHDRAWN"
)

func (s ApplicationStatus) Terminal() bool {
	switch s {
	case ApplicationHired, ApplicationRejected, ApplicationWithdrawn:
		return true
	}
	return false
}

type Application struct {
	ID          string            `json:"id"`
	CandidateID string            `json:"candidate_id"`
	Role        string            `json:"role"`
	Status      ApplicationStatus `json:"status"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}
