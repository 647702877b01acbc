package model

import "time"

const (
	JobStatusQueued          = "Queued"
	JobStatusProcessing      = "Processing"
	JobStatusSentToGenerator = "SentToGenerator" // external generator will call back
	JobStatusCompleted       = "Completed"
	JobStatusFailed          = "Failed"
)

type GenerationJob struct {
	ID        string    `json:"id"`
	ExamID    string    `json:"exam_id"`
	Status    string    `json:"status"`
	Attempts  int       `json:"attempts"`
	LastError *string   `json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
