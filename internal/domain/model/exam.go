package model

import (
	"time"
)

type ExamDifficulty string
type ExamStatus string

const (
	DifficultyEasy   ExamDifficulty = "Easy"
	DifficultyMedium ExamDifficulty = "Medium"
	DifficultyHard   ExamDifficulty = "Hard"

	ExamStatusDraft         ExamStatus = "DRAFT"
	ExamStatusGenerating    ExamStatus = "GENERATING"
	ExamStatusReady         ExamStatus = "READY"
	ExamStatusReadyFallback ExamStatus = "READY_FALLBACK"
	ExamStatusError         ExamStatus = "ERROR"
)

func (d ExamDifficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard:
		return true
	}
	return false
}

// Assignable reports whether candidates may be assigned an exam in this status.
func (s ExamStatus) Assignable() bool {
	return s == ExamStatusReady || s == ExamStatusReadyFallback
}

// CanStartGeneration reports whether a (re)generation may begin from s.
// READY exams are final and GENERATING exams already have a job in flight.
func (s ExamStatus) CanStartGeneration() bool {
	return s != ExamStatusGenerating && s != ExamStatusReady
}

type QuestionType string

const (
	QuestionMultipleChoice QuestionType = "mcq"
	QuestionShortAnswer    QuestionType = "short_answer"
	QuestionCoding         QuestionType = "coding"
)

type Question struct {
	ID      string       `json:"id"`
	Type    QuestionType `json:"type"`
	Prompt  string       `json:"prompt"`
	Options []string     `json:"options,omitempty"`
	Answer  string       `json:"answer,omitempty"` // Admin only view
	Points  int          `json:"points"`
}

type Exam struct {
	ID                 string         `json:"id"`
	Title              string         `json:"title"`
	Slug               string         `json:"slug"`
	Role               string         `json:"role"`
	Difficulty         ExamDifficulty `json:"difficulty"`
	QuestionCount      int            `json:"question_count"`
	AutoPublish        bool           `json:"auto_publish"`
	Questions          []Question     `json:"questions"`
	Status             ExamStatus     `json:"status"`
	GenerationAttempts int            `json:"generation_attempts"`
	LastError          *string        `json:"last_error,omitempty"`
	CreatedByID        *string        `json:"created_by_id,omitempty"`
	CreatedAt          time.Time      `json:"created_at"`
	UpdatedAt          time.Time      `json:"updated_at"`
}
