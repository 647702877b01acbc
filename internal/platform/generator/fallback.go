package generator

import (
	"encoding/json"
	"fmt"
	"os"

	"recruit_proctor/internal/domain/model"

	"github.com/google/uuid"
)

// FallbackBank holds pre-written questions per difficulty, used when the
// generator fails and fallback is enabled.
type FallbackBank struct {
	questions map[model.ExamDifficulty][]model.Question
}

func NewFallbackBank(questions map[model.ExamDifficulty][]model.Question) *FallbackBank {
	if questions == nil {
		questions = map[model.ExamDifficulty][]model.Question{}
	}
	return &FallbackBank{questions: questions}
}

// LoadFallbackBank reads a JSON object keyed by difficulty.
func LoadFallbackBank(path string) (*FallbackBank, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read fallback bank %s: %w", path, err)
	}
	var questions map[model.ExamDifficulty][]model.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, fmt.Errorf("failed to decode fallback bank %s: %w", path, err)
	}
	return NewFallbackBank(questions), nil
}

// Pick returns up to count fresh copies of the bank's questions for the
// difficulty. A nil bank or an empty difficulty yields nil.
func (b *FallbackBank) Pick(difficulty model.ExamDifficulty, count int) []model.Question {
	if b == nil {
		return nil
	}
	pool := b.questions[difficulty]
	if len(pool) == 0 {
		return nil
	}
	if count <= 0 || count > len(pool) {
		count = len(pool)
	}
	picked := make([]model.Question, count)
	for i := 0; i < count; i++ {
		q := pool[i]
		q.ID = uuid.NewString()
		if q.Options != nil {
			q.Options = append([]string(nil), q.Options...)
		}
		picked[i] = q
	}
	return picked
}

// DefaultFallbackBank is the built-in bank of role-agnostic questions.
func DefaultFallbackBank() *FallbackBank {
	return NewFallbackBank(map[model.ExamDifficulty][]model.Question{
		model.DifficultyEasy: {
			{Type: model.QuestionMultipleChoice, Prompt: "Which HTTP status code means the resource was not found?", Options: []string{"200", "301", "404", "500"}, Answer: "404", Points: 1},
			{Type: model.QuestionShortAnswer, Prompt: "Describe the difference between a list and a set.", Points: 2},
			{Type: model.QuestionMultipleChoice, Prompt: "What does SQL stand for?", Options: []string{"Structured Query Language", "Simple Query Language", "Sequential Query Logic"}, Answer: "Structured Query Language", Points: 1},
		},
		model.DifficultyMedium: {
			{Type: model.QuestionShortAnswer, Prompt: "Explain what a database index is and when it can slow writes down.", Points: 3},
			{Type: model.QuestionCoding, Prompt: "Write a function that returns the first non-repeating character of a string.", Points: 5},
			{Type: model.QuestionMultipleChoice, Prompt: "Which isolation level prevents non-repeatable reads but allows phantoms?", Options: []string{"Read uncommitted", "Read committed", "Repeatable read", "Serializable"}, Answer: "Repeatable read", Points: 2},
		},
		model.DifficultyHard: {
			{Type: model.QuestionShortAnswer, Prompt: "Design a rate limiter shared by several API instances. Describe data structures and failure modes.", Points: 5},
			{Type: model.QuestionCoding, Prompt: "Implement an LRU cache with O(1) get and put.", Points: 8},
			{Type: model.QuestionShortAnswer, Prompt: "Explain how you would make a queue consumer idempotent under at-least-once delivery.", Points: 5},
		},
	})
}
