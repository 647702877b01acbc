package generator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"recruit_proctor/internal/domain/model"

	"github.com/google/uuid"
)

// ErrEmptyResult is returned when a generator answers without any usable question.
var ErrEmptyResult = errors.New("generator returned no questions")

// Generator produces the question set for an exam. It is opaque to the
// lifecycle: any error is a failed attempt.
type Generator interface {
	Generate(ctx context.Context, exam *model.Exam) ([]model.Question, error)
}

// GeneratorFunc adapts a plain function to Generator.
type GeneratorFunc func(ctx context.Context, exam *model.Exam) ([]model.Question, error)

func (f GeneratorFunc) Generate(ctx context.Context, exam *model.Exam) ([]model.Question, error) {
	return f(ctx, exam)
}

// CleanJSON strips markdown code fences models like to wrap JSON in.
func CleanJSON(input string) string {
	clean := strings.TrimSpace(input)
	if strings.HasPrefix(clean, "```json") {
		clean = strings.TrimPrefix(clean, "```json")
	} else if strings.HasPrefix(clean, "```") {
		clean = strings.TrimPrefix(clean, "```")
	}
	clean = strings.TrimLeft(clean, "\r\n")
	clean = strings.TrimSuffix(clean, "```")
	return strings.TrimSpace(clean)
}

// ParseQuestions decodes a JSON array of questions, fills missing IDs and
// points, and drops entries without a prompt.
func ParseQuestions(raw string) ([]model.Question, error) {
	var decoded []model.Question
	if err := json.Unmarshal([]byte(CleanJSON(raw)), &decoded); err != nil {
		return nil, fmt.Errorf("json unmarshal error: %w", err)
	}
	questions := make([]model.Question, 0, len(decoded))
	for _, q := range decoded {
		if strings.TrimSpace(q.Prompt) == "" {
			continue
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if q.Type == "" {
			q.Type = model.QuestionShortAnswer
		}
		if q.Points <= 0 {
			q.Points = 1
		}
		questions = append(questions, q)
	}
	if len(questions) == 0 {
		return nil, ErrEmptyResult
	}
	return questions, nil
}
