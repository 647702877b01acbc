package generator

import (
	"context"
	"fmt"
	"strings"

	"recruit_proctor/internal/domain/model"

	"google.golang.org/genai"
)

type GeminiGenerator struct {
	client *genai.Client
	model  string
}

func NewGeminiGenerator(ctx context.Context, apiKey, modelName string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is not set")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating gemini client: %w", err)
	}
	return &GeminiGenerator{client: client, model: modelName}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, exam *model.Exam) ([]model.Question, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(buildPrompt(exam)), &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	})
	if err != nil {
		return nil, fmt.Errorf("gemini generate content: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyResult
	}
	questions, err := ParseQuestions(text)
	if err != nil {
		return nil, err
	}
	if len(questions) > exam.QuestionCount && exam.QuestionCount > 0 {
		questions = questions[:exam.QuestionCount]
	}
	return questions, nil
}

func buildPrompt(exam *model.Exam) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are writing a screening exam for the role %q.\n", exam.Role)
	fmt.Fprintf(&b, "Exam title: %s\n", exam.Title)
	fmt.Fprintf(&b, "Difficulty: %s\n", exam.Difficulty)
	fmt.Fprintf(&b, "Write exactly %d questions.\n", exam.QuestionCount)
	b.WriteString(`Respond with a JSON array only. Each element has the fields:
  "type": one of "mcq", "short_answer", "coding",
  "prompt": the question text,
  "options": an array of choices (mcq only),
  "answer": the expected answer,
  "points": an integer weight.`)
	return b.String()
}
