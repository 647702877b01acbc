package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"recruit_proctor/internal/domain/model"
)

// DispatchRequest is posted to an external generator, which answers later on
// the callback URL with a GenerationResultPayload.
type DispatchRequest struct {
	JobID         string               `json:"job_id"`
	ExamID        string               `json:"exam_id"`
	Title         string               `json:"title"`
	Role          string               `json:"role"`
	Difficulty    model.ExamDifficulty `json:"difficulty"`
	QuestionCount int                  `json:"question_count"`
	CallbackURL   string               `json:"callback_url"`
}

// WebhookDispatcher hands generation jobs to an external service over HTTP.
type WebhookDispatcher struct {
	client      *http.Client
	url         string
	callbackURL string
	secret      string
}

func NewWebhookDispatcher(url, callbackURL, secret string, client *http.Client) *WebhookDispatcher {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &WebhookDispatcher{client: client, url: url, callbackURL: callbackURL, secret: secret}
}

func (d *WebhookDispatcher) Dispatch(ctx context.Context, jobID string, exam *model.Exam) error {
	body, err := json.Marshal(DispatchRequest{
		JobID:         jobID,
		ExamID:        exam.ID,
		Title:         exam.Title,
		Role:          exam.Role,
		Difficulty:    exam.Difficulty,
		QuestionCount: exam.QuestionCount,
		CallbackURL:   d.callbackURL,
	})
	if err != nil {
		return fmt.Errorf("failed to encode dispatch request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build dispatch request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if d.secret != "" {
		req.Header.Set("X-Webhook-Secret", d.secret)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to dispatch job %s: %w", jobID, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("generator rejected job %s with status %d", jobID, resp.StatusCode)
	}
	return nil
}
