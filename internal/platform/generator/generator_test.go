package generator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"recruit_proctor/internal/domain/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCleanJSON(t *testing.T) {
	cases := map[string]string{
		"plain":        `[{"prompt":"a"}]`,
		"json fence":   "```json\n[{\"prompt\":\"a\"}]\n```",
		"bare fence":   "```\n[{\"prompt\":\"a\"}]\n```",
		"extra spaces": "  \n[{\"prompt\":\"a\"}]  ",
	}
	for name, in := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, `[{"prompt":"a"}]`, CleanJSON(in))
		})
	}
}

func TestParseQuestions_FillsDefaults(t *testing.T) {
	raw := "```json\n" + `[
		{"prompt": "What is a goroutine?"},
		{"id": "q-2", "type": "mcq", "prompt": "Pick one", "options": ["a","b"], "answer": "a", "points": 3},
		{"prompt": "   "}
	]` + "\n```"

	questions, err := ParseQuestions(raw)
	require.NoError(t, err)
	require.Len(t, questions, 2)

	assert.NotEmpty(t, questions[0].ID)
	assert.Equal(t, model.QuestionShortAnswer, questions[0].Type)
	assert.Equal(t, 1, questions[0].Points)

	assert.Equal(t, "q-2", questions[1].ID)
	assert.Equal(t, model.QuestionMultipleChoice, questions[1].Type)
	assert.Equal(t, 3, questions[1].Points)
}

func TestParseQuestions_Errors(t *testing.T) {
	_, err := ParseQuestions("not json")
	assert.Error(t, err)

	_, err = ParseQuestions(`[]`)
	assert.ErrorIs(t, err, ErrEmptyResult)

	_, err = ParseQuestions(`[{"prompt": ""}]`)
	assert.ErrorIs(t, err, ErrEmptyResult)
}

func TestFallbackBank_Pick(t *testing.T) {
	bank := DefaultFallbackBank()

	picked := bank.Pick(model.DifficultyMedium, 2)
	require.Len(t, picked, 2)
	again := bank.Pick(model.DifficultyMedium, 2)
	assert.NotEqual(t, picked[0].ID, again[0].ID, "each pick gets fresh question IDs")

	assert.Len(t, bank.Pick(model.DifficultyHard, 50), 3)
	assert.Len(t, bank.Pick(model.DifficultyEasy, 0), 3)
	assert.Nil(t, bank.Pick("Impossible", 5))

	var nilBank *FallbackBank
	assert.Nil(t, nilBank.Pick(model.DifficultyEasy, 1))
}

func TestFallbackBank_PickCopiesOptions(t *testing.T) {
	bank := NewFallbackBank(map[model.ExamDifficulty][]model.Question{
		model.DifficultyEasy: {{Prompt: "p", Options: []string{"a", "b"}}},
	})
	picked := bank.Pick(model.DifficultyEasy, 1)
	picked[0].Options[0] = "changed"

	assert.Equal(t, "a", bank.Pick(model.DifficultyEasy, 1)[0].Options[0])
}

func TestLoadFallbackBank(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bank.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Hard":[{"prompt":"Explain consensus."}]}`), 0o600))

	bank, err := LoadFallbackBank(path)
	require.NoError(t, err)
	picked := bank.Pick(model.DifficultyHard, 1)
	require.Len(t, picked, 1)
	assert.Equal(t, "Explain consensus.", picked[0].Prompt)

	_, err = LoadFallbackBank(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestWebhookDispatcher_Dispatch(t *testing.T) {
	var got DispatchRequest
	var secret string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret = r.Header.Get("X-Webhook-Secret")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, "http://api/callback", "s3cret", srv.Client())
	exam := &model.Exam{ID: "exam-1", Title: "Go", Role: "backend", Difficulty: model.DifficultyHard, QuestionCount: 5}

	require.NoError(t, d.Dispatch(context.Background(), "job-1", exam))
	assert.Equal(t, "s3cret", secret)
	assert.Equal(t, "job-1", got.JobID)
	assert.Equal(t, "exam-1", got.ExamID)
	assert.Equal(t, "http://api/callback", got.CallbackURL)
	assert.Equal(t, 5, got.QuestionCount)
}

func TestWebhookDispatcher_RejectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	d := NewWebhookDispatcher(srv.URL, "", "", nil)
	err := d.Dispatch(context.Background(), "job-1", &model.Exam{ID: "exam-1"})
	assert.Error(t, err)
}
