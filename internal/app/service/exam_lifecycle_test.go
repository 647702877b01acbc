package service

import (
	"context"
	"errors"
	"testing"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/platform/generator"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type lifecycleHarness struct {
	exams       *fakeExamRepo
	jobs        *fakeJobRepo
	queue       *fakeQueue
	examService *ExamService
	results     *GenerationResultService
}

func newLifecycleHarness(fallback bool) *lifecycleHarness {
	h := &lifecycleHarness{exams: newFakeExamRepo(), jobs: newFakeJobRepo(), queue: &fakeQueue{}}
	log := zap.NewNop()
	jobService := NewGenerationJobService(h.jobs, h.queue, log)
	h.examService = NewExamService(h.exams, jobService, fakeTx{}, log)
	h.results = NewGenerationResultService(h.exams, h.jobs, fakeTx{}, generator.DefaultFallbackBank(), fallback, log)
	return h
}

func (h *lifecycleHarness) lastJob(t *testing.T) *model.GenerationJob {
	t.Helper()
	job, err := h.jobs.GetJobByID(context.Background(), h.queue.last())
	require.NoError(t, err)
	return job
}

func sampleQuestions(n int) []model.Question {
	qs := make([]model.Question, n)
	for i := range qs {
		qs[i] = model.Question{ID: "q" + string(rune('a'+i)), Type: model.QuestionShortAnswer, Prompt: "question", Points: 1}
	}
	return qs
}

func TestCreateExam_StartsGeneration(t *testing.T) {
	h := newLifecycleHarness(false)
	ctx := context.Background()

	exam, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Backend Engineer Screen", Role: "backend"}, "admin-1")
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusGenerating, exam.Status)
	assert.Equal(t, model.DifficultyMedium, exam.Difficulty)
	assert.Equal(t, 10, exam.QuestionCount)
	assert.True(t, exam.AutoPublish)
	assert.Contains(t, exam.Slug, "backend-engineer-screen-")

	stored, err := h.exams.FindExamByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusGenerating, stored.Status)
	assert.Equal(t, 1, stored.GenerationAttempts)

	job := h.lastJob(t)
	assert.Equal(t, exam.ID, job.ExamID)
	assert.Equal(t, model.JobStatusQueued, job.Status)
}

func TestCreateExam_Validation(t *testing.T) {
	h := newLifecycleHarness(false)
	cases := map[string]CreateExamRequest{
		"missing title":  {Role: "backend"},
		"missing role":   {Title: "t"},
		"bad difficulty": {Title: "t", Role: "r", Difficulty: "Impossible"},
		"too many":       {Title: "t", Role: "r", QuestionCount: 51},
		"negative":       {Title: "t", Role: "r", QuestionCount: -1},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.examService.CreateExam(context.Background(), req, "admin-1")
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestCreateExam_QueueFailureIsReported(t *testing.T) {
	h := newLifecycleHarness(false)
	h.queue.err = errors.New("redis down")

	_, err := h.examService.CreateExam(context.Background(), CreateExamRequest{Title: "t", Role: "r"}, "admin-1")
	assert.Error(t, err)
}

// Generation fails, the admin retries, the retry succeeds and the exam can
// then be assigned.
func TestLifecycle_ErrorRetryReady(t *testing.T) {
	h := newLifecycleHarness(false)
	ctx := context.Background()

	exam, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Go", Role: "backend", QuestionCount: 3}, "admin-1")
	require.NoError(t, err)

	status, err := h.results.Complete(ctx, h.lastJob(t), nil, errors.New("model timeout"))
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusError, status)

	st, err := h.examService.GetStatus(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusError, st.Status)
	require.NotNil(t, st.LastError)
	assert.Equal(t, "model timeout", *st.LastError)

	resp, err := h.examService.RequestGeneration(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusGenerating, resp.Status)

	st, err = h.examService.GetStatus(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, st.GenerationAttempts)
	assert.Nil(t, st.LastError)

	retryJob, err := h.jobs.GetJobByID(ctx, resp.JobID)
	require.NoError(t, err)
	status, err = h.results.Complete(ctx, retryJob, sampleQuestions(3), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusReady, status)

	stored, err := h.exams.FindExamByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Questions, 3)

	finished, err := h.jobs.GetJobByID(ctx, resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, model.JobStatusCompleted, finished.Status)
}

func TestRequestGeneration_Guard(t *testing.T) {
	h := newLifecycleHarness(false)
	ctx := context.Background()

	exam, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Go", Role: "backend"}, "admin-1")
	require.NoError(t, err)

	_, err = h.examService.RequestGeneration(ctx, exam.ID)
	require.ErrorIs(t, err, common.ErrConflict)
	current, ok := common.CurrentState(err)
	require.True(t, ok)
	assert.Equal(t, string(model.ExamStatusGenerating), current)

	_, err = h.results.Complete(ctx, h.lastJob(t), sampleQuestions(2), nil)
	require.NoError(t, err)

	_, err = h.examService.RequestGeneration(ctx, exam.ID)
	require.ErrorIs(t, err, common.ErrIllegalTransition)
	current, _ = common.CurrentState(err)
	assert.Equal(t, string(model.ExamStatusReady), current)

	_, err = h.examService.RequestGeneration(ctx, "missing")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestComplete_IsIdempotent(t *testing.T) {
	h := newLifecycleHarness(false)
	ctx := context.Background()

	exam, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Go", Role: "backend"}, "admin-1")
	require.NoError(t, err)
	job := h.lastJob(t)

	_, err = h.results.Complete(ctx, job, sampleQuestions(2), nil)
	require.NoError(t, err)

	// A late failure report for the same job must not flip READY back.
	status, err := h.results.Complete(ctx, h.lastJob(t), nil, errors.New("late failure"))
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusReady, status)

	stored, err := h.exams.FindExamByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusReady, stored.Status)
	assert.Nil(t, stored.LastError)
}

func TestComplete_EmptyResultIsFailure(t *testing.T) {
	h := newLifecycleHarness(false)
	ctx := context.Background()
	_, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Go", Role: "backend"}, "admin-1")
	require.NoError(t, err)

	status, err := h.results.Complete(ctx, h.lastJob(t), []model.Question{}, nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusError, status)
	assert.Equal(t, model.JobStatusFailed, h.lastJob(t).Status)
}

func TestComplete_FallbackBank(t *testing.T) {
	h := newLifecycleHarness(true)
	ctx := context.Background()

	exam, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Go", Role: "backend", Difficulty: model.DifficultyHard, QuestionCount: 2}, "admin-1")
	require.NoError(t, err)

	status, err := h.results.Complete(ctx, h.lastJob(t), nil, errors.New("quota exceeded"))
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusReadyFallback, status)

	stored, err := h.exams.FindExamByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Questions, 2)
	assert.True(t, stored.Status.Assignable())

	// Fallback exams may be regenerated.
	_, err = h.examService.RequestGeneration(ctx, exam.ID)
	assert.NoError(t, err)
}

func TestReviewMode_DraftThenPublish(t *testing.T) {
	h := newLifecycleHarness(false)
	ctx := context.Background()
	manual := false

	exam, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Go", Role: "backend", AutoPublish: &manual}, "admin-1")
	require.NoError(t, err)

	status, err := h.results.Complete(ctx, h.lastJob(t), sampleQuestions(4), nil)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusDraft, status)

	published, err := h.examService.Publish(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusReady, published.Status)

	_, err = h.examService.Publish(ctx, exam.ID)
	assert.ErrorIs(t, err, common.ErrConflict)
}

func TestPublish_DraftWithoutQuestions(t *testing.T) {
	h := newLifecycleHarness(false)
	h.exams.put(&model.Exam{ID: "e1", Status: model.ExamStatusDraft, Questions: []model.Question{}})

	_, err := h.examService.Publish(context.Background(), "e1")
	assert.ErrorIs(t, err, common.ErrExamHasNoQuestions)
}

func TestHandleGenerationResult(t *testing.T) {
	h := newLifecycleHarness(false)
	ctx := context.Background()
	_, err := h.examService.CreateExam(ctx, CreateExamRequest{Title: "Go", Role: "backend"}, "admin-1")
	require.NoError(t, err)
	job := h.lastJob(t)

	_, err = h.results.HandleGenerationResult(ctx, GenerationResultPayload{})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = h.results.HandleGenerationResult(ctx, GenerationResultPayload{JobID: "missing"})
	assert.ErrorIs(t, err, common.ErrNotFound)

	msg := "generator crashed"
	status, err := h.results.HandleGenerationResult(ctx, GenerationResultPayload{JobID: job.ID, Success: false, Error: &msg})
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusError, status)

	st, err := h.examService.GetStatus(ctx, job.ExamID)
	require.NoError(t, err)
	assert.Equal(t, msg, *st.LastError)
}

func TestListExams_Pagination(t *testing.T) {
	h := newLifecycleHarness(false)
	for _, id := range []string{"a", "b", "c"} {
		h.exams.put(&model.Exam{ID: id, Status: model.ExamStatusReady})
	}
	h.exams.put(&model.Exam{ID: "d", Status: model.ExamStatusError})

	resp, err := h.examService.ListExams(context.Background(), model.ExamStatusReady, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, resp.TotalCount)
	assert.Len(t, resp.Exams, 1)
	assert.Equal(t, 2, resp.Page)
}
