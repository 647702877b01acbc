package worker

import (
	"context"
	"database/sql"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/platform/generator"
	"recruit_proctor/internal/platform/queue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type nopTx struct{}

func (nopTx) WithinTx(_ context.Context, fn func(tx *sql.Tx) error) error { return fn(nil) }

type memExams struct {
	mu    sync.Mutex
	exams map[string]*model.Exam
}

func (r *memExams) CreateExam(_ context.Context, _ *sql.Tx, e *model.Exam) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *e
	r.exams[e.ID] = &c
	return nil
}

func (r *memExams) FindExamByID(_ context.Context, id string) (*model.Exam, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok {
		return nil, common.ErrExamNotFound
	}
	c := *e
	return &c, nil
}

func (r *memExams) ListExams(context.Context, model.ExamStatus, int, int) ([]model.Exam, int, error) {
	return nil, 0, nil
}

func (r *memExams) BeginGeneration(context.Context, *sql.Tx, string) (bool, error) { return false, nil }

func (r *memExams) FinishGeneration(_ context.Context, _ *sql.Tx, id string, status model.ExamStatus, questions []model.Question, lastError *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.exams[id]
	if !ok || e.Status != model.ExamStatusGenerating {
		return false, nil
	}
	e.Status = status
	if questions != nil {
		e.Questions = questions
	}
	e.LastError = lastError
	return true, nil
}

func (r *memExams) Publish(context.Context, string) (bool, error) { return false, nil }

type memJobs struct {
	mu   sync.Mutex
	jobs map[string]*model.GenerationJob
}

func (r *memJobs) CreateJob(_ context.Context, _ *sql.Tx, j *model.GenerationJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c := *j
	r.jobs[j.ID] = &c
	return nil
}

func (r *memJobs) GetJobByID(_ context.Context, id string) (*model.GenerationJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	c := *j
	return &c, nil
}

func (r *memJobs) UpdateJobStatus(_ context.Context, _ *sql.Tx, id, status string, lastError *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Status = status
	r.jobs[id].LastError = lastError
	return nil
}

func (r *memJobs) TransitionJobStatus(_ context.Context, _ *sql.Tx, id, from, status string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	if !ok || j.Status != from {
		return false, nil
	}
	j.Status = status
	return true, nil
}

func (r *memJobs) IncrementJobAttempts(_ context.Context, _ *sql.Tx, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[id].Attempts++
	return nil
}

type chanQueue struct{ ch chan string }

func (q *chanQueue) Enqueue(_ context.Context, id string) error {
	q.ch <- id
	return nil
}

func (q *chanQueue) Dequeue(ctx context.Context) (string, error) {
	select {
	case id := <-q.ch:
		return id, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-time.After(20 * time.Millisecond):
		return "", queue.ErrNoJob
	}
}

func (q *chanQueue) Close() error { return nil }

type dispatcherFunc func(ctx context.Context, jobID string, exam *model.Exam) error

func (f dispatcherFunc) Dispatch(ctx context.Context, jobID string, exam *model.Exam) error {
	return f(ctx, jobID, exam)
}

// ctxExams and ctxJobs fail like a real database once their context ends.
type ctxExams struct{ *memExams }

func (r ctxExams) FindExamByID(ctx context.Context, id string) (*model.Exam, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.memExams.FindExamByID(ctx, id)
}

func (r ctxExams) FinishGeneration(ctx context.Context, tx *sql.Tx, id string, status model.ExamStatus, questions []model.Question, lastError *string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.memExams.FinishGeneration(ctx, tx, id, status, questions, lastError)
}

type ctxJobs struct{ *memJobs }

func (r ctxJobs) GetJobByID(ctx context.Context, id string) (*model.GenerationJob, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return r.memJobs.GetJobByID(ctx, id)
}

func (r ctxJobs) UpdateJobStatus(ctx context.Context, tx *sql.Tx, id, status string, lastError *string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return r.memJobs.UpdateJobStatus(ctx, tx, id, status, lastError)
}

func (r ctxJobs) TransitionJobStatus(ctx context.Context, tx *sql.Tx, id, from, status string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	return r.memJobs.TransitionJobStatus(ctx, tx, id, from, status)
}

type workerHarness struct {
	exams   *memExams
	jobs    *memJobs
	queue   *chanQueue
	results *service.GenerationResultService
}

func newWorkerHarness() *workerHarness {
	h := &workerHarness{
		exams: &memExams{exams: map[string]*model.Exam{}},
		jobs:  &memJobs{jobs: map[string]*model.GenerationJob{}},
		queue: &chanQueue{ch: make(chan string, 8)},
	}
	h.exams.exams["e1"] = &model.Exam{ID: "e1", Role: "backend", Difficulty: model.DifficultyEasy, QuestionCount: 2, AutoPublish: true, Status: model.ExamStatusGenerating}
	h.jobs.jobs["j1"] = &model.GenerationJob{ID: "j1", ExamID: "e1", Status: model.JobStatusQueued}
	return h
}

func (h *workerHarness) worker(opts Options, fallback bool) *GenerationWorker {
	opts.Backoff = time.Millisecond
	h.results = service.NewGenerationResultService(h.exams, h.jobs, nopTx{}, generator.DefaultFallbackBank(), fallback, zap.NewNop())
	return NewGenerationWorker(h.queue, h.jobs, h.exams, h.results, opts, zap.NewNop())
}

// contextBoundWorker wires repositories that stop working once the
// worker's context is cancelled.
func (h *workerHarness) contextBoundWorker(opts Options, fallback bool) *GenerationWorker {
	opts.Backoff = time.Millisecond
	exams, jobs := ctxExams{h.exams}, ctxJobs{h.jobs}
	h.results = service.NewGenerationResultService(exams, jobs, nopTx{}, generator.DefaultFallbackBank(), fallback, zap.NewNop())
	return NewGenerationWorker(h.queue, jobs, exams, h.results, opts, zap.NewNop())
}

func (h *workerHarness) exam(t *testing.T) *model.Exam {
	t.Helper()
	e, err := h.exams.FindExamByID(context.Background(), "e1")
	require.NoError(t, err)
	return e
}

func (h *workerHarness) job(t *testing.T) *model.GenerationJob {
	t.Helper()
	j, err := h.jobs.GetJobByID(context.Background(), "j1")
	require.NoError(t, err)
	return j
}

func twoQuestions(context.Context, *model.Exam) ([]model.Question, error) {
	return []model.Question{{ID: "q1", Prompt: "a"}, {ID: "q2", Prompt: "b"}}, nil
}

func TestProcessJob_Success(t *testing.T) {
	h := newWorkerHarness()
	w := h.worker(Options{Generator: generator.GeneratorFunc(twoQuestions), MaxAttempts: 2}, false)

	w.ProcessJob(context.Background(), "j1")

	assert.Equal(t, model.ExamStatusReady, h.exam(t).Status)
	assert.Len(t, h.exam(t).Questions, 2)
	assert.Equal(t, model.JobStatusCompleted, h.job(t).Status)
	assert.Equal(t, 1, h.job(t).Attempts)
}

func TestProcessJob_RetriesFlakyGenerator(t *testing.T) {
	h := newWorkerHarness()
	var calls int32
	flaky := generator.GeneratorFunc(func(ctx context.Context, e *model.Exam) ([]model.Question, error) {
		if atomic.AddInt32(&calls, 1) == 1 {
			return nil, errors.New("503 from model")
		}
		return twoQuestions(ctx, e)
	})
	w := h.worker(Options{Generator: flaky, MaxAttempts: 2}, false)

	w.ProcessJob(context.Background(), "j1")

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
	assert.Equal(t, model.ExamStatusReady, h.exam(t).Status)
}

func TestProcessJob_PanicBecomesError(t *testing.T) {
	h := newWorkerHarness()
	boom := generator.GeneratorFunc(func(context.Context, *model.Exam) ([]model.Question, error) {
		panic("nil map")
	})
	w := h.worker(Options{Generator: boom, MaxAttempts: 2}, false)

	assert.NotPanics(t, func() { w.ProcessJob(context.Background(), "j1") })

	exam := h.exam(t)
	assert.Equal(t, model.ExamStatusError, exam.Status)
	require.NotNil(t, exam.LastError)
	assert.Contains(t, *exam.LastError, "generator panic")
	assert.Equal(t, model.JobStatusFailed, h.job(t).Status)
}

func TestProcessJob_FallbackOnFailure(t *testing.T) {
	h := newWorkerHarness()
	w := h.worker(Options{MaxAttempts: 1}, true)

	w.ProcessJob(context.Background(), "j1")

	exam := h.exam(t)
	assert.Equal(t, model.ExamStatusReadyFallback, exam.Status)
	assert.Len(t, exam.Questions, 2)
	assert.Equal(t, model.JobStatusCompleted, h.job(t).Status)
}

func TestProcessJob_SkipsFinishedJob(t *testing.T) {
	h := newWorkerHarness()
	h.jobs.jobs["j1"].Status = model.JobStatusCompleted
	var called bool
	gen := generator.GeneratorFunc(func(context.Context, *model.Exam) ([]model.Question, error) {
		called = true
		return nil, nil
	})

	h.worker(Options{Generator: gen}, false).ProcessJob(context.Background(), "j1")

	assert.False(t, called)
	assert.Equal(t, model.ExamStatusGenerating, h.exam(t).Status)
}

func TestProcessJob_ExamNoLongerGenerating(t *testing.T) {
	h := newWorkerHarness()
	h.exams.exams["e1"].Status = model.ExamStatusReady

	h.worker(Options{Generator: generator.GeneratorFunc(twoQuestions)}, false).ProcessJob(context.Background(), "j1")

	assert.Equal(t, model.JobStatusFailed, h.job(t).Status)
	assert.Equal(t, model.ExamStatusReady, h.exam(t).Status)
}

func TestProcessJob_Dispatch(t *testing.T) {
	h := newWorkerHarness()
	var gotJob string
	d := dispatcherFunc(func(_ context.Context, jobID string, _ *model.Exam) error {
		gotJob = jobID
		return nil
	})

	h.worker(Options{Dispatcher: d}, false).ProcessJob(context.Background(), "j1")

	assert.Equal(t, "j1", gotJob)
	assert.Equal(t, model.JobStatusSentToGenerator, h.job(t).Status)
	assert.Equal(t, model.ExamStatusGenerating, h.exam(t).Status)
}

func TestProcessJob_DispatchFailure(t *testing.T) {
	h := newWorkerHarness()
	d := dispatcherFunc(func(context.Context, string, *model.Exam) error { return errors.New("connection refused") })

	h.worker(Options{Dispatcher: d, MaxAttempts: 2}, false).ProcessJob(context.Background(), "j1")

	assert.Equal(t, model.ExamStatusError, h.exam(t).Status)
	assert.Equal(t, model.JobStatusFailed, h.job(t).Status)
}

func TestProcessJob_ShutdownMidGenerationLeavesGenerating(t *testing.T) {
	cases := []struct {
		name      string
		fallback  bool
		wantExam  model.ExamStatus
		wantJob   string
		wantError bool
	}{
		{name: "error", fallback: false, wantExam: model.ExamStatusError, wantJob: model.JobStatusFailed, wantError: true},
		{name: "fallback", fallback: true, wantExam: model.ExamStatusReadyFallback, wantJob: model.JobStatusCompleted},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newWorkerHarness()
			started := make(chan struct{})
			var once sync.Once
			blocking := generator.GeneratorFunc(func(ctx context.Context, _ *model.Exam) ([]model.Question, error) {
				once.Do(func() { close(started) })
				<-ctx.Done()
				return nil, ctx.Err()
			})
			w := h.contextBoundWorker(Options{Generator: blocking, MaxAttempts: 3}, tc.fallback)

			ctx, cancel := context.WithCancel(context.Background())
			done := make(chan struct{})
			go func() {
				w.ProcessJob(ctx, "j1")
				close(done)
			}()

			<-started
			cancel()
			select {
			case <-done:
			case <-time.After(2 * time.Second):
				t.Fatal("ProcessJob did not return after cancellation")
			}

			exam := h.exam(t)
			assert.Equal(t, tc.wantExam, exam.Status)
			assert.Equal(t, tc.wantJob, h.job(t).Status)
			if tc.wantError {
				require.NotNil(t, exam.LastError)
				assert.Contains(t, *exam.LastError, "worker stopped during generation")
			}
		})
	}
}

func TestProcessJob_CancelledBeforeLookupStillProcesses(t *testing.T) {
	h := newWorkerHarness()
	w := h.contextBoundWorker(Options{Generator: generator.GeneratorFunc(twoQuestions)}, false)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w.ProcessJob(ctx, "j1")

	assert.Equal(t, model.ExamStatusReady, h.exam(t).Status)
	assert.Equal(t, model.JobStatusCompleted, h.job(t).Status)
}

func TestProcessJob_CallbackBeforeDispatchReturns(t *testing.T) {
	h := newWorkerHarness()
	d := dispatcherFunc(func(ctx context.Context, jobID string, _ *model.Exam) error {
		_, err := h.results.HandleGenerationResult(ctx, service.GenerationResultPayload{
			JobID:     jobID,
			Success:   true,
			Questions: []model.Question{{ID: "q1", Prompt: "a"}},
		})
		return err
	})
	w := h.worker(Options{Dispatcher: d}, false)

	w.ProcessJob(context.Background(), "j1")

	assert.Equal(t, model.ExamStatusReady, h.exam(t).Status)
	assert.Equal(t, model.JobStatusCompleted, h.job(t).Status)

	// A duplicate failure report must not touch the finished exam.
	msg := "late failure"
	status, err := h.results.HandleGenerationResult(context.Background(), service.GenerationResultPayload{JobID: "j1", Error: &msg})
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusReady, status)
	assert.Equal(t, model.JobStatusCompleted, h.job(t).Status)
	assert.Len(t, h.exam(t).Questions, 1)
}

func TestProcessJob_SkipsJobAlreadyProcessing(t *testing.T) {
	h := newWorkerHarness()
	var calls int32
	gen := generator.GeneratorFunc(func(ctx context.Context, e *model.Exam) ([]model.Question, error) {
		atomic.AddInt32(&calls, 1)
		return twoQuestions(ctx, e)
	})
	w := h.worker(Options{Generator: gen}, false)
	claimed, err := h.jobs.TransitionJobStatus(context.Background(), nil, "j1", model.JobStatusQueued, model.JobStatusProcessing)
	require.NoError(t, err)
	require.True(t, claimed)

	w.ProcessJob(context.Background(), "j1")

	assert.Zero(t, atomic.LoadInt32(&calls))
	assert.Equal(t, model.ExamStatusGenerating, h.exam(t).Status)
}

func TestStart_ConsumesUntilCancelled(t *testing.T) {
	h := newWorkerHarness()
	w := h.worker(Options{Generator: generator.GeneratorFunc(twoQuestions)}, false)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Start(ctx)
		close(done)
	}()

	require.NoError(t, h.queue.Enqueue(ctx, "j1"))
	require.Eventually(t, func() bool {
		e, _ := h.exams.FindExamByID(context.Background(), "e1")
		return e.Status == model.ExamStatusReady
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestRetry_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := retry(ctx, 3, time.Second, func() (int, error) { return 0, errors.New("nope") })
	assert.ErrorIs(t, err, context.Canceled)
}
