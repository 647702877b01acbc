package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"
	"recruit_proctor/internal/platform/generator"
	"recruit_proctor/internal/platform/metrics"
	"recruit_proctor/internal/platform/queue"

	"go.uber.org/zap"
)

const generateTimeout = 2 * time.Minute

// Dispatcher hands a job to an external generator that reports back through
// the generation webhook.
type Dispatcher interface {
	Dispatch(ctx context.Context, jobID string, exam *model.Exam) error
}

type GenerationWorker struct {
	queue       queue.JobQueue
	jobRepo     repository.GenerationJobRepository
	examRepo    repository.ExamRepository
	results     *service.GenerationResultService
	generator   generator.Generator
	dispatcher  Dispatcher
	maxAttempts int
	backoff     time.Duration
	log         *zap.Logger
}

type Options struct {
	// Generator runs in-process. Ignored when Dispatcher is set.
	Generator  generator.Generator
	Dispatcher Dispatcher
	// MaxAttempts bounds generator calls per job.
	MaxAttempts int
	// Backoff is the base wait between attempts; attempt i waits Backoff*i.
	Backoff time.Duration
}

func NewGenerationWorker(
	q queue.JobQueue,
	jobRepo repository.GenerationJobRepository,
	examRepo repository.ExamRepository,
	results *service.GenerationResultService,
	opts Options,
	log *zap.Logger,
) *GenerationWorker {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 500 * time.Millisecond
	}
	return &GenerationWorker{
		queue:       q,
		jobRepo:     jobRepo,
		examRepo:    examRepo,
		results:     results,
		generator:   opts.Generator,
		dispatcher:  opts.Dispatcher,
		maxAttempts: opts.MaxAttempts,
		backoff:     opts.Backoff,
		log:         log,
	}
}

// Start consumes the queue until ctx is cancelled. Jobs run one at a time.
func (w *GenerationWorker) Start(ctx context.Context) {
	w.log.Info("Generation worker started")
	for {
		if ctx.Err() != nil {
			w.log.Info("Generation worker stopping")
			return
		}

		jobID, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrNoJob) {
				continue
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				w.log.Info("Generation worker stopping")
				return
			}
			w.log.Error("Failed to dequeue generation job", zap.Error(err))
			if !sleepCtx(ctx, 5*time.Second) {
				return
			}
			continue
		}

		w.log.Info("Worker picked up job", zap.String("job_id", jobID))
		w.ProcessJob(ctx, jobID)
	}
}

// ProcessJob runs one job to its terminal write. It never panics.
//
// Only the generator (or dispatcher) observes ctx. Job bookkeeping and the
// terminal write run on a context that survives cancellation, so a worker
// that stops mid-generation still moves the exam out of GENERATING.
func (w *GenerationWorker) ProcessJob(ctx context.Context, jobID string) {
	store := context.WithoutCancel(ctx)

	// The API pushes the ID before its transaction commits, so the row may
	// briefly be invisible.
	job, err := retry(store, 3, w.backoff, func() (*model.GenerationJob, error) {
		return w.jobRepo.GetJobByID(store, jobID)
	})
	if err != nil {
		w.log.Error("Generation job not found", zap.String("job_id", jobID), zap.Error(err))
		return
	}
	if job.Status != model.JobStatusQueued {
		w.log.Warn("Skipping job that is not queued", zap.String("job_id", job.ID), zap.String("status", job.Status))
		return
	}

	exam, err := w.examRepo.FindExamByID(store, job.ExamID)
	if err != nil {
		w.fail(store, job, fmt.Sprintf("exam lookup failed: %v", err))
		return
	}
	if exam.Status != model.ExamStatusGenerating {
		w.fail(store, job, fmt.Sprintf("exam is %s, not GENERATING", exam.Status))
		return
	}

	moved, err := w.jobRepo.TransitionJobStatus(store, nil, job.ID, model.JobStatusQueued, model.JobStatusProcessing)
	if err != nil {
		w.log.Warn("Failed to mark job processing", zap.String("job_id", job.ID), zap.Error(err))
	} else if !moved {
		w.log.Warn("Job claimed elsewhere, skipping", zap.String("job_id", job.ID))
		return
	}
	job.Status = model.JobStatusProcessing
	if err := w.jobRepo.IncrementJobAttempts(store, nil, job.ID); err != nil {
		w.log.Warn("Failed to increment job attempts", zap.String("job_id", job.ID), zap.Error(err))
	}

	if w.dispatcher != nil {
		w.dispatch(ctx, store, job, exam)
		return
	}

	start := time.Now()
	questions, genErr := retry(ctx, w.maxAttempts, w.backoff, func() ([]model.Question, error) {
		return w.generate(ctx, exam)
	})
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())
	if genErr != nil {
		if ctx.Err() != nil {
			genErr = fmt.Errorf("worker stopped during generation: %w", genErr)
		}
		w.log.Warn("Generator failed", zap.String("exam_id", exam.ID), zap.Error(genErr))
	}

	w.complete(store, job, questions, genErr)
}

func (w *GenerationWorker) complete(ctx context.Context, job *model.GenerationJob, questions []model.Question, genErr error) {
	if _, err := w.results.Complete(ctx, job, questions, genErr); err != nil {
		w.log.Error("Failed to apply generation result", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// generate calls the generator with a timeout and turns a panic into an error.
func (w *GenerationWorker) generate(ctx context.Context, exam *model.Exam) (questions []model.Question, err error) {
	defer func() {
		if r := recover(); r != nil {
			questions = nil
			err = fmt.Errorf("generator panic: %v", r)
		}
	}()
	if w.generator == nil {
		return nil, fmt.Errorf("no generator configured: %w", common.ErrServiceUnavailable)
	}
	genCtx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()
	return w.generator.Generate(genCtx, exam)
}

// dispatch hands the job to the external generator. The callback may land
// before Dispatch returns, so the job only moves to SentToGenerator while it
// is still Processing.
func (w *GenerationWorker) dispatch(ctx, store context.Context, job *model.GenerationJob, exam *model.Exam) {
	_, err := retry(ctx, w.maxAttempts, w.backoff, func() (struct{}, error) {
		return struct{}{}, w.dispatcher.Dispatch(ctx, job.ID, exam)
	})
	if err != nil {
		w.log.Warn("Dispatch to external generator failed", zap.String("job_id", job.ID), zap.Error(err))
		w.complete(store, job, nil, err)
		return
	}
	moved, err := w.jobRepo.TransitionJobStatus(store, nil, job.ID, model.JobStatusProcessing, model.JobStatusSentToGenerator)
	if err != nil {
		w.log.Error("Failed to mark job sent", zap.String("job_id", job.ID), zap.Error(err))
		return
	}
	if !moved {
		w.log.Info("Generation result arrived before dispatch returned", zap.String("job_id", job.ID))
		return
	}
	w.log.Info("Job dispatched to external generator", zap.String("job_id", job.ID))
}

func (w *GenerationWorker) fail(ctx context.Context, job *model.GenerationJob, reason string) {
	w.log.Warn("Generation job failed", zap.String("job_id", job.ID), zap.String("reason", reason))
	if err := w.jobRepo.UpdateJobStatus(ctx, nil, job.ID, model.JobStatusFailed, &reason); err != nil {
		w.log.Error("Failed to mark job failed", zap.String("job_id", job.ID), zap.Error(err))
	}
}

// retry calls fn up to attempts times, waiting backoff*i between tries.
func retry[T any](ctx context.Context, attempts int, backoff time.Duration, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for i := 0; i < attempts; i++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err
		if i == attempts-1 {
			break
		}
		if !sleepCtx(ctx, backoff*time.Duration(i+1)) {
			return zero, ctx.Err()
		}
	}
	return zero, fmt.Errorf("after %d attempts: %w", attempts, lastErr)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
