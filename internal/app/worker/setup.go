package worker

import (
	"context"
	"fmt"
	"time"

	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/domain/repository"
	"recruit_proctor/internal/platform/config"
	"recruit_proctor/internal/platform/generator"
	"recruit_proctor/internal/platform/queue"

	"go.uber.org/zap"
)

// NewFromConfig builds the worker for the configured generator backend.
func NewFromConfig(
	ctx context.Context,
	cfg *config.Config,
	q queue.JobQueue,
	jobRepo repository.GenerationJobRepository,
	examRepo repository.ExamRepository,
	results *service.GenerationResultService,
	log *zap.Logger,
) (*GenerationWorker, error) {
	opts := Options{MaxAttempts: cfg.GenerationMaxAttempts, Backoff: 500 * time.Millisecond}

	switch cfg.GeneratorBackend {
	case config.GeneratorBackendWebhook:
		opts.Dispatcher = generator.NewWebhookDispatcher(cfg.GeneratorWebhookURL, cfg.GenerationCallbackURL, cfg.WebhookSecret, nil)
	case config.GeneratorBackendGemini:
		gen, err := generator.NewGeminiGenerator(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		if err != nil {
			// Jobs still reach a terminal state: ERROR, or READY_FALLBACK when enabled.
			log.Warn("Gemini generator unavailable", zap.Error(err))
		} else {
			opts.Generator = gen
		}
	default:
		return nil, fmt.Errorf("unknown generator backend %q", cfg.GeneratorBackend)
	}

	return NewGenerationWorker(q, jobRepo, examRepo, results, opts, log), nil
}
