package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/app/worker"
	"recruit_proctor/internal/domain/repository"
	"recruit_proctor/internal/platform/config"
	"recruit_proctor/internal/platform/database"
	"recruit_proctor/internal/platform/generator"
	"recruit_proctor/internal/platform/logger"
	"recruit_proctor/internal/platform/metrics"
	"recruit_proctor/internal/platform/queue"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// Standalone generation worker. Run it with WORKER_EMBEDDED=false on the API.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logr := logger.New(cfg.LogLevel, cfg.LogFile).Named("worker")
	defer logr.Sync()
	metrics.Register(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup

	// Graceful shutdown on SIGINT or SIGTERM
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	db, err := database.Connect(ctx, cfg.DBConnStr, logr)
	if err != nil {
		logr.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()

	rdb, err := queue.ConnectRedis(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		logr.Fatal("Redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	jobQueue, err := queue.Open(cfg.QueueBackend, cfg.GenerationQueueName, rdb, cfg.RabbitMQURL, 5*time.Second)
	if err != nil {
		logr.Fatal("Job queue unavailable", zap.Error(err))
	}
	defer jobQueue.Close()

	fallback := generator.DefaultFallbackBank()
	if cfg.FallbackBankFile != "" {
		if fallback, err = generator.LoadFallbackBank(cfg.FallbackBankFile); err != nil {
			logr.Fatal("Fallback bank unavailable", zap.Error(err))
		}
	}

	examRepo := repository.NewPgExamRepository(db)
	jobRepo := repository.NewPgGenerationJobRepository(db)
	results := service.NewGenerationResultService(examRepo, jobRepo, repository.NewPgTransactor(db), fallback, cfg.FallbackEnabled, logr)

	genWorker, err := worker.NewFromConfig(ctx, cfg, jobQueue, jobRepo, examRepo, results, logr)
	if err != nil {
		logr.Fatal("Worker setup failed", zap.Error(err))
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		genWorker.Start(ctx)
	}()

	// Wait for signal
	<-sigs
	logr.Info("Shutdown signal received")
	cancel()

	// Wait for worker to finish
	wg.Wait()
	logr.Info("Worker exited cleanly")
}
