package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"recruit_proctor/internal/api"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/app/signaling"
	"recruit_proctor/internal/app/worker"
	"recruit_proctor/internal/common/security"
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

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// 2. Logger and metrics
	logr := logger.New(cfg.LogLevel, cfg.LogFile)
	defer logr.Sync()
	metrics.Register(prometheus.DefaultRegisterer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialize Database
	db, err := database.Connect(ctx, cfg.DBConnStr, logr)
	if err != nil {
		logr.Fatal("Database connection failed", zap.Error(err))
	}
	defer db.Close()
	if err := database.Migrate(ctx, db); err != nil {
		logr.Fatal("Schema migration failed", zap.Error(err))
	}

	// 4. Initialize Redis and the job queue
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

	// 5. Initialize Repositories
	txr := repository.NewPgTransactor(db)
	userRepo := repository.NewPgUserRepository(db)
	examRepo := repository.NewPgExamRepository(db)
	jobRepo := repository.NewPgGenerationJobRepository(db)
	assignmentRepo := repository.NewPgAssignmentRepository(db)
	appRepo := repository.NewPgApplicationRepository(db)
	sessionRepo := repository.NewPgProctoringSessionRepository(db)
	logRepo := repository.NewPgProctorLogRepository(db)

	// 6. Initialize Services
	tokens := security.NewTokenIssuer(cfg.JWTKey, cfg.JWTExp)
	pairingTokens := security.NewPairingTokens(cfg.PairingSecret, cfg.PairingTTL, nil)

	fallback := generator.DefaultFallbackBank()
	if cfg.FallbackBankFile != "" {
		if fallback, err = generator.LoadFallbackBank(cfg.FallbackBankFile); err != nil {
			logr.Fatal("Fallback bank unavailable", zap.Error(err))
		}
	}

	authService := service.NewAuthService(userRepo, tokens, logr)
	jobService := service.NewGenerationJobService(jobRepo, jobQueue, logr)
	examService := service.NewExamService(examRepo, jobService, txr, logr)
	resultService := service.NewGenerationResultService(examRepo, jobRepo, txr, fallback, cfg.FallbackEnabled, logr)
	assignmentService := service.NewAssignmentService(assignmentRepo, examRepo, appRepo, logRepo, txr, logr, nil)
	applicationService := service.NewApplicationService(appRepo)
	tracker := service.NewSessionTracker(sessionRepo, logRepo, cfg.LivenessThreshold, logr, nil)
	pairingService := service.NewPairingService(pairingTokens, assignmentRepo, tracker, logr)
	adminControl := service.NewAdminControlService(assignmentRepo, logRepo, txr, logr, nil)

	if cfg.AdminEmail != "" {
		err := authService.EnsureAdmin(ctx, service.SignupRequest{
			Username: cfg.AdminUsername,
			Email:    cfg.AdminEmail,
			Password: cfg.AdminPassword,
		})
		if err != nil {
			logr.Fatal("Admin provisioning failed", zap.Error(err))
		}
	}

	// 7. Signaling relay
	relay := signaling.NewRelay(signaling.NewRedisBroker(rdb), logr)
	hub := signaling.NewHub(relay, cfg.SignalRatePerSecond, cfg.SignalRateBurst, logr)

	// 8. Generation worker (as a goroutine) unless it runs as its own process
	var wg sync.WaitGroup
	workerCtx, workerCancel := context.WithCancel(ctx)
	defer workerCancel()
	if cfg.WorkerEmbedded {
		genWorker, err := worker.NewFromConfig(ctx, cfg, jobQueue, jobRepo, examRepo, resultService, logr)
		if err != nil {
			logr.Fatal("Worker setup failed", zap.Error(err))
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			genWorker.Start(workerCtx)
		}()
	}

	// 9. Initialize Router & HTTP Server
	router := api.NewRouter(api.Services{
		Auth:         authService,
		Exams:        examService,
		Assignments:  assignmentService,
		Applications: applicationService,
		Pairing:      pairingService,
		Tracker:      tracker,
		AdminControl: adminControl,
		Results:      resultService,
	}, api.RouterConfig{
		Tokens:        tokens,
		Hub:           hub,
		WebhookSecret: cfg.WebhookSecret,
		Log:           logr,
	})

	server := &http.Server{
		Addr:         ":" + cfg.APIPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 70 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// 10. Graceful Shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		logr.Info("Server starting", zap.String("port", cfg.APIPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logr.Fatal("Could not listen", zap.String("port", cfg.APIPort), zap.Error(err))
		}
	}()

	<-stop // Wait for interrupt signal

	logr.Info("Shutting down server...")
	workerCancel() // Signal worker to stop

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logr.Error("Server shutdown failed", zap.Error(err))
	}
	wg.Wait()

	logr.Info("Server and worker stopped gracefully.")
}
