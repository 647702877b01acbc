package api

import (
	"net/http"
	"time"

	"recruit_proctor/internal/api/handler"
	"recruit_proctor/internal/api/middleware"
	"recruit_proctor/internal/app/service"
	"recruit_proctor/internal/app/signaling"
	"recruit_proctor/internal/common/security"
	"recruit_proctor/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth/v5"
	"go.uber.org/zap"
)

type Services struct {
	Auth         *service.AuthService
	Exams        *service.ExamService
	Assignments  *service.AssignmentService
	Applications *service.ApplicationService
	Pairing      *service.PairingService
	Tracker      *service.SessionTracker
	AdminControl *service.AdminControlService
	Results      *service.GenerationResultService
}

type RouterConfig struct {
	Tokens        *security.TokenIssuer
	Hub           *signaling.Hub
	WebhookSecret string
	Log           *zap.Logger
}

func NewRouter(svc Services, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	// Base Middlewares
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(middleware.RequestLogger(cfg.Log))
	r.Use(chiMiddleware.Recoverer)
	r.Use(metrics.Middleware)

	// Tokens come from "Authorization: Bearer T", or the jwt query parameter
	// for websocket clients that cannot set headers.
	r.Use(jwtauth.Verify(cfg.Tokens.Auth(), jwtauth.TokenFromHeader, jwtauth.TokenFromQuery))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api/v1", func(v1 chi.Router) {
		// Long-lived websocket; kept outside the request timeout.
		signalHandler := handler.NewSignalHandler(cfg.Hub, svc.Pairing, svc.Assignments, cfg.Log)
		v1.Route("/signal", signalHandler.RegisterRoutes)

		v1.Group(func(api chi.Router) {
			api.Use(chiMiddleware.Timeout(60 * time.Second))

			authHandler := handler.NewAuthHandler(svc.Auth)
			api.Route("/auth", authHandler.RegisterRoutes)

			examHandler := handler.NewExamHandler(svc.Exams)
			api.Route("/exams", examHandler.RegisterRoutes)

			assignmentHandler := handler.NewAssignmentHandler(svc.Assignments)
			api.Route("/assignments", assignmentHandler.RegisterRoutes)

			applicationHandler := handler.NewApplicationHandler(svc.Applications, svc.Assignments)
			api.Route("/applications", applicationHandler.RegisterRoutes)

			pairingHandler := handler.NewPairingHandler(svc.Pairing, cfg.Log)
			api.Route("/pairing", pairingHandler.RegisterRoutes)

			proctorHandler := handler.NewProctorHandler(svc.Tracker, svc.AdminControl)
			api.Route("/proctor", proctorHandler.RegisterSessionRoutes)
			api.Route("/admin", proctorHandler.RegisterAdminRoutes)

			webhookHandler := handler.NewWebhookHandler(svc.Results, cfg.WebhookSecret, cfg.Log)
			api.Route("/webhook", webhookHandler.RegisterRoutes)
		})
	})

	return r
}
