package main

import (
	"context"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"pageinbox/internal/constants"
	"pageinbox/internal/errors"
	"pageinbox/internal/i18n"
	"pageinbox/internal/middleware"
	"pageinbox/internal/models"
	"pageinbox/internal/service"
	"pageinbox/internal/validation"
	"pageinbox/pkg/circuitbreaker"
)

// Services bundles the components the HTTP layer dispatches to.
type Services struct {
	Store    service.Store
	Accounts *service.AccountService
	Ingest   *service.IngestionService
	Replies  *service.ReplyService
	Inbox    *service.InboxService
	Live     *service.LiveUpdateService
	Breaker  *circuitbreaker.CircuitBreaker
}

type Server struct {
	cfg       *models.Config
	router    *mux.Router
	logger    *logrus.Logger
	errLogger *errors.Logger
	tr        *i18n.Translator
	svc       Services
	webhooks  *validation.WebhookValidator
	limiter   *RateLimiter
	server    *http.Server
	startedAt time.Time
	liveConns atomic.Int64
}

func NewServer(cfg *models.Config, svc Services, tr *i18n.Translator, logger *logrus.Logger) *Server {
	window := time.Duration(constants.DefaultWebhookRateWindowSec) * time.Second
	s := &Server{
		cfg:       cfg,
		router:    mux.NewRouter(),
		logger:    logger,
		errLogger: errors.WrapLogger(logger),
		tr:        tr,
		svc:       svc,
		webhooks:  validation.NewWebhookValidator(tr),
		limiter:   NewRateLimiter(constants.DefaultWebhookRateLimit, window),
		startedAt: time.Now(),
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.ObservabilityMiddleware(s.logger))
	if s.logger.IsLevelEnabled(logrus.DebugLevel) {
		s.router.Use(middleware.DetailedLoggingMiddleware(s.logger, middleware.DefaultDetailedLoggingConfig()))
	}

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)
	s.router.HandleFunc("/metrics", s.handleMetrics()).Methods(http.MethodGet)

	// Messenger webhook
	webhook := s.router.PathPrefix("/webhook").Subrouter()
	webhook.Use(s.limiter.Middleware(s.tr, s.logger))
	webhook.Use(middleware.WebhookObservabilityMiddleware(s.logger, "facebook"))
	webhook.HandleFunc("", s.handleWebhookVerify()).Methods(http.MethodGet)
	webhook.HandleFunc("", s.handleWebhook()).Methods(http.MethodPost)

	// Authenticated inbox API
	user := s.router.PathPrefix("/user").Subrouter()
	user.Use(middleware.AuthMiddleware([]byte(s.cfg.Auth.JWTSecret), s.tr, s.logger))
	user.HandleFunc("/threads", s.handleListThreads()).Methods(http.MethodPost)
	user.HandleFunc("/threads/{threadId}", s.handleListMessages()).Methods(http.MethodPost)
	user.HandleFunc("/threads/{threadId}/message", s.handleReply()).Methods(http.MethodPost)
	user.HandleFunc("/websocket", s.handleWebsocket()).Methods(http.MethodGet)
	user.HandleFunc("/accounts", s.handleListAccounts()).Methods(http.MethodGet)
	user.HandleFunc("/accounts/connect", s.handleConnectAccounts()).Methods(http.MethodPost)
	user.HandleFunc("/accounts/{accountId}", s.handleDeleteAccount()).Methods(http.MethodDelete)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:           s.router,
		ReadTimeout:       time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.WithField("port", s.cfg.Server.Port).Info("Starting server")
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
