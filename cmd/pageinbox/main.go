package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pageinbox/internal/config"
	"pageinbox/internal/constants"
	"pageinbox/internal/database"
	"pageinbox/internal/i18n"
	"pageinbox/internal/middleware"
	"pageinbox/internal/models"
	"pageinbox/internal/mongostore"
	"pageinbox/internal/retry"
	"pageinbox/internal/secrets"
	"pageinbox/internal/service"
	"pageinbox/internal/tracing"
	"pageinbox/pkg/facebook"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"

	// CLI flags
	verbose    = flag.Bool("verbose", false, "Enable verbose logging (includes sensitive information)")
	configPath = flag.String("config", "config.json", "Path to configuration file")
	envPath    = flag.String("env", ".env", "Path to an optional .env file")
	version    = flag.Bool("version", false, "Show version information")
	issueToken = flag.String("issue-token", "", "Print a bearer token for the given user id and exit")
)

func main() {
	flag.Parse()

	if *version {
		fmt.Printf("PageInbox %s\nBuild Time: %s\nGit Commit: %s\n", Version, BuildTime, GitCommit)
		os.Exit(0)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		logrus.Fatalf("Application error: %v", err)
	}
}

func newLogger(cfg *models.Config) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
		logger.Info("Verbose logging enabled - sensitive information will be logged")
		return logger
	}

	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warnf("Invalid log level %q, defaulting to info", cfg.LogLevel)
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	return logger
}

// openStore connects the configured backend, retrying with backoff.
func openStore(ctx context.Context, cfg *models.Config, logger *logrus.Logger) (service.Store, error) {
	encryptor, err := secrets.NewEncryptor(cfg.Database.EncryptionSecret)
	if err != nil {
		return nil, err
	}
	if !encryptor.Enabled() {
		logger.Warn("Token encryption disabled, page access tokens are stored in plain text")
	}

	backoffConfig := retry.FromConfig(cfg.Retry)
	backoffConfig.MaxAttempts = constants.DefaultDatabaseRetryAttempts
	backoff := retry.NewBackoff(backoffConfig)

	var store service.Store
	err = backoff.Retry(ctx, func() error {
		var initErr error
		switch cfg.Database.Driver {
		case constants.DriverMongo:
			var ms *mongostore.Store
			ms, initErr = mongostore.New(ctx, cfg.Database.MongoURI, cfg.Database.MongoDB, encryptor)
			if initErr == nil {
				store = ms
			}
		default:
			var db *database.Database
			db, initErr = database.New(ctx, cfg.Database.Path, encryptor)
			if initErr == nil {
				store = db
			}
		}
		if initErr != nil {
			logger.WithField("driver", cfg.Database.Driver).Warnf("Failed to initialize store: %v", initErr)
		}
		return initErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize store after retries: %w", err)
	}
	return store, nil
}

func run(ctx context.Context) error {
	if err := config.LoadDotEnv(*envPath); err != nil {
		return err
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if *issueToken != "" {
		token, err := middleware.IssueToken([]byte(cfg.Auth.JWTSecret), *issueToken, constants.DefaultTokenTTLHours*time.Hour)
		if err != nil {
			return err
		}
		fmt.Println(token)
		return nil
	}

	logger := newLogger(cfg)
	logger.WithFields(logrus.Fields{
		"version": Version,
		"build":   BuildTime,
		"commit":  GitCommit,
		"driver":  cfg.Database.Driver,
	}).Info("Starting PageInbox")

	tracingManager := tracing.NewTracingManager(tracing.FromConfig(cfg.Tracing, Version), logger)
	if err := tracingManager.Initialize(ctx); err != nil {
		logger.Warnf("Failed to initialize tracing: %v", err)
	}
	defer func() {
		if err := tracingManager.Shutdown(context.Background()); err != nil {
			logger.Warnf("Failed to shutdown tracing: %v", err)
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	graphTimeout := time.Duration(cfg.Graph.TimeoutSec) * time.Second
	graph := facebook.NewClient(facebook.Config{
		BaseURL:     cfg.Graph.BaseURL,
		Version:     cfg.Graph.Version,
		AppID:       cfg.Graph.AppID,
		AppSecret:   cfg.Graph.AppSecret,
		RedirectURI: cfg.Graph.RedirectURI,
		Timeout:     graphTimeout,
		PageLimit:   constants.DefaultPageListLimit,
	}, retry.FromConfig(cfg.Retry), &http.Client{Timeout: graphTimeout}, logger)

	tr := i18n.New(cfg.Locale)
	contacts := service.NewContactServiceWithConfig(graph, tr, logger, cfg.Graph.ContactCacheH)

	services := Services{
		Store:    store,
		Accounts: service.NewAccountService(store, graph, tr, logger),
		Ingest:   service.NewIngestionService(store, contacts, logger),
		Replies:  service.NewReplyService(store, graph, tr, logger, graphTimeout),
		Inbox:    service.NewInboxService(store, tr, logger),
		Live:     service.NewLiveUpdateService(store, tr, logger, time.Duration(cfg.Live.IntervalSec)*time.Second),
		Breaker:  graph.Breaker(),
	}

	scheduler := service.NewScheduler(store, contacts, cfg.RetentionDays, cfg.Server.CleanupIntervalHours, logger)
	go scheduler.Start(ctx)
	defer scheduler.Stop()

	// Log level follows the config file at runtime; other settings need a restart.
	watcher := config.NewConfigWatcher(*configPath, logger)
	watcher.OnConfigChange(func(c *models.Config) {
		if *verbose {
			return
		}
		if level, err := logrus.ParseLevel(c.LogLevel); err == nil {
			logger.SetLevel(level)
		}
	})
	go func() {
		if err := watcher.Start(ctx); err != nil {
			logger.WithError(err).Warn("Configuration watcher stopped")
		}
	}()

	server := NewServer(cfg, services, tr, logger)
	serverErrCh := make(chan error, constants.ServerErrorChannelSize)
	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err := <-serverErrCh:
		logger.Error(err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(constants.DefaultGracefulShutdownSec)*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown server gracefully: %w", err)
	}

	logger.Info("Server shutdown completed")
	return nil
}
