package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vozfeed/vozfeed/internal"
	"github.com/vozfeed/vozfeed/internal/ai"
	"github.com/vozfeed/vozfeed/internal/ai/anthropic"
	aimock "github.com/vozfeed/vozfeed/internal/ai/mock"
	"github.com/vozfeed/vozfeed/internal/billing"
	"github.com/vozfeed/vozfeed/internal/domain"
	"github.com/vozfeed/vozfeed/internal/handler"
	"github.com/vozfeed/vozfeed/internal/jobs"
	"github.com/vozfeed/vozfeed/internal/metrics"
	"github.com/vozfeed/vozfeed/internal/middleware"
	"github.com/vozfeed/vozfeed/internal/repository"
	"github.com/vozfeed/vozfeed/internal/service"
	"github.com/vozfeed/vozfeed/internal/storage"
	"github.com/vozfeed/vozfeed/internal/transcribe"
	"github.com/vozfeed/vozfeed/internal/transcribe/openai"
	transcribemock "github.com/vozfeed/vozfeed/internal/transcribe/mock"
	"github.com/vozfeed/vozfeed/internal/worker"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Initialize database connection
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	defer db.Close()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	// Run migrations
	if err := internal.RunMigrations(db); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	logger.Info("Database ready")

	// Initialize repository
	store := repository.NewStore(db)

	// Initialize blob storage
	files, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Initialize external providers
	aiProvider, err := newAIProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("ai provider initialization failed: %w", err)
	}
	transcriber, err := newTranscriber(cfg, logger)
	if err != nil {
		return fmt.Errorf("transcription provider initialization failed: %w", err)
	}

	// Initialize billing (nil when Stripe is not configured)
	var billingService billing.Service
	if cfg.StripeSecretKey != "" {
		billingService = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, billing.PriceConfig{
			ProMonthlyPriceID:        cfg.StripeProMonthlyPriceID,
			ProYearlyPriceID:         cfg.StripeProYearlyPriceID,
			EnterpriseMonthlyPriceID: cfg.StripeEnterpriseMonthlyPriceID,
			EnterpriseYearlyPriceID:  cfg.StripeEnterpriseYearlyPriceID,
		})
		logger.Info("Stripe billing enabled")
	} else {
		logger.Warn("Stripe billing not configured, webhook events will be ignored")
	}

	// Initialize services
	catalog := domain.DefaultCatalog()
	ledger := service.NewUsageLedger(store, logger)
	enforcer := service.NewEnforcer(catalog, ledger, store.Queries, logger)
	tenantService := service.NewTenantService(store.Queries, logger)
	feedbackService := service.NewFeedbackService(store.Queries, enforcer, files, logger)

	// Initialize background worker
	var jobWorker *worker.Worker
	if cfg.WorkerEnabled {
		workerConfig := worker.DefaultConfig()
		workerConfig.Concurrency = cfg.WorkerConcurrency
		workerConfig.PollInterval = cfg.WorkerPollInterval
		workerConfig.JobTimeout = cfg.WorkerJobTimeout

		jobWorker, err = worker.New(store.Queries, workerConfig, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		jobWorker.Register(jobs.NewProcessFeedbackHandler(
			store.Queries, tenantService, enforcer, files, transcriber, aiProvider, logger,
		))
		jobWorker.Start(ctx)
		defer jobWorker.Stop()
		logger.Info("Background worker started", "concurrency", workerConfig.Concurrency)
	}

	// Initialize middleware
	requireTenant := middleware.RequireTenant(tenantService, logger)
	requestLogging := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuth := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	rateLimit := middleware.NewRateLimitMiddleware(rateLimiter, logger)

	// Initialize handlers
	authorizeHandler := handler.NewAuthorizeHandler(enforcer, logger)
	usageHandler := handler.NewUsageHandler(enforcer, ledger, logger)
	companyHandler := handler.NewCompanyHandler(enforcer, ledger, logger)
	feedbackHandler := handler.NewFeedbackHandler(feedbackService, logger)
	webhookHandler := handler.NewWebhookHandler(billingService, tenantService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuth.Handler(promhttp.Handler()))

	// Locally stored audio (development only; R2 serves its own URLs)
	if cfg.StorageProvider == "local" {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// Guardrail API
	authorizeHandler.RegisterRoutes(mux, requireTenant)
	usageHandler.RegisterRoutes(mux, requireTenant)
	companyHandler.RegisterRoutes(mux, requireTenant)
	feedbackHandler.RegisterRoutes(mux, middleware.Stack(rateLimit.Limit, requireTenant))

	// Billing webhook (public, signature-verified)
	webhookHandler.RegisterRoutes(mux)

	// Outer middleware: request logging and HTTP metrics on everything
	root := middleware.Stack(requestLogging.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newStorage selects the blob storage backend from configuration.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.StorageProvider == "r2" {
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	}
	return storage.NewLocalStorage(storage.LocalConfig{
		BasePath: cfg.LocalStoragePath,
		BaseURL:  cfg.LocalStorageURL,
	}, logger)
}

// newAIProvider selects the sentiment analysis backend from configuration.
func newAIProvider(cfg *internal.Config, logger *slog.Logger) (ai.Provider, error) {
	if cfg.AIProvider == "anthropic" {
		return anthropic.New(anthropic.Config{
			APIKey: cfg.AnthropicAPIKey,
			Model:  cfg.AnthropicModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	}
	return aimock.New(logger), nil
}

// newTranscriber selects the transcription backend from configuration.
func newTranscriber(cfg *internal.Config, logger *slog.Logger) (transcribe.Transcriber, error) {
	if cfg.TranscribeProvider == "openai" {
		return openai.New(openai.Config{
			APIKey: cfg.OpenAIAPIKey,
			Model:  cfg.WhisperModel,
			ProviderConfig: transcribe.ProviderConfig{
				RequestTimeout: cfg.TranscribeRequestTimeout,
			},
		}, logger)
	}
	return transcribemock.New(logger), nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
