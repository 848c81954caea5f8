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
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/anmolmahajan9/photo20-app/internal"
	"github.com/anmolmahajan9/photo20-app/internal/ai"
	"github.com/anmolmahajan9/photo20-app/internal/ai/gemini"
	"github.com/anmolmahajan9/photo20-app/internal/ai/mock"
	"github.com/anmolmahajan9/photo20-app/internal/domain"
	"github.com/anmolmahajan9/photo20-app/internal/handler"
	"github.com/anmolmahajan9/photo20-app/internal/identity"
	"github.com/anmolmahajan9/photo20-app/internal/jobs"
	"github.com/anmolmahajan9/photo20-app/internal/metrics"
	"github.com/anmolmahajan9/photo20-app/internal/middleware"
	"github.com/anmolmahajan9/photo20-app/internal/quota"
	"github.com/anmolmahajan9/photo20-app/internal/repository"
	"github.com/anmolmahajan9/photo20-app/internal/service"
	"github.com/anmolmahajan9/photo20-app/internal/storage"
	"github.com/anmolmahajan9/photo20-app/internal/worker"
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
	queries := repository.New(db)

	// Initialize quota enforcement
	quotaStore, err := newQuotaStore(ctx, cfg, db)
	if err != nil {
		return fmt.Errorf("quota store initialization failed: %w", err)
	}
	enforcer := quota.NewEnforcer(quotaStore, logger,
		quota.WithRetry(uint64(cfg.QuotaMaxRetries), cfg.QuotaRetryBaseDelay))
	logger.Info("Quota enforcement ready", "store", cfg.QuotaStore, "default_limit", cfg.DefaultDailyLimit)

	// Initialize identity verification
	verifier, err := newVerifier(cfg, logger)
	if err != nil {
		return fmt.Errorf("identity verifier initialization failed: %w", err)
	}

	// Initialize object storage
	store, err := newStorage(cfg, logger)
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}

	// Initialize AI provider
	provider, err := newAIProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("AI provider initialization failed: %w", err)
	}
	logger.Info("AI provider ready", "provider", cfg.AIProvider)

	// Initialize background worker
	var jobWorker *worker.Worker
	var enqueue service.ThumbnailEnqueuer
	if cfg.WorkerEnabled {
		jobWorker, err = worker.New(db, queries, worker.Config{
			Concurrency:       cfg.WorkerConcurrency,
			PollInterval:      cfg.WorkerPollInterval,
			JobTimeout:        cfg.WorkerJobTimeout,
			ShutdownTimeout:   cfg.WorkerShutdownTimeout,
			StaleJobThreshold: cfg.WorkerStaleJobThreshold,
		}, logger)
		if err != nil {
			return fmt.Errorf("worker initialization failed: %w", err)
		}
		jobWorker.Register(jobs.NewGenerateThumbnailsHandler(queries, store, logger))
		jobWorker.Start(ctx)

		enqueue = func(ctx context.Context, generationID uuid.UUID, userID string) error {
			_, err := worker.EnqueueGenerateThumbnails(ctx, queries, generationID, userID)
			return err
		}
	}

	// Initialize services
	limits := domain.Limits{
		Default:    cfg.DefaultDailyLimit,
		Elevated:   cfg.ElevatedLimits,
		SuperAdmin: cfg.SuperAdminEmail,
	}
	generationService := service.NewGenerationService(
		provider, enforcer, limits, queries, service.NewOutputStore(store), enqueue, logger)

	// Initialize middleware
	policy := domain.AccessPolicy{
		AllowedEmails:   cfg.AllowedEmails,
		AdminEmails:     cfg.AdminEmails,
		SuperAdminEmail: cfg.SuperAdminEmail,
	}
	authMw := middleware.NewAuthMiddleware(verifier, policy, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)
	metricsAuthMw := middleware.NewMetricsAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword)

	// Initialize handlers
	generationHandler := handler.NewGenerationHandler(generationService, logger)
	quotaHandler := handler.NewQuotaHandler(generationService, logger)
	adminHandler := handler.NewAdminHandler(generationService, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", handler.Health)

	// Metrics (basic auth when configured)
	mux.Handle("GET /metrics", metricsAuthMw.Handler(promhttp.Handler()))

	// Local storage serves generated files directly
	if cfg.StorageProvider == storage.ProviderLocal {
		filesFS := http.FileServer(http.Dir(cfg.LocalStoragePath))
		mux.Handle("GET /files/", http.StripPrefix("/files/", filesFS))
	}

	// Middleware stacks for protected routes
	requireUser := middleware.Stack(authMw.RequireUser)
	requireAdmin := middleware.Stack(authMw.RequireUser, authMw.RequireAdmin)

	// Generation API (requires authentication)
	mux.Handle("POST /api/generations/ideas", requireUser(http.HandlerFunc(generationHandler.SuggestIdeas)))
	mux.Handle("POST /api/generations/theme", requireUser(http.HandlerFunc(generationHandler.GenerateTheme)))
	mux.Handle("POST /api/generations/refine", requireUser(http.HandlerFunc(generationHandler.Refine)))
	mux.Handle("POST /api/generations/variations", requireUser(http.HandlerFunc(generationHandler.Variations)))
	mux.Handle("GET /api/generations", requireUser(http.HandlerFunc(generationHandler.History)))
	mux.Handle("GET /api/quota", requireUser(http.HandlerFunc(quotaHandler.Usage)))

	// Admin API
	mux.Handle("GET /api/admin/users/{uid}/quota", requireAdmin(http.HandlerFunc(adminHandler.UserQuota)))

	// Global middleware: request logging outermost, then HTTP metrics
	root := middleware.Stack(loggingMw.Handler, metrics.Middleware)(mux)

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

	// Stop the worker after the server stops accepting requests, so no new
	// jobs arrive while it drains.
	if jobWorker != nil {
		jobWorker.Stop()
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

// newQuotaStore selects the transactional quota store backend.
func newQuotaStore(ctx context.Context, cfg *internal.Config, db *sql.DB) (quota.Store, error) {
	switch cfg.QuotaStore {
	case "postgres":
		return quota.NewPostgresStore(db), nil
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(opt)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %w", err)
		}
		return quota.NewRedisStore(rdb), nil
	case "memory":
		return quota.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown quota store: %s", cfg.QuotaStore)
	}
}

// newVerifier selects the bearer token verifier.
func newVerifier(cfg *internal.Config, logger *slog.Logger) (identity.Verifier, error) {
	switch cfg.AuthProvider {
	case "firebase":
		return identity.NewGoogleVerifier(cfg.FirebaseProjectID, logger)
	case "static":
		tokens := make(map[string]domain.Principal, len(cfg.StaticAuthTokens))
		for token, id := range cfg.StaticAuthTokens {
			uid, email, ok := strings.Cut(id, ":")
			if !ok {
				return nil, fmt.Errorf("static token identity %q must be 'uid:email'", id)
			}
			tokens[token] = domain.Principal{UID: uid, Email: email}
		}
		logger.Warn("using static token verifier, development only", "tokens", len(tokens))
		return identity.NewStaticVerifier(tokens), nil
	default:
		return nil, fmt.Errorf("unknown auth provider: %s", cfg.AuthProvider)
	}
}

// newStorage selects the object storage backend.
func newStorage(cfg *internal.Config, logger *slog.Logger) (storage.Storage, error) {
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		return storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
			PublicURL:       cfg.R2PublicURL,
		}, logger)
	case storage.ProviderLocal:
		return storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
			BaseURL:  cfg.LocalStorageURL,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown storage provider: %s", cfg.StorageProvider)
	}
}

// newAIProvider selects the image generation backend.
func newAIProvider(cfg *internal.Config, logger *slog.Logger) (ai.Provider, error) {
	switch cfg.AIProvider {
	case "gemini":
		return gemini.New(gemini.Config{
			APIKey:     cfg.GeminiAPIKey,
			ImageModel: cfg.GeminiImageModel,
			TextModel:  cfg.GeminiTextModel,
			ProviderConfig: ai.ProviderConfig{
				MaxRetries:     cfg.AIMaxRetries,
				RetryBaseDelay: cfg.AIRetryBaseDelay,
				RequestTimeout: cfg.AIRequestTimeout,
			},
		}, logger)
	case "mock":
		return mock.New(logger), nil
	default:
		return nil, fmt.Errorf("unknown AI provider: %s", cfg.AIProvider)
	}
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
