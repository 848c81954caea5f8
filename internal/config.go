package internal

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	DatabaseUrl string

	// Identity verification
	AuthProvider      string // "firebase" or "static"
	FirebaseProjectID string
	// StaticAuthTokens maps fixed bearer tokens to "uid:email" identities.
	// Development only; parsed from "token:uid:email,..." entries.
	StaticAuthTokens map[string]string

	// Access control
	AllowedEmails   []string // Empty list admits everyone
	AdminEmails     []string
	SuperAdminEmail string

	// Daily generation quota
	QuotaStore          string // "postgres", "redis", or "memory"
	RedisURL            string
	DefaultDailyLimit   int
	ElevatedLimits      map[string]int // Lowercased email -> elevated daily limit
	QuotaMaxRetries     int
	QuotaRetryBaseDelay time.Duration

	// Storage Configuration
	StorageProvider string // "local" or "r2"

	// Local Storage (development)
	LocalStoragePath string // Base directory for local file storage
	LocalStorageURL  string // Base URL for accessing local files

	// R2 Storage (production)
	R2AccountID       string
	R2AccessKeyID     string
	R2SecretAccessKey string
	R2BucketName      string
	R2PublicURL       string // Optional custom domain URL

	// Worker Configuration
	WorkerEnabled           bool
	WorkerConcurrency       int
	WorkerPollInterval      time.Duration
	WorkerJobTimeout        time.Duration
	WorkerShutdownTimeout   time.Duration
	WorkerStaleJobThreshold time.Duration

	// AI Provider Configuration
	AIProvider       string // "gemini" or "mock"
	GeminiAPIKey     string
	GeminiImageModel string
	GeminiTextModel  string
	AIMaxRetries     int
	AIRetryBaseDelay time.Duration
	AIRequestTimeout time.Duration

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Identity defaults to Firebase ID token verification
		AuthProvider:      getEnv("AUTH_PROVIDER", "firebase"),
		FirebaseProjectID: getEnv("FIREBASE_PROJECT_ID", ""),

		SuperAdminEmail: getEnv("SUPER_ADMIN_EMAIL", ""),

		// Quota defaults
		QuotaStore:          getEnv("QUOTA_STORE", "postgres"),
		RedisURL:            getEnv("REDIS_URL", ""),
		DefaultDailyLimit:   getEnvInt("DEFAULT_DAILY_LIMIT", 10),
		QuotaMaxRetries:     getEnvInt("QUOTA_MAX_RETRIES", 3),
		QuotaRetryBaseDelay: getEnvDuration("QUOTA_RETRY_BASE_DELAY", 50*time.Millisecond),

		// Storage defaults to local filesystem for development
		StorageProvider:  getEnv("STORAGE_PROVIDER", "local"),
		LocalStoragePath: getEnv("LOCAL_STORAGE_PATH", "./storage"),
		LocalStorageURL:  getEnv("LOCAL_STORAGE_URL", "http://localhost:8080/files"),

		// R2 configuration (production only)
		R2AccountID:       getEnv("R2_ACCOUNT_ID", ""),
		R2AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
		R2SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
		R2BucketName:      getEnv("R2_BUCKET_NAME", ""),
		R2PublicURL:       getEnv("R2_PUBLIC_URL", ""),

		// Worker defaults
		WorkerEnabled:           getEnvBool("WORKER_ENABLED", true),
		WorkerConcurrency:       getEnvInt("WORKER_CONCURRENCY", 2),
		WorkerPollInterval:      getEnvDuration("WORKER_POLL_INTERVAL", 5*time.Second),
		WorkerJobTimeout:        getEnvDuration("WORKER_JOB_TIMEOUT", 2*time.Minute),
		WorkerShutdownTimeout:   getEnvDuration("WORKER_SHUTDOWN_TIMEOUT", 30*time.Second),
		WorkerStaleJobThreshold: getEnvDuration("WORKER_STALE_JOB_THRESHOLD", 10*time.Minute),

		// AI provider defaults
		AIProvider:       getEnv("AI_PROVIDER", "mock"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiImageModel: getEnv("GEMINI_IMAGE_MODEL", ""),
		GeminiTextModel:  getEnv("GEMINI_TEXT_MODEL", ""),
		AIMaxRetries:     getEnvInt("AI_MAX_RETRIES", 3),
		AIRetryBaseDelay: getEnvDuration("AI_RETRY_BASE_DELAY", 1*time.Second),
		AIRequestTimeout: getEnvDuration("AI_REQUEST_TIMEOUT", 120*time.Second),

		// Metrics authentication
		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	cfg.AllowedEmails = parseEmailList(getEnv("ALLOWED_EMAILS", ""))
	cfg.AdminEmails = parseEmailList(getEnv("ADMIN_EMAILS", ""))

	// Elevated limits are "email:limit" pairs, comma separated
	elevated, err := parseElevatedLimits(getEnv("ELEVATED_LIMITS", ""))
	if err != nil {
		return nil, err
	}
	cfg.ElevatedLimits = elevated

	// Static tokens are "token:uid:email" triples, comma separated
	tokens, err := parseStaticTokens(getEnv("STATIC_AUTH_TOKENS", ""))
	if err != nil {
		return nil, err
	}
	cfg.StaticAuthTokens = tokens

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	// Validate identity configuration
	if cfg.AuthProvider == "firebase" {
		if cfg.FirebaseProjectID == "" {
			return nil, fmt.Errorf("FIREBASE_PROJECT_ID is required when AUTH_PROVIDER is 'firebase'")
		}
	} else if cfg.AuthProvider == "static" {
		if cfg.Env != "development" {
			return nil, fmt.Errorf("AUTH_PROVIDER 'static' is only allowed in development")
		}
		if len(cfg.StaticAuthTokens) == 0 {
			return nil, fmt.Errorf("STATIC_AUTH_TOKENS is required when AUTH_PROVIDER is 'static'")
		}
	} else {
		return nil, fmt.Errorf("AUTH_PROVIDER must be either 'firebase' or 'static', got: %s", cfg.AuthProvider)
	}

	// Validate quota configuration
	switch cfg.QuotaStore {
	case "postgres", "memory":
	case "redis":
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("REDIS_URL is required when QUOTA_STORE is 'redis'")
		}
	default:
		return nil, fmt.Errorf("QUOTA_STORE must be 'postgres', 'redis', or 'memory', got: %s", cfg.QuotaStore)
	}
	if cfg.DefaultDailyLimit <= 0 {
		return nil, fmt.Errorf("DEFAULT_DAILY_LIMIT must be positive, got: %d", cfg.DefaultDailyLimit)
	}

	// Validate storage configuration
	if cfg.StorageProvider == "r2" {
		if cfg.R2AccountID == "" {
			return nil, fmt.Errorf("R2_ACCOUNT_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2AccessKeyID == "" {
			return nil, fmt.Errorf("R2_ACCESS_KEY_ID is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2SecretAccessKey == "" {
			return nil, fmt.Errorf("R2_SECRET_ACCESS_KEY is required when STORAGE_PROVIDER is 'r2'")
		}
		if cfg.R2BucketName == "" {
			return nil, fmt.Errorf("R2_BUCKET_NAME is required when STORAGE_PROVIDER is 'r2'")
		}
	} else if cfg.StorageProvider != "local" {
		return nil, fmt.Errorf("STORAGE_PROVIDER must be either 'local' or 'r2', got: %s", cfg.StorageProvider)
	}

	// Validate AI provider configuration
	if cfg.AIProvider == "gemini" {
		if cfg.GeminiAPIKey == "" {
			return nil, fmt.Errorf("GEMINI_API_KEY is required when AI_PROVIDER is 'gemini'")
		}
	} else if cfg.AIProvider != "mock" {
		return nil, fmt.Errorf("AI_PROVIDER must be either 'gemini' or 'mock', got: %s", cfg.AIProvider)
	}

	return cfg, nil
}

// parseEmailList splits a comma-separated list, lowercasing and trimming
// each entry.
func parseEmailList(value string) []string {
	if value == "" {
		return nil
	}
	var emails []string
	for _, email := range strings.Split(value, ",") {
		trimmed := strings.TrimSpace(strings.ToLower(email))
		if trimmed != "" {
			emails = append(emails, trimmed)
		}
	}
	return emails
}

// parseElevatedLimits parses "email:limit" pairs, e.g.
// "vip@example.com:25,partner@example.com:50".
func parseElevatedLimits(value string) (map[string]int, error) {
	if value == "" {
		return nil, nil
	}
	limits := make(map[string]int)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		email, limitStr, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("ELEVATED_LIMITS entry %q must be 'email:limit'", entry)
		}
		limit, err := strconv.Atoi(strings.TrimSpace(limitStr))
		if err != nil || limit <= 0 {
			return nil, fmt.Errorf("ELEVATED_LIMITS entry %q has an invalid limit", entry)
		}
		limits[strings.TrimSpace(strings.ToLower(email))] = limit
	}
	return limits, nil
}

// parseStaticTokens parses "token:uid:email" triples.
func parseStaticTokens(value string) (map[string]string, error) {
	if value == "" {
		return nil, nil
	}
	tokens := make(map[string]string)
	for _, entry := range strings.Split(value, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		token, identity, ok := strings.Cut(entry, ":")
		if !ok || !strings.Contains(identity, ":") {
			return nil, fmt.Errorf("STATIC_AUTH_TOKENS entry %q must be 'token:uid:email'", entry)
		}
		tokens[token] = identity
	}
	return tokens, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
