package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"
)

// generateWorkerID creates a unique worker ID using hostname and PID
func generateWorkerID() string {
	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "worker"
	}
	return fmt.Sprintf("%s-%d", hostname, os.Getpid())
}

// Job store backends
const (
	JobStoreMemory = "memory"
	JobStoreRedis  = "redis"
)

type Config struct {
	Port        string
	Environment string
	LogLevel    string

	// Database
	DatabaseURL string
	RedisURL    string

	// Job store
	JobStore   string
	JobLockTTL time.Duration

	// JWT
	JWTSecret string

	// Credentials at rest
	TokenEncryptionKey string

	// OAuth - Google
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// OpenAI
	OpenAIAPIKey   string
	LLMModel       string
	LLMMaxTokens   int
	LLMTemperature float64

	// Classification
	ClassifyBatchSize int
	ClassifyWorkers   int
	ClassifyTimeout   time.Duration
	BodyCharLimit     int
	DefaultTimezone   string

	// Mailbox fetch
	FetchTimeout        time.Duration
	FetchMessageTimeout time.Duration
	FetchMaxResults     int
	FetchConcurrency    int
	GmailQPS            float64

	// Scheduler
	WorkerID     string
	SyncSchedule string

	// CORS
	AllowedOrigins []string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),

		// Job store
		JobStore:   strings.ToLower(getEnv("JOB_STORE", JobStoreMemory)),
		JobLockTTL: getEnvDuration("JOB_LOCK_TTL", 2*time.Hour),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", ""),

		TokenEncryptionKey: getEnv("TOKEN_ENCRYPTION_KEY", ""),

		// OAuth - Google
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),

		// OpenAI
		OpenAIAPIKey:   getEnv("OPENAI_API_KEY", ""),
		LLMModel:       getEnv("OPENAI_MODEL", "gpt-4o-mini"),
		LLMMaxTokens:   getEnvInt("LLM_MAX_TOKENS", 4096),
		LLMTemperature: getEnvFloat("LLM_TEMPERATURE", 0.2),

		// Classification
		ClassifyBatchSize: getEnvInt("CLASSIFY_BATCH_SIZE", 25),
		ClassifyWorkers:   getEnvInt("CLASSIFY_WORKERS", 5),
		ClassifyTimeout:   getEnvDuration("CLASSIFY_TIMEOUT", 60*time.Second),
		BodyCharLimit:     getEnvInt("CLASSIFY_BODY_CHARS", 4000),
		DefaultTimezone:   getEnv("DEFAULT_TIMEZONE", "America/New_York"),

		// Mailbox fetch
		FetchTimeout:        getEnvDuration("FETCH_TIMEOUT", 120*time.Second),
		FetchMessageTimeout: getEnvDuration("FETCH_MESSAGE_TIMEOUT", 30*time.Second),
		FetchMaxResults:     getEnvInt("FETCH_MAX_RESULTS", 500),
		FetchConcurrency:    getEnvInt("FETCH_CONCURRENCY", 10),
		GmailQPS:            getEnvFloat("GMAIL_QPS", 10),

		// Scheduler
		WorkerID:     getEnv("WORKER_ID", generateWorkerID()),
		SyncSchedule: getEnv("SYNC_SCHEDULE", ""),

		// CORS
		AllowedOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the settings the pipeline cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.ClassifyBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("CLASSIFY_BATCH_SIZE must be positive, got %d", c.ClassifyBatchSize))
	}
	if c.ClassifyWorkers <= 0 {
		errs = append(errs, fmt.Errorf("CLASSIFY_WORKERS must be positive, got %d", c.ClassifyWorkers))
	}
	if c.FetchConcurrency <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_CONCURRENCY must be positive, got %d", c.FetchConcurrency))
	}
	switch c.JobStore {
	case JobStoreMemory:
	case JobStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when JOB_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown JOB_STORE %q", c.JobStore))
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		errs = append(errs, fmt.Errorf("invalid DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration accepts Go durations ("90s") or plain seconds ("90").
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		return parts
	}
	return defaultValue
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
