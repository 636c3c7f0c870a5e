package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	"github.com/FinanGammell/pare/adapter/out/jobstore"
	"github.com/FinanGammell/pare/adapter/out/persistence"
	"github.com/FinanGammell/pare/adapter/out/provider"
	"github.com/FinanGammell/pare/config"
	"github.com/FinanGammell/pare/core/agent/llm"
	"github.com/FinanGammell/pare/core/port/out"
	"github.com/FinanGammell/pare/core/service/auth"
	"github.com/FinanGammell/pare/core/service/classification"
	"github.com/FinanGammell/pare/core/service/inbox"
	"github.com/FinanGammell/pare/core/service/mailsync"
	"github.com/FinanGammell/pare/infra/database"
	"github.com/FinanGammell/pare/pkg/cache"
	"github.com/FinanGammell/pare/pkg/crypto"
	"github.com/FinanGammell/pare/pkg/logger"
	"github.com/FinanGammell/pare/pkg/metrics"
)

// Dependencies is built once per process and shared by the API and the
// scheduler so both go through the same job manager.
type Dependencies struct {
	Config *config.Config
	SQLDB  *sqlx.DB
	Redis  *redis.Client

	// Repositories
	EmailRepo      *persistence.EmailAdapter
	ResultRepo     *persistence.ResultAdapter
	CredentialRepo *persistence.CredentialAdapter
	JobStore       out.JobStore

	// Providers
	GmailProvider *provider.GmailAdapter
	LLMClient     *llm.Client

	// Services
	CredentialService *auth.CredentialService
	BatchClassifier   *classification.BatchClassifier
	JobManager        *mailsync.JobManager
	ResultService     *inbox.Service
}

func NewDependencies(cfg *config.Config) (*Dependencies, func(), error) {
	deps := &Dependencies{Config: cfg}
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}
	fail := func(err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Database
	sqlDB, err := database.NewPostgres(cfg.DatabaseURL)
	if err != nil {
		return fail(err)
	}
	deps.SQLDB = sqlDB
	cleanups = append(cleanups, func() { sqlDB.Close() })
	if err := metrics.RegisterDBPool(sqlDB.DB, nil); err != nil {
		logger.Warn("[Bootstrap] db pool metrics not registered: %v", err)
	}

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	err = database.Migrate(migrateCtx, sqlDB)
	cancel()
	if err != nil {
		return fail(err)
	}

	// Redis is optional unless it backs the job store
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedis(cfg.RedisURL)
		if err != nil {
			if cfg.JobStore == config.JobStoreRedis {
				return fail(err)
			}
			logger.Warn("[Bootstrap] redis connection failed, continuing without it: %v", err)
		} else {
			deps.Redis = redisClient
			cleanups = append(cleanups, func() { redisClient.Close() })
		}
	}

	switch cfg.JobStore {
	case config.JobStoreRedis:
		deps.JobStore = jobstore.NewRedisStore(cache.NewRedisCache(deps.Redis), cfg.JobLockTTL)
	default:
		deps.JobStore = jobstore.NewMemoryStore()
	}
	logger.Info("[Bootstrap] job store: %s", cfg.JobStore)

	// Credentials at rest
	var enc *crypto.Encryptor
	if cfg.TokenEncryptionKey != "" {
		enc, err = crypto.NewEncryptor([]byte(cfg.TokenEncryptionKey))
		if err != nil {
			return fail(fmt.Errorf("token encryption: %w", err))
		}
	} else if cfg.IsProduction() {
		return fail(fmt.Errorf("TOKEN_ENCRYPTION_KEY is required in production"))
	} else {
		logger.Warn("[Bootstrap] TOKEN_ENCRYPTION_KEY not set, credentials stored unencrypted")
	}

	// Repositories
	deps.EmailRepo = persistence.NewEmailAdapter(sqlDB)
	deps.ResultRepo = persistence.NewResultAdapter(sqlDB)
	deps.CredentialRepo = persistence.NewCredentialAdapter(sqlDB, enc)

	// Providers
	deps.GmailProvider = provider.NewGmailAdapter(provider.GmailConfig{
		ClientID:       cfg.GoogleClientID,
		ClientSecret:   cfg.GoogleClientSecret,
		RedirectURL:    cfg.GoogleRedirectURL,
		Concurrency:    cfg.FetchConcurrency,
		QPS:            cfg.GmailQPS,
		MessageTimeout: cfg.FetchMessageTimeout,
	})
	if cfg.OpenAIAPIKey == "" {
		logger.Warn("[Bootstrap] OPENAI_API_KEY not set, classification requests will fail")
	}
	deps.LLMClient = llm.NewClient(llm.ClientConfig{
		APIKey:      cfg.OpenAIAPIKey,
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
		Workers:     cfg.ClassifyWorkers,
	})

	// Services
	loc, err := time.LoadLocation(cfg.DefaultTimezone)
	if err != nil {
		return fail(fmt.Errorf("timezone: %w", err))
	}
	deps.CredentialService = auth.NewCredentialService(
		deps.CredentialRepo,
		auth.NewGoogleRefresher(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
	)

	batchCfg := classification.DefaultConfig()
	batchCfg.BatchSize = cfg.ClassifyBatchSize
	batchCfg.Workers = cfg.ClassifyWorkers
	batchCfg.Timeout = cfg.ClassifyTimeout
	batchCfg.BodyCharLimit = cfg.BodyCharLimit
	deps.BatchClassifier = classification.NewBatchClassifier(
		llm.NewClassifier(deps.LLMClient, cfg.DefaultTimezone),
		classification.NewResultWriter(deps.ResultRepo),
		classification.NewValidator(loc),
		batchCfg,
		logger.Zerolog().With().Str("component", "classifier").Logger(),
	)

	runner := mailsync.NewRunner(
		deps.EmailRepo,
		deps.CredentialService,
		deps.GmailProvider,
		deps.BatchClassifier,
		mailsync.RunnerConfig{
			FetchTimeout: cfg.FetchTimeout,
			MaxResults:   cfg.FetchMaxResults,
		},
	)
	deps.JobManager = mailsync.NewJobManager(deps.JobStore, runner)
	deps.ResultService = inbox.NewService(deps.EmailRepo, deps.ResultRepo)

	logger.Info("[Bootstrap] dependencies ready (model=%s, batch=%d, workers=%d)",
		deps.LLMClient.Model(), batchCfg.BatchSize, batchCfg.Workers)
	return deps, cleanup, nil
}

// Shutdown waits for in-flight sync jobs, bounded by ctx.
func (d *Dependencies) Shutdown(ctx context.Context) error {
	return d.JobManager.Shutdown(ctx)
}
