// Package main is the entry point for the practice hub API server.
//
// The service manages the practice-attempt lifecycle for vocabulary
// activities: one active attempt per (student, activity, vocabulary set),
// idempotent item scoring, an explicit confirm/decline gate on every
// finished attempt, and the 3-of-4 completion aggregate that unlocks the
// downstream test.
//
// The architecture follows Clean Architecture and DDD:
// - Domain: pure business logic without external dependencies
// - Application: use case orchestration (Commands/Queries)
// - Infrastructure: repositories, caches, external API clients
// - Interface: HTTP endpoints
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	// Application layer
	"github.com/vocaquest/practice-hub/internal/application/command"
	"github.com/vocaquest/practice-hub/internal/application/query"

	// Domain layer
	"github.com/vocaquest/practice-hub/internal/domain/practice"
	"github.com/vocaquest/practice-hub/internal/domain/shared"

	// Infrastructure layer
	"github.com/vocaquest/practice-hub/internal/infrastructure/external/contentsvc"
	"github.com/vocaquest/practice-hub/internal/infrastructure/messaging"
	"github.com/vocaquest/practice-hub/internal/infrastructure/persistence/postgres"
	"github.com/vocaquest/practice-hub/internal/infrastructure/persistence/redis"
	"github.com/vocaquest/practice-hub/internal/infrastructure/validation"

	// Interface layer
	httpserver "github.com/vocaquest/practice-hub/internal/interface/http"

	// Packages
	"github.com/vocaquest/practice-hub/config"
	"github.com/vocaquest/practice-hub/pkg/logger"

	"github.com/joho/godotenv"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. CONFIGURATION
	// ─────────────────────────────────────────────────────────────────────────
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 2. LOGGING
	// ─────────────────────────────────────────────────────────────────────────
	log := setupLogger(cfg)
	log.Info("starting practice hub",
		logger.String("env", string(cfg.App.Environment)),
		logger.String("version", cfg.App.Version),
		logger.Bool("debug", cfg.App.Debug),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 3. DATABASE (PostgreSQL)
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("connecting to database...")
	dbConn, err := connectDatabase(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer func() {
		log.Info("closing database connection...")
		dbConn.Close()
	}()

	if err := dbConn.Ping(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	log.Info("database connection established")

	// ─────────────────────────────────────────────────────────────────────────
	// 4. MIGRATIONS
	// ─────────────────────────────────────────────────────────────────────────
	if cfg.Database.AutoMigrate {
		log.Info("running database migrations...")
		migrator := postgres.NewMigrator(dbConn)
		if err := migrator.Migrate(ctx); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info("migrations completed")
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. SESSION CACHE (Redis)
	// ─────────────────────────────────────────────────────────────────────────
	var sessionStore practice.SessionStore
	var redisCache *redis.Cache

	if cfg.Redis.Disabled {
		log.Warn("Redis disabled, session pointers fall back to durable reads")
		sessionStore = noopSessionStore{}
	} else {
		log.Info("connecting to Redis...")
		redisCfg := redis.DefaultConfig()
		redisCfg.Host = cfg.Redis.Host
		redisCfg.Port = cfg.Redis.Port
		redisCfg.Password = cfg.Redis.Password
		redisCfg.DB = cfg.Redis.DB
		redisCfg.PoolSize = cfg.Redis.PoolSize
		redisCfg.MinIdleConns = cfg.Redis.MinIdleConns
		redisCfg.DialTimeout = cfg.Redis.DialTimeout
		redisCfg.ReadTimeout = cfg.Redis.ReadTimeout
		redisCfg.WriteTimeout = cfg.Redis.WriteTimeout

		redisCache, err = redis.NewCache(redisCfg)
		if err != nil {
			// The cache is never authoritative; degrade instead of failing.
			log.Warn("failed to connect to Redis, running without session cache", logger.Err(err))
			sessionStore = noopSessionStore{}
		} else {
			defer redisCache.Close()
			sessionStore = redis.NewSessionStore(redisCache)
			log.Info("Redis connection established")
		}
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 6. REPOSITORIES
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing repositories...")
	attemptRepo := postgres.NewAttemptRepository(dbConn)
	responseRepo := postgres.NewResponseRepository(dbConn)
	progressRepo := postgres.NewProgressRepository(dbConn)
	completionRepo := postgres.NewCompletionRepository(dbConn)
	itemSetRepo := postgres.NewItemSetRepository(dbConn)

	// ─────────────────────────────────────────────────────────────────────────
	// 7. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing event bus...")
	busConfig := messaging.DefaultConfig()
	busConfig.AsyncMode = cfg.Events.AsyncMode
	busConfig.WorkerPoolSize = cfg.Events.WorkerPoolSize
	busConfig.Logger = log
	eventBus := messaging.NewInMemoryEventBus(busConfig)
	defer func() {
		log.Info("closing event bus...")
		_ = eventBus.Close()
	}()

	// Audit trail: every lifecycle event is logged.
	_ = eventBus.SubscribeAll(func(event shared.Event) error {
		log.Debug("domain event",
			logger.String("event_type", string(event.EventType())),
			logger.String("aggregate_id", event.AggregateID()),
		)
		return nil
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 8. EXTERNAL CLIENTS
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing content service client...")
	contentCfg := contentsvc.DefaultClientConfig(cfg.Content.BaseURL)
	contentCfg.APIKey = cfg.Content.APIKey
	contentCfg.Timeout = cfg.Content.RequestTimeout
	contentCfg.EvaluateTimeout = cfg.Content.EvaluateTimeout
	contentCfg.MaxRetries = cfg.Content.MaxRetries
	contentCfg.Logger = log
	contentClient := contentsvc.NewClient(contentCfg)

	inputValidator := validation.NewInputValidator()

	// ─────────────────────────────────────────────────────────────────────────
	// 9. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("initializing application layer...")
	startAttempt := command.NewStartAttemptHandler(
		attemptRepo, progressRepo, sessionStore, itemSetRepo, contentClient, eventBus, log)
	submitItem := command.NewSubmitItemHandler(
		attemptRepo, responseRepo, progressRepo, sessionStore, itemSetRepo,
		contentClient, inputValidator, eventBus, log)
	confirmAttempt := command.NewConfirmAttemptHandler(
		attemptRepo, progressRepo, completionRepo, sessionStore, eventBus, log)
	declineAttempt := command.NewDeclineAttemptHandler(
		attemptRepo, responseRepo, progressRepo, sessionStore, eventBus, log)

	getProgress := query.NewGetProgressHandler(progressRepo, attemptRepo, sessionStore)
	getAggregateStatus := query.NewGetAggregateStatusHandler(completionRepo, attemptRepo)

	// ─────────────────────────────────────────────────────────────────────────
	// 10. HTTP SERVER
	// ─────────────────────────────────────────────────────────────────────────
	serverCfg := httpserver.DefaultConfig()
	serverCfg.Host = cfg.HTTP.Host
	serverCfg.Port = cfg.HTTP.Port
	serverCfg.ReadTimeout = cfg.HTTP.ReadTimeout
	serverCfg.WriteTimeout = cfg.HTTP.WriteTimeout
	serverCfg.IdleTimeout = cfg.HTTP.IdleTimeout

	server := httpserver.NewServer(serverCfg, httpserver.Dependencies{
		StartAttempt:       startAttempt,
		SubmitItem:         submitItem,
		ConfirmAttempt:     confirmAttempt,
		DeclineAttempt:     declineAttempt,
		GetProgress:        getProgress,
		GetAggregateStatus: getAggregateStatus,
		Logger:             log,
		HealthChecker: &healthChecker{
			db:      dbConn,
			cache:   redisCache,
			content: contentClient,
		},
	})

	errCh := server.StartAsync()

	// ─────────────────────────────────────────────────────────────────────────
	// 11. GRACEFUL SHUTDOWN
	// ─────────────────────────────────────────────────────────────────────────
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("shutdown signal received", logger.String("signal", sig.String()))
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server shutdown failed", logger.Err(err))
	}

	log.Info("practice hub stopped")
	return nil
}

// setupLogger builds the application logger from observability config.
func setupLogger(cfg *config.Config) *logger.Logger {
	opts := logger.DefaultOptions()
	opts.Level = logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		opts.Level = logger.LevelDebug
	}
	return logger.New(opts)
}

// connectDatabase connects using DATABASE_URL when present, otherwise the
// component defaults.
func connectDatabase(ctx context.Context, cfg *config.Config) (*postgres.Connection, error) {
	if cfg.Database.URL != "" {
		return postgres.NewConnectionFromURL(ctx, cfg.Database.URL)
	}
	return postgres.NewConnection(ctx, postgres.DefaultConfig())
}

// ══════════════════════════════════════════════════════════════════════════════
// ADAPTERS
// ══════════════════════════════════════════════════════════════════════════════

// healthChecker aggregates dependency health for the /health endpoint.
type healthChecker struct {
	db      *postgres.Connection
	cache   *redis.Cache
	content *contentsvc.Client
}

// CheckHealth implements httpserver.HealthChecker.
func (h *healthChecker) CheckHealth(ctx context.Context) map[string]string {
	checks := make(map[string]string, 3)

	if err := h.db.Ping(ctx); err != nil {
		checks["postgres"] = err.Error()
	} else {
		checks["postgres"] = "ok"
	}

	if h.cache != nil {
		if err := h.cache.Ping(ctx); err != nil {
			checks["redis"] = err.Error()
		} else {
			checks["redis"] = "ok"
		}
	}

	if h.content.IsHealthy(ctx) {
		checks["content_service"] = "ok"
	} else {
		checks["content_service"] = "unreachable"
	}

	return checks
}

// noopSessionStore satisfies practice.SessionStore when no cache is
// configured. Every read is a miss, so callers always take the durable
// path; correctness is unchanged, resumes just cost one extra read.
type noopSessionStore struct{}

func (noopSessionStore) Get(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) (*practice.SessionPointer, error) {
	return nil, shared.NewDomainError("practice", "GetSession", shared.ErrNotFound, "session cache disabled")
}

func (noopSessionStore) Put(ctx context.Context, pointer practice.SessionPointer) error { return nil }

func (noopSessionStore) Touch(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error {
	return nil
}

func (noopSessionStore) Clear(ctx context.Context, studentID shared.StudentID, vocabSetID shared.VocabSetID) error {
	return nil
}
