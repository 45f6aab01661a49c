package bootstrap

import (
	"context"
	"fmt"
	"os"

	"github.com/cassiomorais/bookcatalog/internal/application/batch"
	"github.com/cassiomorais/bookcatalog/internal/domain/audit"
	"github.com/cassiomorais/bookcatalog/internal/infrastructure/config"
	"github.com/cassiomorais/bookcatalog/internal/infrastructure/observability"
	infraRedis "github.com/cassiomorais/bookcatalog/internal/infrastructure/redis"
	"github.com/cassiomorais/bookcatalog/internal/repository/postgres"
	"github.com/cassiomorais/bookcatalog/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// App wires the engine: connection pool, audit sinks, transaction
// coordinator, retry executor and batch orchestrator.
type App struct {
	Config      *config.Config
	Logger      zerolog.Logger
	Pool        *pgxpool.Pool
	Redis       *redis.Client
	Metrics     *observability.Metrics
	Books       *postgres.BookRepository
	Lookups     *postgres.LookupRepository
	AuditSink   *postgres.AuditRepository
	Coordinator *postgres.Coordinator
	Retry       *retry.Executor
	Batch       *batch.Orchestrator
}

func New(ctx context.Context, serviceName string, metricsNamespace string) (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	logger := observability.InitLogger(cfg.Observability.LogLevel, os.Stdout)
	logger.Info().Str("service", serviceName).Msg("Starting")

	if cfg.Observability.EnableTracing {
		tp, err := observability.InitTracer(serviceName, cfg.Observability.JaegerEndpoint)
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to initialize tracer, continuing without tracing")
		} else {
			go func() {
				<-ctx.Done()
				observability.Shutdown(context.Background(), tp)
			}()
			logger.Info().Msg("Tracing enabled")
		}
	}

	var metrics *observability.Metrics
	if cfg.Observability.EnableMetrics {
		metrics = observability.NewMetrics(metricsNamespace, nil)
	}

	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	logger.Info().Msg("Connected to PostgreSQL")

	var redisClient *redis.Client
	var secondary audit.Sink
	if cfg.Redis.Enabled {
		redisClient, err = infraRedis.NewClient(ctx, &cfg.Redis)
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		secondary = infraRedis.NewAuditFallback(redisClient, metrics)
		logger.Info().Msg("Connected to Redis, audit fallback channel enabled")
	}

	auditRepo := postgres.NewAuditRepository(pool)
	standalone := &audit.FallbackSink{Primary: auditRepo, Secondary: secondary, Logger: logger}

	coordinator := postgres.NewCoordinator(pool, auditRepo, standalone,
		observability.Component(logger, "coordinator"), metrics)

	retryExec := retry.NewExecutor(retry.Policy{
		MaxAttempts:   cfg.Retry.MaxAttempts,
		BaseDelay:     cfg.Retry.BaseDelay,
		MaxDelay:      cfg.Retry.MaxDelay,
		BackoffFactor: cfg.Retry.BackoffFactor,
		RetryableKinds: retry.DefaultPolicy().RetryableKinds,
	}, standalone, observability.Component(logger, "retry"), metrics)

	books := postgres.NewBookRepository(pool)
	lookups := postgres.NewLookupRepository(pool)
	orchestrator := batch.NewOrchestrator(books, lookups, coordinator, auditRepo, standalone,
		observability.Component(logger, "batch"), metrics)

	return &App{
		Config:      cfg,
		Logger:      logger,
		Pool:        pool,
		Redis:       redisClient,
		Metrics:     metrics,
		Books:       books,
		Lookups:     lookups,
		AuditSink:   auditRepo,
		Coordinator: coordinator,
		Retry:       retryExec,
		Batch:       orchestrator,
	}, nil
}

func (a *App) Close() {
	if a.Redis != nil {
		a.Redis.Close()
	}
	a.Pool.Close()
}
