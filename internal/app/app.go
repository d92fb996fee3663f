package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	goredis "github.com/redis/go-redis/v9"

	"github.com/utafrali/redeemables/internal/config"
	"github.com/utafrali/redeemables/internal/eligibility"
	"github.com/utafrali/redeemables/internal/event"
	handler "github.com/utafrali/redeemables/internal/handler/http"
	"github.com/utafrali/redeemables/internal/qualification"
	"github.com/utafrali/redeemables/internal/repository"
	"github.com/utafrali/redeemables/internal/repository/postgres"
	redisrepo "github.com/utafrali/redeemables/internal/repository/redis"
	"github.com/utafrali/redeemables/internal/service"
	"github.com/utafrali/redeemables/internal/session"
	"github.com/utafrali/redeemables/internal/stacking"
	"github.com/utafrali/redeemables/migrations"
	"github.com/utafrali/redeemables/pkg/database"
	"github.com/utafrali/redeemables/pkg/health"
	pkgkafka "github.com/utafrali/redeemables/pkg/kafka"
	"github.com/utafrali/redeemables/pkg/tracing"
)

// App wires together all dependencies and runs the redeemables service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *goredis.Client
	producer       *pkgkafka.Producer
	invalidations  *pkgkafka.Consumer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rules, err := loadRules(cfg)
	if err != nil {
		return nil, err
	}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    handler.ServiceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
	pgCfg := database.DefaultPostgresConfig()
	pgCfg.Host = cfg.PostgresHost
	pgCfg.Port = cfg.PostgresPort
	pgCfg.User = cfg.PostgresUser
	pgCfg.Password = cfg.PostgresPass
	pgCfg.DBName = cfg.PostgresDB
	pgCfg.SSLMode = cfg.PostgresSSL

	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, handler.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, logger)
	}

	// Redis backs the voucher cache and, optionally, session locks.
	var redisClient *goredis.Client
	if cfg.CacheTTL() > 0 || cfg.SessionBackend == config.SessionBackendRedis {
		redisClient, err = database.NewRedisClient(ctx, database.RedisConfig{
			Host:        cfg.RedisHost,
			Port:        cfg.RedisPort,
			Password:    cfg.RedisPass,
			DB:          cfg.RedisDB,
			DialTimeout: 5 * time.Second,
		})
		if err != nil {
			pool.Close()
			return nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis",
			slog.String("host", cfg.RedisHost),
			slog.Int("port", cfg.RedisPort),
		)
	}

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	if err := producer.Ping(ctx); err != nil {
		logger.Warn("kafka producer ping failed, continuing in degraded mode",
			slog.String("error", err.Error()),
		)
	} else {
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	var vouchers repository.VoucherRepository = postgres.NewVoucherRepository(pool)
	var cache *redisrepo.CachedVoucherRepository
	if ttl := cfg.CacheTTL(); ttl > 0 {
		cache = redisrepo.NewCachedVoucherRepository(vouchers, redisClient, ttl, logger)
		vouchers = cache
	}

	var locks repository.SessionLockRepository
	switch cfg.SessionBackend {
	case config.SessionBackendRedis:
		locks = redisrepo.NewSessionLockRepository(redisClient)
	default:
		locks = postgres.NewSessionLockRepository(pool)
	}

	redemptions := postgres.NewRedemptionRepository(pool)
	checker := eligibility.NewChecker(redemptions, postgres.NewValidationRuleRepository(pool), logger)
	sessions := session.NewManager(locks, logger)

	deps := service.Deps{
		Vouchers:    vouchers,
		Redemptions: redemptions,
		Checker:     checker,
		Stacker:     stacking.NewController(vouchers, checker, sessions, logger),
		Search:      qualification.NewSearch(vouchers, checker, logger),
		Sessions:    sessions,
		Rules:       rules,
		Publisher:   event.NewPublisher(producer, logger),
	}

	var invalidations *pkgkafka.Consumer
	if cache != nil {
		deps.Cache = cache
		invalidations = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  event.ConsumerGroupID,
			Topic:    event.TopicVoucherChanged,
			MinBytes: 1,
			MaxBytes: 10e6,
		}, event.NewCacheInvalidator(cache, logger).Handle, logger)
	}

	redeemableService := service.NewRedeemableService(deps, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if redisClient != nil {
		healthHandler.Register("redis", func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}
	healthHandler.Register("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})

	// HTTP router.
	router := handler.NewRouter(redeemableService, healthHandler, logger)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		invalidations:  invalidations,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// loadRules reads per-tenant stacking rules from the rules file when one is
// configured, else serves the environment defaults to every tenant.
func loadRules(cfg *config.Config) (*config.RuleBook, error) {
	if cfg.StackingRulesFile == "" {
		return config.NewRuleBook(cfg.DefaultStackingRules()), nil
	}
	book, err := config.LoadRuleBook(cfg.StackingRulesFile)
	if err != nil {
		return nil, fmt.Errorf("load stacking rules: %w", err)
	}
	return book, nil
}

// Run starts the HTTP server and the cache invalidation consumer, then blocks
// until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.invalidations != nil {
		go func() {
			if err := a.invalidations.Start(ctx); err != nil {
				errCh <- fmt.Errorf("voucher change consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		a.logger.Error("component failed", slog.String("error", err.Error()))
		if shutdownErr := a.Shutdown(); shutdownErr != nil {
			return errors.Join(err, shutdownErr)
		}
		return err
	}

	return a.Shutdown()
}

// Shutdown stops components in order: HTTP server, tracer, consumer,
// producer, Redis, then PostgreSQL.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.invalidations != nil {
		if err := a.invalidations.Close(); err != nil {
			a.logger.Error("voucher change consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
