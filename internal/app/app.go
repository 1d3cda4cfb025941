package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/bigandbest/admin-deployed-sub000/internal/catalog"
	"github.com/bigandbest/admin-deployed-sub000/internal/config"
	"github.com/bigandbest/admin-deployed-sub000/internal/event"
	handler "github.com/bigandbest/admin-deployed-sub000/internal/handler/http"
	"github.com/bigandbest/admin-deployed-sub000/internal/lock"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository/memory"
	"github.com/bigandbest/admin-deployed-sub000/internal/repository/postgres"
	"github.com/bigandbest/admin-deployed-sub000/internal/service"
	"github.com/bigandbest/admin-deployed-sub000/migrations"
	"github.com/bigandbest/admin-deployed-sub000/pkg/database"
	"github.com/bigandbest/admin-deployed-sub000/pkg/health"
	"github.com/bigandbest/admin-deployed-sub000/pkg/httpclient"
	pkgkafka "github.com/bigandbest/admin-deployed-sub000/pkg/kafka"
	"github.com/bigandbest/admin-deployed-sub000/pkg/middleware"
	"github.com/bigandbest/admin-deployed-sub000/pkg/tracing"
)

const serviceName = "fulfillment"

// App wires together all dependencies and runs the fulfillment service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	productDeleted *pkgkafka.Consumer
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTELEndpoint,
		SampleRate:     cfg.OTELSampleRate,
		Enabled:        cfg.OTELEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.tracerShutdown = tracerShutdown

	healthHandler := health.NewHandler()

	store, err := a.openStore(ctx, healthHandler)
	if err != nil {
		a.unwind()
		return nil, err
	}

	locker, err := a.openLocker(ctx, healthHandler)
	if err != nil {
		a.unwind()
		return nil, err
	}

	// Kafka producer. Events are best effort: a broker outage degrades
	// notifications but never fails a write.
	var publisher event.Publisher = event.Discard{}
	if cfg.KafkaEventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := pingKafkaWithRetry(ctx, a.producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		publisher = a.producer
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return a.producer.Ping(ctx)
		})
	}

	// Build the dependency graph.
	events := event.NewProducer(publisher, logger)
	cat := a.newCatalog()
	geography := service.NewGeographyService(store, logger)
	ledger := service.NewLedgerService(store, events, logger)
	services := handler.Services{
		Geography:   geography,
		Hierarchy:   service.NewHierarchyService(store, geography, locker, cfg.DivisionLockTTL(), events, logger),
		Ledger:      ledger,
		Assignments: service.NewAssignmentService(cat, store, ledger, logger),
		Resolver:    service.NewResolver(store, geography, cat, cfg.ResolveMaxConcurrency, logger),
	}

	// Purge ledger rows of products removed from the catalog.
	if cfg.KafkaConsumersEnabled {
		var idempotency pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(24 * time.Hour)
		if a.redis != nil {
			idempotency = pkgkafka.NewRedisIdempotencyStore(a.redis, serviceName+":processed-events", 24*time.Hour)
		}
		consumer := event.NewConsumer(ledger, logger)
		a.productDeleted = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
			Brokers:   cfg.KafkaBrokers,
			GroupID:   "fulfillment-service-product-deleted",
			Topic:     event.TopicProductDeleted,
			MinBytes:  1,
			MaxBytes:  10e6,
			EnableDLQ: true,
		}, pkgkafka.IdempotentHandler(idempotency, consumer.HandleProductDeleted, logger), logger)
	}

	// HTTP router.
	router := handler.NewRouter(services, healthHandler, handler.RouterConfig{
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		PprofCIDRs:     cfg.PprofAllowedCIDRs,
		RequestTimeout: time.Duration(cfg.RequestTimeoutSecs) * time.Second,
	}, logger)

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      time.Duration(cfg.RequestTimeoutSecs+5) * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured backend and registers its health check.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (service.Store, error) {
	cfg := a.cfg
	if cfg.StoreBackend == config.StoreMemory {
		a.logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil
	}

	pgCfg := database.PostgresConfig{
		Host:             cfg.PostgresHost,
		Port:             cfg.PostgresPort,
		User:             cfg.PostgresUser,
		Password:         cfg.PostgresPass,
		DBName:           cfg.PostgresDB,
		SSLMode:          cfg.PostgresSSL,
		MaxConns:         cfg.DBMaxConns,
		MinConns:         cfg.DBMinConns,
		MaxConnLifetime:  time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime:  time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
		StatementTimeout: time.Duration(cfg.DBStatementTimeoutMs) * time.Millisecond,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg, a.logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	a.logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		a.logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, a.logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	a.logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, a.logger)
	}

	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	return postgres.NewStore(pool), nil
}

// openLocker returns the division lock. Redis is used when configured so
// that replicas serialize against each other.
func (a *App) openLocker(ctx context.Context, healthHandler *health.Handler) (lock.Locker, error) {
	cfg := a.cfg
	if cfg.RedisAddr() == "" {
		a.logger.Warn("REDIS_HOST not set, division lock only covers this process")
		return lock.NewLocalLocker(cfg.DivisionLockWait()), nil
	}

	rdb, err := database.NewRedisClient(ctx, database.RedisConfig{
		Host:        cfg.RedisHost,
		Port:        cfg.RedisPort,
		Password:    cfg.RedisPassword,
		DB:          cfg.RedisDB,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	a.redis = rdb
	a.logger.Info("connected to Redis", slog.String("addr", cfg.RedisAddr()))

	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	return lock.NewRedisLocker(rdb, cfg.DivisionLockWait()), nil
}

// newCatalog returns the product policy source, guarded by a circuit breaker
// when a catalog service is configured.
func (a *App) newCatalog() catalog.Catalog {
	cfg := a.cfg
	if cfg.CatalogServiceURL == "" {
		a.logger.Warn("CATALOG_SERVICE_URL not set, using an empty in-memory catalog")
		return catalog.NewStaticCatalog()
	}

	httpCfg := httpclient.DefaultConfig()
	httpCfg.Timeout = time.Duration(cfg.CatalogTimeoutSecs) * time.Second
	cb := httpclient.NewCircuitBreakerClient(httpclient.New(httpCfg), httpclient.CircuitBreakerConfig{
		Name:         "catalog",
		MaxRequests:  cfg.CBMaxRequests,
		Interval:     time.Duration(cfg.CBIntervalSecs) * time.Second,
		Timeout:      time.Duration(cfg.CBTimeoutSecs) * time.Second,
		FailureRatio: cfg.CBFailureRatio,
		MinRequests:  cfg.CBMinRequests,
	}, a.logger)

	a.logger.Info("catalog client initialized", slog.String("url", cfg.CatalogServiceURL))
	return catalog.NewHTTPCatalog(cb, cfg.CatalogServiceURL)
}

// Run starts the HTTP server and Kafka consumers, then blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("store", a.cfg.StoreBackend),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.productDeleted != nil {
		go func() {
			if err := a.productDeleted.Start(ctx); err != nil {
				errCh <- fmt.Errorf("product deleted consumer: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka consumer, then producer
// 4. Redis client and PostgreSQL pool
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
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

	if a.productDeleted != nil {
		if err := a.productDeleted.Close(); err != nil {
			a.logger.Error("product deleted consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases the producer and connections opened by NewApp.
// It is also used to unwind a failed start.
// unwind releases what a failed NewApp has opened so far, the tracer
// included.
func (a *App) unwind() {
	_ = a.closeResources()
	if a.tracerShutdown == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.tracerShutdown(ctx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}
}

func (a *App) closeResources() error {
	var errs []error
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}
	if a.pool != nil {
		a.pool.Close()
	}
	return errors.Join(errs...)
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if lastErr = producer.Ping(ctx); lastErr == nil {
			return nil
		}
		if attempt < 2 {
			base := time.Duration(1<<uint(attempt)) * time.Second
			jitter := time.Duration(float64(base) * 0.25 * (2*rand.Float64() - 1)) // #nosec G404 -- non-cryptographic jitter for retry backoff
			wait := base + jitter
			logger.Warn("kafka producer ping failed, retrying",
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", 3),
				slog.Duration("backoff", wait),
				slog.String("error", lastErr.Error()),
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("kafka ping: context canceled during retry: %w", ctx.Err())
			case <-time.After(wait):
			}
		}
	}
	return fmt.Errorf("kafka producer ping failed after 3 attempts: %w", lastErr)
}
