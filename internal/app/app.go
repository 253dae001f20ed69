// Package app wires configuration, storage, strategies, and transport into a
// runnable service.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/manojdandy/orders-inventory/internal/config"
	"github.com/manojdandy/orders-inventory/internal/event"
	handler "github.com/manojdandy/orders-inventory/internal/handler/http"
	"github.com/manojdandy/orders-inventory/internal/ledger"
	pgledger "github.com/manojdandy/orders-inventory/internal/ledger/postgres"
	"github.com/manojdandy/orders-inventory/internal/repository"
	pgrepo "github.com/manojdandy/orders-inventory/internal/repository/postgres"
	"github.com/manojdandy/orders-inventory/internal/service"
	"github.com/manojdandy/orders-inventory/internal/strategy"
	redisstrategy "github.com/manojdandy/orders-inventory/internal/strategy/redis"
	"github.com/manojdandy/orders-inventory/migrations"
	"github.com/manojdandy/orders-inventory/pkg/database"
	"github.com/manojdandy/orders-inventory/pkg/health"
	pkgkafka "github.com/manojdandy/orders-inventory/pkg/kafka"
	"github.com/manojdandy/orders-inventory/pkg/retry"
	"github.com/manojdandy/orders-inventory/pkg/tracing"
)

const serviceName = "orders-inventory"

// App wires together all dependencies and runs the service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redisClient    *redis.Client
	producer       *pkgkafka.Producer
	reconciler     *strategy.Reconciler
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

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

	app := &App{
		cfg:            cfg,
		logger:         logger,
		tracerShutdown: tracerShutdown,
	}

	// Storage backend.
	var (
		stockLedger ledger.Ledger
		orderRepo   repository.OrderRepository
		productRepo repository.ProductRepository
	)

	switch cfg.Backend {
	case config.BackendPostgres:
		pool, err := newPostgresPool(ctx, cfg, logger)
		if err != nil {
			app.closePartial()
			return nil, err
		}
		app.pool = pool
		stockLedger = pgledger.NewLedger(pool)
		orderRepo = pgrepo.NewOrderRepository(pool)
		productRepo = pgrepo.NewProductRepository(pool)
	default:
		stockLedger = ledger.NewMemoryLedger()
		orderRepo = repository.NewMemoryOrderRepository()
		productRepo = repository.NewMemoryProductRepository()
		logger.Info("using in-memory storage backend")
	}

	// Kafka producer. An empty broker list disables event publishing.
	if len(cfg.KafkaBrokers) > 0 {
		producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		if err := pingKafkaWithRetry(ctx, producer, logger); err != nil {
			logger.Warn("kafka producer ping failed after retries, continuing in degraded mode",
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
		}
		app.producer = producer
	}
	eventProducer := event.NewProducer(app.producer, logger)

	// Reservation strategy.
	reserver, err := app.newReserver(ctx, stockLedger, eventProducer)
	if err != nil {
		app.closePartial()
		return nil, err
	}
	logger.Info("reservation strategy selected", slog.String("strategy", reserver.Name()))

	// Services.
	orderService := service.NewOrderService(orderRepo, reserver, eventProducer, logger)
	productService := service.NewProductService(productRepo, stockLedger, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	if app.pool != nil {
		healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
			return app.pool.Ping(ctx)
		})
	}
	if app.redisClient != nil {
		healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
			return app.redisClient.Ping(ctx).Err()
		})
	}
	if app.producer != nil {
		healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
			return app.producer.Ping(ctx)
		})
	}

	// HTTP router and server.
	router := handler.NewRouter(orderService, productService, healthHandler, handler.RouterConfig{
		ServiceName:       serviceName,
		LowStockThreshold: cfg.LowStockThreshold,
		PprofAllowedCIDRs: cfg.PprofAllowedCIDRs,
	}, logger)

	app.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return app, nil
}

// newReserver builds the configured concurrency strategy. The distributed
// strategy also wires the background reconciler and, when REDIS_ADDR is set,
// Redis-backed lease and counter implementations.
func (a *App) newReserver(ctx context.Context, stockLedger ledger.Ledger, eventProducer *event.Producer) (strategy.Reserver, error) {
	policy := retry.Policy{
		MaxAttempts: a.cfg.RetryMaxAttempts,
		BaseDelay:   a.cfg.RetryBaseDelay(),
		MaxDelay:    a.cfg.RetryMaxDelay(),
	}

	switch a.cfg.Strategy {
	case config.StrategyOptimistic:
		return strategy.NewOptimistic(stockLedger, policy, a.logger), nil

	case config.StrategyDistributed:
		var (
			locker  strategy.Locker
			counter strategy.Counter
		)
		if a.cfg.RedisAddr != "" {
			client, err := newRedisClient(ctx, a.cfg.RedisAddr)
			if err != nil {
				return nil, fmt.Errorf("connect to redis: %w", err)
			}
			a.redisClient = client
			locker = redisstrategy.NewLocker(client)
			counter = redisstrategy.NewCounter(client)
			a.logger.Info("using redis lease and counter", slog.String("addr", a.cfg.RedisAddr))
		} else {
			locker = strategy.NewMemoryLocker()
			counter = strategy.NewMemoryCounter()
			a.logger.Info("using in-memory lease and counter")
		}

		journal := strategy.NewMemoryJournal()
		a.reconciler = strategy.NewReconciler(stockLedger, journal, a.cfg.ReconcileInterval(),
			func(ctx context.Context, d strategy.Delta, err error) {
				eventProducer.PublishStockDiscrepancy(ctx, event.StockDiscrepancyData{
					ProductID: d.ProductID,
					Delta:     d.Delta,
					Reason:    fmt.Sprintf("reconciliation failed after %d attempts: %v", d.Attempts, err),
				})
			}, a.logger)

		return strategy.NewDistributed(stockLedger, locker, counter, journal,
			a.cfg.LeaseTTL(), policy, a.logger), nil

	default:
		return strategy.NewPessimistic(stockLedger, a.cfg.LockWaitTimeout(), a.logger), nil
	}
}

// Run starts the HTTP server and background jobs, then blocks until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server", slog.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.reconciler != nil {
		go a.reconciler.Run(ctx)
	}

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in order: drain in-flight HTTP
// requests, flush pending spans, close the Kafka producer, then the storage
// clients. The reconciler performs its own final flush when the run context
// is canceled.
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

	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if a.pool != nil {
		a.pool.Close()
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closePartial releases whatever NewApp managed to open before failing.
func (a *App) closePartial() {
	if a.producer != nil {
		_ = a.producer.Close()
	}
	if a.redisClient != nil {
		_ = a.redisClient.Close()
	}
	if a.pool != nil {
		a.pool.Close()
	}
	if a.tracerShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = a.tracerShutdown(ctx)
	}
}

func newPostgresPool(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	pgCfg := database.PostgresConfig{
		Host:            cfg.PostgresHost,
		Port:            cfg.PostgresPort,
		User:            cfg.PostgresUser,
		Password:        cfg.PostgresPass,
		DBName:          cfg.PostgresDB,
		SSLMode:         cfg.PostgresSSL,
		MaxConns:        cfg.DBMaxConns,
		MinConns:        cfg.DBMinConns,
		MaxConnLifetime: time.Duration(cfg.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(cfg.DBMaxConnIdleTimeMins) * time.Minute,
	}

	pool, err := database.NewPostgresPool(ctx, &pgCfg)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	database.RegisterPoolMetrics(pool, serviceName)

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThresholdMs > 0 {
		database.SetSlowQueryLogging(time.Duration(cfg.SlowQueryThresholdMs)*time.Millisecond, logger)
	}

	return pool, nil
}

func newRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("parse redis addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return nil, fmt.Errorf("parse redis port %q: %w", portStr, err)
	}
	return database.NewRedisClient(ctx, database.RedisConfig{Host: host, Port: port})
}

// pingKafkaWithRetry attempts to ping the Kafka producer with exponential
// backoff (3 attempts, 1s/2s/4s with ±25% jitter).
func pingKafkaWithRetry(ctx context.Context, producer *pkgkafka.Producer, logger *slog.Logger) error {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if err := producer.Ping(ctx); err == nil {
			return nil
		} else {
			lastErr = err
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
