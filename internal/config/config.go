package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/manojdandy/orders-inventory/pkg/config"
)

// Backend selects where the stock ledger and repositories live.
const (
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
)

// Strategy names accepted by the STRATEGY env var.
const (
	StrategyPessimistic = "pessimistic"
	StrategyOptimistic  = "optimistic"
	StrategyDistributed = "distributed"
)

// Config holds all configuration for the orders-inventory service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"HTTP_PORT" envDefault:"8080"`

	// Storage backend and reservation strategy
	Backend  string `env:"BACKEND" envDefault:"memory"`
	Strategy string `env:"STRATEGY" envDefault:"pessimistic"`

	// Retry policy for optimistic and distributed reservations
	RetryMaxAttempts int `env:"RETRY_MAX_ATTEMPTS" envDefault:"3"`
	RetryBaseDelayMs int `env:"RETRY_BASE_DELAY_MS" envDefault:"20"`
	RetryMaxDelayMs  int `env:"RETRY_MAX_DELAY_MS" envDefault:"250"`

	// Pessimistic lock wait bound
	LockWaitTimeoutMs int `env:"LOCK_WAIT_TIMEOUT_MS" envDefault:"500"`

	// Distributed strategy lease TTL and reconciliation cadence
	LeaseTTLMs          int `env:"LEASE_TTL_MS" envDefault:"2000"`
	ReconcileIntervalMs int `env:"RECONCILE_INTERVAL_MS" envDefault:"500"`

	// Low-stock report threshold
	LowStockThreshold int `env:"LOW_STOCK_THRESHOLD" envDefault:"10"`

	// PostgreSQL (used when BACKEND=postgres)
	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"orders"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"orders_secret"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"orders"`
	PostgresSSL  string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"25"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"5"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`

	// Kafka (empty disables event publishing)
	KafkaBrokers []string `env:"KAFKA_BROKERS" envSeparator:","`

	// Redis (used by the distributed strategy when set)
	RedisAddr string `env:"REDIS_ADDR"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// Pprof debug endpoints (IP allowlist in CIDR notation)
	PprofAllowedCIDRs []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"10.0.0.0/8,172.16.0.0/12,192.168.0.0/16,127.0.0.0/8,::1/128" envSeparator:","`

	// Slow query logging
	SlowQueryThresholdMs int `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.Backend {
	case BackendMemory, BackendPostgres:
	default:
		return fmt.Errorf("invalid BACKEND %q: must be %q or %q", c.Backend, BackendMemory, BackendPostgres)
	}
	switch c.Strategy {
	case StrategyPessimistic, StrategyOptimistic, StrategyDistributed:
	default:
		return fmt.Errorf("invalid STRATEGY %q: must be one of %q, %q, %q",
			c.Strategy, StrategyPessimistic, StrategyOptimistic, StrategyDistributed)
	}
	if c.RetryMaxAttempts < 1 {
		return fmt.Errorf("RETRY_MAX_ATTEMPTS must be >= 1, got %d", c.RetryMaxAttempts)
	}
	if c.RetryBaseDelayMs < 1 || c.RetryMaxDelayMs < c.RetryBaseDelayMs {
		return fmt.Errorf("invalid retry delays: base %dms, max %dms", c.RetryBaseDelayMs, c.RetryMaxDelayMs)
	}
	if c.LockWaitTimeoutMs < 1 {
		return fmt.Errorf("LOCK_WAIT_TIMEOUT_MS must be >= 1, got %d", c.LockWaitTimeoutMs)
	}
	if c.LeaseTTLMs < 1 {
		return fmt.Errorf("LEASE_TTL_MS must be >= 1, got %d", c.LeaseTTLMs)
	}
	if c.ReconcileIntervalMs < 1 {
		return fmt.Errorf("RECONCILE_INTERVAL_MS must be >= 1, got %d", c.ReconcileIntervalMs)
	}
	if c.LowStockThreshold < 0 {
		return fmt.Errorf("LOW_STOCK_THRESHOLD must be >= 0, got %d", c.LowStockThreshold)
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate)
	}
	if c.Backend == BackendPostgres {
		if c.PostgresHost == "" {
			return fmt.Errorf("POSTGRES_HOST is required when BACKEND=postgres")
		}
		if c.PostgresUser == "" {
			return fmt.Errorf("POSTGRES_USER is required when BACKEND=postgres")
		}
	}
	return nil
}

// PostgresDSN returns the PostgreSQL connection string.
func (c *Config) PostgresDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.PostgresUser, c.PostgresPass, c.PostgresHost, c.PostgresPort, c.PostgresDB, c.PostgresSSL,
	)
}

// RetryBaseDelay returns the retry base delay as a duration.
func (c *Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the retry delay ceiling as a duration.
func (c *Config) RetryMaxDelay() time.Duration {
	return time.Duration(c.RetryMaxDelayMs) * time.Millisecond
}

// LockWaitTimeout returns the pessimistic lock wait bound as a duration.
func (c *Config) LockWaitTimeout() time.Duration {
	return time.Duration(c.LockWaitTimeoutMs) * time.Millisecond
}

// LeaseTTL returns the distributed lease TTL as a duration.
func (c *Config) LeaseTTL() time.Duration {
	return time.Duration(c.LeaseTTLMs) * time.Millisecond
}

// ReconcileInterval returns the reconciliation cadence as a duration.
func (c *Config) ReconcileInterval() time.Duration {
	return time.Duration(c.ReconcileIntervalMs) * time.Millisecond
}
