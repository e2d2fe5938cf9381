// Package config provides environment configuration loading for the Tally warehouse ETL service.
//
// Configuration is loaded from environment variables with sensible defaults for
// development. All collaborators (PostgreSQL, NATS, Tally) are configured through
// this package.
//
// Usage:
//
//	cfg, err := config.Load()
//	if err != nil {
//	    log.Fatal("Failed to load configuration:", err)
//	}
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment represents the application environment.
type Environment string

const (
	// EnvDevelopment indicates a development environment.
	EnvDevelopment Environment = "development"
	// EnvStaging indicates a staging environment.
	EnvStaging Environment = "staging"
	// EnvProduction indicates a production environment.
	EnvProduction Environment = "production"
)

// Config holds all application configuration.
type Config struct {
	// Application settings
	App AppConfig

	// Database configuration
	Database DatabaseConfig

	// NATS messaging configuration (optional — Publisher omitted if URL is empty)
	NATS NATSConfig

	// Tally ERP connection configuration
	Tally TallyConfig

	// ETL run configuration
	ETL ETLConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// AppConfig holds general application settings.
type AppConfig struct {
	// Environment is the application environment (development, staging, production).
	Environment Environment

	// LogLevel is the logging level (debug, info, warn, error).
	LogLevel string

	// LogFormat holds LOG_FORMAT (json, text). The logger does not read it:
	// NewLogger writes JSON in production and text in every other environment.
	LogFormat string
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	// URL is the full PostgreSQL connection string. If set, it takes priority
	// over the individual Host/Port/User/Password/Name/SSLMode fields.
	URL string

	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string

	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration

	// MigrationsPath is the directory of SQL migrations applied at startup.
	MigrationsPath string
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	// URL is the NATS server URL. Empty disables event publishing entirely.
	URL string

	Name          string
	MaxReconnects int
	ReconnectWait time.Duration
}

// TallyConfig holds Tally ERP connection settings.
type TallyConfig struct {
	// Host is the Tally server hostname.
	Host string

	// Port is the Tally server port (Tally's ODBC/HTTP gateway, default 9000).
	Port int

	// Company is the exact company name as known to Tally.
	Company string

	// VoucherTimeout bounds a single voucher-register request. Defaults to 60s.
	VoucherTimeout time.Duration

	// MasterTimeout bounds a single master-export request. Defaults to 300s.
	MasterTimeout time.Duration

	// MaxRetries is the maximum number of attempts per request when attempts
	// fail with SourceUnreachable/SourceProtocolError. A value below 1 still
	// makes one attempt.
	MaxRetries int

	// RetryMinBackoff / RetryMaxBackoff bound the exponential backoff between retries.
	RetryMinBackoff time.Duration
	RetryMaxBackoff time.Duration
}

// ETLConfig holds ETL run configuration.
type ETLConfig struct {
	// IncrementalStream names the stream whose checkpoint drives run_incremental.
	IncrementalStream string

	// BatchDays is the window size for day-by-day backfill batching. Defaults to 15.
	BatchDays int

	// BatchPause is the pause between consecutive backfill batches. Defaults
	// to 1s; larger values are capped at 1s.
	BatchPause time.Duration
}

// ObservabilityConfig holds logging/monitoring settings.
type ObservabilityConfig struct {
	// ServiceName holds SERVICE_NAME. It is loaded but not attached to log
	// lines or run_log rows.
	ServiceName string
}

// Load reads configuration from environment variables, applying defaults.
func Load() (*Config, error) {
	cfg := &Config{
		App:           loadAppConfig(),
		Database:      loadDatabaseConfig(),
		NATS:          loadNATSConfig(),
		Tally:         loadTallyConfig(),
		ETL:           loadETLConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	return cfg, nil
}

// MustLoad loads configuration and panics on error. Intended for cmd/ entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Validate checks that required configuration is present and internally consistent.
// A failure here is fatal at startup; no partial work is performed.
func (c *Config) Validate() error {
	if c.Database.URL == "" && c.Database.Host == "" {
		return fmt.Errorf("database connection not configured: set DATABASE_URL or DB_HOST")
	}

	if c.Tally.Host == "" {
		return fmt.Errorf("TALLY_HOST is required")
	}

	if c.Tally.Company == "" {
		return fmt.Errorf("TALLY_COMPANY is required")
	}

	if c.Tally.MaxRetries < 0 {
		return fmt.Errorf("TALLY_MAX_RETRIES must be >= 0")
	}

	if c.ETL.BatchDays <= 0 {
		return fmt.Errorf("ETL_BATCH_DAYS must be > 0")
	}

	return nil
}

// IsProduction reports whether the configured environment is production.
func (c *Config) IsProduction() bool {
	return c.App.Environment == EnvProduction
}

// DatabaseDSN returns the PostgreSQL connection string, preferring an explicit URL.
func (c *Config) DatabaseDSN() string {
	if c.Database.URL != "" {
		return c.Database.URL
	}

	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User, c.Database.Password, c.Database.Host, c.Database.Port,
		c.Database.Name, c.Database.SSLMode)
}

// TallyURL returns the base URL of the Tally HTTP gateway.
func (c *Config) TallyURL() string {
	return fmt.Sprintf("http://%s:%d", c.Tally.Host, c.Tally.Port)
}

// LogConfig logs the resolved configuration at startup, redacting secrets.
func (c *Config) LogConfig(logger *slog.Logger) {
	logger.Info("configuration loaded",
		slog.String("environment", string(c.App.Environment)),
		slog.String("tally_host", c.Tally.Host),
		slog.Int("tally_port", c.Tally.Port),
		slog.String("tally_company", c.Tally.Company),
		slog.Int("etl_batch_days", c.ETL.BatchDays),
		slog.Bool("nats_enabled", c.NATS.URL != ""),
	)
}

func loadAppConfig() AppConfig {
	return AppConfig{
		Environment: parseEnvironment(getEnv("APP_ENV", "development")),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
		LogFormat:   getEnv("LOG_FORMAT", "text"),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		URL:               getEnv("DATABASE_URL", ""),
		Host:              getEnv("DB_HOST", "localhost"),
		Port:              getEnvInt("DB_PORT", 5432),
		User:              getEnv("DB_USER", "postgres"),
		Password:          getEnv("DB_PASSWORD", ""),
		Name:              getEnv("DB_NAME", "tally_warehouse"),
		SSLMode:           getEnv("DB_SSLMODE", "disable"),
		MaxConns:          int32(getEnvInt("DB_MAX_CONNS", 25)),
		MinConns:          int32(getEnvInt("DB_MIN_CONNS", 5)),
		MaxConnLifetime:   getEnvDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
		MaxConnIdleTime:   getEnvDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
		HealthCheckPeriod: getEnvDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		MigrationsPath:    getEnv("DB_MIGRATIONS_PATH", "migrations"),
	}
}

func loadNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           getEnv("NATS_URL", ""),
		Name:          getEnv("NATS_CLIENT_NAME", "tally-warehouse-etl"),
		MaxReconnects: getEnvInt("NATS_MAX_RECONNECTS", 10),
		ReconnectWait: getEnvDuration("NATS_RECONNECT_WAIT", 2*time.Second),
	}
}

func loadTallyConfig() TallyConfig {
	return TallyConfig{
		Host:            getEnv("TALLY_HOST", "localhost"),
		Port:            getEnvInt("TALLY_PORT", 9000),
		Company:         getEnv("TALLY_COMPANY", ""),
		VoucherTimeout:  getEnvDuration("TALLY_VOUCHER_TIMEOUT", 60*time.Second),
		MasterTimeout:   getEnvDuration("TALLY_MASTER_TIMEOUT", 300*time.Second),
		MaxRetries:      getEnvInt("TALLY_MAX_RETRIES", 5),
		RetryMinBackoff: getEnvDuration("TALLY_RETRY_MIN_BACKOFF", 1*time.Second),
		RetryMaxBackoff: getEnvDuration("TALLY_RETRY_MAX_BACKOFF", 30*time.Second),
	}
}

func loadETLConfig() ETLConfig {
	pause := getEnvDuration("ETL_BATCH_PAUSE", 1*time.Second)
	if pause > time.Second {
		pause = time.Second
	}
	return ETLConfig{
		IncrementalStream: getEnv("ETL_INCREMENTAL_STREAM", "invoices"),
		BatchDays:         getEnvInt("ETL_BATCH_DAYS", 15),
		BatchPause:        pause,
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		ServiceName: getEnv("SERVICE_NAME", "tally-warehouse-etl"),
	}
}

func parseEnvironment(env string) Environment {
	switch strings.ToLower(env) {
	case "production", "prod":
		return EnvProduction
	case "staging", "stage":
		return EnvStaging
	default:
		return EnvDevelopment
	}
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvBool(key string, defaultValue bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}
	return b
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}
