package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const DefaultSQLiteConnection = "./data/driveindex.db?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate"

type Config struct {
	// Application
	AppEnv string `validate:"oneof=development production"`

	// Database (optional driver switch via ENV, default: sqlite)
	DBDriver       string `validate:"oneof=sqlite pgx"`
	DBConnection   string `validate:"required"`
	DBMaxOpenConns int    `validate:"gte=1"`

	// Point-lookup cache (CACHE_SIZE=0 disables it)
	CacheSize int           `validate:"gte=0"`
	CacheTTL  time.Duration `validate:"gte=0"`

	// Observability (optional)
	SentryDSN   string
	MetricsAddr string

	// Snapshot storage. Without S3_BUCKET snapshots go to SnapshotDir.
	SnapshotDir     string `validate:"required"`
	S3Region        string `validate:"required_with=S3Bucket"`
	S3Bucket        string
	S3AccessKey     string
	S3SecretKey     string
	S3Endpoint      string        // Optional: for S3-compatible services (MinIO, DO Spaces, R2, etc.)
	S3PresignExpiry time.Duration // Lifetime of snapshot download URLs - default: 1 hour
}

var validate = validator.New()

func Load() (*Config, error) {
	// Load .env file if it exists
	err := godotenv.Load()
	if err != nil {
		slog.Debug("no .env file found, using environment variables")
	}

	cfg := &Config{
		AppEnv: envString("APP_ENV", "development"),

		DBDriver:       envString("DB_DRIVER", "sqlite"),
		DBConnection:   envString("DB_CONNECTION", DefaultSQLiteConnection),
		DBMaxOpenConns: envInt("DB_MAX_OPEN_CONNS", 25),

		CacheSize: envInt("CACHE_SIZE", 10000),
		CacheTTL:  envDuration("CACHE_TTL", 5*time.Minute),

		SentryDSN:   envString("SENTRY_DSN", ""),
		MetricsAddr: envString("METRICS_ADDR", ""),

		SnapshotDir:     envString("SNAPSHOT_DIR", "./data/snapshots"),
		S3Region:        envString("S3_REGION", ""),
		S3Bucket:        envString("S3_BUCKET", ""),
		S3AccessKey:     envString("S3_ACCESS_KEY", ""),
		S3SecretKey:     envString("S3_SECRET_KEY", ""),
		S3Endpoint:      envString("S3_ENDPOINT", ""),
		S3PresignExpiry: envDuration("S3_PRESIGN_EXPIRY", 1*time.Hour),
	}

	err = cfg.Validate()
	if err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the struct tags and reports every failing field at once.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("%s failed %q (value %v)", fe.Field(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func envString(key, def string) string {
	value := os.Getenv(key)
	if value == "" {
		value = def
	}
	return value
}

func envInt(key string, def int) int {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config invalid int, using default", "key", key, "value", v, "default", def)
		return def
	}
	return i
}

func envDuration(key string, def time.Duration) time.Duration {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config invalid duration, using default", "key", key, "value", v, "default", def)
		return def
	}
	return d
}

func (c *Config) IsDevelopment() bool {
	return c.AppEnv == "development"
}

func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}
