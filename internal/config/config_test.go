package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())
	for _, key := range []string{"APP_ENV", "DB_DRIVER", "DB_CONNECTION", "CACHE_SIZE", "CACHE_TTL", "S3_BUCKET", "S3_REGION"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, "sqlite", cfg.DBDriver)
	assert.Equal(t, DefaultSQLiteConnection, cfg.DBConnection)
	assert.Equal(t, 10000, cfg.CacheSize)
	assert.Equal(t, 5*time.Minute, cfg.CacheTTL)
}

func TestLoad_Overrides(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("APP_ENV", "production")
	t.Setenv("DB_DRIVER", "pgx")
	t.Setenv("DB_CONNECTION", "postgres://localhost/driveindex")
	t.Setenv("CACHE_SIZE", "not-a-number")
	t.Setenv("CACHE_TTL", "30s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "pgx", cfg.DBDriver)
	assert.Equal(t, 10000, cfg.CacheSize, "invalid ints fall back to the default")
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			AppEnv:         "development",
			DBDriver:       "sqlite",
			DBConnection:   DefaultSQLiteConnection,
			DBMaxOpenConns: 1,
			SnapshotDir:    "snapshots",
		}
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }, "DBDriver"},
		{"unknown env", func(c *Config) { c.AppEnv = "staging" }, "AppEnv"},
		{"negative cache", func(c *Config) { c.CacheSize = -1 }, "CacheSize"},
		{"bucket without region", func(c *Config) { c.S3Bucket = "snapshots" }, "S3Region"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}
