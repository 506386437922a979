package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadClean(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	for key, value := range env {
		t.Setenv(key, value)
	}
	return Load()
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := loadClean(t, nil)
	require.NoError(t, err)

	assert.Equal(t, "freightops-backend", cfg.App.Name)
	assert.Equal(t, "development", cfg.App.Env)
	assert.Equal(t, "8080", cfg.App.Port)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "freightops", cfg.Database.DBName)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, 5, cfg.Database.MaxIdleConns)

	assert.Equal(t, 4, cfg.Reconciliation.BatchWorkers)
	assert.Equal(t, 500, cfg.Reconciliation.BatchSize)
	assert.False(t, cfg.Reconciliation.SyncEnabled)
	assert.Equal(t, 5*time.Minute, cfg.Reconciliation.SyncInterval)

	assert.Equal(t, "postgres", cfg.Lock.Backend)
	assert.Equal(t, 10*time.Second, cfg.Lock.AcquireTimeout)
	assert.Equal(t, 5*time.Second, cfg.RateCalculator.Timeout)

	assert.Equal(t, 15*time.Second, cfg.HTTP.ReadTimeout)
	assert.Equal(t, int64(10<<20), cfg.HTTP.MaxBodySize)
	assert.Empty(t, cfg.HTTP.CORSAllowOrigins, "cross-origin requests require explicit configuration")

	assert.Equal(t, 1.0, cfg.Telemetry.SamplingRatio)
	assert.Equal(t, 200*time.Millisecond, cfg.Telemetry.DBSlowQueryThresh)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	cfg, err := loadClean(t, map[string]string{
		"FREIGHTOPS_APP_NAME":                  "recon-staging",
		"FREIGHTOPS_DATABASE_HOST":             "db.internal",
		"FREIGHTOPS_DATABASE_PASSWORD":         "hunter2",
		"FREIGHTOPS_LOCK_BACKEND":              "redis",
		"FREIGHTOPS_RECONCILIATION_BATCH_SIZE": "50",
		"FREIGHTOPS_HTTP_READ_TIMEOUT":         "30s",
	})
	require.NoError(t, err)

	assert.Equal(t, "recon-staging", cfg.App.Name)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "hunter2", cfg.Database.Password)
	assert.Equal(t, "redis", cfg.Lock.Backend)
	assert.Equal(t, 50, cfg.Reconciliation.BatchSize)
	assert.Equal(t, 30*time.Second, cfg.HTTP.ReadTimeout)
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{
			name:    "unknown lock backend",
			env:     map[string]string{"FREIGHTOPS_LOCK_BACKEND": "zookeeper"},
			wantErr: "lock.backend",
		},
		{
			name:    "idle conns exceed open conns",
			env:     map[string]string{"FREIGHTOPS_DATABASE_MAX_IDLE_CONNS": "50"},
			wantErr: "max_idle_conns",
		},
		{
			name:    "zero open conns",
			env:     map[string]string{"FREIGHTOPS_DATABASE_MAX_OPEN_CONNS": "0"},
			wantErr: "max_open_conns must be positive",
		},
		{
			name:    "sampling ratio out of range",
			env:     map[string]string{"FREIGHTOPS_TELEMETRY_SAMPLING_RATIO": "1.5"},
			wantErr: "sampling_ratio",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := loadClean(t, tc.env)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoad_ProductionGuards(t *testing.T) {
	// Each step satisfies the previous guard and trips the next one.
	base := map[string]string{"FREIGHTOPS_APP_ENV": "production"}

	_, err := loadClean(t, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database.password is required in production")

	base["FREIGHTOPS_DATABASE_PASSWORD"] = "secret"
	_, err = loadClean(t, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sslmode")

	base["FREIGHTOPS_DATABASE_SSLMODE"] = "require"
	_, err = loadClean(t, base)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate_calculator.base_url is required in production")

	base["FREIGHTOPS_RATE_CALCULATOR_BASE_URL"] = "https://rates.internal"
	cfg, err := loadClean(t, base)
	require.NoError(t, err)
	assert.Equal(t, "production", cfg.App.Env)
}

func TestLoad_ProductionRejectsWildcardCORS(t *testing.T) {
	_, err := loadClean(t, map[string]string{
		"FREIGHTOPS_APP_ENV":                  "production",
		"FREIGHTOPS_DATABASE_PASSWORD":        "secret",
		"FREIGHTOPS_DATABASE_SSLMODE":         "require",
		"FREIGHTOPS_RATE_CALCULATOR_BASE_URL": "https://rates.internal",
		"FREIGHTOPS_HTTP_CORS_ALLOW_ORIGINS":  "*",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cors_allow_origins")
}

func TestDatabaseConfig_DSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "recon",
		Password: "p@ss/word#1",
		DBName:   "freightops",
		SSLMode:  "require",
	}

	dsn := cfg.DSN()
	assert.Contains(t, dsn, "postgres://")
	assert.Contains(t, dsn, "db.internal:5432")
	assert.Contains(t, dsn, "/freightops")
	assert.Contains(t, dsn, "sslmode=require")
	assert.NotContains(t, dsn, "p@ss/word#1", "password must be URL-escaped")
}
