package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"SERVER_ADDR", "DATABASE_URL", "DATABASE_PATH", "JWT_SECRET",
		"CORS_ALLOWED_ORIGINS", "ALLOW_ADMIN_SIGNUP", "ADMIN_EMAIL", "ADMIN_PASSWORD",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestNewDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, ":5000", cfg.ServerAddr)
	assert.Equal(t, DriverSQLite, cfg.DbDriver)
	assert.Equal(t, filepath.Join(".", "data", "scoreboard.db"), cfg.DbDSN)
	assert.Equal(t, []string{"*"}, cfg.CorsAllowedOrigins)
	assert.False(t, cfg.AllowAdminSignup)
	assert.True(t, cfg.JwtSecretGenerated)
	assert.Len(t, cfg.JwtSecret, 64)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "text", cfg.LogFormat)
}

func TestNewPostgresURL(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "postgres://u:p@db:5432/scores")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, DriverPostgres, cfg.DbDriver)
	assert.Equal(t, "postgresql://u:p@db:5432/scores", cfg.DbDSN)
}

func TestNewNonPostgresURLFallsBackToSQLite(t *testing.T) {
	clearEnv(t)
	t.Setenv("DATABASE_URL", "sqlite:///local.db")
	t.Setenv("DATABASE_PATH", "/tmp/x.db")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, DriverSQLite, cfg.DbDriver)
	assert.Equal(t, "/tmp/x.db", cfg.DbDSN)
}

func TestNewParsesLists(t *testing.T) {
	clearEnv(t)
	t.Setenv("CORS_ALLOWED_ORIGINS", " http://a.test , ,http://b.test")
	t.Setenv("ALLOW_ADMIN_SIGNUP", "true")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.CorsAllowedOrigins)
	assert.True(t, cfg.AllowAdminSignup)
	assert.Equal(t, "s3cret", cfg.JwtSecret)
	assert.False(t, cfg.JwtSecretGenerated)
}

func TestNewRejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad bool":       {"ALLOW_ADMIN_SIGNUP": "maybe"},
		"email only":     {"ADMIN_EMAIL": "root@example.com"},
		"password only":  {"ADMIN_PASSWORD": "hunter22"},
		"bad log format": {"LOG_FORMAT": "xml"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}
