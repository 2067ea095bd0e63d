package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Supported values for Config.DbDriver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Config holds all configuration for the application. By centralizing these
// settings, we make the application easier to manage and deploy.
type Config struct {
	// --- Server ---
	ServerAddr         string
	CorsAllowedOrigins []string

	// --- Database ---
	// DbDriver is the database/sql driver name, DbDSN the matching data source.
	DbDriver string
	DbDSN    string

	// --- Security ---
	JwtSecret        string
	AllowAdminSignup bool
	AdminEmail       string
	AdminPassword    string

	// JwtSecretGenerated is true when no JWT_SECRET was provided and a random
	// one was created for this process. Tokens will not survive a restart.
	JwtSecretGenerated bool

	// --- Logging ---
	LogLevel  string
	LogFormat string
}

// New creates a new Config instance by loading values from environment variables.
// It returns an error for combinations that cannot work, preventing the server
// from starting with a half-applied configuration.
func New() (*Config, error) {
	cfg := &Config{
		ServerAddr:    env("SERVER_ADDR"),
		JwtSecret:     env("JWT_SECRET"),
		AdminEmail:    env("ADMIN_EMAIL"),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		LogLevel:      strings.ToLower(env("LOG_LEVEL")),
		LogFormat:     strings.ToLower(env("LOG_FORMAT")),
	}

	// --- Provide sensible defaults for non-critical values ---
	if cfg.ServerAddr == "" {
		cfg.ServerAddr = ":5000"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.LogFormat == "" {
		cfg.LogFormat = "text"
	}
	if cfg.LogFormat != "text" && cfg.LogFormat != "json" {
		return nil, errors.New("LOG_FORMAT must be 'text' or 'json'")
	}

	cfg.CorsAllowedOrigins = splitList(env("CORS_ALLOWED_ORIGINS"))
	if len(cfg.CorsAllowedOrigins) == 0 {
		cfg.CorsAllowedOrigins = []string{"*"}
	}

	if raw := env("ALLOW_ADMIN_SIGNUP"); raw != "" {
		allow, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, errors.New("ALLOW_ADMIN_SIGNUP must be a boolean")
		}
		cfg.AllowAdminSignup = allow
	}

	if (cfg.AdminEmail == "") != (cfg.AdminPassword == "") {
		return nil, errors.New("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	// --- Database selection ---
	// A postgres URL wins; anything else falls back to a local SQLite file.
	if dbURL := env("DATABASE_URL"); isPostgresURL(dbURL) {
		cfg.DbDriver = DriverPostgres
		cfg.DbDSN = strings.Replace(dbURL, "postgres://", "postgresql://", 1)
	} else {
		path := env("DATABASE_PATH")
		if path == "" {
			path = filepath.Join(".", "data", "scoreboard.db")
		}
		cfg.DbDriver = DriverSQLite
		cfg.DbDSN = path
	}

	if cfg.JwtSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return nil, err
		}
		cfg.JwtSecret = secret
		cfg.JwtSecretGenerated = true
	}

	return cfg, nil
}

func env(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func isPostgresURL(u string) bool {
	return strings.HasPrefix(u, "postgres://") || strings.HasPrefix(u, "postgresql://")
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
