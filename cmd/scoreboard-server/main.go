package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/intermernet/scoreboard/internal/api"
	"github.com/intermernet/scoreboard/internal/auth"
	"github.com/intermernet/scoreboard/internal/config"
	"github.com/intermernet/scoreboard/internal/database"
	"github.com/intermernet/scoreboard/internal/realtime"
)

// main is the entry point for the scoreboard backend server.
func main() {
	logger := logrus.New()

	// --- 1. Load Configuration ---
	// A .env file is convenient in development; in production the variables
	// are set on the process directly.
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found, using environment variables from the system")
	}

	cfg, err := config.New()
	if err != nil {
		logger.WithError(err).Fatal("failed to load application configuration")
	}
	configureLogger(logger, cfg)

	if cfg.JwtSecretGenerated {
		logger.Warn("JWT_SECRET is not set; using a random secret, bearer tokens will not survive a restart")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 2. Initialize Database Service ---
	if cfg.DbDriver == config.DriverSQLite {
		if err := os.MkdirAll(filepath.Dir(cfg.DbDSN), 0755); err != nil {
			logger.WithError(err).Fatalf("failed to create database directory for %s", cfg.DbDSN)
		}
	}

	dbService, err := database.NewService(ctx, cfg.DbDriver, cfg.DbDSN, logger)
	if err != nil {
		logger.WithError(err).Fatal("failed to initialize database service")
	}
	defer dbService.Close()

	if err := dbService.Init(ctx); err != nil {
		logger.WithError(err).Fatal("failed to initialize database schema")
	}
	logger.WithField("driver", cfg.DbDriver).Info("database schema verified")

	if cfg.AdminEmail != "" {
		if err := seedAdmin(ctx, logger, dbService, cfg); err != nil {
			logger.WithError(err).Fatal("failed to seed admin user")
		}
	}

	// --- 3. Set Up API Server and Routes ---
	broker := realtime.NewBroker(logger)
	serverAPI := api.NewServer(cfg, dbService, broker, logger)

	router := chi.NewRouter()
	serverAPI.RegisterRoutes(router)

	// --- 4. Start the HTTP Server ---
	srv := &http.Server{
		Addr:              cfg.ServerAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("scoreboard server starting on %s", cfg.ServerAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server stopped unexpectedly")
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.WithError(err).Error("graceful shutdown failed")
		}
	}
}

func configureLogger(logger *logrus.Logger, cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.WithField("level", cfg.LogLevel).Warn("unknown LOG_LEVEL, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// seedAdmin makes sure the configured bootstrap admin exists.
func seedAdmin(ctx context.Context, logger *logrus.Logger, db *database.Service, cfg *config.Config) error {
	hash, err := auth.HashPassword(cfg.AdminPassword)
	if err != nil {
		return err
	}
	created, err := db.EnsureAdminUser(ctx, cfg.AdminEmail, hash)
	if err != nil {
		return err
	}
	if created {
		logger.WithField("email", cfg.AdminEmail).Info("bootstrap admin created")
	}
	return nil
}
