package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite" // The pure Go SQLite driver

	"github.com/intermernet/scoreboard/internal/config"
)

// Service is the central struct for managing all database interactions.
// One Service, and therefore one connection pool, exists per process.
type Service struct {
	driver string
	db     *sql.DB
	sb     sq.StatementBuilderType
	log    *logrus.Logger
}

// NewService opens the database for the given driver and checks that it is reachable.
// For SQLite the dsn is a file path; foreign keys and a busy timeout are enabled on
// every pooled connection.
func NewService(ctx context.Context, driver, dsn string, logger *logrus.Logger) (*Service, error) {
	var placeholders sq.PlaceholderFormat = sq.Question
	switch driver {
	case config.DriverSQLite:
		dsn = sqliteDSN(dsn)
	case config.DriverPostgres:
		placeholders = sq.Dollar
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	return &Service{
		driver: driver,
		db:     db,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholders),
		log:    logger,
	}, nil
}

func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite"
}

// DB provides direct access to the pool for read-only queries.
func (s *Service) DB() *sql.DB {
	return s.db
}

// Ping reports whether the database is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// WriteTx executes a write operation (INSERT, UPDATE, DELETE) within a transaction.
// If writeFunc returns an error the transaction is rolled back and that error returned.
func (s *Service) WriteTx(ctx context.Context, writeFunc func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := writeFunc(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	return tx.Commit()
}

// Close closes the connection pool when the application shuts down.
func (s *Service) Close() {
	if err := s.db.Close(); err != nil {
		s.log.WithError(err).Warn("closing database")
		return
	}
	s.log.Info("database connections closed")
}

// Init sets up the schema if the tables don't exist.
// This is idempotent and safe to run on every application start.
func (s *Service) Init(ctx context.Context) error {
	stmts := sqliteSchema
	if s.driver == config.DriverPostgres {
		stmts = postgresSchema
	}
	return s.WriteTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("initializing schema: %w", err)
			}
		}
		return nil
	})
}

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		email VARCHAR(120) UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);`,
	`CREATE TABLE IF NOT EXISTS sections (
		id INTEGER PRIMARY KEY,
		category VARCHAR(50) NOT NULL,
		date DATETIME NOT NULL,
		finished BOOLEAN NOT NULL DEFAULT FALSE,
		code_a VARCHAR(2),
		code_b VARCHAR(2),
		score_a INTEGER NOT NULL DEFAULT 0,
		score_b INTEGER NOT NULL DEFAULT 0,
		gender VARCHAR(10)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sections_category_date ON sections (category, date);`,
	`CREATE INDEX IF NOT EXISTS idx_sections_finished_date ON sections (finished, date);`,
	`CREATE TABLE IF NOT EXISTS section_positions (
		section_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		athlete TEXT NOT NULL,
		PRIMARY KEY (section_id, position),
		FOREIGN KEY (section_id) REFERENCES sections (id) ON DELETE CASCADE
	);`,
}

var postgresSchema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email VARCHAR(120) UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);`,
	`CREATE TABLE IF NOT EXISTS sections (
		id BIGSERIAL PRIMARY KEY,
		category VARCHAR(50) NOT NULL,
		date TIMESTAMPTZ NOT NULL,
		finished BOOLEAN NOT NULL DEFAULT FALSE,
		code_a VARCHAR(2),
		code_b VARCHAR(2),
		score_a INTEGER NOT NULL DEFAULT 0,
		score_b INTEGER NOT NULL DEFAULT 0,
		gender VARCHAR(10)
	);`,
	`CREATE INDEX IF NOT EXISTS idx_sections_category_date ON sections (category, date);`,
	`CREATE INDEX IF NOT EXISTS idx_sections_finished_date ON sections (finished, date);`,
	`CREATE TABLE IF NOT EXISTS section_positions (
		section_id BIGINT NOT NULL REFERENCES sections (id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		athlete TEXT NOT NULL,
		PRIMARY KEY (section_id, position)
	);`,
}
