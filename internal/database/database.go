package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/foxxcyber/dyslexia-ar/internal/logger"
	"github.com/foxxcyber/dyslexia-ar/internal/models"
)

// Store is the read/write contract shared by the Postgres and in-memory usage stores
type Store interface {
	IncrementUsage(ctx context.Context) (int64, error)
	AddFeedback(ctx context.Context, req *models.CreateFeedbackRequest) (*models.Feedback, error)
	GetStats(ctx context.Context) (*models.UsageStats, error)
	RecentFeedback(ctx context.Context, limit int) ([]*models.Feedback, error)
	Close()
}

// DB wraps the connection pool
type DB struct {
	Pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// Open returns a Postgres-backed store for a non-empty URL (after running
// migrations) and an in-memory store otherwise.
func Open(databaseURL string) (Store, error) {
	if databaseURL == "" {
		logger.Component("database").Warn("DATABASE_URL not set, usage and feedback are kept in memory")
		return NewMemoryStore(), nil
	}

	db, err := Connect(databaseURL)
	if err != nil {
		return nil, err
	}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Connect creates a new database connection pool
func Connect(databaseURL string) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database URL: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 2
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Component("database").Info("Database connected successfully")
	return &DB{Pool: pool}, nil
}

// Close closes the database connection pool
func (db *DB) Close() {
	db.Pool.Close()
}

// RunMigrations applies pending migrations in version order
func RunMigrations(db *DB) error {
	ctx := context.Background()
	log := logger.Component("database")

	_, err := db.Pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	for _, version := range migrationVersions() {
		var exists bool
		err := db.Pool.QueryRow(ctx,
			"SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)",
			version,
		).Scan(&exists)
		if err != nil {
			return fmt.Errorf("failed to check migration %d: %w", version, err)
		}

		if exists {
			continue
		}

		log.WithField("version", version).Info("Applying migration")
		if _, err := db.Pool.Exec(ctx, migrations[version]); err != nil {
			return fmt.Errorf("failed to apply migration %d: %w", version, err)
		}

		_, err = db.Pool.Exec(ctx,
			"INSERT INTO schema_migrations (version) VALUES ($1)",
			version,
		)
		if err != nil {
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
	}

	return nil
}

func migrationVersions() []int {
	versions := make([]int, 0, len(migrations))
	for v := range migrations {
		versions = append(versions, v)
	}
	sort.Ints(versions)
	return versions
}

var migrations = map[int]string{
	1: migration001,
	2: migration002,
	3: migration003,
}

const migration001 = `
-- Single-row analyses counter
CREATE TABLE IF NOT EXISTS usage_stats (
    id INT PRIMARY KEY CHECK (id = 1),
    analyses BIGINT NOT NULL DEFAULT 0 CHECK (analyses >= 0)
);

INSERT INTO usage_stats (id, analyses) VALUES (1, 0)
ON CONFLICT (id) DO NOTHING;

-- Append-only feedback log
CREATE TABLE IF NOT EXISTS feedback (
    id BIGSERIAL PRIMARY KEY,
    rating INT NOT NULL,
    comments TEXT,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`

const migration002 = `
-- Migration 002: recent-feedback lookups
CREATE INDEX IF NOT EXISTS idx_feedback_created ON feedback(created_at DESC);
`

const migration003 = `
-- Migration 003: optional submitter id on feedback
ALTER TABLE feedback ADD COLUMN IF NOT EXISTS user_id TEXT;
`
