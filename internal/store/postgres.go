package store

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// PostgresDB holds the relational side: users, daily metrics, insights.
type PostgresDB struct {
	*sql.DB
	logger *zap.Logger
}

// NewPostgresDB opens the connection and applies migrations.
func NewPostgresDB(dsn string, logger *zap.Logger) (*PostgresDB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	pg := &PostgresDB{DB: db, logger: logger}
	if err := pg.migrate(); err != nil {
		return nil, fmt.Errorf("failed to run postgres migrations: %w", err)
	}

	logger.Info("Postgres connection established")
	return pg, nil
}

func (db *PostgresDB) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			email TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			display_name TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS daily_metrics (
			user_id UUID NOT NULL,
			date DATE NOT NULL,
			scroll_distance BIGINT NOT NULL DEFAULT 0,
			active_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
			idle_minutes DOUBLE PRECISION NOT NULL DEFAULT 0,
			click_count BIGINT NOT NULL DEFAULT 0,
			by_domain JSONB NOT NULL DEFAULT '{}',
			by_hour JSONB NOT NULL DEFAULT '[]',
			computed_at TIMESTAMPTZ NOT NULL,
			PRIMARY KEY (user_id, date)
		)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id UUID PRIMARY KEY,
			user_id UUID NOT NULL,
			metric_date DATE NOT NULL,
			title TEXT NOT NULL,
			body TEXT NOT NULL,
			tags TEXT[] NOT NULL DEFAULT '{}',
			metric_signature TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_insights_user_created ON insights(user_id, created_at DESC)`,
	}

	for _, migration := range migrations {
		if _, err := db.Exec(migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	db.logger.Info("Postgres migrations completed")
	return nil
}
