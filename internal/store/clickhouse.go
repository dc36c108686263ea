package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// ClickHouseDB holds the raw tracking-event stream.
type ClickHouseDB struct {
	Conn   clickhouse.Conn
	logger *zap.Logger
}

// ClickHouseOptions is the subset of connection settings we expose.
type ClickHouseOptions struct {
	Addr     string
	Database string
	Username string
	Password string
}

// NewClickHouseDB connects over native TCP and creates the events table.
func NewClickHouseDB(opts ClickHouseOptions, logger *zap.Logger) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	db := &ClickHouseDB{Conn: conn, logger: logger}
	if err := db.migrate(ctx); err != nil {
		return nil, fmt.Errorf("failed to run clickhouse migrations: %w", err)
	}

	logger.Info("ClickHouse connection established", zap.String("addr", opts.Addr))
	return db, nil
}

func (db *ClickHouseDB) migrate(ctx context.Context) error {
	return db.Conn.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tracking_events (
			event_id String,
			user_id String,
			device_id String,
			event_type LowCardinality(String),
			url String,
			domain String,
			duration_ms Int64,
			scroll_distance Int64,
			started_at DateTime64(3),
			metadata String,
			client_ts DateTime64(3),
			server_ts DateTime64(3)
		) ENGINE = MergeTree()
		ORDER BY (user_id, server_ts)
	`)
}

// Close shuts the connection down.
func (db *ClickHouseDB) Close() error {
	if db.Conn != nil {
		if err := db.Conn.Close(); err != nil {
			return fmt.Errorf("failed to close clickhouse: %w", err)
		}
		db.logger.Info("ClickHouse connection closed")
	}
	return nil
}
