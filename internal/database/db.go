// Package database mirrors the JSON trade journal into PostgreSQL. The
// file journal stays the source of truth and keeps only a trailing
// window; the mirror holds the full history for offline analysis. All
// writes are fire-and-forget so a dead database never blocks trading.
package database

import (
	"context"
	"fmt"
	"time"

	"stock-trading-engine/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// DB wraps the PostgreSQL connection pool
type DB struct {
	Pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewDB creates a new database connection pool from the configured URL.
func NewDB(cfg config.DatabaseConfig, logger zerolog.Logger) (*DB, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}

	// Configure connection pool. The mirror sees one writer plus the
	// occasional API read, so the pool stays small.
	maxConns := int32(cfg.MaxConns)
	if maxConns <= 0 {
		maxConns = 4
	}
	poolConfig.MaxConns = maxConns
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	logger.Info().Msg("Connected to PostgreSQL trade mirror")

	return &DB{Pool: pool, logger: logger}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
		db.logger.Info().Msg("Database connection closed")
	}
}

// RunMigrations executes database migrations
func (db *DB) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("Running database migrations")

	migrations := []string{
		// Trade journal mirror: one row per order submission attempt.
		`CREATE TABLE IF NOT EXISTS trade_records (
			id BIGSERIAL PRIMARY KEY,
			recorded_at TIMESTAMPTZ NOT NULL,
			strategy VARCHAR(10) NOT NULL,
			symbol VARCHAR(12) NOT NULL,
			action VARCHAR(10) NOT NULL,
			entry_price DECIMAL(14, 4) NOT NULL,
			size INTEGER NOT NULL,
			signal_type VARCHAR(40) NOT NULL,
			confidence DECIMAL(5, 4) NOT NULL,
			status VARCHAR(12) NOT NULL,
			order_type VARCHAR(4) NOT NULL,
			order_id BIGINT,
			order_status VARCHAR(24),
			reason TEXT,
			simulated BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_strategy ON trade_records(strategy)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_symbol ON trade_records(symbol)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_recorded_at ON trade_records(recorded_at)`,
		`CREATE INDEX IF NOT EXISTS idx_trade_records_status ON trade_records(status)`,
	}

	for i, migration := range migrations {
		if _, err := db.Pool.Exec(ctx, migration); err != nil {
			return fmt.Errorf("migration %d failed: %w", i+1, err)
		}
	}

	db.logger.Info().Int("count", len(migrations)).Msg("Migrations complete")
	return nil
}
