// ./internal/state/db.go
package state

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog/log"
)

// DB is a global database connection pool.
var DB *sql.DB

// DBConfig holds database connection parameters.
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string // "disable", "require", "verify-full", etc.
}

// DSN renders the lib/pq connection string.
func (cfg DBConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
}

// InitDB initializes the database connection pool.
func InitDB(cfg DBConfig) error {
	var err error
	DB, err = sql.Open("postgres", cfg.DSN())
	if err != nil {
		return fmt.Errorf("failed to open database connection: %w", err)
	}

	DB.SetMaxOpenConns(25)
	DB.SetMaxIdleConns(25)
	DB.SetConnMaxLifetime(5 * time.Minute)

	err = DB.Ping()
	if err != nil {
		DB.Close()
		DB = nil
		return fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Str("host", cfg.Host).Str("db", cfg.DBName).Msg("Successfully connected to the PostgreSQL database!")
	return nil
}

// CloseDB closes the database connection pool.
func CloseDB() {
	if DB != nil {
		log.Info().Msg("Closing database connection...")
		if err := DB.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing database connection")
		}
		DB = nil
	}
}

const schemaSQL = `
	CREATE TABLE IF NOT EXISTS ledger_snapshots (
		snapshot_id SERIAL PRIMARY KEY,
		block_time BIGINT NOT NULL,
		taken_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
		pool_ids BIGINT[] NOT NULL DEFAULT '{}',
		defunct_pool_ids BIGINT[] NOT NULL DEFAULT '{}',
		state JSONB NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_ledger_snapshots_taken_at ON ledger_snapshots(taken_at DESC);

	CREATE TABLE IF NOT EXISTS settlement_receipts (
		receipt_id UUID PRIMARY KEY,
		kind VARCHAR(64) NOT NULL,
		pool_id BIGINT NOT NULL DEFAULT 0,
		sender VARCHAR(255) NOT NULL,
		block_time BIGINT NOT NULL,
		committed_at TIMESTAMPTZ NOT NULL,
		token_ops JSONB NOT NULL DEFAULT '[]',
		bonds JSONB NOT NULL DEFAULT '[]',
		attributes JSONB NOT NULL DEFAULT '{}'
	);
	CREATE INDEX IF NOT EXISTS idx_settlement_receipts_pool ON settlement_receipts(pool_id, committed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_settlement_receipts_sender ON settlement_receipts(sender, committed_at DESC);
	CREATE INDEX IF NOT EXISTS idx_settlement_receipts_kind ON settlement_receipts(kind);
`

// EnsureSchema applies the necessary DDL to create tables if they don't exist.
func EnsureSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	if _, err := DB.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema DDL: %w", err)
	}
	log.Info().Msg("Database schema ensured (ledger_snapshots, settlement_receipts).")
	return nil
}

// ResetSchema drops every table owned by the service and recreates them empty.
func ResetSchema() error {
	if DB == nil {
		return fmt.Errorf("database not initialized")
	}
	dropSQL := `
		DROP TABLE IF EXISTS settlement_receipts CASCADE;
		DROP TABLE IF EXISTS ledger_snapshots CASCADE;
	`
	if _, err := DB.Exec(dropSQL); err != nil {
		return fmt.Errorf("failed to drop tables: %w", err)
	}
	log.Warn().Msg("Dropped ledger tables")
	return EnsureSchema()
}

// TestDBConnection tests if the database connection is healthy
func TestDBConnection() error {
	if DB == nil {
		return fmt.Errorf("database connection is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := DB.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	return nil
}
