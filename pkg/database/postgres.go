package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	_ "github.com/lib/pq"

	"safenet/pkg/logging"
)

// PostgresConn represents a PostgreSQL database connection
type PostgresConn = *sql.DB

// ErrNoRows is returned when a query returns no rows
var ErrNoRows = sql.ErrNoRows

// Config holds database configuration
type Config struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration

	// Connect retries the initial ping with exponential backoff.
	ConnectRetries   int
	ConnectBaseDelay time.Duration
	ConnectMaxDelay  time.Duration
}

// DefaultConfig returns default database configuration
func DefaultConfig() Config {
	return Config{
		MaxOpenConns:     10,
		MaxIdleConns:     2,
		ConnMaxLifetime:  5 * time.Minute,
		ConnectRetries:   4,
		ConnectBaseDelay: 500 * time.Millisecond,
		ConnectMaxDelay:  8 * time.Second,
	}
}

// Connect opens the pool and waits for the server to answer a ping.
func Connect(ctx context.Context, cfg Config, logger logging.Logger) (PostgresConn, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := Ping(ctx, db, cfg, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.WithFields(logging.Fields{
		"max_open_conns":    cfg.MaxOpenConns,
		"max_idle_conns":    cfg.MaxIdleConns,
		"conn_max_lifetime": cfg.ConnMaxLifetime,
	}).Info("Database connected")

	return db, nil
}

// Ping checks connectivity, retrying per cfg so the daemon can start before
// the database finishes booting.
func Ping(ctx context.Context, db *sql.DB, cfg Config, logger logging.Logger) error {
	base := cfg.ConnectBaseDelay
	if base <= 0 {
		base = 100 * time.Millisecond
	}
	maxDelay := cfg.ConnectMaxDelay
	if maxDelay < base {
		maxDelay = base
	}

	policy := retrypolicy.NewBuilder[any]().
		WithMaxRetries(cfg.ConnectRetries).
		WithBackoff(base, maxDelay).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			logger.WithFields(logging.Fields{
				"attempt": e.Attempts(),
				"error":   e.LastError(),
			}).Warn("Database ping failed, retrying")
		}).
		Build()

	err := failsafe.With[any](policy).WithContext(ctx).Run(func() error {
		return db.PingContext(ctx)
	})
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
