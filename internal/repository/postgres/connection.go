package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cassiomorais/checkout/internal/infrastructure/config"
	"github.com/cassiomorais/checkout/pkg/retry"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool opens the ledger's connection pool and waits for the database to answer.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections)
	poolConfig.MinConns = int32(cfg.MinConnections)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = 1 * time.Minute
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "checkout"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// The database container often starts after us under compose.
	err = retry.Do(ctx, retry.Config{
		MaxAttempts:  5,
		InitialDelay: time.Second,
		MaxDelay:     5 * time.Second,
	}, func() error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
