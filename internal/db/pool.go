// Package db builds the pgx/v5 connection pool the Poll Store (C3) runs
// against. It replaces the teacher's pgx/v4 Neon-specific pool setup in
// config/database_utils.go, generalized away from a single hosting
// provider while keeping its TLS-for-managed-Postgres and pool-sizing
// conventions.
package db

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"time"

	"github.com/pollrelay/pollengine/config"
	"github.com/pollrelay/pollengine/logger"
	"github.com/jackc/pgx/v5/pgxpool"
)

// NewPool parses cfg into a pgx/v5 pool configuration, enables TLS for
// managed providers that require it (Neon, and any host with
// sslmode=require), applies the configured pool limits, and connects.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*pgxpool.Pool, error) {
	log := logger.GetLogger()

	poolConfig, err := pgxpool.ParseConfig(cfg.URL())
	if err != nil {
		return nil, fmt.Errorf("parse database config: %w", err)
	}

	if strings.Contains(cfg.Host, "neon.tech") || cfg.SSLMode == "require" {
		poolConfig.ConnConfig.TLSConfig = &tls.Config{
			ServerName: cfg.Host,
			MinVersion: tls.VersionTLS12,
		}
	}

	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLife != "" {
		if lifetime, parseErr := time.ParseDuration(cfg.ConnMaxLife); parseErr == nil {
			poolConfig.MaxConnLifetime = lifetime
		} else {
			log.Warnw("invalid conn_max_life, using pgxpool default", "value", cfg.ConnMaxLife, "error", parseErr)
		}
	}

	log.Infow("connecting to database",
		"host", cfg.Host,
		"port", cfg.Port,
		"database", cfg.Name,
		"sslmode", cfg.SSLMode,
		"max_conns", poolConfig.MaxConns,
		"min_conns", poolConfig.MinConns)

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}
