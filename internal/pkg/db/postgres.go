// Package db owns the PostgreSQL pool and schema migrations for the game store.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"

	"millionaire-bot/internal/config"
)

const (
	applicationName = "millionaire-bot"

	defaultPoolSize        = 20
	defaultConnectTimeout  = 10 * time.Second
	defaultMaxConnLifetime = time.Hour
	defaultMaxConnIdleTime = 30 * time.Minute
	healthCheckPeriod      = 30 * time.Second

	// Postgres in compose often accepts connections a few seconds after the bot starts.
	startupAttempts = 5
	startupBackoff  = 2 * time.Second
)

// Pool is the shared session store connection pool.
type Pool struct {
	*pgxpool.Pool
}

// NewPool builds the pool from cfg and waits until the server answers a ping.
func NewPool(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	pc, err := poolConfig(cfg)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := waitReady(ctx, pool, pc.ConnConfig.ConnectTimeout); err != nil {
		pool.Close()
		return nil, err
	}

	log.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int32("max_conns", pc.MaxConns).
		Msg("PostgreSQL pool ready")
	return &Pool{Pool: pool}, nil
}

// poolConfig turns the application settings into a pgx pool config, filling
// zero values with defaults.
func poolConfig(cfg *config.DatabaseConfig) (*pgxpool.Config, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	size := cfg.PoolSize
	if size <= 0 {
		size = defaultPoolSize
	}
	pc.MaxConns = int32(size)
	pc.MinConns = max(int32(size/4), 1)

	pc.ConnConfig.ConnectTimeout = orDefault(cfg.ConnectTimeout, defaultConnectTimeout)
	pc.MaxConnLifetime = orDefault(cfg.MaxConnLifetime, defaultMaxConnLifetime)
	pc.MaxConnIdleTime = orDefault(cfg.MaxConnIdleTime, defaultMaxConnIdleTime)
	pc.HealthCheckPeriod = healthCheckPeriod
	pc.ConnConfig.RuntimeParams["application_name"] = applicationName
	return pc, nil
}

func orDefault(d, fallback time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return fallback
}

// waitReady pings until the server answers, the attempts run out or ctx ends.
func waitReady(ctx context.Context, pool *pgxpool.Pool, perAttempt time.Duration) error {
	var err error
	for attempt := 1; attempt <= startupAttempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, perAttempt)
		err = pool.Ping(pingCtx)
		cancel()
		if err == nil {
			return nil
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("PostgreSQL not reachable yet")
		if attempt == startupAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("gave up waiting for database: %w", ctx.Err())
		case <-time.After(startupBackoff):
		}
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", startupAttempts, err)
}

// Close releases every connection.
func (p *Pool) Close() {
	if p.Pool == nil {
		return
	}
	p.Pool.Close()
	log.Info().Msg("PostgreSQL pool closed")
}

// HealthCheck pings the database and warns when every connection is checked out.
func (p *Pool) HealthCheck(ctx context.Context) error {
	if err := p.Pool.Ping(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	if st := p.Pool.Stat(); st.AcquiredConns() >= st.MaxConns() {
		log.Warn().Int32("max_conns", st.MaxConns()).Msg("PostgreSQL pool saturated")
	}
	return nil
}
