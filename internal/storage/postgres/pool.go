package postgres

import (
	"context"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"sync"
	"time"
)

const connectTimeout = 10 * time.Second

// NewPool creates a pgx connection pool from the config and verifies it with a ping.
func NewPool(ctx context.Context, cfg config.PostgresConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.Pool.MaxConns > 0 {
		poolCfg.MaxConns = cfg.Pool.MaxConns
	}
	if cfg.Pool.MinConns > 0 {
		poolCfg.MinConns = cfg.Pool.MinConns
	}
	if cfg.Pool.ConnMaxLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.Pool.ConnMaxLifetime
	}

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return pool, nil
}

// Connector opens a single shared pool on first use, so the broker and the
// outcome log can share it and nothing connects when neither uses Postgres.
type Connector struct {
	cfg  config.PostgresConfig
	once sync.Once
	pool *pgxpool.Pool
	err  error
}

func NewConnector(cfg *config.Config) *Connector {
	return &Connector{cfg: cfg.Postgres}
}

// Pool returns the shared pool, creating it and the schema on the first call.
func (c *Connector) Pool(ctx context.Context) (*pgxpool.Pool, error) {
	c.once.Do(func() {
		pool, err := NewPool(ctx, c.cfg)
		if err != nil {
			c.err = err
			return
		}
		if err := EnsureSchema(ctx, pool); err != nil {
			pool.Close()
			c.err = err
			return
		}
		c.pool = pool
	})
	return c.pool, c.err
}

// Close closes the pool if it was ever opened.
func (c *Connector) Close() {
	if c.pool != nil {
		c.pool.Close()
	}
}
