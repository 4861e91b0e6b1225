package redis

import (
	"context"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	goredis "github.com/redis/go-redis/v9"
	"sync"
	"time"
)

const pingTimeout = 5 * time.Second

// NewClient creates a go-redis client and verifies the connection.
func NewClient(cfg *config.Config) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Redis.Addr, err)
	}
	return client, nil
}

// Connector opens a single shared client on first use, so the broker and the
// outcome log can share it and nothing connects when neither uses Redis.
type Connector struct {
	cfg    *config.Config
	once   sync.Once
	client *goredis.Client
	err    error
}

func NewConnector(cfg *config.Config) *Connector {
	return &Connector{cfg: cfg}
}

// Client returns the shared client, connecting on the first call.
func (c *Connector) Client() (*goredis.Client, error) {
	c.once.Do(func() {
		c.client, c.err = NewClient(c.cfg)
	})
	return c.client, c.err
}

// Close closes the client if it was ever opened.
func (c *Connector) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}
