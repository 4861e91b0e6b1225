package app

import (
	"context"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/internal/storage/memory"
	"github.com/ilindan-dev/dispatch-scheduler/internal/storage/postgres"
	"github.com/ilindan-dev/dispatch-scheduler/internal/storage/rabbitmq"
	"github.com/ilindan-dev/dispatch-scheduler/internal/storage/redis"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func newClock() clock.Clock {
	return clock.Real{}
}

// newPostgresConnector closes the shared pool, if one was opened, on shutdown.
func newPostgresConnector(lc fx.Lifecycle, cfg *config.Config) *postgres.Connector {
	connector := postgres.NewConnector(cfg)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			connector.Close()
			return nil
		},
	})
	return connector
}

// newRedisConnector closes the shared client, if one was opened, on shutdown.
func newRedisConnector(lc fx.Lifecycle, cfg *config.Config) *redis.Connector {
	connector := redis.NewConnector(cfg)
	lc.Append(fx.Hook{
		OnStop: func(context.Context) error {
			return connector.Close()
		},
	})
	return connector
}

// newJobBroker builds the broker selected by broker.type.
func newJobBroker(
	lc fx.Lifecycle,
	cfg *config.Config,
	connector *postgres.Connector,
	redisConnector *redis.Connector,
	clk clock.Clock,
	logger *zerolog.Logger,
) (repo.JobBroker, error) {
	logger.Info().Str("broker", cfg.Broker.Type).Str("queue", cfg.Broker.Queue).Msg("initializing job broker")

	switch cfg.Broker.Type {
	case config.BrokerRedis:
		client, err := redisConnector.Client()
		if err != nil {
			return nil, err
		}
		return redis.NewBroker(client, cfg.Broker.Queue, cfg.Broker.VisibilityTimeout, clk, logger), nil

	case config.BrokerRabbitMQ:
		broker, err := rabbitmq.NewBroker(cfg.RabbitMQ.DSN, cfg.Broker.Queue, clk, logger)
		if err != nil {
			return nil, err
		}
		lc.Append(fx.Hook{OnStop: func(context.Context) error { return broker.Close() }})
		return broker, nil

	case config.BrokerPostgres:
		pool, err := connector.Pool(context.Background())
		if err != nil {
			return nil, err
		}
		return postgres.NewBroker(pool, cfg.Broker.Queue, cfg.Broker.VisibilityTimeout, clk, logger), nil

	case config.BrokerMemory:
		logger.Warn().Msg("memory broker selected, scheduled jobs are lost on restart and not shared between processes")
		return memory.NewBroker(clk, cfg.Broker.VisibilityTimeout), nil

	default:
		return nil, fmt.Errorf("unknown broker type %q", cfg.Broker.Type)
	}
}

// newOutcomeLog builds the history store selected by history.store.
func newOutcomeLog(
	cfg *config.Config,
	connector *postgres.Connector,
	redisConnector *redis.Connector,
	logger *zerolog.Logger,
) (repo.OutcomeLog, error) {
	logger.Info().Str("store", cfg.History.Store).Msg("initializing outcome log")

	switch cfg.History.Store {
	case config.HistoryMemory:
		return memory.NewHistory(cfg.History.Capacity), nil
	case config.HistoryRedis:
		client, err := redisConnector.Client()
		if err != nil {
			return nil, err
		}
		return redis.NewHistoryRepository(client, cfg.Broker.Queue, cfg.History.Capacity, logger), nil
	case config.HistoryPostgres:
		pool, err := connector.Pool(context.Background())
		if err != nil {
			return nil, err
		}
		return postgres.NewHistoryRepository(pool, logger), nil
	case config.HistoryNone:
		return memory.Discard{}, nil
	default:
		return nil, fmt.Errorf("unknown history store %q", cfg.History.Store)
	}
}
