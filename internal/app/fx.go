package app

import (
	"context"
	"errors"
	"github.com/ilindan-dev/dispatch-scheduler/internal/channels"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	deliveryHTTP "github.com/ilindan-dev/dispatch-scheduler/internal/delivery/http"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/internal/logger"
	"github.com/ilindan-dev/dispatch-scheduler/internal/service"
	"github.com/ilindan-dev/dispatch-scheduler/internal/worker"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
	"net/http"
)

// CommonModule provides dependencies that are shared between the API and Worker applications.
var CommonModule = fx.Options(
	fx.Provide(
		// Core components
		config.NewConfig,
		logger.NewLogger,
		newClock,

		// Storage Layer
		newPostgresConnector,
		newRedisConnector,
		newJobBroker,
		newOutcomeLog,

		// Channels and Service Layer
		channels.BuildRegistry,
		service.NewDispatchService,
		func(s *service.DispatchService) service.Dispatcher { return s },
		service.NewScheduler,
	),

	fx.Decorate(func(
		next service.Dispatcher,
		history repo.OutcomeLog,
		clk clock.Clock,
		cfg *config.Config,
		logger *zerolog.Logger,
	) service.Dispatcher {
		if cfg.History.Store == config.HistoryNone {
			return next
		}
		return service.NewRecordingDispatcher(next, history, clk, logger)
	}),
)

// APIModule defines the Fx module for the HTTP API application.
var APIModule = fx.Options(
	CommonModule, // Include all shared components
	fx.Provide(
		// API-specific components
		deliveryHTTP.NewHandlers,
		deliveryHTTP.NewServer,
	),

	fx.Invoke(func(server *deliveryHTTP.Server, cfg *config.Config, logger *zerolog.Logger, lc fx.Lifecycle, shutdowner fx.Shutdowner) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				logger.Info().Str("addr", server.Addr).Msg("starting http server")
				go serve(server.Server, logger, shutdowner)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				ctx, cancel := context.WithTimeout(ctx, cfg.HTTP.ShutdownTimeout)
				defer cancel()
				return server.Shutdown(ctx)
			},
		})
	}),
)

// WorkerModule defines the Fx module for the background worker application.
var WorkerModule = fx.Options(
	CommonModule, // Include all shared components
	fx.Provide(
		// Worker-specific components
		worker.New,
	),
	fx.Invoke(func(w *worker.Worker, cfg *config.Config, logger *zerolog.Logger, lc fx.Lifecycle, shutdowner fx.Shutdowner) {
		// The start context ends once startup completes, so the pool gets its own.
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})

		var metricsServer *http.Server
		if cfg.Metrics.WorkerAddr != "" {
			metricsServer = deliveryHTTP.NewMetricsServer(cfg.Metrics.WorkerAddr)
		}

		lc.Append(fx.Hook{
			OnStart: func(context.Context) error {
				go func() {
					defer close(done)
					w.Start(ctx)
				}()
				if metricsServer != nil {
					logger.Info().Str("addr", metricsServer.Addr).Msg("starting worker metrics server")
					go serve(metricsServer, logger, shutdowner)
				}
				return nil
			},
			OnStop: func(stopCtx context.Context) error {
				cancel()
				if metricsServer != nil {
					_ = metricsServer.Shutdown(stopCtx)
				}
				select {
				case <-done:
					return nil
				case <-stopCtx.Done():
					return stopCtx.Err()
				}
			},
		})
	}),
)

// serve runs the server until it is shut down. Any other exit stops the application.
func serve(server *http.Server, logger *zerolog.Logger, shutdowner fx.Shutdowner) {
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Str("addr", server.Addr).Msg("http server failed")
		_ = shutdowner.Shutdown(fx.ExitCode(1))
	}
}
