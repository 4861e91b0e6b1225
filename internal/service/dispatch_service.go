package service

import (
	"context"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/channels"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"github.com/ilindan-dev/dispatch-scheduler/internal/metrics"
	"github.com/rs/zerolog"
	"strings"
	"time"
)

// unsupportedLabel keeps arbitrary caller input out of metric labels.
const unsupportedLabel = "unsupported"

// Dispatcher performs a single send attempt and reports its outcome.
// It never returns an error: every failure is described by the outcome.
type Dispatcher interface {
	Dispatch(ctx context.Context, req model.DispatchRequest) model.DispatchOutcome
}

// DispatchService routes a request to the channel registered for its channel id.
type DispatchService struct {
	registry *channels.Registry
	logger   zerolog.Logger
}

var _ Dispatcher = (*DispatchService)(nil)

func NewDispatchService(registry *channels.Registry, logger *zerolog.Logger) *DispatchService {
	return &DispatchService{
		registry: registry,
		logger:   logger.With().Str("layer", "service").Str("component", "dispatch").Logger(),
	}
}

// Dispatch resolves the channel and makes exactly one send attempt.
// Unsupported channels fail without touching any transport.
func (s *DispatchService) Dispatch(ctx context.Context, req model.DispatchRequest) model.DispatchOutcome {
	outcome := model.DispatchOutcome{
		Channel:   req.Channel,
		Recipient: req.Recipient,
	}

	logCtx := s.logger.With().Str("channel", req.Channel).Str("recipient", req.Recipient)
	if jobID := JobIDFromContext(ctx); jobID != "" {
		logCtx = logCtx.Str("job_id", jobID)
	}
	log := logCtx.Logger()

	ch, err := s.registry.Resolve(req.Channel)
	if err != nil {
		log.Warn().Err(err).Msg("dispatch rejected")
		metrics.DispatchAttemptsTotal.WithLabelValues(unsupportedLabel, metrics.ResultFailure).Inc()
		outcome.Error = err.Error()
		outcome.Failure = model.FailureUnsupportedChannel
		return outcome
	}

	label := strings.ToLower(req.Channel)
	start := time.Now()
	err = send(ctx, ch, req)
	elapsed := time.Since(start)
	metrics.DispatchDuration.WithLabelValues(label).Observe(elapsed.Seconds())

	if err != nil {
		outcome.Error = err.Error()
		if outcome.Error == "" {
			outcome.Error = "send failed"
		}
		outcome.Failure = model.FailureTransport
		log.Error().Err(err).Dur("elapsed", elapsed).Msg("dispatch failed")
		metrics.DispatchAttemptsTotal.WithLabelValues(label, metrics.ResultFailure).Inc()
		return outcome
	}

	outcome.Succeeded = true
	log.Info().Dur("elapsed", elapsed).Msg("dispatch succeeded")
	metrics.DispatchAttemptsTotal.WithLabelValues(label, metrics.ResultSuccess).Inc()
	return outcome
}

// send converts a panic inside a channel into an error.
func send(ctx context.Context, ch channels.Channel, req model.DispatchRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("channel panic: %v", r)
		}
	}()
	return ch.Send(ctx, req.Recipient, req.Content, req.Subject)
}
