package service

import (
	"context"
	"errors"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/internal/metrics"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/rs/zerolog"
	"time"
)

var (
	// ErrNegativeDelay is returned when a job is scheduled with a delay below zero.
	ErrNegativeDelay = errors.New("delay must not be negative")
	// ErrSchedulingFailed is returned when the broker did not accept the job.
	ErrSchedulingFailed = errors.New("scheduling failed")
)

// Scheduler hands dispatch requests to the broker for deferred execution.
// It never runs a request itself and never looks at the channel.
type Scheduler struct {
	broker repo.JobBroker
	clock  clock.Clock
	logger zerolog.Logger
}

func NewScheduler(broker repo.JobBroker, clk clock.Clock, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{
		broker: broker,
		clock:  clk,
		logger: logger.With().Str("layer", "service").Str("component", "scheduler").Logger(),
	}
}

// Schedule submits req to run no earlier than delay from now and returns as soon
// as the broker has accepted it.
func (s *Scheduler) Schedule(ctx context.Context, req model.DispatchRequest, delay time.Duration) (*model.ScheduledJob, error) {
	if delay < 0 {
		return nil, ErrNegativeDelay
	}

	submittedAt := s.clock.Now().UTC()
	eligibleAt := submittedAt.Add(delay)

	payload, err := EncodePayload(req, submittedAt, eligibleAt)
	if err != nil {
		metrics.JobsScheduledTotal.WithLabelValues(metrics.ResultFailure).Inc()
		return nil, fmt.Errorf("%w: encode payload: %w", ErrSchedulingFailed, err)
	}

	jobID, err := s.broker.Submit(ctx, payload, eligibleAt)
	if err != nil {
		metrics.JobsScheduledTotal.WithLabelValues(metrics.ResultFailure).Inc()
		s.logger.Error().Err(err).Str("channel", req.Channel).Msg("broker rejected job")
		return nil, fmt.Errorf("%w: %w", ErrSchedulingFailed, err)
	}

	metrics.JobsScheduledTotal.WithLabelValues(metrics.ResultSuccess).Inc()
	s.logger.Info().
		Str("job_id", jobID).
		Str("channel", req.Channel).
		Time("eligible_at", eligibleAt).
		Msg("job scheduled")

	return &model.ScheduledJob{
		ID:          jobID,
		Request:     req,
		SubmittedAt: submittedAt,
		EligibleAt:  eligibleAt,
	}, nil
}
