// Package worker runs the pool that executes scheduled jobs.
package worker

import (
	"context"
	"github.com/ilindan-dev/dispatch-scheduler/internal/config"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/internal/metrics"
	"github.com/ilindan-dev/dispatch-scheduler/internal/service"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/rs/zerolog"
	"sync"
	"time"
)

// ackTimeout bounds a single acknowledgement, which is sent even during shutdown.
const ackTimeout = 10 * time.Second

// Worker polls the broker and executes eligible jobs using a pool of goroutines.
// Every claimed job is acknowledged after its single dispatch attempt, whatever
// the outcome; a job whose acknowledgement is lost is delivered again.
type Worker struct {
	broker     repo.JobBroker
	dispatcher service.Dispatcher
	clock      clock.Clock
	cfg        config.WorkerConfig
	logger     zerolog.Logger

	// claimWindow is how long a claim stays exclusive to this worker. Zero when
	// the broker holds claims until they are acknowledged.
	claimWindow time.Duration
}

// New creates a new instance of Worker.
func New(
	cfg *config.Config,
	broker repo.JobBroker,
	dispatcher service.Dispatcher,
	clk clock.Clock,
	logger *zerolog.Logger,
) *Worker {
	w := &Worker{
		broker:     broker,
		dispatcher: dispatcher,
		clock:      clk,
		cfg:        cfg.Worker,
		logger:     logger.With().Str("component", "worker").Logger(),
	}
	if cfg.Broker.Type != config.BrokerRabbitMQ {
		w.claimWindow = cfg.Broker.VisibilityTimeout
	}
	return w
}

// Start launches the pool. It blocks until ctx is cancelled and every loop has exited.
func (w *Worker) Start(ctx context.Context) {
	w.logger.Info().Int("count", w.cfg.Concurrency).Msg("Starting worker pool")
	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)
		go func(loopID int) {
			defer wg.Done()
			w.runLoop(ctx, loopID)
		}(i + 1)
	}

	wg.Wait()
	w.logger.Info().Msg("Worker pool stopped")
}

// runLoop polls until ctx is cancelled. Broker errors never end the loop.
func (w *Worker) runLoop(ctx context.Context, loopID int) {
	logger := w.logger.With().Int("loop_id", loopID).Logger()
	logger.Debug().Msg("Loop started")

	failures := 0
	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("Loop stopping due to context cancellation")
			return
		}

		job, err := w.broker.Poll(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			failures++
			metrics.WorkerPollErrorsTotal.Inc()
			delay := Backoff(failures, w.cfg.PollBackoffBase, w.cfg.PollBackoffMax)
			logger.Warn().Err(err).Int("failures", failures).Dur("backoff", delay).Msg("Broker poll failed")
			if !sleep(ctx, delay) {
				return
			}
			continue
		}
		if failures > 0 {
			logger.Info().Int("failures", failures).Msg("Broker poll recovered")
			failures = 0
		}

		if job == nil {
			if !sleep(ctx, w.cfg.PollInterval) {
				return
			}
			continue
		}

		w.handleJob(ctx, job, logger)
	}
}

// handleJob runs one claimed job: decode, wait if early, dispatch, acknowledge.
func (w *Worker) handleJob(ctx context.Context, job *model.Job, logger zerolog.Logger) {
	claimedAt := w.clock.Now()
	log := logger.With().Str("job_id", job.ID).Int("deliveries", job.Deliveries).Logger()

	req, _, eligibleAt, err := service.DecodePayload(job.Payload)
	if err != nil {
		log.Error().Err(err).Msg("Failed to decode job payload, discarding")
		metrics.WorkerJobsProcessedTotal.WithLabelValues(metrics.ResultPoison).Inc()
		w.acknowledge(ctx, job.ID, log)
		return
	}
	if job.EligibleAt.After(eligibleAt) {
		eligibleAt = job.EligibleAt
	}

	if wait := eligibleAt.Sub(w.clock.Now()); wait > 0 {
		if !w.canHold(claimedAt, wait) {
			// The claim would lapse before the send finishes and another loop
			// could run the job too. The broker hands it out again later.
			log.Warn().Dur("wait", wait).Dur("claim_window", w.claimWindow).Msg("Job surfaced too early to hold its claim, releasing")
			metrics.WorkerJobsProcessedTotal.WithLabelValues(metrics.ResultReleased).Inc()
			return
		}
		log.Warn().Dur("wait", wait).Msg("Job surfaced before its eligible time, waiting")
		if !sleep(ctx, wait) {
			// Left unacknowledged; the broker hands it out again after shutdown.
			return
		}
	}
	metrics.WorkerJobLag.Observe(w.clock.Now().Sub(eligibleAt).Seconds())

	// An in-flight send is allowed to finish during shutdown.
	dispatchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.cfg.DispatchTimeout)
	dispatchCtx = service.WithJobID(dispatchCtx, job.ID)
	outcome := w.dispatcher.Dispatch(dispatchCtx, req)
	cancel()

	metrics.WorkerJobsProcessedTotal.WithLabelValues(metrics.Result(outcome.Succeeded)).Inc()
	if outcome.Succeeded {
		log.Info().Str("channel", req.Channel).Msg("Job executed")
	} else {
		log.Warn().Str("channel", req.Channel).Str("error", outcome.Error).Msg("Job executed with failure, not retrying")
	}

	w.acknowledge(ctx, job.ID, log)
}

// canHold reports whether a claim taken at claimedAt still covers waiting for
// wait and then a full dispatch.
func (w *Worker) canHold(claimedAt time.Time, wait time.Duration) bool {
	if w.claimWindow <= 0 {
		return true
	}
	left := w.claimWindow - w.clock.Now().Sub(claimedAt) - w.cfg.DispatchTimeout
	return wait < left
}

func (w *Worker) acknowledge(ctx context.Context, jobID string, log zerolog.Logger) {
	ackCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ackTimeout)
	defer cancel()

	if err := w.broker.Acknowledge(ackCtx, jobID); err != nil {
		metrics.WorkerAckErrorsTotal.Inc()
		log.Error().Err(err).Msg("Failed to acknowledge job, it may be delivered again")
	}
}

// sleep waits for d or until ctx is done. It reports whether the full wait elapsed.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
