package service

import (
	"context"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/internal/metrics"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/rs/zerolog"
	"time"
)

// recordTimeout bounds a single write to the outcome log.
const recordTimeout = 5 * time.Second

// RecordingDispatcher is a decorator that appends every outcome to an OutcomeLog.
// Recording failures are logged and never change the outcome.
type RecordingDispatcher struct {
	next   Dispatcher
	log    repo.OutcomeLog
	clock  clock.Clock
	logger zerolog.Logger
}

var _ Dispatcher = (*RecordingDispatcher)(nil)

func NewRecordingDispatcher(next Dispatcher, log repo.OutcomeLog, clk clock.Clock, logger *zerolog.Logger) *RecordingDispatcher {
	return &RecordingDispatcher{
		next:   next,
		log:    log,
		clock:  clk,
		logger: logger.With().Str("layer", "service").Str("component", "recording_dispatcher").Logger(),
	}
}

// Dispatch implements Dispatcher.
func (d *RecordingDispatcher) Dispatch(ctx context.Context, req model.DispatchRequest) model.DispatchOutcome {
	outcome := d.next.Dispatch(ctx, req)

	entry := model.HistoryEntry{
		JobID:        JobIDFromContext(ctx),
		Channel:      req.Channel,
		Recipient:    req.Recipient,
		Content:      req.Content,
		Subject:      req.Subject,
		Succeeded:    outcome.Succeeded,
		Error:        outcome.Error,
		DispatchedAt: d.clock.Now().UTC(),
	}

	// The send may have used up the caller's deadline; the record still gets written.
	recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if err := d.log.Record(recordCtx, entry); err != nil {
		metrics.HistoryRecordErrorsTotal.Inc()
		d.logger.Error().Err(err).Str("job_id", entry.JobID).Str("channel", req.Channel).Msg("failed to record dispatch outcome")
	}

	return outcome
}
