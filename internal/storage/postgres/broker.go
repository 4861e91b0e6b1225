package postgres

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"time"
)

// Ensure Broker implements the interface
var _ repo.JobBroker = (*Broker)(nil)

const insertJobSQL = `
  INSERT INTO dispatch_jobs (id, queue, payload, eligible_at)
  VALUES ($1, $2, $3, $4)`

// claimNextSQL claims the earliest due job that is not held by a live claim.
// SKIP LOCKED lets concurrent workers claim different rows without waiting.
const claimNextSQL = `
  UPDATE dispatch_jobs j
  SET claimed_until = $3, deliveries = j.deliveries + 1
  WHERE j.id = (
    SELECT id FROM dispatch_jobs
    WHERE queue = $1
      AND eligible_at <= $2
      AND (claimed_until IS NULL OR claimed_until <= $2)
    ORDER BY eligible_at ASC, created_at ASC
    LIMIT 1
    FOR UPDATE SKIP LOCKED
  )
  RETURNING j.id, j.payload, j.eligible_at, j.deliveries`

const deleteJobSQL = `DELETE FROM dispatch_jobs WHERE id = $1 AND queue = $2`

// Broker implements repo.JobBroker on a PostgreSQL table.
type Broker struct {
	pool       *pgxpool.Pool
	queue      string
	visibility time.Duration
	clock      clock.Clock
	newID      func() string
	logger     zerolog.Logger
}

// NewBroker creates a new instance of the Postgres broker.
func NewBroker(pool *pgxpool.Pool, queue string, visibility time.Duration, clk clock.Clock, logger *zerolog.Logger) *Broker {
	return &Broker{
		pool:       pool,
		queue:      queue,
		visibility: visibility,
		clock:      clk,
		newID:      uuid.NewString,
		logger:     logger.With().Str("layer", "postgres_broker").Str("queue", queue).Logger(),
	}
}

// Submit inserts a pending job.
func (b *Broker) Submit(ctx context.Context, payload []byte, eligibleAt time.Time) (string, error) {
	id := b.newID()
	if _, err := b.pool.Exec(ctx, insertJobSQL, id, b.queue, payload, roundUpMicro(eligibleAt)); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return "", repo.ErrDuplicateRecord
		}
		b.logger.Err(err).Msg("cannot insert job")
		return "", fmt.Errorf("postgres: insert job failed: %w", err)
	}
	return id, nil
}

// Poll claims the next due job, or returns (nil, nil) when none is due.
func (b *Broker) Poll(ctx context.Context) (*model.Job, error) {
	now := b.clock.Now().UTC()

	var job model.Job
	err := b.pool.QueryRow(ctx, claimNextSQL, b.queue, now, now.Add(b.visibility)).
		Scan(&job.ID, &job.Payload, &job.EligibleAt, &job.Deliveries)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("postgres: claim job failed: %w", err)
	}
	job.EligibleAt = job.EligibleAt.UTC()
	return &job, nil
}

// Acknowledge deletes the job row.
func (b *Broker) Acknowledge(ctx context.Context, jobID string) error {
	tag, err := b.pool.Exec(ctx, deleteJobSQL, jobID, b.queue)
	if err != nil {
		b.logger.Err(err).Str("job_id", jobID).Msg("cannot delete job")
		return fmt.Errorf("postgres: delete job failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("acknowledge %s: %w", jobID, repo.ErrNotFound)
	}
	return nil
}

// roundUpMicro rounds t up to the microsecond precision of timestamptz,
// so a stored eligible time is never earlier than the requested one.
func roundUpMicro(t time.Time) time.Time {
	truncated := t.Truncate(time.Microsecond)
	if truncated.Before(t) {
		return truncated.Add(time.Microsecond)
	}
	return truncated
}
