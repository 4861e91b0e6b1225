package postgres

import (
	"context"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// Ensure HistoryRepository implements the interface
var _ repo.OutcomeLog = (*HistoryRepository)(nil)

const insertHistorySQL = `
  INSERT INTO dispatch_history (job_id, channel, recipient, content, subject, succeeded, error, dispatched_at)
  VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

const recentHistorySQL = `
  SELECT id, job_id, channel, recipient, content, subject, succeeded, error, dispatched_at
  FROM dispatch_history
  ORDER BY id DESC
  LIMIT $1`

// HistoryRepository stores dispatch outcomes in PostgreSQL.
type HistoryRepository struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewHistoryRepository creates a new instance of the HistoryRepository.
func NewHistoryRepository(pool *pgxpool.Pool, logger *zerolog.Logger) *HistoryRepository {
	return &HistoryRepository{
		pool:   pool,
		logger: logger.With().Str("layer", "postgres_history").Logger(),
	}
}

// Record appends one attempt.
func (r *HistoryRepository) Record(ctx context.Context, e model.HistoryEntry) error {
	jobID := pgtype.Text{String: e.JobID, Valid: e.JobID != ""}
	var subject pgtype.Text
	if e.Subject != nil {
		subject = pgtype.Text{String: *e.Subject, Valid: true}
	}

	_, err := r.pool.Exec(ctx, insertHistorySQL,
		jobID, e.Channel, e.Recipient, e.Content, subject, e.Succeeded, e.Error, e.DispatchedAt)
	if err != nil {
		r.logger.Err(err).Str("job_id", e.JobID).Msg("cannot insert history entry")
		return fmt.Errorf("postgres: insert history failed: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	rows, err := r.pool.Query(ctx, recentHistorySQL, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: query history failed: %w", err)
	}

	entries, err := pgx.CollectRows(rows, scanHistoryEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan history failed: %w", err)
	}
	return entries, nil
}

func scanHistoryEntry(row pgx.CollectableRow) (model.HistoryEntry, error) {
	var (
		e       model.HistoryEntry
		jobID   pgtype.Text
		subject pgtype.Text
	)
	if err := row.Scan(&e.ID, &jobID, &e.Channel, &e.Recipient, &e.Content, &subject, &e.Succeeded, &e.Error, &e.DispatchedAt); err != nil {
		return e, err
	}
	e.JobID = jobID.String
	if subject.Valid {
		s := subject.String
		e.Subject = &s
	}
	e.DispatchedAt = e.DispatchedAt.UTC()
	return e, nil
}
