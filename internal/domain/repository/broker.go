package repository

import (
	"context"
	"errors"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicateRecord is returned when a record with the same key already exists.
	ErrDuplicateRecord = errors.New("record already exists")
)

// JobBroker defines the contract for a durable, at-least-once delayed job queue.
// Implementations must never hand out a job before its eligible time and must
// make claim and acknowledge atomic on the broker side.
type JobBroker interface {
	// Submit stores an opaque payload that becomes visible at eligibleAt.
	// It returns the broker-assigned job ID.
	Submit(ctx context.Context, payload []byte, eligibleAt time.Time) (string, error)

	// Poll claims the next eligible job, or returns (nil, nil) when none is due.
	// A claimed job that is never acknowledged becomes claimable again later.
	Poll(ctx context.Context) (*model.Job, error)

	// Acknowledge marks a claimed job as done and removes it from the broker.
	Acknowledge(ctx context.Context, jobID string) error
}

// OutcomeLog stores the results of dispatch attempts for later inspection.
type OutcomeLog interface {
	// Record appends one attempt.
	Record(ctx context.Context, entry model.HistoryEntry) error

	// Recent returns up to limit entries, newest first.
	Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error)
}
