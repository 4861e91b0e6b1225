package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"time"
)

// Ensure HistoryRepository implements the interface
var _ repo.OutcomeLog = (*HistoryRepository)(nil)

// historyRecord is the stored form of one entry.
type historyRecord struct {
	ID           int64     `json:"id"`
	JobID        string    `json:"job_id,omitempty"`
	Channel      string    `json:"channel"`
	Recipient    string    `json:"recipient"`
	Content      string    `json:"content"`
	Subject      *string   `json:"subject,omitempty"`
	Succeeded    bool      `json:"succeeded"`
	Error        string    `json:"error,omitempty"`
	DispatchedAt time.Time `json:"dispatched_at"`
}

// HistoryRepository keeps the latest dispatch outcomes in a capped Redis list,
// newest at the head. API and worker processes share it.
type HistoryRepository struct {
	redis    *goredis.Client
	listKey  string
	seqKey   string
	capacity int64
	logger   zerolog.Logger
}

// NewHistoryRepository creates a history list for the named queue holding at most capacity entries.
func NewHistoryRepository(client *goredis.Client, queue string, capacity int, logger *zerolog.Logger) *HistoryRepository {
	if capacity <= 0 {
		capacity = 1
	}
	return &HistoryRepository{
		redis:    client,
		listKey:  keybuilder.RedisQueueKeyBuild(queue, keybuilder.History),
		seqKey:   keybuilder.RedisQueueKeyBuild(queue, keybuilder.HistorySeq),
		capacity: int64(capacity),
		logger:   logger.With().Str("layer", "redis_history").Logger(),
	}
}

// Record appends one attempt and trims the list to capacity.
func (r *HistoryRepository) Record(ctx context.Context, e model.HistoryEntry) error {
	id, err := r.redis.Incr(ctx, r.seqKey).Result()
	if err != nil {
		r.logger.Err(err).Str("job_id", e.JobID).Msg("cannot allocate history id")
		return fmt.Errorf("redis: history id failed: %w", err)
	}

	data, err := json.Marshal(historyRecord{
		ID:           id,
		JobID:        e.JobID,
		Channel:      e.Channel,
		Recipient:    e.Recipient,
		Content:      e.Content,
		Subject:      e.Subject,
		Succeeded:    e.Succeeded,
		Error:        e.Error,
		DispatchedAt: e.DispatchedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("redis: encode history entry: %w", err)
	}

	_, err = r.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.LPush(ctx, r.listKey, data)
		pipe.LTrim(ctx, r.listKey, 0, r.capacity-1)
		return nil
	})
	if err != nil {
		r.logger.Err(err).Str("job_id", e.JobID).Msg("cannot push history entry")
		return fmt.Errorf("redis: push history failed: %w", err)
	}
	return nil
}

// Recent returns up to limit entries, newest first. Unreadable entries are skipped.
func (r *HistoryRepository) Recent(ctx context.Context, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		return []model.HistoryEntry{}, nil
	}

	raw, err := r.redis.LRange(ctx, r.listKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: read history failed: %w", err)
	}

	entries := make([]model.HistoryEntry, 0, len(raw))
	for _, item := range raw {
		e, err := decodeHistoryRecord(item)
		if err != nil {
			r.logger.Warn().Err(err).Msg("skipping unreadable history entry")
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func decodeHistoryRecord(raw string) (model.HistoryEntry, error) {
	var rec historyRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return model.HistoryEntry{}, err
	}
	return model.HistoryEntry{
		ID:           rec.ID,
		JobID:        rec.JobID,
		Channel:      rec.Channel,
		Recipient:    rec.Recipient,
		Content:      rec.Content,
		Subject:      rec.Subject,
		Succeeded:    rec.Succeeded,
		Error:        rec.Error,
		DispatchedAt: rec.DispatchedAt.UTC(),
	}, nil
}
