package redis

import (
	"context"
	"github.com/google/uuid"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

func TestDecodeHistoryRecord(t *testing.T) {
	e, err := decodeHistoryRecord(`{"id":7,"job_id":"j1","channel":"email","recipient":"a@b.com","content":"hi","succeeded":false,"error":"boom","dispatched_at":"2025-01-01T10:00:00+02:00"}`)
	require.NoError(t, err)
	assert.Equal(t, int64(7), e.ID)
	assert.Equal(t, "j1", e.JobID)
	assert.Nil(t, e.Subject)
	assert.Equal(t, "boom", e.Error)
	assert.Equal(t, time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC), e.DispatchedAt)

	_, err = decodeHistoryRecord("{")
	require.Error(t, err)
}

func TestHistoryRepository_RecentWithoutLimit(t *testing.T) {
	logger := zerolog.Nop()
	r := NewHistoryRepository(nil, "default", 10, &logger)

	entries, err := r.Recent(context.Background(), 0)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestHistoryRepository_SharedAndCapped(t *testing.T) {
	ctx := context.Background()
	client := setupTestRedis(t)
	logger := zerolog.Nop()
	queue := "test-" + uuid.NewString()

	// Two repositories on one queue stand in for the API and the worker processes.
	worker := NewHistoryRepository(client, queue, 2, &logger)
	api := NewHistoryRepository(client, queue, 2, &logger)
	t.Cleanup(func() { client.Del(context.Background(), worker.listKey, worker.seqKey) })

	subject := "Reminder"
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	for i, job := range []string{"j1", "j2", "j3"} {
		require.NoError(t, worker.Record(ctx, model.HistoryEntry{
			JobID:        job,
			Channel:      "email",
			Recipient:    "a@b.com",
			Content:      "hi",
			Subject:      &subject,
			Succeeded:    i != 1,
			DispatchedAt: at.Add(time.Duration(i) * time.Minute),
		}))
	}

	entries, err := api.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "j3", entries[0].JobID)
	assert.Equal(t, "j2", entries[1].JobID)
	assert.Greater(t, entries[0].ID, entries[1].ID)
	assert.False(t, entries[1].Succeeded)
	require.NotNil(t, entries[0].Subject)
	assert.Equal(t, "Reminder", *entries[0].Subject)

	entries, err = api.Recent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "j3", entries[0].JobID)
}
