package redis

import (
	"context"
	"github.com/google/uuid"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"os"
	"testing"
	"time"
)

func TestEligibleScore(t *testing.T) {
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, base.UnixMilli(), eligibleScore(base))
	assert.Equal(t, base.UnixMilli()+1, eligibleScore(base.Add(time.Nanosecond)))
	assert.Equal(t, base.UnixMilli()+1, eligibleScore(base.Add(999*time.Microsecond)))
	assert.Equal(t, base.UnixMilli()+1, eligibleScore(base.Add(time.Millisecond)))
}

func TestParseClaim(t *testing.T) {
	job, err := parseClaim([]any{"id-1", `{"v":1}`, "1735689600000", int64(2)})
	require.NoError(t, err)
	assert.Equal(t, "id-1", job.ID)
	assert.Equal(t, []byte(`{"v":1}`), job.Payload)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), job.EligibleAt)
	assert.Equal(t, 2, job.Deliveries)

	_, err = parseClaim("nope")
	require.Error(t, err)
	_, err = parseClaim([]any{"id", "p", "not-a-number", int64(1)})
	require.Error(t, err)
}

// setupTestRedis connects to the instance named by TEST_REDIS_ADDR.
// Tests are skipped when it is unset.
func setupTestRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set, skipping redis integration test")
	}

	client := goredis.NewClient(&goredis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis test instance unavailable: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestBroker(t *testing.T, clk clock.Clock, visibility time.Duration) *Broker {
	t.Helper()
	client := setupTestRedis(t)
	logger := zerolog.Nop()
	queue := "test-" + uuid.NewString()

	b := NewBroker(client, queue, visibility, clk, &logger)
	t.Cleanup(func() { client.Del(context.Background(), b.keys...) })
	return b
}

func TestBroker_Lifecycle(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().Truncate(time.Millisecond)
	clk := clock.NewFake(t0)
	b := newTestBroker(t, clk, 30*time.Second)

	id, err := b.Submit(ctx, []byte("payload"), t0.Add(10*time.Second))
	require.NoError(t, err)

	job, err := b.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, job, "job must not surface before its eligible time")

	clk.Advance(10 * time.Second)
	job, err = b.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, id, job.ID)
	assert.Equal(t, []byte("payload"), job.Payload)
	assert.Equal(t, 1, job.Deliveries)
	assert.True(t, job.EligibleAt.Equal(t0.Add(10*time.Second)))

	again, err := b.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, again, "claimed job must be invisible")

	require.NoError(t, b.Acknowledge(ctx, id))
	require.ErrorIs(t, b.Acknowledge(ctx, id), repo.ErrNotFound)

	clk.Advance(time.Hour)
	job, err = b.Poll(ctx)
	require.NoError(t, err)
	assert.Nil(t, job)
}

func TestBroker_RedeliversExpiredClaim(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().Truncate(time.Millisecond)
	clk := clock.NewFake(t0)
	b := newTestBroker(t, clk, 30*time.Second)

	id, err := b.Submit(ctx, []byte("p"), t0)
	require.NoError(t, err)

	first, err := b.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, first)

	clk.Advance(31 * time.Second)
	second, err := b.Poll(ctx)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, id, second.ID)
	assert.Equal(t, 2, second.Deliveries)
}

func TestBroker_EarliestFirst(t *testing.T) {
	ctx := context.Background()
	t0 := time.Now().Truncate(time.Millisecond)
	clk := clock.NewFake(t0)
	b := newTestBroker(t, clk, time.Minute)

	late, err := b.Submit(ctx, []byte("late"), t0.Add(2*time.Second))
	require.NoError(t, err)
	early, err := b.Submit(ctx, []byte("early"), t0.Add(time.Second))
	require.NoError(t, err)

	clk.Advance(3 * time.Second)
	first, err := b.Poll(ctx)
	require.NoError(t, err)
	second, err := b.Poll(ctx)
	require.NoError(t, err)

	assert.Equal(t, early, first.ID)
	assert.Equal(t, late, second.ID)
}
