package redis

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/keybuilder"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"strconv"
	"time"
)

// Ensure Broker implements the interface
var _ repo.JobBroker = (*Broker)(nil)

// claimScript returns expired claims to the pending set, then moves the earliest
// due job to the inflight set. Both steps run atomically on the server.
//
// KEYS: pending, inflight, payloads, eligible, deliveries
// ARGV: now (ms), claim deadline (ms)
var claimScript = goredis.NewScript(`
local now = tonumber(ARGV[1])

local expired = redis.call('ZRANGEBYSCORE', KEYS[2], '-inf', now)
for _, id in ipairs(expired) do
	redis.call('ZREM', KEYS[2], id)
	local eligible = redis.call('HGET', KEYS[4], id)
	redis.call('ZADD', KEYS[1], eligible or now, id)
end

local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', now, 'LIMIT', 0, 1)
if #due == 0 then
	return false
end

local id = due[1]
redis.call('ZREM', KEYS[1], id)

local payload = redis.call('HGET', KEYS[3], id)
if not payload then
	redis.call('HDEL', KEYS[4], id)
	redis.call('HDEL', KEYS[5], id)
	return false
end

redis.call('ZADD', KEYS[2], ARGV[2], id)
local deliveries = redis.call('HINCRBY', KEYS[5], id, 1)
local eligible = redis.call('HGET', KEYS[4], id) or ARGV[1]

return {id, payload, eligible, deliveries}
`)

// Broker implements repo.JobBroker on Redis sorted sets.
// Pending jobs are scored by eligible time, claimed jobs by claim deadline.
type Broker struct {
	redis      *goredis.Client
	clock      clock.Clock
	visibility time.Duration
	keys       []string
	logger     zerolog.Logger
}

// NewBroker creates a new instance of the Redis broker for the named queue.
func NewBroker(client *goredis.Client, queue string, visibility time.Duration, clk clock.Clock, logger *zerolog.Logger) *Broker {
	return &Broker{
		redis:      client,
		clock:      clk,
		visibility: visibility,
		keys: []string{
			keybuilder.RedisQueueKeyBuild(queue, keybuilder.Pending),
			keybuilder.RedisQueueKeyBuild(queue, keybuilder.Inflight),
			keybuilder.RedisQueueKeyBuild(queue, keybuilder.Payloads),
			keybuilder.RedisQueueKeyBuild(queue, keybuilder.Eligible),
			keybuilder.RedisQueueKeyBuild(queue, keybuilder.Deliveries),
		},
		logger: logger.With().Str("layer", "redis_broker").Str("queue", queue).Logger(),
	}
}

func (b *Broker) pendingKey() string    { return b.keys[0] }
func (b *Broker) inflightKey() string   { return b.keys[1] }
func (b *Broker) payloadsKey() string   { return b.keys[2] }
func (b *Broker) eligibleKey() string   { return b.keys[3] }
func (b *Broker) deliveriesKey() string { return b.keys[4] }

// Submit stores the payload and adds the job to the pending set in one transaction.
func (b *Broker) Submit(ctx context.Context, payload []byte, eligibleAt time.Time) (string, error) {
	id := uuid.NewString()
	score := eligibleScore(eligibleAt)

	_, err := b.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, b.payloadsKey(), id, payload)
		pipe.HSet(ctx, b.eligibleKey(), id, score)
		pipe.ZAdd(ctx, b.pendingKey(), goredis.Z{Score: float64(score), Member: id})
		return nil
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to submit job")
		return "", fmt.Errorf("redis submit: %w", err)
	}

	b.logger.Debug().Str("job_id", id).Time("eligible_at", eligibleAt).Msg("job submitted")
	return id, nil
}

// Poll claims the earliest due job, or returns (nil, nil) when none is due.
func (b *Broker) Poll(ctx context.Context) (*model.Job, error) {
	now := b.clock.Now()
	nowMs := now.UnixMilli()
	deadlineMs := now.Add(b.visibility).UnixMilli()

	res, err := claimScript.Run(ctx, b.redis, b.keys, nowMs, deadlineMs).Result()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis poll: %w", err)
	}

	job, err := parseClaim(res)
	if err != nil {
		b.logger.Error().Err(err).Msg("unexpected claim script reply")
		return nil, err
	}
	return job, nil
}

// Acknowledge removes every trace of the job in one transaction.
func (b *Broker) Acknowledge(ctx context.Context, jobID string) error {
	var removed *goredis.IntCmd
	_, err := b.redis.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.ZRem(ctx, b.inflightKey(), jobID)
		pipe.ZRem(ctx, b.pendingKey(), jobID)
		removed = pipe.HDel(ctx, b.payloadsKey(), jobID)
		pipe.HDel(ctx, b.eligibleKey(), jobID)
		pipe.HDel(ctx, b.deliveriesKey(), jobID)
		return nil
	})
	if err != nil {
		b.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to acknowledge job")
		return fmt.Errorf("redis acknowledge: %w", err)
	}
	if removed.Val() == 0 {
		return fmt.Errorf("acknowledge %s: %w", jobID, repo.ErrNotFound)
	}
	return nil
}

// eligibleScore converts t to Unix milliseconds, rounding up so that a job is
// never claimable before t.
func eligibleScore(t time.Time) int64 {
	ms := t.UnixMilli()
	if t.UnixNano()%int64(time.Millisecond) > 0 {
		ms++
	}
	return ms
}

func parseClaim(res any) (*model.Job, error) {
	fields, ok := res.([]any)
	if !ok || len(fields) != 4 {
		return nil, fmt.Errorf("redis poll: malformed claim reply %T", res)
	}

	id, ok := fields[0].(string)
	if !ok {
		return nil, fmt.Errorf("redis poll: malformed job id %T", fields[0])
	}
	payload, ok := fields[1].(string)
	if !ok {
		return nil, fmt.Errorf("redis poll: malformed payload %T", fields[1])
	}
	eligibleRaw, ok := fields[2].(string)
	if !ok {
		return nil, fmt.Errorf("redis poll: malformed eligible time %T", fields[2])
	}
	eligibleMs, err := strconv.ParseInt(eligibleRaw, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("redis poll: parse eligible time: %w", err)
	}
	deliveries, ok := fields[3].(int64)
	if !ok {
		return nil, fmt.Errorf("redis poll: malformed delivery count %T", fields[3])
	}

	return &model.Job{
		ID:         id,
		Payload:    []byte(payload),
		EligibleAt: time.UnixMilli(eligibleMs).UTC(),
		Deliveries: int(deliveries),
	}, nil
}
