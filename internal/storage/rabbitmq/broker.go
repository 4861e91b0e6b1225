package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"github.com/google/uuid"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
	"strconv"
	"sync"
	"time"
)

// eligibleHeader carries the job's eligible time in Unix milliseconds.
const eligibleHeader = "x-eligible-at"

var (
	// ErrNackedByBroker is returned when RabbitMQ refuses a published job.
	ErrNackedByBroker = errors.New("rabbitmq: publish not confirmed")
	// ErrDelayTooLong is returned for delays beyond MaxDelay.
	ErrDelayTooLong = errors.New("rabbitmq: delay exceeds the longest supported delay")
)

// Ensure Broker implements the repository interface at compile time.
var _ repo.JobBroker = (*Broker)(nil)

// Broker implements repo.JobBroker on RabbitMQ. Jobs pass through the delay
// levels of the Topology and land in the ready queue once their delay, rounded
// up to whole seconds, has elapsed. Claimed jobs are unacknowledged deliveries,
// so RabbitMQ redelivers them when the channel or connection drops.
type Broker struct {
	dsn      string
	topology Topology
	clock    clock.Clock
	logger   zerolog.Logger

	mu      sync.Mutex
	conn    *amqp.Connection
	pubCh   *amqp.Channel
	getCh   *amqp.Channel
	claimed map[string]amqp.Delivery
}

// NewBroker connects, declares the topology and returns a ready broker.
func NewBroker(dsn, queue string, clk clock.Clock, logger *zerolog.Logger) (*Broker, error) {
	b := &Broker{
		dsn:      dsn,
		topology: NewTopology(queue),
		clock:    clk,
		logger:   logger.With().Str("component", "rabbitmq_broker").Str("queue", queue).Logger(),
		claimed:  make(map[string]amqp.Delivery),
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if err := b.ensureLocked(); err != nil {
		b.logger.Error().Err(err).Msg("failed to initialize rabbitmq broker")
		return nil, err
	}
	return b, nil
}

// ensureLocked (re)opens the connection and channels when they are closed.
// b.mu must be held.
func (b *Broker) ensureLocked() error {
	if b.conn == nil || b.conn.IsClosed() {
		conn, err := NewConnection(b.dsn)
		if err != nil {
			return err
		}
		b.conn = conn
		b.pubCh = nil
		b.getCh = nil
	}

	if b.pubCh == nil || b.pubCh.IsClosed() {
		ch, err := b.conn.Channel()
		if err != nil {
			return fmt.Errorf("rabbitmq: open publish channel: %w", err)
		}
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			return fmt.Errorf("rabbitmq: enable publisher confirms: %w", err)
		}
		if err := b.topology.Declare(ch); err != nil {
			_ = ch.Close()
			return err
		}
		b.pubCh = ch
	}

	if b.getCh == nil || b.getCh.IsClosed() {
		ch, err := b.conn.Channel()
		if err != nil {
			return fmt.Errorf("rabbitmq: open consume channel: %w", err)
		}
		b.getCh = ch
		// Deliveries from the old channel are already back in the ready queue.
		if len(b.claimed) > 0 {
			b.logger.Warn().Int("claims", len(b.claimed)).Msg("consume channel reopened, outstanding claims will be redelivered")
			b.claimed = make(map[string]amqp.Delivery)
		}
	}
	return nil
}

// Submit publishes a persistent message and waits for the broker's confirm.
func (b *Broker) Submit(ctx context.Context, payload []byte, eligibleAt time.Time) (string, error) {
	now := b.clock.Now()
	delay := eligibleAt.Sub(now)
	if delay > MaxDelay {
		return "", fmt.Errorf("%w: %s", ErrDelayTooLong, delay)
	}

	id := uuid.NewString()
	key := RoutingKey(delaySeconds(delay))
	msg := amqp.Publishing{
		ContentType:  "application/json",
		Body:         payload,
		DeliveryMode: amqp.Persistent,
		MessageId:    id,
		Timestamp:    now,
		Headers:      amqp.Table{eligibleHeader: eligibleAt.UnixMilli()},
	}

	b.mu.Lock()
	if err := b.ensureLocked(); err != nil {
		b.mu.Unlock()
		return "", err
	}
	confirm, err := b.pubCh.PublishWithDeferredConfirmWithContext(ctx, b.topology.EntryExchange(), key, false, false, msg)
	b.mu.Unlock()
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to publish job")
		return "", fmt.Errorf("rabbitmq: publish: %w", err)
	}

	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return "", fmt.Errorf("rabbitmq: wait for confirm: %w", err)
	}
	if !acked {
		return "", ErrNackedByBroker
	}

	b.logger.Debug().Str("job_id", id).Time("eligible_at", eligibleAt).Msg("job submitted")
	return id, nil
}

// Poll fetches one ready message with manual acknowledgement.
func (b *Broker) Poll(ctx context.Context) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.ensureLocked(); err != nil {
		return nil, err
	}

	d, ok, err := b.getCh.Get(b.topology.ReadyQueue, false)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq: get: %w", err)
	}
	if !ok {
		return nil, nil
	}

	id := d.MessageId
	if id == "" {
		id = "delivery-" + strconv.FormatUint(d.DeliveryTag, 10)
	}
	b.claimed[id] = d

	deliveries := 1
	if d.Redelivered {
		deliveries = 2
	}

	return &model.Job{
		ID:         id,
		Payload:    d.Body,
		EligibleAt: eligibleAt(d),
		Deliveries: deliveries,
	}, nil
}

// Acknowledge acks the delivery behind a claimed job.
func (b *Broker) Acknowledge(_ context.Context, jobID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	d, ok := b.claimed[jobID]
	if !ok {
		return fmt.Errorf("acknowledge %s: %w", jobID, repo.ErrNotFound)
	}
	delete(b.claimed, jobID)

	if err := d.Ack(false); err != nil {
		b.logger.Error().Err(err).Str("job_id", jobID).Msg("failed to ack delivery")
		return fmt.Errorf("rabbitmq: ack: %w", err)
	}
	return nil
}

// Close shuts down the channels and the connection.
func (b *Broker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	for _, ch := range []*amqp.Channel{b.getCh, b.pubCh} {
		if ch != nil && !ch.IsClosed() {
			errs = append(errs, ch.Close())
		}
	}
	if b.conn != nil && !b.conn.IsClosed() {
		errs = append(errs, b.conn.Close())
	}
	return errors.Join(errs...)
}

func eligibleAt(d amqp.Delivery) time.Time {
	switch v := d.Headers[eligibleHeader].(type) {
	case int64:
		return time.UnixMilli(v).UTC()
	case int32:
		return time.UnixMilli(int64(v)).UTC()
	}
	return d.Timestamp
}
