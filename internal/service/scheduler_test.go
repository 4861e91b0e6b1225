package service

import (
	"context"
	"errors"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	"github.com/ilindan-dev/dispatch-scheduler/internal/storage/memory"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
	"time"
)

type brokenBroker struct {
	calls int
}

func (b *brokenBroker) Submit(context.Context, []byte, time.Time) (string, error) {
	b.calls++
	return "", errors.New("connection refused")
}

func (b *brokenBroker) Poll(context.Context) (*model.Job, error) { return nil, nil }

func (b *brokenBroker) Acknowledge(context.Context, string) error { return nil }

func TestScheduler_Schedule(t *testing.T) {
	logger := zerolog.Nop()
	now := time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	broker := memory.NewBroker(clk, time.Minute)
	s := NewScheduler(broker, clk, &logger)

	req := model.NewDispatchRequest("whatsapp", "+5511999999999", "hi", nil)
	job, err := s.Schedule(context.Background(), req, 5*time.Minute)
	require.NoError(t, err)

	assert.NotEmpty(t, job.ID)
	assert.Equal(t, now, job.SubmittedAt)
	assert.Equal(t, now.Add(5*time.Minute), job.EligibleAt)
	assert.Equal(t, req, job.Request)
	assert.Equal(t, []string{job.ID}, broker.Pending())

	// Nothing is executed or claimable before the delay elapses.
	polled, err := broker.Poll(context.Background())
	require.NoError(t, err)
	assert.Nil(t, polled)

	clk.Advance(5 * time.Minute)
	polled, err = broker.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, polled)

	decoded, submitted, eligible, err := DecodePayload(polled.Payload)
	require.NoError(t, err)
	assert.Equal(t, req, decoded)
	assert.True(t, submitted.Equal(now))
	assert.True(t, eligible.Equal(now.Add(5*time.Minute)))
}

func TestScheduler_ZeroDelayIsImmediatelyEligible(t *testing.T) {
	logger := zerolog.Nop()
	now := time.Date(2025, 5, 10, 10, 0, 0, 0, time.UTC)
	clk := clock.NewFake(now)
	broker := memory.NewBroker(clk, time.Minute)
	s := NewScheduler(broker, clk, &logger)

	job, err := s.Schedule(context.Background(), model.NewDispatchRequest("email", "a@x.io", "hi", nil), 0)
	require.NoError(t, err)
	assert.Equal(t, now, job.EligibleAt)

	polled, err := broker.Poll(context.Background())
	require.NoError(t, err)
	require.NotNil(t, polled)
	assert.Equal(t, job.ID, polled.ID)
}

func TestScheduler_DoesNotValidateChannel(t *testing.T) {
	logger := zerolog.Nop()
	clk := clock.NewFake(time.Now())
	broker := memory.NewBroker(clk, time.Minute)
	s := NewScheduler(broker, clk, &logger)

	_, err := s.Schedule(context.Background(), model.NewDispatchRequest("carrier-pigeon", "x", "y", nil), time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, broker.Len())
}

func TestScheduler_NegativeDelay(t *testing.T) {
	logger := zerolog.Nop()
	broker := &brokenBroker{}
	s := NewScheduler(broker, clock.Real{}, &logger)

	_, err := s.Schedule(context.Background(), model.NewDispatchRequest("email", "a", "b", nil), -time.Second)
	require.ErrorIs(t, err, ErrNegativeDelay)
	assert.Zero(t, broker.calls)
}

func TestScheduler_BrokerFailure(t *testing.T) {
	logger := zerolog.Nop()
	broker := &brokenBroker{}
	s := NewScheduler(broker, clock.Real{}, &logger)

	job, err := s.Schedule(context.Background(), model.NewDispatchRequest("email", "a", "b", nil), time.Minute)
	require.ErrorIs(t, err, ErrSchedulingFailed)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Nil(t, job)
	assert.Equal(t, 1, broker.calls)
}
