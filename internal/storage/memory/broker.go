// Package memory provides in-process implementations of the storage contracts.
// They are used in tests and for single-process development.
package memory

import (
	"context"
	"fmt"
	"github.com/google/uuid"
	"github.com/ilindan-dev/dispatch-scheduler/internal/domain/model"
	repo "github.com/ilindan-dev/dispatch-scheduler/internal/domain/repository"
	"github.com/ilindan-dev/dispatch-scheduler/pkg/clock"
	"sort"
	"sync"
	"time"
)

type jobState struct {
	job model.Job
	// claimedUntil is zero while the job is pending.
	claimedUntil time.Time
}

// Broker is an in-memory JobBroker with a visibility timeout.
type Broker struct {
	mu         sync.Mutex
	jobs       map[string]*jobState
	clock      clock.Clock
	visibility time.Duration
}

var _ repo.JobBroker = (*Broker)(nil)

// NewBroker creates a Broker. A claimed job that is not acknowledged within
// visibility becomes claimable again.
func NewBroker(clk clock.Clock, visibility time.Duration) *Broker {
	return &Broker{
		jobs:       make(map[string]*jobState),
		clock:      clk,
		visibility: visibility,
	}
}

// Submit implements repo.JobBroker.
func (b *Broker) Submit(ctx context.Context, payload []byte, eligibleAt time.Time) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := uuid.NewString()
	body := make([]byte, len(payload))
	copy(body, payload)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.jobs[id] = &jobState{job: model.Job{ID: id, Payload: body, EligibleAt: eligibleAt}}
	return id, nil
}

// Poll implements repo.JobBroker. The earliest eligible job is claimed first.
func (b *Broker) Poll(ctx context.Context) (*model.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	now := b.clock.Now()

	b.mu.Lock()
	defer b.mu.Unlock()

	var candidate *jobState
	for _, st := range b.jobs {
		if !st.claimedUntil.IsZero() && now.Before(st.claimedUntil) {
			continue
		}
		if st.job.EligibleAt.After(now) {
			continue
		}
		if candidate == nil || st.job.EligibleAt.Before(candidate.job.EligibleAt) {
			candidate = st
		}
	}
	if candidate == nil {
		return nil, nil
	}

	candidate.claimedUntil = now.Add(b.visibility)
	candidate.job.Deliveries++

	job := candidate.job
	job.Payload = append([]byte(nil), candidate.job.Payload...)
	return &job, nil
}

// Acknowledge implements repo.JobBroker.
func (b *Broker) Acknowledge(ctx context.Context, jobID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.jobs[jobID]; !ok {
		return fmt.Errorf("acknowledge %s: %w", jobID, repo.ErrNotFound)
	}
	delete(b.jobs, jobID)
	return nil
}

// Len returns the number of jobs not yet acknowledged.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.jobs)
}

// Pending returns the ids of unacknowledged jobs ordered by eligible time.
func (b *Broker) Pending() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	states := make([]*jobState, 0, len(b.jobs))
	for _, st := range b.jobs {
		states = append(states, st)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].job.EligibleAt.Before(states[j].job.EligibleAt) })

	ids := make([]string, len(states))
	for i, st := range states {
		ids[i] = st.job.ID
	}
	return ids
}
