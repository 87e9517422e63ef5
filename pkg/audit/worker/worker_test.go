package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/pkg/audit"
)

type recordingSink struct {
	mu        sync.Mutex
	delivered []audit.Job
	err       error
}

func (s *recordingSink) Deliver(_ context.Context, job audit.Job) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, job)
	return s.err
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.delivered)
}

func job(entityID string) audit.Job {
	return audit.Job{
		Record: &audit.Record{
			ID:         uuid.New(),
			Event:      audit.EventCreated,
			EntityType: "article",
			EntityID:   entityID,
		},
		Driver:    "memory",
		Threshold: 0,
	}
}

func TestRunDeliversAndStopsOnClosedInbox(t *testing.T) {
	sink := &recordingSink{}
	inbox := make(chan audit.Job, 3)
	inbox <- job("1")
	inbox <- job("2")
	inbox <- job("3")
	close(inbox)

	w := New(sink, inbox)
	err := w.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, sink.delivered, 3)
	assert.Equal(t, "1", sink.delivered[0].Record.EntityID)
	assert.Equal(t, "3", sink.delivered[2].Record.EntityID)
}

func TestRunStopsOnContextCancel(t *testing.T) {
	sink := &recordingSink{}
	inbox := make(chan audit.Job)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	w := New(sink, inbox)
	go func() { done <- w.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestRunContinuesPastDeliveryFailure(t *testing.T) {
	sink := &recordingSink{err: errors.New("store down")}
	inbox := make(chan audit.Job, 2)
	inbox <- job("1")
	inbox <- job("2")
	close(inbox)

	w := New(sink, inbox)
	err := w.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, sink.count())
}

func TestRunConcurrentDelivery(t *testing.T) {
	sink := &recordingSink{}
	inbox := make(chan audit.Job, 8)
	for i := 0; i < 8; i++ {
		inbox <- job("x")
	}
	close(inbox)

	w := New(sink, inbox, WithConcurrency(4))
	require.NoError(t, w.Run(context.Background()))
	assert.Equal(t, 8, sink.count())
}
