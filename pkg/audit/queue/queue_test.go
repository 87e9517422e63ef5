package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chronicle/pkg/audit"
)

type fakeClient struct {
	mu       sync.Mutex
	pushed   map[string][]string
	pops     []string
	popErr   error
	drained  func()
	draining bool
}

func newFakeClient(pops ...string) *fakeClient {
	return &fakeClient{pushed: make(map[string][]string), pops: pops}
}

func (f *fakeClient) LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range values {
		f.pushed[key] = append(f.pushed[key], string(v.([]byte)))
	}
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(f.pushed[key])))
	return cmd
}

func (f *fakeClient) BRPop(ctx context.Context, _ time.Duration, keys ...string) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringSliceCmd(ctx)
	if f.popErr != nil {
		err := f.popErr
		f.popErr = nil
		cmd.SetErr(err)
		return cmd
	}
	if len(f.pops) == 0 {
		if f.drained != nil && !f.draining {
			f.draining = true
			f.drained()
		}
		cmd.SetErr(redis.Nil)
		return cmd
	}
	next := f.pops[0]
	f.pops = f.pops[1:]
	cmd.SetVal([]string{keys[0], next})
	return cmd
}

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

func testJob(entityID string) audit.Job {
	return audit.Job{
		Record: &audit.Record{
			ID:         uuid.New(),
			Event:      audit.EventUpdated,
			EntityType: "article",
			EntityID:   entityID,
		},
		Driver:    "postgres",
		Threshold: 10,
	}
}

func marshalJob(t *testing.T, job audit.Job) string {
	t.Helper()
	data, err := json.Marshal(job)
	require.NoError(t, err)
	return string(data)
}

func TestEnqueuePushesJSON(t *testing.T) {
	client := newFakeClient()
	q := New(client, WithKey("test:jobs"))
	job := testJob("42")

	require.NoError(t, q.Enqueue(context.Background(), job))

	require.Len(t, client.pushed["test:jobs"], 1)
	var decoded audit.Job
	require.NoError(t, json.Unmarshal([]byte(client.pushed["test:jobs"][0]), &decoded))
	assert.Equal(t, job.Record.ID, decoded.Record.ID)
	assert.Equal(t, "postgres", decoded.Driver)
	assert.Equal(t, 10, decoded.Threshold)
}

func TestRunDeliversQueuedJobs(t *testing.T) {
	first := testJob("1")
	second := testJob("2")
	client := newFakeClient(marshalJob(t, first), marshalJob(t, second))

	ctx, cancel := context.WithCancel(context.Background())
	client.drained = cancel

	sink := &recordingSink{}
	q := New(client, WithPopTimeout(time.Millisecond))

	err := q.Run(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, sink.delivered, 2)
	assert.Equal(t, "1", sink.delivered[0].Record.EntityID)
	assert.Equal(t, "2", sink.delivered[1].Record.EntityID)
}

func TestRunDropsMalformedPayload(t *testing.T) {
	good := testJob("1")
	client := newFakeClient("{not json", marshalJob(t, good))

	ctx, cancel := context.WithCancel(context.Background())
	client.drained = cancel

	sink := &recordingSink{}
	q := New(client)

	err := q.Run(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)

	require.Len(t, sink.delivered, 1)
	assert.Equal(t, "1", sink.delivered[0].Record.EntityID)
}

func TestRunSurvivesDeliveryFailure(t *testing.T) {
	client := newFakeClient(marshalJob(t, testJob("1")), marshalJob(t, testJob("2")))

	ctx, cancel := context.WithCancel(context.Background())
	client.drained = cancel

	sink := &recordingSink{err: errors.New("store down")}
	q := New(client)

	err := q.Run(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sink.delivered, 2)
}

func TestRunBacksOffOnTransportError(t *testing.T) {
	client := newFakeClient(marshalJob(t, testJob("1")))
	client.popErr = errors.New("connection reset")

	ctx, cancel := context.WithCancel(context.Background())
	client.drained = cancel

	sink := &recordingSink{}
	q := New(client)
	q.retryDelay = time.Millisecond

	err := q.Run(ctx, sink)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, sink.delivered, 1)
}
