// Package queue moves prepared audit jobs through a Redis list so capture
// and persistence can run in different processes. Producers LPUSH JSON jobs;
// a consumer loop BRPOPs and hands them to a delivery sink.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"chronicle/pkg/audit"
)

// DefaultKey is the Redis list jobs travel through.
const DefaultKey = "chronicle:audit:jobs"

// Sink delivers one prepared job. The auditor satisfies this.
type Sink interface {
	Deliver(ctx context.Context, job audit.Job) error
}

// Client is the slice of the go-redis API the queue uses.
type Client interface {
	LPush(ctx context.Context, key string, values ...interface{}) *redis.IntCmd
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) *redis.StringSliceCmd
}

// Queue is a Redis-list job transport.
type Queue struct {
	client     Client
	key        string
	popTimeout time.Duration
	retryDelay time.Duration
	logger     *slog.Logger
}

// Option configures the Queue.
type Option func(*Queue)

// WithKey overrides the Redis list key.
func WithKey(key string) Option {
	return func(q *Queue) {
		q.key = key
	}
}

// WithPopTimeout sets how long each BRPOP blocks before re-checking the
// context. Default two seconds.
func WithPopTimeout(d time.Duration) Option {
	return func(q *Queue) {
		q.popTimeout = d
	}
}

// WithLogger sets the logger for malformed payloads and transport errors.
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		q.logger = logger
	}
}

func New(client Client, opts ...Option) *Queue {
	q := &Queue{
		client:     client,
		key:        DefaultKey,
		popTimeout: 2 * time.Second,
		retryDelay: time.Second,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Enqueue pushes one prepared job onto the list.
func (q *Queue) Enqueue(ctx context.Context, job audit.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal audit job: %w", err)
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return fmt.Errorf("enqueue audit job: %w", err)
	}
	return nil
}

// Run consumes jobs until the context is cancelled. Malformed payloads are
// logged and dropped. Delivery failures are logged and the job is dropped;
// the sink's post-write hooks carry the failure signal. Transport errors
// back off briefly so a flapping Redis does not spin the loop.
func (q *Queue) Run(ctx context.Context, sink Sink) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		res, err := q.client.BRPop(ctx, q.popTimeout, q.key).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			q.logger.ErrorContext(ctx, "audit queue pop failed", "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(q.retryDelay):
			}
			continue
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}

		var job audit.Job
		if err := json.Unmarshal([]byte(res[1]), &job); err != nil {
			q.logger.ErrorContext(ctx, "audit queue payload malformed", "error", err)
			continue
		}
		if err := sink.Deliver(ctx, job); err != nil {
			q.logger.ErrorContext(ctx, "audit queue delivery failed",
				"driver", job.Driver,
				"entity_type", job.Record.EntityType,
				"entity_id", job.Record.EntityID,
				"error", err)
		}
	}
}
