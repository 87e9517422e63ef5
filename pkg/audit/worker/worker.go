// Package worker consumes prepared audit jobs from a channel and delivers
// them in the background. It keeps deferred capture testable without wiring
// a queue implementation.
package worker

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"chronicle/pkg/audit"
)

// Sink delivers one prepared job. The auditor satisfies this.
type Sink interface {
	Deliver(ctx context.Context, job audit.Job) error
}

// Worker drains an inbox of jobs into a Sink. Delivery failures are logged
// and dropped; the post-write hooks the sink fires are the durable failure
// signal, and one bad job must not stall the inbox.
type Worker struct {
	sink        Sink
	inbox       <-chan audit.Job
	concurrency int
	logger      *slog.Logger
}

// Option configures the Worker.
type Option func(*Worker)

// WithConcurrency sets how many deliveries run in parallel. Default is 1,
// which preserves inbox order.
func WithConcurrency(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.concurrency = n
		}
	}
}

// WithLogger sets the failure logger.
func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) {
		w.logger = logger
	}
}

func New(sink Sink, inbox <-chan audit.Job, opts ...Option) *Worker {
	w := &Worker{
		sink:        sink,
		inbox:       inbox,
		concurrency: 1,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes jobs until the context is cancelled or the inbox is closed.
// On a closed inbox it drains in-flight deliveries and returns nil.
func (w *Worker) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case job, ok := <-w.inbox:
					if !ok {
						return nil
					}
					w.deliver(ctx, job)
				}
			}
		})
	}
	return g.Wait()
}

func (w *Worker) deliver(ctx context.Context, job audit.Job) {
	if err := w.sink.Deliver(ctx, job); err != nil {
		w.logger.ErrorContext(ctx, "deferred audit delivery failed",
			"driver", job.Driver,
			"entity_type", job.Record.EntityType,
			"entity_id", job.Record.EntityID,
			"event", string(job.Record.Event),
			"error", err)
	}
}
