package worker

import (
	"context"

	"chronicle/pkg/audit"
)

// Preparer builds a deliverable job without persisting. The auditor
// satisfies this with Defer.
type Preparer interface {
	Defer(ctx context.Context, entity audit.Auditable, event audit.Event) (*audit.Job, error)
}

// Enqueuer hands a prepared job to a transport: an in-process channel or a
// Redis list.
type Enqueuer func(ctx context.Context, job audit.Job) error

// ChannelEnqueuer returns an Enqueuer feeding an in-process inbox.
func ChannelEnqueuer(inbox chan<- audit.Job) Enqueuer {
	return func(ctx context.Context, job audit.Job) error {
		select {
		case inbox <- job:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Dispatcher is the deferred-mode capturer: it prepares the record on the
// request path, where request-scoped context still exists, and hands
// persistence to a transport. It satisfies the same Capture contract as the
// synchronous auditor, so services swap modes without changing.
type Dispatcher struct {
	preparer Preparer
	enqueue  Enqueuer
}

func NewDispatcher(preparer Preparer, enqueue Enqueuer) *Dispatcher {
	return &Dispatcher{preparer: preparer, enqueue: enqueue}
}

// Capture prepares and enqueues one capture. A nil record with nil error
// mirrors the synchronous no-op contract (unaudited event or veto).
func (d *Dispatcher) Capture(ctx context.Context, entity audit.Auditable, event audit.Event) (*audit.Record, error) {
	job, err := d.preparer.Defer(ctx, entity, event)
	if err != nil || job == nil {
		return nil, err
	}
	if err := d.enqueue(ctx, *job); err != nil {
		return nil, err
	}
	return job.Record, nil
}
