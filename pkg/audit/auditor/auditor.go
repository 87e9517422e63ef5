// Package auditor orchestrates captures: readiness guard, cancellable
// pre-write hook, driver resolution, persistence, best-effort retention
// pruning, and the post-write notification that fires exactly once per
// attempt.
package auditor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chronicle/pkg/audit"
	"chronicle/pkg/audit/builder"
	"chronicle/pkg/platform/sentinel"
)

// PreWriteHook runs before any durable effect. Returning false vetoes the
// write: the capture stops with no record and no error.
type PreWriteHook func(ctx context.Context, entity audit.Auditable, driver string) bool

// PostWriteHook observes the terminal signal of a capture attempt. rec is
// nil when the write failed or was skipped after the hook stage began.
type PostWriteHook func(ctx context.Context, entity audit.Auditable, driver string, rec *audit.Record, err error)

// Auditor coordinates the capture pipeline against a set of named drivers.
type Auditor struct {
	builder          *builder.Builder
	drivers          map[string]audit.Driver
	defaultDriver    string
	defaultThreshold int
	preWrite         []PreWriteHook
	postWrite        []PostWriteHook
	logger           *slog.Logger
	metrics          *Metrics
}

// Option configures the Auditor.
type Option func(*Auditor)

// WithLogger sets a logger for prune failures and skipped captures.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Auditor) {
		a.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m *Metrics) Option {
	return func(a *Auditor) {
		a.metrics = m
	}
}

// WithDefaultDriver names the driver used by entities that do not declare one.
func WithDefaultDriver(name string) Option {
	return func(a *Auditor) {
		a.defaultDriver = name
	}
}

// WithDefaultThreshold sets the retention threshold for entities that do not
// declare one. Zero keeps unlimited retention.
func WithDefaultThreshold(threshold int) Option {
	return func(a *Auditor) {
		a.defaultThreshold = threshold
	}
}

// OnPreWrite registers a cancellable pre-write hook.
func OnPreWrite(hook PreWriteHook) Option {
	return func(a *Auditor) {
		a.preWrite = append(a.preWrite, hook)
	}
}

// OnPostWrite registers a post-write observer.
func OnPostWrite(hook PostWriteHook) Option {
	return func(a *Auditor) {
		a.postWrite = append(a.postWrite, hook)
	}
}

// New creates an Auditor around a record builder.
func New(b *builder.Builder, opts ...Option) *Auditor {
	a := &Auditor{
		builder: b,
		drivers: make(map[string]audit.Driver),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// RegisterDriver binds a driver name. The first registered driver becomes the
// default unless WithDefaultDriver chose one.
func (a *Auditor) RegisterDriver(name string, driver audit.Driver) error {
	if name == "" || driver == nil {
		return fmt.Errorf("register driver: name and implementation are required")
	}
	if _, ok := a.drivers[name]; ok {
		return fmt.Errorf("register driver: %q already registered", name)
	}
	a.drivers[name] = driver
	if a.defaultDriver == "" {
		a.defaultDriver = name
	}
	return nil
}

// Driver returns the registered driver by name. Useful for wiring a Reader
// endpoint against the same store records go into.
func (a *Auditor) Driver(name string) (audit.Driver, bool) {
	d, ok := a.drivers[name]
	return d, ok
}

// Capture runs one synchronous capture for a built-in lifecycle event.
// A nil record with a nil error means the capture was a deliberate no-op:
// the entity does not audit this event, or a pre-write hook vetoed it.
func (a *Auditor) Capture(ctx context.Context, entity audit.Auditable, event audit.Event) (*audit.Record, error) {
	return a.capture(ctx, entity, event, nil, nil, false)
}

// CaptureCustom runs one synchronous capture for a caller-defined event with
// explicit before/after snapshots.
func (a *Auditor) CaptureCustom(ctx context.Context, entity audit.Auditable, event audit.Event, oldValues, newValues audit.Values) (*audit.Record, error) {
	return a.capture(ctx, entity, event, oldValues, newValues, true)
}

// Defer builds the record and resolves the persistence parameters eagerly,
// returning a Job for a queue or worker to deliver later. Request-scoped
// resolver outputs are baked in now because they are not re-derivable on a
// worker. A nil job with nil error is a deliberate no-op (unaudited event or
// veto), mirroring Capture.
func (a *Auditor) Defer(ctx context.Context, entity audit.Auditable, event audit.Event) (*audit.Job, error) {
	rec, driverName, threshold, skip, err := a.prepare(ctx, entity, event, nil, nil, false)
	if err != nil || skip {
		return nil, err
	}
	return &audit.Job{Record: rec, Driver: driverName, Threshold: threshold}, nil
}

// Deliver persists a previously prepared job: persist, best-effort prune,
// post-write notification. Queue consumers call this.
func (a *Auditor) Deliver(ctx context.Context, job audit.Job) error {
	driver, ok := a.drivers[job.Driver]
	if !ok {
		return &audit.UnknownDriverError{Name: job.Driver}
	}
	_, err := a.persist(ctx, nil, driver, job.Driver, job.Record, job.Threshold)
	return err
}

func (a *Auditor) capture(ctx context.Context, entity audit.Auditable, event audit.Event, oldValues, newValues audit.Values, custom bool) (*audit.Record, error) {
	rec, driverName, threshold, skip, err := a.prepare(ctx, entity, event, oldValues, newValues, custom)
	if err != nil || skip {
		return nil, err
	}
	driver := a.drivers[driverName]
	return a.persist(ctx, entity, driver, driverName, rec, threshold)
}

// prepare runs the side-effect-free half of a capture: readiness guard,
// driver resolution, pre-write veto, and record assembly. skip=true with a
// nil error means a deliberate no-op.
func (a *Auditor) prepare(ctx context.Context, entity audit.Auditable, event audit.Event, oldValues, newValues audit.Values, custom bool) (*audit.Record, string, int, bool, error) {
	cfg := entity.AuditConfig()

	// Not ready for auditing: no event kind, or the event is outside the
	// entity's declared event table. A no-op, not an error.
	if event == "" || !cfg.Audits(event) {
		a.logger.DebugContext(ctx, "capture skipped",
			"entity_type", entity.AuditType(),
			"entity_id", entity.AuditID(),
			"event", string(event))
		return nil, "", 0, true, nil
	}

	driverName := cfg.Driver
	if driverName == "" {
		driverName = a.defaultDriver
	}
	if _, ok := a.drivers[driverName]; !ok {
		return nil, "", 0, false, &audit.UnknownDriverError{Name: driverName}
	}

	for _, hook := range a.preWrite {
		if !hook(ctx, entity, driverName) {
			if a.metrics != nil {
				a.metrics.Vetoed.Inc()
			}
			a.logger.DebugContext(ctx, "capture vetoed",
				"entity_type", entity.AuditType(),
				"entity_id", entity.AuditID(),
				"event", string(event),
				"driver", driverName)
			return nil, "", 0, true, nil
		}
	}

	var (
		rec *audit.Record
		err error
	)
	if custom {
		rec, err = a.builder.BuildCustom(ctx, entity, event, oldValues, newValues)
	} else {
		rec, err = a.builder.Build(ctx, entity, event)
	}
	if err != nil {
		return nil, "", 0, false, err
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = a.defaultThreshold
	}
	return rec, driverName, threshold, false, nil
}

// persist writes the record, prunes best-effort, and fires the post-write
// notification exactly once whatever the outcome.
func (a *Auditor) persist(ctx context.Context, entity audit.Auditable, driver audit.Driver, driverName string, rec *audit.Record, threshold int) (*audit.Record, error) {
	stored, err := driver.Persist(ctx, rec)
	if a.metrics != nil {
		a.metrics.Captures.WithLabelValues(string(rec.Event), driverName).Inc()
	}
	if err != nil {
		if a.metrics != nil {
			a.metrics.PersistFailures.Inc()
		}
		a.notify(ctx, entity, driverName, nil, err)
		return nil, fmt.Errorf("persist audit record: %w", err)
	}

	a.prune(ctx, driver, driverName, stored, threshold)
	a.notify(ctx, entity, driverName, stored, nil)
	return stored, nil
}

func (a *Auditor) prune(ctx context.Context, driver audit.Driver, driverName string, rec *audit.Record, threshold int) {
	if threshold <= 0 {
		return
	}
	pruned, err := driver.Prune(ctx, rec.EntityType, rec.EntityID, threshold)
	switch {
	case errors.Is(err, sentinel.ErrPruneUnsupported):
		a.logger.DebugContext(ctx, "pruning unsupported by driver", "driver", driverName)
	case err != nil:
		// Pruning failures never roll back the just-written record.
		if a.metrics != nil {
			a.metrics.PruneFailures.Inc()
		}
		a.logger.ErrorContext(ctx, "prune failed",
			"driver", driverName,
			"entity_type", rec.EntityType,
			"entity_id", rec.EntityID,
			"error", err)
	case pruned > 0:
		if a.metrics != nil {
			a.metrics.PrunedRecords.Add(float64(pruned))
		}
	}
}

func (a *Auditor) notify(ctx context.Context, entity audit.Auditable, driverName string, rec *audit.Record, err error) {
	for _, hook := range a.postWrite {
		hook(ctx, entity, driverName, rec, err)
	}
}
