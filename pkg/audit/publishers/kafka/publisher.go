// Package kafka fans successful audit records out to a Kafka topic. The
// publisher hangs off the post-write notification, so downstream consumers
// (SIEM pipelines, warehouses) see every persisted record without sitting
// on the capture critical path.
package kafka

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/twmb/franz-go/pkg/kgo"

	"chronicle/pkg/audit"
)

// Producer is the slice of the franz-go client the publisher uses.
type Producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher emits persisted records to a topic, keyed by entity so a
// partition preserves per-entity order.
type Publisher struct {
	producer Producer
	topic    string
	logger   *slog.Logger
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for publish failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// New connects a franz-go client to the given brokers and publishes to topic.
func New(brokers []string, topic string, opts ...Option) (*Publisher, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
	)
	if err != nil {
		return nil, err
	}
	return NewWithProducer(client, topic, opts...), nil
}

// NewWithProducer wraps an existing producer, for tests and shared clients.
func NewWithProducer(producer Producer, topic string, opts ...Option) *Publisher {
	p := &Publisher{
		producer: producer,
		topic:    topic,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// PostWrite is an auditor post-write hook. It publishes only successful
// writes; failed or vetoed captures carry no record. Publishing is best
// effort: a broker outage is logged, never surfaced to the capture path.
func (p *Publisher) PostWrite(ctx context.Context, _ audit.Auditable, driver string, rec *audit.Record, err error) {
	if rec == nil || err != nil {
		return
	}

	payload, marshalErr := json.Marshal(rec)
	if marshalErr != nil {
		p.logger.ErrorContext(ctx, "audit record marshal failed", "error", marshalErr)
		return
	}

	record := &kgo.Record{
		Topic: p.topic,
		Key:   []byte(rec.EntityType + ":" + rec.EntityID),
		Value: payload,
	}
	if err := p.producer.ProduceSync(ctx, record).FirstErr(); err != nil {
		p.logger.ErrorContext(ctx, "audit record publish failed",
			"topic", p.topic,
			"driver", driver,
			"entity_type", rec.EntityType,
			"entity_id", rec.EntityID,
			"error", err)
	}
}

// Close releases the underlying client.
func (p *Publisher) Close() {
	p.producer.Close()
}
