package eventing

import (
	"context"
	"log"
	"reflect"
	"time"

	"homecare-cloud/internal/observability/metrics"
)

// Publisher writes events to the outbox. Delivery is left to the relay.
type Publisher struct {
	outbox    OutboxWriter
	companyID string
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, companyID string) *Publisher {
	return &Publisher{outbox: outbox, companyID: companyID}
}

// Publish writes the event to outbox.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	start := time.Now()
	result := metrics.ResultSuccess
	if p == nil || p.outbox == nil {
		metrics.ObserveOutboxPublish(result, time.Since(start))
		return nil
	}
	env, err := BuildEnvelope(event, MetaFromContext(ctx, p.companyID))
	if err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		metrics.ObserveOutboxPublish(metrics.ResultError, time.Since(start))
		return err
	}
	duration := time.Since(start)
	metrics.ObserveOutboxPublish(result, duration)
	if duration > 50*time.Millisecond {
		log.Printf("outbox_publish duration_ms=%d result=%s event_type=%s",
			duration.Milliseconds(), result, reflect.TypeOf(event).String())
	}
	return nil
}
