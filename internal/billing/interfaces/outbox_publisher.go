package interfaces

import (
	"context"

	"homecare-cloud/internal/billing/application"
	"homecare-cloud/internal/eventing"
)

// OutboxPublisher writes bill lifecycle events to the outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher}
}

// PublishBillsCommitted writes event to outbox.
func (p *OutboxPublisher) PublishBillsCommitted(ctx context.Context, event application.BillsCommitted) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	ctx = eventing.WithCompanyID(ctx, event.CompanyID)
	return p.publisher.Publish(ctx, event)
}

// PublishBillVoided writes event to outbox.
func (p *OutboxPublisher) PublishBillVoided(ctx context.Context, event application.BillVoided) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	ctx = eventing.WithCompanyID(ctx, event.CompanyID)
	return p.publisher.Publish(ctx, event)
}
