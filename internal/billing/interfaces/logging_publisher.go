package interfaces

import (
	"context"
	"errors"
	"log"

	"homecare-cloud/internal/billing/application"
)

// LoggingPublisher logs bill lifecycle events.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// PublishBillsCommitted logs the event.
func (p *LoggingPublisher) PublishBillsCommitted(ctx context.Context, event application.BillsCommitted) error {
	_ = ctx
	if p == nil {
		return errors.New("bill publisher: nil publisher")
	}
	p.logger.Printf("bills committed: company=%s end=%s bills=%d events=%d", event.CompanyID, event.EndDate.Format("2006-01-02"), len(event.BillIDs), event.EventCount)
	return nil
}

// PublishBillVoided logs the event.
func (p *LoggingPublisher) PublishBillVoided(ctx context.Context, event application.BillVoided) error {
	_ = ctx
	if p == nil {
		return errors.New("bill publisher: nil publisher")
	}
	p.logger.Printf("bill voided: company=%s bill=%s reason=%q", event.CompanyID, event.BillID, event.Reason)
	return nil
}
