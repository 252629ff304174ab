package application

import (
	"context"
	"time"

	billing "homecare-cloud/internal/billing/domain"
)

// DraftScope narrows a billing run to a company and, optionally, one customer.
type DraftScope struct {
	CompanyID  string
	CustomerID string
	Period     billing.BillingPeriod
}

// EventBatch is the raw material of a billing run: candidate events and every
// record they reference.
type EventBatch struct {
	Events        []billing.Event
	Customers     []billing.Customer
	Subscriptions []billing.Subscription
	Services      []billing.Service
}

// EventSource loads un-billed events of a scope with their references.
type EventSource interface {
	LoadBillableEvents(ctx context.Context, scope DraftScope) (EventBatch, error)
}

// FundingSource loads fundings, payers and persisted funding histories.
type FundingSource interface {
	ListFundings(ctx context.Context, companyID string, customerIDs []string) ([]billing.Funding, error)
	ListThirdPartyPayers(ctx context.Context, companyID string) ([]billing.ThirdPartyPayer, error)
	ListFundingHistories(ctx context.Context, fundingIDs []string) ([]billing.FundingHistory, error)
}

// SurchargeSource loads the surcharge definitions of a company.
type SurchargeSource interface {
	ListSurcharges(ctx context.Context, companyID string) ([]billing.Surcharge, error)
}

// CommitBatch is everything a bill commit writes in one transaction.
// Bill numbers are reserved per CompanyID and SequenceMonth ("2006-01")
// inside that transaction; Seal receives each bill with its sequence before
// the bill is written.
type CommitBatch struct {
	CompanyID      string
	SequenceMonth  string
	Bills          []billing.Bill
	HistoryDeltas  []billing.FundingHistory
	BilledEventIDs []string
	Seal           func(bill *billing.Bill, seq int) error
}

// BillRepository persists committed bills.
type BillRepository interface {
	SaveCommit(ctx context.Context, batch CommitBatch) error
	GetByID(ctx context.Context, id string) (*billing.Bill, error)
	ListByCustomer(ctx context.Context, companyID, customerID string) ([]billing.Bill, error)
	MarkVoided(ctx context.Context, id, reason string, voidedAt time.Time) error
}

// BillsCommitted is emitted once drafts of a period have been committed.
type BillsCommitted struct {
	CompanyID  string
	EndDate    time.Time
	BillIDs    []string
	EventCount int
	OccurredAt time.Time
}

// BillVoided is emitted when a committed bill is voided.
type BillVoided struct {
	CompanyID  string
	BillID     string
	Reason     string
	OccurredAt time.Time
}

// BillPublisher emits bill lifecycle events.
type BillPublisher interface {
	PublishBillsCommitted(ctx context.Context, event BillsCommitted) error
	PublishBillVoided(ctx context.Context, event BillVoided) error
}

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns the current time in UTC.
func (SystemClock) Now() time.Time { return time.Now().UTC() }
