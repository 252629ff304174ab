package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"homecare-cloud/internal/billing/application"
	billing "homecare-cloud/internal/billing/domain"
)

// EventSource loads un-billed interventions and the records they reference.
type EventSource struct {
	db  *sql.DB
	loc *time.Location
}

// EventSourceOption configures the event source.
type EventSourceOption func(*EventSource)

// WithLocation sets the time zone event dates are returned in.
func WithLocation(loc *time.Location) EventSourceOption {
	return func(s *EventSource) {
		if loc != nil {
			s.loc = loc
		}
	}
}

// NewEventSource constructs an event source. Event dates are returned in
// UTC unless WithLocation is given.
func NewEventSource(db *sql.DB, opts ...EventSourceOption) *EventSource {
	s := &EventSource{db: db, loc: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// LoadBillableEvents returns the candidate events of scope.
func (s *EventSource) LoadBillableEvents(ctx context.Context, scope application.DraftScope) (application.EventBatch, error) {
	var batch application.EventBatch
	if s == nil || s.db == nil {
		return batch, errors.New("event source: nil db")
	}
	var start sql.NullTime
	if !scope.Period.StartDate.IsZero() {
		start = sql.NullTime{Time: scope.Period.StartDate, Valid: true}
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, company_id, type, customer_id, subscription_id, auxiliary_id,
	start_date, end_date, is_billed, is_cancelled, cancel_condition, cancel_reason
FROM events
WHERE company_id = $1
	AND type = 'intervention'
	AND is_billed = false
	AND start_date < $2
	AND ($3::timestamptz IS NULL OR start_date >= $3)
	AND ($4 = '' OR customer_id = $4)
ORDER BY start_date ASC, id ASC`, scope.CompanyID, scope.Period.EndDate, start, scope.CustomerID)
	if err != nil {
		return batch, err
	}
	defer rows.Close()

	customerIDs := newIDSet()
	subscriptionIDs := newIDSet()
	for rows.Next() {
		event, err := scanEvent(rows, s.loc)
		if err != nil {
			return batch, err
		}
		if !event.IsBillable() {
			continue
		}
		batch.Events = append(batch.Events, event)
		customerIDs.add(event.CustomerID)
		subscriptionIDs.add(event.SubscriptionID)
	}
	if err := rows.Err(); err != nil {
		return batch, err
	}
	if len(batch.Events) == 0 {
		return batch, nil
	}

	if batch.Customers, err = s.customers(ctx, customerIDs.list()); err != nil {
		return batch, err
	}
	if batch.Subscriptions, err = s.subscriptions(ctx, subscriptionIDs.list()); err != nil {
		return batch, err
	}
	serviceIDs := newIDSet()
	for _, subscription := range batch.Subscriptions {
		serviceIDs.add(subscription.ServiceID)
	}
	if batch.Services, err = s.services(ctx, serviceIDs.list()); err != nil {
		return batch, err
	}
	return batch, nil
}

func scanEvent(scanner rowScanner, loc *time.Location) (billing.Event, error) {
	var (
		event       billing.Event
		eventType   string
		auxiliaryID sql.NullString
		cancelled   bool
		condition   sql.NullString
		reason      sql.NullString
	)
	if err := scanner.Scan(&event.ID, &event.CompanyID, &eventType, &event.CustomerID, &event.SubscriptionID, &auxiliaryID,
		&event.StartDate, &event.EndDate, &event.IsBilled, &cancelled, &condition, &reason); err != nil {
		return event, err
	}
	event.Type = billing.EventType(eventType)
	event.AuxiliaryID = auxiliaryID.String
	event.StartDate = event.StartDate.In(loc)
	event.EndDate = event.EndDate.In(loc)
	if cancelled {
		event.Cancel = &billing.Cancellation{Condition: condition.String, Reason: reason.String}
	}
	return event, nil
}

func (s *EventSource) customers(ctx context.Context, ids []string) ([]billing.Customer, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, company_id, title, first_name, last_name
FROM customers
WHERE id = ANY($1)
ORDER BY id ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Customer
	for rows.Next() {
		var customer billing.Customer
		var title, firstName sql.NullString
		if err := rows.Scan(&customer.ID, &customer.CompanyID, &title, &firstName, &customer.LastName); err != nil {
			return nil, err
		}
		customer.Title = title.String
		customer.FirstName = firstName.String
		result = append(result, customer)
	}
	return result, rows.Err()
}

func (s *EventSource) subscriptions(ctx context.Context, ids []string) ([]billing.Subscription, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, customer_id, service_id, versions
FROM subscriptions
WHERE id = ANY($1)
ORDER BY id ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Subscription
	for rows.Next() {
		var subscription billing.Subscription
		var versions []byte
		if err := rows.Scan(&subscription.ID, &subscription.CustomerID, &subscription.ServiceID, &versions); err != nil {
			return nil, err
		}
		if err := decodeJSON(versions, &subscription.Versions); err != nil {
			return nil, fmt.Errorf("subscription %s versions: %w", subscription.ID, err)
		}
		result = append(result, subscription)
	}
	return result, rows.Err()
}

func (s *EventSource) services(ctx context.Context, ids []string) ([]billing.Service, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, company_id, nature, versions
FROM services
WHERE id = ANY($1)
ORDER BY id ASC`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Service
	for rows.Next() {
		var service billing.Service
		var nature string
		var versions []byte
		if err := rows.Scan(&service.ID, &service.CompanyID, &nature, &versions); err != nil {
			return nil, err
		}
		service.Nature = billing.ServiceNature(nature)
		if err := decodeJSON(versions, &service.Versions); err != nil {
			return nil, fmt.Errorf("service %s versions: %w", service.ID, err)
		}
		result = append(result, service)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func decodeJSON(data []byte, target any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, target)
}

type idSet struct {
	seen  map[string]struct{}
	order []string
}

func newIDSet() *idSet {
	return &idSet{seen: make(map[string]struct{})}
}

func (s *idSet) add(id string) {
	if id == "" {
		return
	}
	if _, ok := s.seen[id]; ok {
		return
	}
	s.seen[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *idSet) list() []string {
	return s.order
}
