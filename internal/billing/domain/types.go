package billing

import "time"

// EventType classifies planning events.
type EventType string

const (
	EventTypeIntervention EventType = "intervention"
	EventTypeInternalHour EventType = "internal_hour"
	EventTypeAbsence      EventType = "absence"
)

// CancelConditionInvoicedAndPaid marks a cancelled visit that is still charged.
const CancelConditionInvoicedAndPaid = "invoiced_and_paid"

// Cancellation holds cancellation metadata of an event.
type Cancellation struct {
	Condition string `json:"condition"`
	Reason    string `json:"reason"`
}

// Event is a dated interval [StartDate, EndDate) of service delivery.
type Event struct {
	ID             string        `json:"id"`
	CompanyID      string        `json:"company_id"`
	Type           EventType     `json:"type"`
	CustomerID     string        `json:"customer_id"`
	SubscriptionID string        `json:"subscription_id"`
	AuxiliaryID    string        `json:"auxiliary_id"`
	StartDate      time.Time     `json:"start_date"`
	EndDate        time.Time     `json:"end_date"`
	IsBilled       bool          `json:"is_billed"`
	Cancel         *Cancellation `json:"cancel,omitempty"`
}

// Duration returns the event length.
func (e Event) Duration() time.Duration { return e.EndDate.Sub(e.StartDate) }

// Hours returns the event length in hours.
func (e Event) Hours() float64 { return e.Duration().Hours() }

// Validate checks the event interval.
func (e Event) Validate() error {
	if e.StartDate.IsZero() || !e.EndDate.After(e.StartDate) {
		return ErrInvalidEventInterval
	}
	return nil
}

// IsBillable reports whether the event should appear on a bill.
func (e Event) IsBillable() bool {
	if e.Type != EventTypeIntervention || e.IsBilled {
		return false
	}
	if e.Cancel == nil {
		return true
	}
	return e.Cancel.Condition == CancelConditionInvoicedAndPaid
}

// Customer is the billed person.
type Customer struct {
	ID        string `json:"id"`
	CompanyID string `json:"company_id"`
	Title     string `json:"title,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name"`
}

// DisplayName returns a printable customer name.
func (c Customer) DisplayName() string {
	name := c.LastName
	if c.FirstName != "" {
		name = c.FirstName + " " + name
	}
	if c.Title != "" {
		name = c.Title + " " + name
	}
	return name
}

// SubscriptionVersion is one pricing entry of a subscription.
type SubscriptionVersion struct {
	StartDate             time.Time `json:"start_date"`
	UnitTTCRate           float64   `json:"unit_ttc_rate"`
	EstimatedWeeklyVolume float64   `json:"estimated_weekly_volume,omitempty"`
}

// Subscription binds a customer to a service.
type Subscription struct {
	ID         string                `json:"id"`
	CustomerID string                `json:"customer_id"`
	ServiceID  string                `json:"service_id"`
	Versions   []SubscriptionVersion `json:"versions"`
}

// VersionAt returns the subscription pricing effective at the given date.
func (s Subscription) VersionAt(at time.Time) (SubscriptionVersion, error) {
	return ResolveVersion(s.Versions, at, func(v SubscriptionVersion) time.Time { return v.StartDate })
}

// ServiceNature tells how a service is priced.
type ServiceNature string

const (
	ServiceNatureHourly ServiceNature = "hourly"
	ServiceNatureFixed  ServiceNature = "fixed"
)

// ServiceVersion is one configuration entry of a service.
type ServiceVersion struct {
	StartDate         time.Time `json:"start_date"`
	Name              string    `json:"name"`
	VAT               float64   `json:"vat"`
	DefaultUnitAmount float64   `json:"default_unit_amount,omitempty"`
	SurchargeID       string    `json:"surcharge_id,omitempty"`
}

// Service is a catalog entry sold through subscriptions.
type Service struct {
	ID        string           `json:"id"`
	CompanyID string           `json:"company_id"`
	Nature    ServiceNature    `json:"nature"`
	Versions  []ServiceVersion `json:"versions"`
}

// VersionAt returns the service configuration effective at the given date.
func (s Service) VersionAt(at time.Time) (ServiceVersion, error) {
	return ResolveVersion(s.Versions, at, func(v ServiceVersion) time.Time { return v.StartDate })
}

// BillingPeriod bounds a billing run. A zero StartDate means every
// un-billed event before EndDate is considered.
type BillingPeriod struct {
	StartDate time.Time `json:"start_date"`
	EndDate   time.Time `json:"end_date"`
}

// Validate checks the period bounds.
func (p BillingPeriod) Validate() error {
	if p.EndDate.IsZero() {
		return ErrInvalidPeriod
	}
	if !p.StartDate.IsZero() && !p.EndDate.After(p.StartDate) {
		return ErrInvalidPeriod
	}
	return nil
}

// Contains reports whether t falls in [StartDate, EndDate).
func (p BillingPeriod) Contains(t time.Time) bool {
	if !p.StartDate.IsZero() && t.Before(p.StartDate) {
		return false
	}
	return t.Before(p.EndDate)
}
