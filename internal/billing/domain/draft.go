package billing

import (
	"fmt"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"
)

// BilledEvent is an event as it appears on a bill line.
type BilledEvent struct {
	EventID     string             `json:"event_id"`
	AuxiliaryID string             `json:"auxiliary_id"`
	StartDate   time.Time          `json:"start_date"`
	EndDate     time.Time          `json:"end_date"`
	ExclTaxes   float64            `json:"excl_taxes"`
	InclTaxes   float64            `json:"incl_taxes"`
	Surcharges  []AppliedSurcharge `json:"surcharges,omitempty"`
	History     *HistoryDelta      `json:"history,omitempty"`
}

// BillLine sums the events of one subscription for one payer.
type BillLine struct {
	SubscriptionID    string        `json:"subscription_id"`
	ServiceName       string        `json:"service_name"`
	ThirdPartyPayerID string        `json:"third_party_payer_id,omitempty"`
	FundingID         string        `json:"funding_id,omitempty"`
	StartDate         time.Time     `json:"start_date"`
	EndDate           time.Time     `json:"end_date"`
	UnitExclTaxes     float64       `json:"unit_excl_taxes"`
	UnitInclTaxes     float64       `json:"unit_incl_taxes"`
	VAT               float64       `json:"vat"`
	ExclTaxes         float64       `json:"excl_taxes"`
	InclTaxes         float64       `json:"incl_taxes"`
	Hours             float64       `json:"hours"`
	EventsList        []BilledEvent `json:"events_list"`
}

// CustomerBills is the customer side of a draft bill.
type CustomerBills struct {
	Bills []BillLine `json:"bills"`
	Total float64    `json:"total"`
}

// ThirdPartyPayerBills is the share of one payer in a draft bill.
type ThirdPartyPayerBills struct {
	ThirdPartyPayer ThirdPartyPayer `json:"third_party_payer"`
	Bills           []BillLine      `json:"bills"`
	Total           float64         `json:"total"`
}

// DraftBill is the unpersisted bill preview of one customer.
type DraftBill struct {
	Customer             Customer               `json:"customer"`
	EndDate              time.Time              `json:"end_date"`
	CustomerBills        CustomerBills          `json:"customer_bills"`
	ThirdPartyPayerBills []ThirdPartyPayerBills `json:"third_party_payer_bills"`
}

// SubscriptionEvents groups the events of one subscription with its service.
type SubscriptionEvents struct {
	Subscription Subscription
	Service      Service
	Events       []Event
}

// CustomerEvents is the billing input of one customer.
type CustomerEvents struct {
	Customer      Customer
	Subscriptions []SubscriptionEvents
	Fundings      []Funding
}

type lineTotals struct {
	exclTaxes float64
	hours     float64
	events    []BilledEvent
}

// SubscriptionAccumulator folds event prices of a subscription into bill lines.
type SubscriptionAccumulator struct {
	subscription  Subscription
	serviceName   string
	vat           float64
	unitInclTaxes float64
	period        BillingPeriod
	firstEvent    time.Time

	customer   lineTotals
	payers     map[string]*lineTotals
	payerOf    map[string]string
	fundingIDs []string
}

// NewSubscriptionAccumulator starts the bill lines of a subscription. The
// unit rate shown on lines is the one in force at the end of the period.
func NewSubscriptionAccumulator(subscription Subscription, service ServiceVersion, period BillingPeriod) (*SubscriptionAccumulator, error) {
	version, err := subscription.VersionAt(period.EndDate)
	if err != nil {
		return nil, fmt.Errorf("subscription %s: %w", subscription.ID, err)
	}
	return &SubscriptionAccumulator{
		subscription:  subscription,
		serviceName:   service.Name,
		vat:           service.VAT,
		unitInclTaxes: version.UnitTTCRate,
		period:        period,
		payers:        make(map[string]*lineTotals),
		payerOf:       make(map[string]string),
	}, nil
}

// Add folds one priced event.
func (a *SubscriptionAccumulator) Add(event Event, price EventPrice) {
	if a.firstEvent.IsZero() || event.StartDate.Before(a.firstEvent) {
		a.firstEvent = event.StartDate
	}
	if price.CustomerPrice != 0 {
		a.customer.exclTaxes += price.CustomerPrice
		a.customer.hours += event.Hours()
		a.customer.events = append(a.customer.events, BilledEvent{
			EventID:     event.ID,
			AuxiliaryID: event.AuxiliaryID,
			StartDate:   event.StartDate,
			EndDate:     event.EndDate,
			ExclTaxes:   price.CustomerPrice,
			InclTaxes:   InclTaxes(price.CustomerPrice, a.vat),
			Surcharges:  price.Surcharges,
		})
	}
	if price.Funding == nil || price.ThirdPartyPayerPrice == 0 {
		return
	}
	fundingID := price.Funding.Funding.ID
	totals, ok := a.payers[fundingID]
	if !ok {
		totals = &lineTotals{}
		a.payers[fundingID] = totals
		a.payerOf[fundingID] = price.Funding.Funding.ThirdPartyPayer.ID
		a.fundingIDs = append(a.fundingIDs, fundingID)
	}
	totals.exclTaxes += price.ThirdPartyPayerPrice
	if price.History != nil && price.History.Nature == FundingNatureHourly {
		totals.hours += price.History.CareHours
	} else {
		totals.hours += event.Hours()
	}
	totals.events = append(totals.events, BilledEvent{
		EventID:     event.ID,
		AuxiliaryID: event.AuxiliaryID,
		StartDate:   event.StartDate,
		EndDate:     event.EndDate,
		ExclTaxes:   price.ThirdPartyPayerPrice,
		InclTaxes:   InclTaxes(price.ThirdPartyPayerPrice, a.vat),
		Surcharges:  price.Surcharges,
		History:     price.History,
	})
}

func (a *SubscriptionAccumulator) line(totals lineTotals) BillLine {
	start := a.period.StartDate
	if start.IsZero() {
		start = a.firstEvent
	}
	return BillLine{
		SubscriptionID: a.subscription.ID,
		ServiceName:    a.serviceName,
		StartDate:      start,
		EndDate:        a.period.EndDate,
		UnitExclTaxes:  ExclTaxes(a.unitInclTaxes, a.vat),
		UnitInclTaxes:  a.unitInclTaxes,
		VAT:            a.vat,
		ExclTaxes:      totals.exclTaxes,
		InclTaxes:      InclTaxes(totals.exclTaxes, a.vat),
		Hours:          totals.hours,
		EventsList:     totals.events,
	}
}

// CustomerLine returns the customer bill line, if any amount was accrued.
func (a *SubscriptionAccumulator) CustomerLine() (BillLine, bool) {
	if a.customer.exclTaxes == 0 {
		return BillLine{}, false
	}
	return a.line(a.customer), true
}

// ThirdPartyPayerLines returns one line per funding with a non-zero amount,
// in order of first use.
func (a *SubscriptionAccumulator) ThirdPartyPayerLines() []BillLine {
	var lines []BillLine
	for _, fundingID := range a.fundingIDs {
		totals := a.payers[fundingID]
		if totals.exclTaxes == 0 {
			continue
		}
		line := a.line(*totals)
		line.FundingID = fundingID
		line.ThirdPartyPayerID = a.payerOf[fundingID]
		lines = append(lines, line)
	}
	return lines
}

// DraftRun is the complete, pre-fetched input of a draft billing run.
type DraftRun struct {
	Period      BillingPeriod
	Customers   []CustomerEvents
	Surcharges  map[string]Surcharge
	Holidays    HolidayCalendar
	MaxParallel int
}

// AssembleDraftBills computes the draft bills of every customer of the run.
// Customers are computed concurrently; the events of a customer are billed
// sequentially in chronological order against a single ledger. Customers
// without any billed amount are omitted. The result is sorted by customer id.
func AssembleDraftBills(run DraftRun) ([]DraftBill, error) {
	if err := run.Period.Validate(); err != nil {
		return nil, err
	}
	results := make([]*DraftBill, len(run.Customers))

	var group errgroup.Group
	if run.MaxParallel > 0 {
		group.SetLimit(run.MaxParallel)
	}
	for i, customer := range run.Customers {
		group.Go(func() error {
			bill, err := DraftBillForCustomer(run.Period, customer, run.Surcharges, run.Holidays)
			if err != nil {
				return fmt.Errorf("customer %s: %w", customer.Customer.ID, err)
			}
			results[i] = bill
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}

	bills := make([]DraftBill, 0, len(results))
	for _, bill := range results {
		if bill != nil {
			bills = append(bills, *bill)
		}
	}
	sort.SliceStable(bills, func(i, j int) bool { return bills[i].Customer.ID < bills[j].Customer.ID })
	return bills, nil
}

// DraftBillForCustomer computes the draft bill of one customer. It returns
// nil when nothing is owed.
func DraftBillForCustomer(period BillingPeriod, input CustomerEvents, surcharges map[string]Surcharge, calendar HolidayCalendar) (*DraftBill, error) {
	ledger := NewLedger(input.Fundings)

	subscriptions := append([]SubscriptionEvents(nil), input.Subscriptions...)
	sort.SliceStable(subscriptions, func(i, j int) bool {
		return subscriptions[i].Subscription.ID < subscriptions[j].Subscription.ID
	})

	var customerLines []BillLine
	payerLines := make(map[string][]BillLine)
	payers := make(map[string]ThirdPartyPayer)
	for _, funding := range input.Fundings {
		payers[funding.ThirdPartyPayer.ID] = funding.ThirdPartyPayer
	}

	for _, group := range subscriptions {
		service, err := group.Service.VersionAt(period.EndDate)
		if err != nil {
			return nil, fmt.Errorf("service %s: %w", group.Service.ID, err)
		}
		pricing := EventPricing{Nature: group.Service.Nature, Service: service}
		if service.SurchargeID != "" {
			if surcharge, ok := surcharges[service.SurchargeID]; ok {
				pricing.Surcharge = &surcharge
			}
		}

		var fundings []Funding
		for _, funding := range input.Fundings {
			if funding.SubscriptionID == group.Subscription.ID {
				fundings = append(fundings, funding)
			}
		}

		acc, err := NewSubscriptionAccumulator(group.Subscription, service, period)
		if err != nil {
			return nil, err
		}

		events := append([]Event(nil), group.Events...)
		sort.SliceStable(events, func(i, j int) bool { return events[i].StartDate.Before(events[j].StartDate) })
		for _, event := range events {
			if !event.IsBillable() || !period.Contains(event.StartDate) {
				continue
			}
			version, err := group.Subscription.VersionAt(event.StartDate)
			if err != nil {
				return nil, fmt.Errorf("subscription %s event %s: %w", group.Subscription.ID, event.ID, err)
			}
			pricing.UnitTTCRate = version.UnitTTCRate
			matched := MatchFunding(event.StartDate, fundings, calendar)

			var price EventPrice
			price, ledger, err = BillEvent(event, pricing, matched, ledger, calendar)
			if err != nil {
				return nil, err
			}
			acc.Add(event, price)
		}

		if line, ok := acc.CustomerLine(); ok {
			customerLines = append(customerLines, line)
		}
		for _, line := range acc.ThirdPartyPayerLines() {
			payerLines[line.ThirdPartyPayerID] = append(payerLines[line.ThirdPartyPayerID], line)
		}
	}

	if len(customerLines) == 0 && len(payerLines) == 0 {
		return nil, nil
	}

	bill := &DraftBill{
		Customer:      input.Customer,
		EndDate:       period.EndDate,
		CustomerBills: CustomerBills{Bills: customerLines, Total: sumInclTaxes(customerLines)},
	}
	payerIDs := make([]string, 0, len(payerLines))
	for id := range payerLines {
		payerIDs = append(payerIDs, id)
	}
	sort.Strings(payerIDs)
	for _, id := range payerIDs {
		lines := payerLines[id]
		bill.ThirdPartyPayerBills = append(bill.ThirdPartyPayerBills, ThirdPartyPayerBills{
			ThirdPartyPayer: payers[id],
			Bills:           lines,
			Total:           sumInclTaxes(lines),
		})
	}
	return bill, nil
}

func sumInclTaxes(lines []BillLine) float64 {
	var total float64
	for _, line := range lines {
		total += line.InclTaxes
	}
	return total
}

// JoinCustomerEvents groups events by customer and subscription and attaches
// the referenced subscription, service and fundings. Every reference must
// resolve.
func JoinCustomerEvents(events []Event, customers []Customer, subscriptions []Subscription, services []Service, fundings []Funding) ([]CustomerEvents, error) {
	customerByID := make(map[string]Customer, len(customers))
	for _, customer := range customers {
		customerByID[customer.ID] = customer
	}
	subscriptionByID := make(map[string]Subscription, len(subscriptions))
	for _, subscription := range subscriptions {
		subscriptionByID[subscription.ID] = subscription
	}
	serviceByID := make(map[string]Service, len(services))
	for _, service := range services {
		serviceByID[service.ID] = service
	}
	fundingsByCustomer := make(map[string][]Funding)
	for _, funding := range fundings {
		fundingsByCustomer[funding.CustomerID] = append(fundingsByCustomer[funding.CustomerID], funding)
	}

	grouped := make(map[string]map[string][]Event)
	for _, event := range events {
		if _, ok := customerByID[event.CustomerID]; !ok {
			return nil, fmt.Errorf("event %s: %w: %s", event.ID, ErrMissingCustomer, event.CustomerID)
		}
		subscription, ok := subscriptionByID[event.SubscriptionID]
		if !ok {
			return nil, fmt.Errorf("event %s: %w: %s", event.ID, ErrMissingSubscription, event.SubscriptionID)
		}
		if _, ok := serviceByID[subscription.ServiceID]; !ok {
			return nil, fmt.Errorf("subscription %s: %w: %s", subscription.ID, ErrMissingService, subscription.ServiceID)
		}
		if grouped[event.CustomerID] == nil {
			grouped[event.CustomerID] = make(map[string][]Event)
		}
		grouped[event.CustomerID][event.SubscriptionID] = append(grouped[event.CustomerID][event.SubscriptionID], event)
	}

	customerIDs := make([]string, 0, len(grouped))
	for id := range grouped {
		customerIDs = append(customerIDs, id)
	}
	sort.Strings(customerIDs)

	result := make([]CustomerEvents, 0, len(customerIDs))
	for _, customerID := range customerIDs {
		bySubscription := grouped[customerID]
		subscriptionIDs := make([]string, 0, len(bySubscription))
		for id := range bySubscription {
			subscriptionIDs = append(subscriptionIDs, id)
		}
		sort.Strings(subscriptionIDs)

		entry := CustomerEvents{Customer: customerByID[customerID], Fundings: fundingsByCustomer[customerID]}
		for _, subscriptionID := range subscriptionIDs {
			subscription := subscriptionByID[subscriptionID]
			entry.Subscriptions = append(entry.Subscriptions, SubscriptionEvents{
				Subscription: subscription,
				Service:      serviceByID[subscription.ServiceID],
				Events:       bySubscription[subscriptionID],
			})
		}
		result = append(result, entry)
	}
	return result, nil
}
