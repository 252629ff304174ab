package billing

import (
	"errors"
	"testing"
	"time"
)

func draftFixture() ([]Event, []Customer, []Subscription, []Service, []Funding) {
	customers := []Customer{
		{ID: "c-1", CompanyID: "co-1", LastName: "Martin"},
		{ID: "c-2", CompanyID: "co-1", LastName: "Bernard"},
	}
	services := []Service{{
		ID:        "svc-1",
		CompanyID: "co-1",
		Nature:    ServiceNatureHourly,
		Versions:  []ServiceVersion{{StartDate: day(2026, time.January, 1), Name: "Aide à domicile", VAT: 10}},
	}}
	subscriptions := []Subscription{
		{ID: "sub-1", CustomerID: "c-1", ServiceID: "svc-1", Versions: []SubscriptionVersion{{StartDate: day(2026, time.January, 1), UnitTTCRate: 22}}},
		{ID: "sub-2", CustomerID: "c-2", ServiceID: "svc-1", Versions: []SubscriptionVersion{{StartDate: day(2026, time.January, 1), UnitTTCRate: 22}}},
	}
	fundings := []Funding{hourlyFunding(3)}
	fundings[0].History = []FundingHistory{{FundingID: fundings[0].ID}}

	events := []Event{
		// Listed out of order on purpose.
		{ID: "e-2", Type: EventTypeIntervention, CustomerID: "c-1", SubscriptionID: "sub-1", StartDate: at(2026, time.January, 6, 9, 0), EndDate: at(2026, time.January, 6, 11, 0)},
		{ID: "e-1", Type: EventTypeIntervention, CustomerID: "c-1", SubscriptionID: "sub-1", StartDate: at(2026, time.January, 5, 9, 0), EndDate: at(2026, time.January, 5, 11, 0)},
		{ID: "e-3", Type: EventTypeAbsence, CustomerID: "c-1", SubscriptionID: "sub-1", StartDate: at(2026, time.January, 7, 9, 0), EndDate: at(2026, time.January, 7, 11, 0)},
		{ID: "e-4", Type: EventTypeIntervention, CustomerID: "c-1", SubscriptionID: "sub-1", IsBilled: true, StartDate: at(2026, time.January, 8, 9, 0), EndDate: at(2026, time.January, 8, 11, 0)},
		{ID: "e-5", Type: EventTypeIntervention, CustomerID: "c-2", SubscriptionID: "sub-2", Cancel: &Cancellation{Condition: "no_show"}, StartDate: at(2026, time.January, 9, 9, 0), EndDate: at(2026, time.January, 9, 11, 0)},
	}
	return events, customers, subscriptions, services, fundings
}

func TestAssembleDraftBills(t *testing.T) {
	events, customers, subscriptions, services, fundings := draftFixture()
	joined, err := JoinCustomerEvents(events, customers, subscriptions, services, fundings)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if len(joined) != 2 {
		t.Fatalf("expected 2 customers, got %d", len(joined))
	}

	bills, err := AssembleDraftBills(DraftRun{
		Period:      BillingPeriod{EndDate: day(2026, time.February, 1)},
		Customers:   joined,
		MaxParallel: 2,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	// c-2 only has a cancelled visit.
	if len(bills) != 1 {
		t.Fatalf("expected 1 draft bill, got %d", len(bills))
	}
	bill := bills[0]
	if bill.Customer.ID != "c-1" {
		t.Fatalf("customer mismatch: %s", bill.Customer.ID)
	}

	// e-1: 40 excl, 2h funded -> payer 36, customer 4.
	// e-2: 40 excl, 1h left -> payer 18, customer 22.
	if len(bill.CustomerBills.Bills) != 1 {
		t.Fatalf("expected 1 customer line, got %d", len(bill.CustomerBills.Bills))
	}
	line := bill.CustomerBills.Bills[0]
	if !approx(line.ExclTaxes, 26) || !approx(line.InclTaxes, 28.6) {
		t.Fatalf("customer line mismatch: excl=%v incl=%v", line.ExclTaxes, line.InclTaxes)
	}
	if len(line.EventsList) != 2 || line.EventsList[0].EventID != "e-1" {
		t.Fatalf("customer events mismatch: %+v", line.EventsList)
	}
	if !approx(bill.CustomerBills.Total, 28.6) {
		t.Fatalf("customer total mismatch: %v", bill.CustomerBills.Total)
	}

	if len(bill.ThirdPartyPayerBills) != 1 {
		t.Fatalf("expected 1 payer bill, got %d", len(bill.ThirdPartyPayerBills))
	}
	payer := bill.ThirdPartyPayerBills[0]
	if payer.ThirdPartyPayer.ID != "tpp-1" || len(payer.Bills) != 1 {
		t.Fatalf("payer bill mismatch: %+v", payer)
	}
	if !approx(payer.Bills[0].ExclTaxes, 54) || !approx(payer.Total, 59.4) {
		t.Fatalf("payer amounts mismatch: excl=%v total=%v", payer.Bills[0].ExclTaxes, payer.Total)
	}
	if !approx(payer.Bills[0].Hours, 3) {
		t.Fatalf("payer hours mismatch: %v", payer.Bills[0].Hours)
	}
	if payer.Bills[0].FundingID != "f-hourly" {
		t.Fatalf("funding id mismatch: %s", payer.Bills[0].FundingID)
	}
}

func TestAssembleDraftBills_Deterministic(t *testing.T) {
	events, customers, subscriptions, services, fundings := draftFixture()
	joined, err := JoinCustomerEvents(events, customers, subscriptions, services, fundings)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	run := DraftRun{Period: BillingPeriod{EndDate: day(2026, time.February, 1)}, Customers: joined}

	first, err := AssembleDraftBills(run)
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := AssembleDraftBills(run)
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if first[0].CustomerBills.Total != second[0].CustomerBills.Total ||
		first[0].ThirdPartyPayerBills[0].Total != second[0].ThirdPartyPayerBills[0].Total {
		t.Fatalf("runs differ: %+v vs %+v", first, second)
	}
	// The persisted ledger must not be consumed by a draft run.
	if joined[0].Fundings[0].History[0].CareHours != 0 {
		t.Fatalf("input history mutated: %+v", joined[0].Fundings[0].History)
	}
}

func TestAssembleDraftBills_PeriodFilter(t *testing.T) {
	events, customers, subscriptions, services, fundings := draftFixture()
	joined, _ := JoinCustomerEvents(events, customers, subscriptions, services, fundings)

	bills, err := AssembleDraftBills(DraftRun{
		Period:    BillingPeriod{StartDate: day(2026, time.January, 6), EndDate: day(2026, time.February, 1)},
		Customers: joined,
	})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}
	if len(bills) != 1 {
		t.Fatalf("expected 1 bill, got %d", len(bills))
	}
	// Only e-2 is in range; it gets the first 2 funded hours.
	if !approx(bills[0].CustomerBills.Total, InclTaxes(4, 10)) {
		t.Fatalf("customer total mismatch: %v", bills[0].CustomerBills.Total)
	}

	if _, err := AssembleDraftBills(DraftRun{}); !errors.Is(err, ErrInvalidPeriod) {
		t.Fatalf("expected invalid period, got %v", err)
	}
}

func TestAssembleDraftBills_MissingVersionFails(t *testing.T) {
	events, customers, subscriptions, services, fundings := draftFixture()
	subscriptions[0].Versions[0].StartDate = day(2026, time.March, 1)
	joined, _ := JoinCustomerEvents(events, customers, subscriptions, services, fundings)

	_, err := AssembleDraftBills(DraftRun{Period: BillingPeriod{EndDate: day(2026, time.February, 1)}, Customers: joined})
	if !errors.Is(err, ErrNoMatchingVersion) {
		t.Fatalf("expected missing version error, got %v", err)
	}
}

func TestJoinCustomerEvents_MissingReferences(t *testing.T) {
	events, customers, subscriptions, services, fundings := draftFixture()

	if _, err := JoinCustomerEvents(events, customers[1:], subscriptions, services, fundings); !errors.Is(err, ErrMissingCustomer) {
		t.Fatalf("expected missing customer, got %v", err)
	}
	if _, err := JoinCustomerEvents(events, customers, subscriptions[:1], services, fundings); !errors.Is(err, ErrMissingSubscription) {
		t.Fatalf("expected missing subscription, got %v", err)
	}
	if _, err := JoinCustomerEvents(events, customers, subscriptions, nil, fundings); !errors.Is(err, ErrMissingService) {
		t.Fatalf("expected missing service, got %v", err)
	}
}
