package billing

import (
	"testing"
	"time"
)

func TestBillsFromDraft(t *testing.T) {
	events, customers, subscriptions, services, fundings := draftFixture()
	joined, err := JoinCustomerEvents(events, customers, subscriptions, services, fundings)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	drafts, err := AssembleDraftBills(DraftRun{Period: BillingPeriod{EndDate: day(2026, time.February, 1)}, Customers: joined})
	if err != nil {
		t.Fatalf("assemble: %v", err)
	}

	bills := BillsFromDraft("co-1", drafts[0])
	if len(bills) != 2 {
		t.Fatalf("expected customer and payer bills, got %d", len(bills))
	}
	if bills[0].ForThirdPartyPayer() || !bills[1].ForThirdPartyPayer() {
		t.Fatalf("unexpected bill order: %+v", bills)
	}
	if got := bills[0].EventIDs(); len(got) != 2 {
		t.Fatalf("expected 2 billed events, got %v", got)
	}

	deltas := HistoryDeltas(bills)
	if len(deltas) != 1 {
		t.Fatalf("expected 1 history delta, got %d", len(deltas))
	}
	if deltas[0].FundingID != "f-hourly" || deltas[0].CareHours != 3 || deltas[0].NbEvents != 2 {
		t.Fatalf("delta mismatch: %+v", deltas[0])
	}
}

func TestBillNumber(t *testing.T) {
	if got := BillNumber("", day(2026, time.March, 31), 42); got != "FACT-032600042" {
		t.Fatalf("bill number mismatch: %s", got)
	}
	if got := BillNumber("AV", day(2026, time.December, 1), 1); got != "AV-122600001" {
		t.Fatalf("bill number mismatch: %s", got)
	}
}
