package billing

import (
	"errors"
	"testing"
	"time"
)

var everyDay = []int{0, 1, 2, 3, 4, 5, 6, HolidayCareDay}

func hourlyFunding(careHours float64) Funding {
	return Funding{
		ID:              "f-hourly",
		CustomerID:      "c-1",
		SubscriptionID:  "sub-1",
		ThirdPartyPayer: ThirdPartyPayer{ID: "tpp-1", BillingMode: BillingModeDirect},
		Nature:          FundingNatureHourly,
		Frequency:       FundingFrequencyOnce,
		Versions: []FundingVersion{{
			StartDate:                 day(2026, time.January, 1),
			CareDays:                  everyDay,
			CustomerParticipationRate: 10,
			UnitTTCRate:               22,
			CareHours:                 careHours,
		}},
	}
}

func TestLedger_CopyOnWrite(t *testing.T) {
	funding := hourlyFunding(10)
	funding.Frequency = FundingFrequencyMonthly
	base := NewLedger([]Funding{funding})

	event := Event{StartDate: at(2026, time.March, 2, 9, 0), EndDate: at(2026, time.March, 2, 10, 0)}
	history, next := base.MatchingHistory(event, funding)
	if history.Month != "03/2026" || history.CareHours != 0 {
		t.Fatalf("unexpected synthesized history: %+v", history)
	}
	if len(base.History(funding.ID)) != 0 {
		t.Fatalf("base ledger mutated")
	}
	if len(next.History(funding.ID)) != 1 {
		t.Fatalf("expected synthesized entry in returned ledger")
	}

	history.CareHours = 3
	after := next.Record(history)
	if next.History(funding.ID)[0].CareHours != 0 {
		t.Fatalf("record mutated previous ledger")
	}
	if got := after.History(funding.ID); len(got) != 1 || got[0].CareHours != 3 {
		t.Fatalf("record mismatch: %+v", got)
	}
}

func TestHourlyFundingSplit_QuotaMonotonic(t *testing.T) {
	funding := hourlyFunding(5)
	version := funding.Versions[0]
	ledger := NewLedger([]Funding{funding})
	pricing := EventPricing{UnitTTCRate: 22, Nature: ServiceNatureHourly, Service: ServiceVersion{VAT: 10}}
	matched := &MatchedFunding{Funding: funding, Version: version}

	previous := 0.0
	for i := 0; i < 4; i++ {
		start := at(2026, time.January, 5+i, 9, 0)
		event := Event{ID: "evt", Type: EventTypeIntervention, StartDate: start, EndDate: start.Add(2 * time.Hour)}

		var price EventPrice
		var err error
		price, ledger, err = BillEvent(event, pricing, matched, ledger, nil)
		if err != nil {
			t.Fatalf("bill event %d: %v", i, err)
		}
		if !approx(price.Total(), 40) {
			t.Fatalf("event %d: mass not conserved: got=%v want=40", i, price.Total())
		}
		if price.ThirdPartyPayerPrice < 0 || price.CustomerPrice < 0 {
			t.Fatalf("event %d: negative share %+v", i, price)
		}

		consumed := ledger.History(funding.ID)[0].CareHours
		if consumed < previous {
			t.Fatalf("event %d: consumption decreased %v -> %v", i, previous, consumed)
		}
		if consumed > version.CareHours {
			t.Fatalf("event %d: consumption %v exceeds quota %v", i, consumed, version.CareHours)
		}
		previous = consumed
	}
	if previous != 5 {
		t.Fatalf("expected quota fully consumed, got %v", previous)
	}
}

func TestHourlyFundingSplit_ExhaustedQuota(t *testing.T) {
	funding := hourlyFunding(5)
	split := HourlyFundingSplit(
		Event{StartDate: at(2026, time.January, 5, 9, 0), EndDate: at(2026, time.January, 5, 11, 0)},
		funding.Versions[0], funding.ID, 10, 40, FundingHistory{FundingID: funding.ID, CareHours: 6},
	)
	if split.ThirdPartyPayerPrice != 0 || split.CustomerPrice != 40 {
		t.Fatalf("expected full customer billing, got %+v", split)
	}
	if split.History.CareHours != 6 || split.Delta.CareHours != 0 {
		t.Fatalf("history should not grow: %+v", split)
	}
}

func TestFixedFundingSplit(t *testing.T) {
	version := FundingVersion{StartDate: day(2026, time.January, 1), CareDays: everyDay, AmountTTC: 100}

	first := FixedFundingSplit(version, "f-fixed", 10, 50, FundingHistory{FundingID: "f-fixed"})
	if first.ThirdPartyPayerPrice != 50 || first.CustomerPrice != 0 {
		t.Fatalf("first split mismatch: %+v", first)
	}
	if !approx(first.History.AmountTTC, 55) {
		t.Fatalf("first allocation mismatch: %v", first.History.AmountTTC)
	}

	second := FixedFundingSplit(version, "f-fixed", 10, 50, first.History)
	if !approx(second.ThirdPartyPayerPrice, 45/1.1) {
		t.Fatalf("second payer price mismatch: %v", second.ThirdPartyPayerPrice)
	}
	if !approx(second.CustomerPrice+second.ThirdPartyPayerPrice, 50) {
		t.Fatalf("mass not conserved: %+v", second)
	}
	if !approx(second.History.AmountTTC, 100) {
		t.Fatalf("quota should be exhausted: %v", second.History.AmountTTC)
	}

	third := FixedFundingSplit(version, "f-fixed", 10, 50, second.History)
	if !approx(third.ThirdPartyPayerPrice, 0) || !approx(third.CustomerPrice, 50) {
		t.Fatalf("third split mismatch: %+v", third)
	}
}

func TestBillEvent(t *testing.T) {
	event := Event{ID: "evt-1", Type: EventTypeIntervention, StartDate: at(2026, time.January, 4, 9, 0), EndDate: at(2026, time.January, 4, 11, 0)}
	pricing := EventPricing{
		UnitTTCRate: 22,
		Nature:      ServiceNatureHourly,
		Service:     ServiceVersion{Name: "Aide à domicile", VAT: 10},
		Surcharge:   &Surcharge{ID: "s-1", Sunday: 25},
	}

	price, _, err := BillEvent(event, pricing, nil, NewLedger(nil), nil)
	if err != nil {
		t.Fatalf("bill event: %v", err)
	}
	if !approx(price.CustomerPrice, 50) || price.ThirdPartyPayerPrice != 0 {
		t.Fatalf("unfunded sunday price mismatch: %+v", price)
	}
	if len(price.Surcharges) != 1 || price.Surcharges[0].Name != SurchargeSunday {
		t.Fatalf("expected sunday surcharge: %+v", price.Surcharges)
	}

	funding := hourlyFunding(10)
	matched := &MatchedFunding{Funding: funding, Version: funding.Versions[0]}
	price, ledger, err := BillEvent(event, pricing, matched, NewLedger([]Funding{funding}), nil)
	if err != nil {
		t.Fatalf("bill funded event: %v", err)
	}
	if !approx(price.ThirdPartyPayerPrice, 36) || !approx(price.CustomerPrice, 14) {
		t.Fatalf("funded split mismatch: %+v", price)
	}
	if price.History == nil || price.History.CareHours != 2 {
		t.Fatalf("history delta mismatch: %+v", price.History)
	}
	if ledger.History(funding.ID)[0].CareHours != 2 {
		t.Fatalf("ledger not updated: %+v", ledger.History(funding.ID))
	}

	fixed := pricing
	fixed.Nature = ServiceNatureFixed
	price, _, _ = BillEvent(event, fixed, nil, NewLedger(nil), nil)
	if !approx(price.CustomerPrice, 20) || len(price.Surcharges) != 0 {
		t.Fatalf("fixed service price mismatch: %+v", price)
	}

	bad := event
	bad.EndDate = bad.StartDate
	if _, _, err := BillEvent(bad, pricing, nil, NewLedger(nil), nil); !errors.Is(err, ErrInvalidEventInterval) {
		t.Fatalf("expected interval error, got %v", err)
	}

	unknown := funding
	unknown.Nature = "weekly"
	matched = &MatchedFunding{Funding: unknown, Version: unknown.Versions[0]}
	if _, _, err := BillEvent(event, pricing, matched, NewLedger(nil), nil); !errors.Is(err, ErrUnknownFundingNature) {
		t.Fatalf("expected unknown nature error, got %v", err)
	}
}
