package billing

import "fmt"

// EventPricing is the resolved pricing context of an event.
type EventPricing struct {
	UnitTTCRate float64
	Nature      ServiceNature
	Service     ServiceVersion
	Surcharge   *Surcharge
}

// EventPrice is the per-event split between customer and payer, excl. taxes.
type EventPrice struct {
	CustomerPrice        float64            `json:"customer_price"`
	ThirdPartyPayerPrice float64            `json:"third_party_payer_price"`
	Surcharges           []AppliedSurcharge `json:"surcharges,omitempty"`
	Funding              *MatchedFunding    `json:"-"`
	History              *HistoryDelta      `json:"history,omitempty"`
}

// Total returns the full excl. tax price of the event.
func (p EventPrice) Total() float64 { return p.CustomerPrice + p.ThirdPartyPayerPrice }

// BillEvent prices an event and splits it with the matched funding, if any.
// The returned ledger carries the consumption of the event.
func BillEvent(event Event, pricing EventPricing, funding *MatchedFunding, ledger Ledger, calendar HolidayCalendar) (EventPrice, Ledger, error) {
	if err := event.Validate(); err != nil {
		return EventPrice{}, ledger, fmt.Errorf("event %s: %w", event.ID, err)
	}

	unitExclTaxes := ExclTaxes(pricing.UnitTTCRate, pricing.Service.VAT)
	price := unitExclTaxes * event.Hours()
	if pricing.Nature == ServiceNatureFixed {
		price = unitExclTaxes
	}

	result := EventPrice{}
	if pricing.Surcharge != nil && pricing.Nature == ServiceNatureHourly {
		price, result.Surcharges = SurchargedPrice(event, pricing.Surcharge, price, calendar)
	}

	if funding == nil {
		result.CustomerPrice = price
		return result, ledger, nil
	}

	history, ledger := ledger.MatchingHistory(event, funding.Funding)
	var split FundingSplit
	switch funding.Funding.Nature {
	case FundingNatureHourly:
		split = HourlyFundingSplit(event, funding.Version, funding.Funding.ID, pricing.Service.VAT, price, history)
	case FundingNatureFixed:
		split = FixedFundingSplit(funding.Version, funding.Funding.ID, pricing.Service.VAT, price, history)
	default:
		return EventPrice{}, ledger, fmt.Errorf("funding %s: %w", funding.Funding.ID, ErrUnknownFundingNature)
	}

	result.CustomerPrice = split.CustomerPrice
	result.ThirdPartyPayerPrice = split.ThirdPartyPayerPrice
	result.Funding = funding
	delta := split.Delta
	result.History = &delta
	return result, ledger.Record(split.History), nil
}
