package billing

import "math"

// HistoryDelta is the quota a single event consumed from a funding.
type HistoryDelta struct {
	FundingID string        `json:"funding_id"`
	Nature    FundingNature `json:"nature"`
	Month     string        `json:"month,omitempty"`
	CareHours float64       `json:"care_hours,omitempty"`
	AmountTTC float64       `json:"amount_ttc,omitempty"`
}

// FundingSplit is the share of an event price between customer and payer,
// with the funding history after consumption.
type FundingSplit struct {
	CustomerPrice        float64
	ThirdPartyPayerPrice float64
	History              FundingHistory
	Delta                HistoryDelta
}

// ThirdPartyPayerPrice is the excl. tax amount a payer owes for hours of care
// funded at fundingExclTaxes per hour, net of the customer participation.
func ThirdPartyPayerPrice(hours, fundingExclTaxes, customerParticipationRate float64) float64 {
	return hours * fundingExclTaxes * (1 - customerParticipationRate/100)
}

// HourlyFundingSplit splits price (excl. taxes, after surcharge) for a funding
// limited in care hours. The payer is charged for the hours still covered by
// the quota; the ledger grows by exactly those hours.
func HourlyFundingSplit(event Event, version FundingVersion, fundingID string, vat, price float64, history FundingHistory) FundingSplit {
	remaining := math.Max(0, version.CareHours-history.CareHours)
	chargedHours := math.Min(event.Hours(), remaining)

	fundingExclTaxes := ExclTaxes(version.UnitTTCRate, vat)
	payerPrice := ThirdPartyPayerPrice(chargedHours, fundingExclTaxes, version.CustomerParticipationRate)
	payerPrice = math.Min(math.Max(payerPrice, 0), price)

	history.CareHours += chargedHours
	if chargedHours > 0 {
		history.NbEvents++
	}
	return FundingSplit{
		CustomerPrice:        price - payerPrice,
		ThirdPartyPayerPrice: payerPrice,
		History:              history,
		Delta: HistoryDelta{
			FundingID: fundingID,
			Nature:    FundingNatureHourly,
			Month:     history.Month,
			CareHours: chargedHours,
		},
	}
}

// FixedFundingSplit splits price (excl. taxes, after surcharge) for a funding
// limited in amount incl. taxes. The payer absorbs the event up to the
// remaining subsidy.
func FixedFundingSplit(version FundingVersion, fundingID string, vat, price float64, history FundingHistory) FundingSplit {
	remaining := math.Max(0, version.AmountTTC-history.AmountTTC)
	inclTaxesPrice := InclTaxes(price, vat)

	var payerPrice, allocated float64
	switch {
	case remaining <= 0:
	case remaining >= inclTaxesPrice:
		payerPrice = price
		allocated = inclTaxesPrice
	default:
		payerPrice = ExclTaxes(remaining, vat)
		allocated = remaining
	}

	history.AmountTTC += allocated
	if allocated > 0 {
		history.NbEvents++
	}
	return FundingSplit{
		CustomerPrice:        price - payerPrice,
		ThirdPartyPayerPrice: payerPrice,
		History:              history,
		Delta: HistoryDelta{
			FundingID: fundingID,
			Nature:    FundingNatureFixed,
			Month:     history.Month,
			AmountTTC: allocated,
		},
	}
}
