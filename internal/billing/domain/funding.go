package billing

import (
	"slices"
	"time"
)

// HolidayCareDay is the care day index standing for public holidays.
const HolidayCareDay = 7

// CareDay returns the ISO care day index of t: Monday is 0, Sunday is 6.
func CareDay(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// BillingMode tells whether the company invoices a third-party payer.
type BillingMode string

const (
	BillingModeDirect   BillingMode = "direct"
	BillingModeIndirect BillingMode = "indirect"
)

// ThirdPartyPayer is an external funder of care costs.
type ThirdPartyPayer struct {
	ID          string      `json:"id"`
	CompanyID   string      `json:"company_id,omitempty"`
	Name        string      `json:"name"`
	BillingMode BillingMode `json:"billing_mode"`
}

// FundingNature tells which quota a funding consumes.
type FundingNature string

const (
	FundingNatureHourly FundingNature = "hourly"
	FundingNatureFixed  FundingNature = "fixed"
)

// FundingFrequency scopes the funding quota.
type FundingFrequency string

const (
	FundingFrequencyOnce    FundingFrequency = "once"
	FundingFrequencyMonthly FundingFrequency = "monthly"
)

// FundingVersion is one entitlement period of a funding.
type FundingVersion struct {
	StartDate                 time.Time  `json:"start_date"`
	EndDate                   *time.Time `json:"end_date,omitempty"`
	CareDays                  []int      `json:"care_days"`
	CustomerParticipationRate float64    `json:"customer_participation_rate"`
	UnitTTCRate               float64    `json:"unit_ttc_rate,omitempty"`
	CareHours                 float64    `json:"care_hours,omitempty"`
	AmountTTC                 float64    `json:"amount_ttc,omitempty"`
	FolderNumber              string     `json:"folder_number,omitempty"`
}

// ActiveOn reports whether the version covers date.
func (v FundingVersion) ActiveOn(date time.Time) bool {
	if v.StartDate.After(date) {
		return false
	}
	return v.EndDate == nil || v.EndDate.After(date)
}

// CoversCareDay reports whether the version funds care on date.
func (v FundingVersion) CoversCareDay(date time.Time, calendar HolidayCalendar) bool {
	if holidays(calendar).IsHoliday(date) {
		return slices.Contains(v.CareDays, HolidayCareDay)
	}
	return slices.Contains(v.CareDays, CareDay(date))
}

// Funding is a customer's entitlement from a third-party payer.
type Funding struct {
	ID              string           `json:"id"`
	CustomerID      string           `json:"customer_id"`
	SubscriptionID  string           `json:"subscription_id"`
	ThirdPartyPayer ThirdPartyPayer  `json:"third_party_payer"`
	Nature          FundingNature    `json:"nature"`
	Frequency       FundingFrequency `json:"frequency"`
	Versions        []FundingVersion `json:"versions"`
	History         []FundingHistory `json:"history,omitempty"`
}

// VersionAt returns the version in force at date.
func (f Funding) VersionAt(date time.Time) (FundingVersion, bool) {
	version, err := ResolveVersion(f.Versions, date, func(v FundingVersion) time.Time { return v.StartDate })
	if err != nil || !version.ActiveOn(date) {
		return FundingVersion{}, false
	}
	return version, true
}

// MatchedFunding is a funding together with the version applying to an event.
type MatchedFunding struct {
	Funding Funding
	Version FundingVersion
}

// MatchFunding selects the funding applying to an event starting at
// eventDate. On public holidays only fundings covering the holiday care day
// match. Returns nil when no funding applies.
func MatchFunding(eventDate time.Time, fundings []Funding, calendar HolidayCalendar) *MatchedFunding {
	for _, funding := range fundings {
		version, ok := funding.VersionAt(eventDate)
		if !ok {
			continue
		}
		if version.CoversCareDay(eventDate, calendar) {
			return &MatchedFunding{Funding: funding, Version: version}
		}
	}
	return nil
}

// PopulateFundings attaches third-party payers and the persisted ledger to
// fundings. Fundings of unknown or indirectly billed payers are dropped.
// Monthly fundings get a zero entry for the month of endDate when none exists.
func PopulateFundings(fundings []Funding, payers []ThirdPartyPayer, histories []FundingHistory, endDate time.Time) []Funding {
	payerByID := make(map[string]ThirdPartyPayer, len(payers))
	for _, payer := range payers {
		payerByID[payer.ID] = payer
	}

	result := make([]Funding, 0, len(fundings))
	for _, funding := range fundings {
		payer, ok := payerByID[funding.ThirdPartyPayer.ID]
		if !ok || payer.BillingMode != BillingModeDirect {
			continue
		}
		funding.ThirdPartyPayer = payer

		var own []FundingHistory
		for _, history := range histories {
			if history.FundingID == funding.ID {
				own = append(own, history)
			}
		}
		if funding.Frequency == FundingFrequencyMonthly {
			month := HistoryMonth(endDate)
			if !slices.ContainsFunc(own, func(h FundingHistory) bool { return h.Month == month }) {
				own = append(own, FundingHistory{FundingID: funding.ID, Month: month})
			}
		} else {
			if len(own) == 0 {
				own = []FundingHistory{{FundingID: funding.ID}}
			}
			own = own[:1]
		}
		funding.History = own
		result = append(result, funding)
	}
	return result
}
