package billing

import "time"

// FundingHistory is the cumulative consumption of a funding quota. Month is
// "MM/YYYY" for monthly fundings and empty for one-off fundings.
type FundingHistory struct {
	FundingID string  `json:"funding_id"`
	Month     string  `json:"month,omitempty"`
	CareHours float64 `json:"care_hours"`
	AmountTTC float64 `json:"amount_ttc"`
	NbEvents  int     `json:"nb_events"`
}

// HistoryMonth returns the ledger key of a monthly funding for date.
func HistoryMonth(date time.Time) string { return date.Format("01/2006") }

// Ledger is the working copy of funding histories during a draft run.
// Methods never mutate the receiver; they return an updated ledger.
type Ledger struct {
	entries map[string][]FundingHistory
}

// NewLedger seeds a ledger from the persisted history attached to fundings.
func NewLedger(fundings []Funding) Ledger {
	entries := make(map[string][]FundingHistory, len(fundings))
	for _, funding := range fundings {
		entries[funding.ID] = append([]FundingHistory(nil), funding.History...)
	}
	return Ledger{entries: entries}
}

// History returns a copy of the entries of a funding.
func (l Ledger) History(fundingID string) []FundingHistory {
	return append([]FundingHistory(nil), l.entries[fundingID]...)
}

// MatchingHistory returns the entry an event consumes from. Missing entries
// are synthesized at zero and appended to the returned ledger so that later
// events of the same run see them.
func (l Ledger) MatchingHistory(event Event, funding Funding) (FundingHistory, Ledger) {
	month := ""
	if funding.Frequency == FundingFrequencyMonthly {
		month = HistoryMonth(event.StartDate)
	}
	for _, history := range l.entries[funding.ID] {
		if funding.Frequency != FundingFrequencyMonthly || history.Month == month {
			return history, l
		}
	}
	history := FundingHistory{FundingID: funding.ID, Month: month}
	return history, l.Record(history)
}

// Record stores history in the returned ledger, replacing the entry of the
// same funding and month.
func (l Ledger) Record(history FundingHistory) Ledger {
	entries := make(map[string][]FundingHistory, len(l.entries)+1)
	for id, list := range l.entries {
		entries[id] = list
	}
	current := l.entries[history.FundingID]
	updated := make([]FundingHistory, 0, len(current)+1)
	replaced := false
	for _, existing := range current {
		if existing.Month == history.Month && !replaced {
			updated = append(updated, history)
			replaced = true
			continue
		}
		updated = append(updated, existing)
	}
	if !replaced {
		updated = append(updated, history)
	}
	entries[history.FundingID] = updated
	return Ledger{entries: entries}
}
