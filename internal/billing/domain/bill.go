package billing

import (
	"fmt"
	"sort"
	"time"
)

const (
	BillStatusCommitted = "committed"
	BillStatusVoided    = "voided"
)

// Bill is a committed customer or third-party payer bill.
type Bill struct {
	ID                string     `json:"id"`
	Number            string     `json:"number"`
	CompanyID         string     `json:"company_id"`
	CustomerID        string     `json:"customer_id"`
	ThirdPartyPayerID string     `json:"third_party_payer_id,omitempty"`
	EndDate           time.Time  `json:"end_date"`
	Status            string     `json:"status"`
	Lines             []BillLine `json:"lines"`
	NetInclTaxes      float64    `json:"net_incl_taxes"`
	SnapshotHash      string     `json:"snapshot_hash"`
	VoidReason        string     `json:"void_reason,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	VoidedAt          time.Time  `json:"voided_at,omitempty"`
}

// ForThirdPartyPayer reports whether the bill is addressed to a payer.
func (b Bill) ForThirdPartyPayer() bool { return b.ThirdPartyPayerID != "" }

// EventIDs returns the ids of every event billed on the bill.
func (b Bill) EventIDs() []string {
	var ids []string
	for _, line := range b.Lines {
		for _, event := range line.EventsList {
			ids = append(ids, event.EventID)
		}
	}
	return ids
}

// BillsFromDraft splits a draft into one customer bill (when the customer owes
// something) and one bill per third-party payer. Ids, numbers and hashes are
// assigned at commit time.
func BillsFromDraft(companyID string, draft DraftBill) []Bill {
	var bills []Bill
	if len(draft.CustomerBills.Bills) > 0 {
		bills = append(bills, Bill{
			CompanyID:    companyID,
			CustomerID:   draft.Customer.ID,
			EndDate:      draft.EndDate,
			Status:       BillStatusCommitted,
			Lines:        draft.CustomerBills.Bills,
			NetInclTaxes: draft.CustomerBills.Total,
		})
	}
	for _, payer := range draft.ThirdPartyPayerBills {
		if len(payer.Bills) == 0 {
			continue
		}
		bills = append(bills, Bill{
			CompanyID:         companyID,
			CustomerID:        draft.Customer.ID,
			ThirdPartyPayerID: payer.ThirdPartyPayer.ID,
			EndDate:           draft.EndDate,
			Status:            BillStatusCommitted,
			Lines:             payer.Bills,
			NetInclTaxes:      payer.Total,
		})
	}
	return bills
}

// BillNumber formats the number of the seq-th bill of the month of date.
func BillNumber(prefix string, date time.Time, seq int) string {
	if prefix == "" {
		prefix = "FACT"
	}
	return fmt.Sprintf("%s-%s%05d", prefix, date.Format("0106"), seq)
}

// HistoryDeltas sums the funding consumption recorded on the payer lines of
// bills, one entry per funding and month.
func HistoryDeltas(bills []Bill) []FundingHistory {
	type key struct{ fundingID, month string }
	totals := make(map[key]*FundingHistory)
	var order []key
	for _, bill := range bills {
		if !bill.ForThirdPartyPayer() {
			continue
		}
		for _, line := range bill.Lines {
			for _, event := range line.EventsList {
				if event.History == nil {
					continue
				}
				k := key{event.History.FundingID, event.History.Month}
				entry, ok := totals[k]
				if !ok {
					entry = &FundingHistory{FundingID: k.fundingID, Month: k.month}
					totals[k] = entry
					order = append(order, k)
				}
				entry.CareHours += event.History.CareHours
				entry.AmountTTC += event.History.AmountTTC
				entry.NbEvents++
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		if order[i].fundingID != order[j].fundingID {
			return order[i].fundingID < order[j].fundingID
		}
		return order[i].month < order[j].month
	})
	result := make([]FundingHistory, 0, len(order))
	for _, k := range order {
		result = append(result, *totals[k])
	}
	return result
}
