package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	billing "homecare-cloud/internal/billing/domain"
)

// FundingSource loads fundings, payers and funding histories.
type FundingSource struct {
	db *sql.DB
}

// NewFundingSource constructs a funding source.
func NewFundingSource(db *sql.DB) *FundingSource {
	return &FundingSource{db: db}
}

// ListFundings returns the fundings of the given customers.
func (s *FundingSource) ListFundings(ctx context.Context, companyID string, customerIDs []string) ([]billing.Funding, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("funding source: nil db")
	}
	if len(customerIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, customer_id, subscription_id, third_party_payer_id, nature, frequency, versions
FROM fundings
WHERE company_id = $1 AND customer_id = ANY($2)
ORDER BY id ASC`, companyID, customerIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Funding
	for rows.Next() {
		var funding billing.Funding
		var nature, frequency string
		var versions []byte
		if err := rows.Scan(&funding.ID, &funding.CustomerID, &funding.SubscriptionID, &funding.ThirdPartyPayer.ID,
			&nature, &frequency, &versions); err != nil {
			return nil, err
		}
		funding.Nature = billing.FundingNature(nature)
		funding.Frequency = billing.FundingFrequency(frequency)
		if err := decodeJSON(versions, &funding.Versions); err != nil {
			return nil, fmt.Errorf("funding %s versions: %w", funding.ID, err)
		}
		result = append(result, funding)
	}
	return result, rows.Err()
}

// ListThirdPartyPayers returns the payers of a company.
func (s *FundingSource) ListThirdPartyPayers(ctx context.Context, companyID string) ([]billing.ThirdPartyPayer, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("funding source: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, company_id, name, billing_mode
FROM third_party_payers
WHERE company_id = $1
ORDER BY id ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.ThirdPartyPayer
	for rows.Next() {
		var payer billing.ThirdPartyPayer
		var mode string
		if err := rows.Scan(&payer.ID, &payer.CompanyID, &payer.Name, &mode); err != nil {
			return nil, err
		}
		payer.BillingMode = billing.BillingMode(mode)
		result = append(result, payer)
	}
	return result, rows.Err()
}

// ListFundingHistories returns the persisted ledger of fundings.
func (s *FundingSource) ListFundingHistories(ctx context.Context, fundingIDs []string) ([]billing.FundingHistory, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("funding source: nil db")
	}
	if len(fundingIDs) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT funding_id, month, care_hours, amount_ttc, nb_events
FROM funding_histories
WHERE funding_id = ANY($1)
ORDER BY funding_id ASC, month ASC`, fundingIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.FundingHistory
	for rows.Next() {
		var history billing.FundingHistory
		if err := rows.Scan(&history.FundingID, &history.Month, &history.CareHours, &history.AmountTTC, &history.NbEvents); err != nil {
			return nil, err
		}
		result = append(result, history)
	}
	return result, rows.Err()
}
