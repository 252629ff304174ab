package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	billing "homecare-cloud/internal/billing/domain"
)

// SurchargeSource loads surcharge definitions stored as JSONB.
type SurchargeSource struct {
	db *sql.DB
}

// NewSurchargeSource constructs a surcharge source.
func NewSurchargeSource(db *sql.DB) *SurchargeSource {
	return &SurchargeSource{db: db}
}

// ListSurcharges returns the surcharges of a company.
func (s *SurchargeSource) ListSurcharges(ctx context.Context, companyID string) ([]billing.Surcharge, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("surcharge source: nil db")
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, definition
FROM surcharges
WHERE company_id = $1
ORDER BY id ASC`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Surcharge
	for rows.Next() {
		var id string
		var definition []byte
		if err := rows.Scan(&id, &definition); err != nil {
			return nil, err
		}
		var surcharge billing.Surcharge
		if err := decodeJSON(definition, &surcharge); err != nil {
			return nil, fmt.Errorf("surcharge %s: %w", id, err)
		}
		surcharge.ID = id
		surcharge.CompanyID = companyID
		result = append(result, surcharge)
	}
	return result, rows.Err()
}
