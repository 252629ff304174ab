package auth

import (
	"context"
	"database/sql"
	"errors"
)

// CustomerCompanyChecker validates customer ownership.
type CustomerCompanyChecker interface {
	EnsureCustomerCompany(ctx context.Context, companyID, customerID string) error
}

// CustomerChecker checks customer ownership against the customers table.
type CustomerChecker struct {
	db *sql.DB
}

// NewCustomerChecker constructs a CustomerChecker.
func NewCustomerChecker(db *sql.DB) *CustomerChecker {
	if db == nil {
		return nil
	}
	return &CustomerChecker{db: db}
}

// EnsureCustomerCompany verifies the customer belongs to the company.
func (c *CustomerChecker) EnsureCustomerCompany(ctx context.Context, companyID, customerID string) error {
	if c == nil || c.db == nil {
		return nil
	}
	if companyID == "" || customerID == "" {
		return nil
	}
	var owner string
	err := c.db.QueryRowContext(ctx, `SELECT company_id FROM customers WHERE id = $1`, customerID).Scan(&owner)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if owner != companyID {
		return ErrCompanyMismatch
	}
	return nil
}
