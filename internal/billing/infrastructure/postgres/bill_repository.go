package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"homecare-cloud/internal/billing/application"
	billing "homecare-cloud/internal/billing/domain"
)

const billColumns = `id, number, company_id, customer_id, third_party_payer_id, end_date, status,
	net_incl_taxes, lines, snapshot_hash, void_reason, created_at, updated_at, voided_at`

// BillRepository persists committed bills.
type BillRepository struct {
	db *sql.DB
}

// NewBillRepository constructs a repository.
func NewBillRepository(db *sql.DB) *BillRepository {
	return &BillRepository{db: db}
}

// SaveCommit numbers and writes bills, funding history deltas and billed
// flags in one transaction. A failed commit releases its reserved numbers.
func (r *BillRepository) SaveCommit(ctx context.Context, batch application.CommitBatch) error {
	if r == nil || r.db == nil {
		return errors.New("bill repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := saveCommit(ctx, tx, batch); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func saveCommit(ctx context.Context, tx *sql.Tx, batch application.CommitBatch) error {
	for i := range batch.Bills {
		bill := &batch.Bills[i]
		if batch.Seal != nil {
			seq, err := nextSequence(ctx, tx, batch.CompanyID, batch.SequenceMonth)
			if err != nil {
				return fmt.Errorf("reserve bill number: %w", err)
			}
			if err := batch.Seal(bill, seq); err != nil {
				return err
			}
		}
		lines, err := json.Marshal(bill.Lines)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO bills (
	id, number, company_id, customer_id, third_party_payer_id, end_date, status,
	net_incl_taxes, lines, snapshot_hash, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`,
			bill.ID, bill.Number, bill.CompanyID, bill.CustomerID, nullString(bill.ThirdPartyPayerID), bill.EndDate, bill.Status,
			bill.NetInclTaxes, lines, bill.SnapshotHash, bill.CreatedAt, bill.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert bill %s: %w", bill.Number, err)
		}
	}
	for _, delta := range batch.HistoryDeltas {
		_, err := tx.ExecContext(ctx, `
INSERT INTO funding_histories (funding_id, month, care_hours, amount_ttc, nb_events)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (funding_id, month)
DO UPDATE SET
	care_hours = funding_histories.care_hours + EXCLUDED.care_hours,
	amount_ttc = funding_histories.amount_ttc + EXCLUDED.amount_ttc,
	nb_events = funding_histories.nb_events + EXCLUDED.nb_events`,
			delta.FundingID, delta.Month, delta.CareHours, delta.AmountTTC, delta.NbEvents)
		if err != nil {
			return fmt.Errorf("upsert funding history %s: %w", delta.FundingID, err)
		}
	}
	for _, id := range batch.BilledEventIDs {
		result, err := tx.ExecContext(ctx, `
UPDATE events
SET is_billed = true
WHERE id = $1 AND is_billed = false`, id)
		if err != nil {
			return err
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("event %s already billed", id)
		}
	}
	return nil
}

// nextSequence reserves the next bill number of the month. The row stays
// locked until tx ends.
func nextSequence(ctx context.Context, tx *sql.Tx, companyID, month string) (int, error) {
	var seq int
	err := tx.QueryRowContext(ctx, `
INSERT INTO bill_sequences (company_id, month, seq)
VALUES ($1, $2, 1)
ON CONFLICT (company_id, month)
DO UPDATE SET seq = bill_sequences.seq + 1
RETURNING seq`, companyID, month).Scan(&seq)
	return seq, err
}

// GetByID fetches a bill. Returns nil when missing.
func (r *BillRepository) GetByID(ctx context.Context, id string) (*billing.Bill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("bill repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `SELECT `+billColumns+`
FROM bills
WHERE id = $1
LIMIT 1`, id)
	return scanBill(row)
}

// ListByCustomer lists the bills of a customer, newest first.
func (r *BillRepository) ListByCustomer(ctx context.Context, companyID, customerID string) ([]billing.Bill, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("bill repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+billColumns+`
FROM bills
WHERE company_id = $1 AND customer_id = $2
ORDER BY end_date DESC, number DESC`, companyID, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []billing.Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, err
		}
		if bill != nil {
			result = append(result, *bill)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// MarkVoided marks a bill as voided.
func (r *BillRepository) MarkVoided(ctx context.Context, id, reason string, voidedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("bill repo: nil db")
	}
	result, err := r.db.ExecContext(ctx, `
UPDATE bills
SET status = $1, void_reason = $2, voided_at = $3, updated_at = $3
WHERE id = $4`, billing.BillStatusVoided, reason, voidedAt, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return billing.ErrBillNotFound
	}
	return nil
}

func scanBill(scanner rowScanner) (*billing.Bill, error) {
	var (
		bill       billing.Bill
		payerID    sql.NullString
		lines      []byte
		voidReason sql.NullString
		voidedAt   sql.NullTime
	)
	err := scanner.Scan(&bill.ID, &bill.Number, &bill.CompanyID, &bill.CustomerID, &payerID, &bill.EndDate, &bill.Status,
		&bill.NetInclTaxes, &lines, &bill.SnapshotHash, &voidReason, &bill.CreatedAt, &bill.UpdatedAt, &voidedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := decodeJSON(lines, &bill.Lines); err != nil {
		return nil, fmt.Errorf("bill %s lines: %w", bill.ID, err)
	}
	bill.ThirdPartyPayerID = payerID.String
	bill.VoidReason = voidReason.String
	bill.EndDate = bill.EndDate.UTC()
	bill.CreatedAt = bill.CreatedAt.UTC()
	bill.UpdatedAt = bill.UpdatedAt.UTC()
	if voidedAt.Valid {
		bill.VoidedAt = voidedAt.Time.UTC()
	}
	return &bill, nil
}

func nullString(value string) sql.NullString {
	return sql.NullString{String: value, Valid: value != ""}
}

var _ application.BillRepository = (*BillRepository)(nil)
