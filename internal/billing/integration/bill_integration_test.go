package integration_test

import (
	"context"
	"database/sql"
	"io"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	billingapp "homecare-cloud/internal/billing/application"
	billingrepo "homecare-cloud/internal/billing/infrastructure/postgres"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestBilling_DraftCommitAndVoid(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if err := applyBillingMigrations(db); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	ctx := context.Background()
	companyID := "co-it"
	if err := resetBillingTables(ctx, db, companyID); err != nil {
		t.Fatalf("reset: %v", err)
	}
	if err := seedBilling(ctx, db, companyID); err != nil {
		t.Fatalf("seed: %v", err)
	}

	paris, err := billingapp.DefaultConfig().Location()
	if err != nil {
		t.Fatalf("location: %v", err)
	}
	logger := log.New(io.Discard, "", 0)
	drafts, err := billingapp.NewDraftBillService(
		billingrepo.NewEventSource(db, billingrepo.WithLocation(paris)),
		billingrepo.NewFundingSource(db),
		billingrepo.NewSurchargeSource(db),
		billingapp.WithLogger(logger),
	)
	if err != nil {
		t.Fatalf("draft service: %v", err)
	}
	bills, err := billingapp.NewBillService(billingrepo.NewBillRepository(db), nil, nil, billingapp.DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("bill service: %v", err)
	}

	endDate := time.Date(2026, time.January, 31, 23, 0, 0, 0, paris)
	result, err := drafts.Draft(ctx, billingapp.DraftRequest{CompanyID: companyID, EndDate: endDate})
	if err != nil {
		t.Fatalf("draft: %v", err)
	}
	if len(result) != 1 {
		t.Fatalf("expected one draft, got %d", len(result))
	}
	if len(result[0].ThirdPartyPayerBills) != 1 {
		t.Fatalf("expected payer bill, got %+v", result[0].ThirdPartyPayerBills)
	}

	committed, err := bills.Commit(ctx, billingapp.CommitRequest{CompanyID: companyID, EndDate: endDate, Drafts: result})
	if err != nil {
		t.Fatalf("commit: %v", err)
	}
	if len(committed) != 2 || committed[0].Number != "FACT-012600001" {
		t.Fatalf("unexpected committed bills: %+v", committed)
	}

	var careHours float64
	var nbEvents int
	if err := db.QueryRowContext(ctx, `SELECT care_hours, nb_events FROM funding_histories WHERE funding_id = 'f-it'`).Scan(&careHours, &nbEvents); err != nil {
		t.Fatalf("read history: %v", err)
	}
	if careHours != 3 || nbEvents != 2 {
		t.Fatalf("history mismatch: hours=%v events=%d", careHours, nbEvents)
	}

	again, err := drafts.Draft(ctx, billingapp.DraftRequest{CompanyID: companyID, EndDate: endDate})
	if err != nil {
		t.Fatalf("redraft: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("billed events drafted again: %+v", again)
	}

	voided, err := bills.Void(ctx, committed[0].ID, "duplicate")
	if err != nil {
		t.Fatalf("void: %v", err)
	}
	stored, err := bills.Get(ctx, voided.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.Status != "voided" || stored.VoidReason != "duplicate" {
		t.Fatalf("void not persisted: %+v", stored)
	}
}

func applyBillingMigrations(db *sql.DB) error {
	root := projectRoot()
	files := []string{
		filepath.Join(root, "migrations", "001_billing.sql"),
		filepath.Join(root, "migrations", "002_eventing.sql"),
		filepath.Join(root, "migrations", "003_audit.sql"),
	}
	for _, path := range files {
		content, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if _, err := db.Exec(string(content)); err != nil {
			return err
		}
	}
	return nil
}

func resetBillingTables(ctx context.Context, db *sql.DB, companyID string) error {
	statements := []string{
		"DELETE FROM bills WHERE company_id = $1",
		"DELETE FROM bill_sequences WHERE company_id = $1",
		"DELETE FROM funding_histories WHERE funding_id IN (SELECT id FROM fundings WHERE company_id = $1)",
		"DELETE FROM fundings WHERE company_id = $1",
		"DELETE FROM third_party_payers WHERE company_id = $1",
		"DELETE FROM surcharges WHERE company_id = $1",
		"DELETE FROM events WHERE company_id = $1",
		"DELETE FROM subscriptions WHERE customer_id IN (SELECT id FROM customers WHERE company_id = $1)",
		"DELETE FROM services WHERE company_id = $1",
		"DELETE FROM customers WHERE company_id = $1",
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt, companyID); err != nil {
			return err
		}
	}
	return nil
}

func seedBilling(ctx context.Context, db *sql.DB, companyID string) error {
	statements := []struct {
		query string
		args  []any
	}{
		{`INSERT INTO customers (id, company_id, last_name) VALUES ('c-it', $1, 'Martin')`, []any{companyID}},
		{`INSERT INTO services (id, company_id, nature, versions) VALUES ('svc-it', $1, 'hourly', $2)`,
			[]any{companyID, `[{"start_date":"2026-01-01T00:00:00Z","name":"Aide","vat":10}]`}},
		{`INSERT INTO subscriptions (id, customer_id, service_id, versions) VALUES ('sub-it', 'c-it', 'svc-it', $1)`,
			[]any{`[{"start_date":"2026-01-01T00:00:00Z","unit_ttc_rate":22}]`}},
		{`INSERT INTO third_party_payers (id, company_id, name, billing_mode) VALUES ('tpp-it', $1, 'Département', 'direct')`, []any{companyID}},
		{`INSERT INTO fundings (id, company_id, customer_id, subscription_id, third_party_payer_id, nature, frequency, versions)
VALUES ('f-it', $1, 'c-it', 'sub-it', 'tpp-it', 'hourly', 'once', $2)`,
			[]any{companyID, `[{"start_date":"2026-01-01T00:00:00Z","care_days":[0,1,2,3,4,5,6],"customer_participation_rate":10,"unit_ttc_rate":22,"care_hours":3}]`}},
		{`INSERT INTO events (id, company_id, type, customer_id, subscription_id, start_date, end_date)
VALUES ('e-it-1', $1, 'intervention', 'c-it', 'sub-it', '2026-01-05T09:00:00Z', '2026-01-05T11:00:00Z')`, []any{companyID}},
		{`INSERT INTO events (id, company_id, type, customer_id, subscription_id, start_date, end_date)
VALUES ('e-it-2', $1, 'intervention', 'c-it', 'sub-it', '2026-01-06T09:00:00Z', '2026-01-06T11:00:00Z')`, []any{companyID}},
	}
	for _, stmt := range statements {
		if _, err := db.ExecContext(ctx, stmt.query, stmt.args...); err != nil {
			return err
		}
	}
	return nil
}

func projectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return "."
	}
	return filepath.Clean(filepath.Join(dir, "..", "..", ".."))
}
