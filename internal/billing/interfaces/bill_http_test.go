package interfaces

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	_ "time/tzdata"

	"homecare-cloud/internal/audit"
	"homecare-cloud/internal/auth"
	billingapp "homecare-cloud/internal/billing/application"
	billing "homecare-cloud/internal/billing/domain"
	"homecare-cloud/internal/billing/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type recordingAudit struct {
	entries []audit.Entry
}

func (a *recordingAudit) Log(ctx context.Context, entry audit.Entry) error {
	a.entries = append(a.entries, entry)
	return nil
}

type staticChecker struct {
	owner map[string]string
}

func (c staticChecker) EnsureCustomerCompany(ctx context.Context, companyID, customerID string) error {
	owner, ok := c.owner[customerID]
	if !ok {
		return auth.ErrNotFound
	}
	if owner != companyID {
		return auth.ErrCompanyMismatch
	}
	return nil
}

func newTestHandler(t *testing.T) (*BillHandler, *recordingAudit) {
	t.Helper()
	start := time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC)
	store := memory.NewStore()
	store.AddCustomers(billing.Customer{ID: "c-1", CompanyID: "co-1", LastName: "Martin"})
	store.AddServices(billing.Service{
		ID:        "svc-1",
		CompanyID: "co-1",
		Nature:    billing.ServiceNatureHourly,
		Versions:  []billing.ServiceVersion{{StartDate: start, Name: "Aide à domicile", VAT: 10}},
	})
	store.AddSubscriptions(billing.Subscription{
		ID:         "sub-1",
		CustomerID: "c-1",
		ServiceID:  "svc-1",
		Versions:   []billing.SubscriptionVersion{{StartDate: start, UnitTTCRate: 22}},
	})
	store.AddEvents(billing.Event{
		ID:             "e-1",
		CompanyID:      "co-1",
		Type:           billing.EventTypeIntervention,
		CustomerID:     "c-1",
		SubscriptionID: "sub-1",
		AuxiliaryID:    "aux-1",
		StartDate:      time.Date(2026, time.January, 5, 9, 0, 0, 0, time.UTC),
		EndDate:        time.Date(2026, time.January, 5, 11, 0, 0, 0, time.UTC),
	})

	logger := log.New(io.Discard, "", 0)
	drafts, err := billingapp.NewDraftBillService(store, store, store, billingapp.WithLogger(logger))
	if err != nil {
		t.Fatalf("draft service: %v", err)
	}
	bills, err := billingapp.NewBillService(store, NewLoggingPublisher(logger), fixedClock{now: time.Date(2026, time.February, 2, 8, 0, 0, 0, time.UTC)}, billingapp.DefaultConfig(), logger)
	if err != nil {
		t.Fatalf("bill service: %v", err)
	}
	recorder := &recordingAudit{}
	handler, err := NewBillHandler(drafts, bills, staticChecker{owner: map[string]string{"c-1": "co-1", "c-9": "co-2"}}, recorder)
	if err != nil {
		t.Fatalf("handler: %v", err)
	}
	return handler, recorder
}

func serve(handler http.Handler, method, target string, body io.Reader, companyID string, role auth.Role) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, body)
	req = req.WithContext(auth.WithIdentity(req.Context(), companyID, role, "user-1"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestBillHandler_Drafts(t *testing.T) {
	handler, _ := newTestHandler(t)

	rec := serve(handler, http.MethodGet, "/api/v1/bills/drafts?end_date=2026-01-31", nil, "co-1", auth.RoleViewer)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var drafts []billing.DraftBill
	if err := json.Unmarshal(rec.Body.Bytes(), &drafts); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(drafts) != 1 || drafts[0].Customer.ID != "c-1" {
		t.Fatalf("unexpected drafts: %+v", drafts)
	}
	if math.Abs(drafts[0].CustomerBills.Total-44) > 1e-9 {
		t.Fatalf("expected 44 total, got %v", drafts[0].CustomerBills.Total)
	}

	rec = serve(handler, http.MethodGet, "/api/v1/bills/drafts", nil, "co-1", auth.RoleViewer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without end_date, got %d", rec.Code)
	}
	rec = serve(handler, http.MethodGet, "/api/v1/bills/drafts?end_date=2026-01-31&customer_id=c-9", nil, "co-1", auth.RoleViewer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for foreign customer, got %d", rec.Code)
	}
	rec = serve(handler, http.MethodGet, "/api/v1/bills/drafts?end_date=2026-01-31&start_date=2026-02-15", nil, "co-1", auth.RoleViewer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for inverted period, got %d", rec.Code)
	}
}

func TestBillHandler_CommitLifecycle(t *testing.T) {
	handler, recorder := newTestHandler(t)

	rec := serve(handler, http.MethodPost, "/api/v1/bills/commit", strings.NewReader(`{"end_date":"2026-01-31"}`), "co-1", auth.RoleBiller)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	var committed struct {
		Bills []struct {
			BillID string `json:"bill_id"`
			Number string `json:"number"`
		} `json:"bills"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &committed); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(committed.Bills) != 1 || committed.Bills[0].Number != "FACT-012600001" {
		t.Fatalf("unexpected commit: %+v", committed)
	}
	id := committed.Bills[0].BillID
	if len(recorder.entries) != 1 || recorder.entries[0].Action != "bill.commit" || recorder.entries[0].CompanyID != "co-1" {
		t.Fatalf("unexpected audit entries: %+v", recorder.entries)
	}

	rec = serve(handler, http.MethodPost, "/api/v1/bills/commit", strings.NewReader(`{"end_date":"2026-01-31"}`), "co-1", auth.RoleBiller)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 once events are billed, got %d", rec.Code)
	}

	rec = serve(handler, http.MethodGet, "/api/v1/bills?customer_id=c-1", nil, "co-1", auth.RoleViewer)
	var list []billing.Bill
	if err := json.Unmarshal(rec.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Fatalf("unexpected list: %s", rec.Body.String())
	}

	rec = serve(handler, http.MethodGet, "/api/v1/bills/"+id, nil, "co-2", auth.RoleViewer)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 across companies, got %d", rec.Code)
	}
	rec = serve(handler, http.MethodGet, "/api/v1/bills/missing", nil, "co-1", auth.RoleViewer)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	rec = serve(handler, http.MethodGet, "/api/v1/bills/"+id+"/export.pdf", nil, "co-1", auth.RoleViewer)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")) {
		t.Fatalf("unexpected pdf export: %d", rec.Code)
	}
	rec = serve(handler, http.MethodGet, "/api/v1/bills/"+id+"/export.xlsx", nil, "co-1", auth.RoleViewer)
	if rec.Code != http.StatusOK || !bytes.HasPrefix(rec.Body.Bytes(), []byte("PK")) {
		t.Fatalf("unexpected xlsx export: %d", rec.Code)
	}

	rec = serve(handler, http.MethodPost, "/api/v1/bills/"+id+"/void", strings.NewReader(`{"reason":"duplicate"}`), "co-1", auth.RoleAdmin)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), billing.BillStatusVoided) {
		t.Fatalf("unexpected void: %d %s", rec.Code, rec.Body.String())
	}
	last := recorder.entries[len(recorder.entries)-1]
	if last.Action != "bill.void" || last.ResourceID != id {
		t.Fatalf("unexpected void audit: %+v", last)
	}
}

func TestBillHandler_UnknownRoute(t *testing.T) {
	handler, _ := newTestHandler(t)
	rec := serve(handler, http.MethodDelete, "/api/v1/bills/x/void", nil, "co-1", auth.RoleAdmin)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestParseDate(t *testing.T) {
	end, err := parseDate("2026-01-31", true, time.UTC)
	if err != nil || end.Day() != 31 || end.Hour() != 23 {
		t.Fatalf("unexpected end date: %v %v", end, err)
	}
	start, err := parseDate("2026-01-01T08:00:00+01:00", false, time.UTC)
	if err != nil || !start.Equal(time.Date(2026, time.January, 1, 7, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start date: %v %v", start, err)
	}
	if _, err := parseDate("31/01/2026", false, time.UTC); err == nil {
		t.Fatalf("expected parse error")
	}
}

func TestParseDate_PlainDatesUseBillingTimezone(t *testing.T) {
	paris, err := time.LoadLocation("Europe/Paris")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	start, err := parseDate("2026-03-01", false, paris)
	if err != nil || !start.Equal(time.Date(2026, time.February, 28, 23, 0, 0, 0, time.UTC)) {
		t.Fatalf("unexpected start date: %v %v", start, err)
	}
	// 29 March 2026 lasts 23 hours in Paris.
	end, err := parseDate("2026-03-29", true, paris)
	if err != nil || !end.Equal(time.Date(2026, time.March, 29, 21, 59, 59, int(999*time.Millisecond), time.UTC)) {
		t.Fatalf("unexpected end date: %v %v", end, err)
	}
	stamp, err := parseDate("2026-03-01T00:30:00Z", false, paris)
	if err != nil || stamp.Location() != paris || stamp.Hour() != 1 {
		t.Fatalf("unexpected timestamp: %v %v", stamp, err)
	}
}
