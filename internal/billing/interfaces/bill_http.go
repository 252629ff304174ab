package interfaces

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"homecare-cloud/internal/audit"
	"homecare-cloud/internal/auth"
	billingapp "homecare-cloud/internal/billing/application"
	billing "homecare-cloud/internal/billing/domain"
	"homecare-cloud/internal/observability/metrics"
)

// BillHandler handles billing APIs.
type BillHandler struct {
	drafts          *billingapp.DraftBillService
	bills           *billingapp.BillService
	customerChecker auth.CustomerCompanyChecker
	auditLogger     audit.Logger
}

// NewBillHandler constructs a handler.
func NewBillHandler(drafts *billingapp.DraftBillService, bills *billingapp.BillService, customerChecker auth.CustomerCompanyChecker, auditLogger audit.Logger) (*BillHandler, error) {
	if drafts == nil {
		return nil, errors.New("bill handler: nil draft service")
	}
	if bills == nil {
		return nil, errors.New("bill handler: nil bill service")
	}
	return &BillHandler{drafts: drafts, bills: bills, customerChecker: customerChecker, auditLogger: auditLogger}, nil
}

// ServeHTTP handles bill routes under /api/v1/bills.
func (h *BillHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	if path == "/api/v1/bills/drafts" && r.Method == http.MethodGet {
		h.handleDrafts(w, r)
		return
	}
	if path == "/api/v1/bills/commit" && r.Method == http.MethodPost {
		h.handleCommit(w, r)
		return
	}
	if path == "/api/v1/bills" && r.Method == http.MethodGet {
		h.handleList(w, r)
		return
	}
	if strings.HasPrefix(path, "/api/v1/bills/") {
		rest := strings.TrimPrefix(path, "/api/v1/bills/")
		h.handleByID(w, r, rest)
		return
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *BillHandler) handleDrafts(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	req, err := draftRequest(h.drafts.Location(), query.Get("company_id"), query.Get("customer_id"), query.Get("start_date"), query.Get("end_date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ensureCustomer(r, req.CustomerID); err != nil {
		respondCompanyError(w, err)
		return
	}
	drafts, err := h.drafts.Draft(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if drafts == nil {
		drafts = []billing.DraftBill{}
	}
	writeJSON(w, http.StatusOK, drafts)
}

func (h *BillHandler) handleCommit(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyID  string `json:"company_id"`
		CustomerID string `json:"customer_id"`
		StartDate  string `json:"start_date"`
		EndDate    string `json:"end_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	req, err := draftRequest(h.drafts.Location(), body.CompanyID, body.CustomerID, body.StartDate, body.EndDate)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.ensureCustomer(r, req.CustomerID); err != nil {
		respondCompanyError(w, err)
		return
	}
	drafts, err := h.drafts.Draft(r.Context(), req)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	bills, err := h.bills.Commit(r.Context(), billingapp.CommitRequest{CompanyID: req.CompanyID, EndDate: req.EndDate, Drafts: drafts})
	if err != nil {
		respondServiceError(w, err)
		return
	}
	resp := make([]map[string]any, 0, len(bills))
	for _, bill := range bills {
		resp = append(resp, map[string]any{
			"bill_id":        bill.ID,
			"number":         bill.Number,
			"customer_id":    bill.CustomerID,
			"payer_id":       bill.ThirdPartyPayerID,
			"net_incl_taxes": bill.NetInclTaxes,
		})
	}
	writeJSON(w, http.StatusCreated, map[string]any{"bills": resp})
	for _, bill := range bills {
		h.logAudit(r, bill.CustomerID, bill.ID, "bill.commit", map[string]any{
			"number":   bill.Number,
			"end_date": req.EndDate.Format("2006-01-02"),
		})
	}
}

func (h *BillHandler) handleList(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if err := h.ensureCustomer(r, customerID); err != nil {
		respondCompanyError(w, err)
		return
	}
	list, err := h.bills.List(r.Context(), r.URL.Query().Get("company_id"), customerID)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if list == nil {
		list = []billing.Bill{}
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *BillHandler) handleByID(w http.ResponseWriter, r *http.Request, rest string) {
	if rest == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(rest, "/")
	id := parts[0]
	if len(parts) == 1 && r.Method == http.MethodGet {
		h.handleGet(w, r, id)
		return
	}
	if len(parts) == 2 {
		switch parts[1] {
		case "void":
			if r.Method == http.MethodPost {
				h.handleVoid(w, r, id)
				return
			}
		case "export.pdf":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "pdf")
				return
			}
		case "export.xlsx":
			if r.Method == http.MethodGet {
				h.handleExport(w, r, id, "xlsx")
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}

func (h *BillHandler) handleGet(w http.ResponseWriter, r *http.Request, id string) {
	bill, err := h.bills.Get(r.Context(), id)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, bill)
}

func (h *BillHandler) handleVoid(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		Reason string `json:"reason"`
	}
	_ = json.NewDecoder(r.Body).Decode(&req)
	bill, err := h.bills.Void(r.Context(), id, req.Reason)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bill_id": bill.ID,
		"number":  bill.Number,
		"status":  bill.Status,
	})
	h.logAudit(r, bill.CustomerID, bill.ID, "bill.void", map[string]any{
		"reason": req.Reason,
	})
}

func (h *BillHandler) handleExport(w http.ResponseWriter, r *http.Request, id, format string) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillExport(format, result, time.Since(start))
	}()

	bill, err := h.bills.Get(r.Context(), id)
	if err != nil {
		result = metrics.ResultError
		respondServiceError(w, err)
		return
	}
	var (
		data        []byte
		contentType string
	)
	switch format {
	case "pdf":
		data, err = BuildBillPDF(bill)
		contentType = "application/pdf"
	default:
		data, err = BuildBillXLSX(bill)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if err != nil {
		result = metrics.ResultError
		http.Error(w, "export "+format+" error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", "attachment; filename=\""+bill.Number+"."+format+"\"")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
	h.logAudit(r, bill.CustomerID, bill.ID, "bill.export", map[string]any{"format": format})
}

func (h *BillHandler) ensureCustomer(r *http.Request, customerID string) error {
	companyID := auth.CompanyIDFromContext(r.Context())
	if h.customerChecker == nil || companyID == "" || customerID == "" {
		return nil
	}
	return h.customerChecker.EnsureCustomerCompany(r.Context(), companyID, customerID)
}

func (h *BillHandler) logAudit(r *http.Request, customerID, billID, action string, meta map[string]any) {
	if h.auditLogger == nil {
		return
	}
	companyID := auth.CompanyIDFromContext(r.Context())
	if companyID == "" {
		return
	}
	payload, _ := json.Marshal(meta)
	_ = h.auditLogger.Log(r.Context(), audit.Entry{
		CompanyID:    companyID,
		Actor:        auth.SubjectFromContext(r.Context()),
		Role:         string(auth.RoleFromContext(r.Context())),
		Action:       action,
		ResourceType: "bill",
		ResourceID:   billID,
		CustomerID:   customerID,
		Metadata:     payload,
		IP:           audit.ClientIP(r),
		UserAgent:    r.UserAgent(),
	})
}

func draftRequest(loc *time.Location, companyID, customerID, startValue, endValue string) (billingapp.DraftRequest, error) {
	req := billingapp.DraftRequest{CompanyID: companyID, CustomerID: customerID}
	if endValue == "" {
		return req, errors.New("end_date required")
	}
	end, err := parseDate(endValue, true, loc)
	if err != nil {
		return req, errors.New("invalid end_date")
	}
	req.EndDate = end
	if startValue != "" {
		start, err := parseDate(startValue, false, loc)
		if err != nil {
			return req, errors.New("invalid start_date")
		}
		req.StartDate = start
	}
	return req, nil
}

// parseDate accepts RFC3339 timestamps or plain dates. Plain dates are read
// in loc and a plain end date covers the whole day.
func parseDate(value string, endOfDay bool, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t.In(loc), nil
	}
	t, err := time.ParseInLocation("2006-01-02", value, loc)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.AddDate(0, 0, 1).Add(-time.Millisecond)
	}
	return t, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondCompanyError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, auth.ErrCompanyMismatch) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if errors.Is(err, auth.ErrNotFound) {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	http.Error(w, "company check failed", http.StatusInternalServerError)
}

func respondServiceError(w http.ResponseWriter, err error) {
	if err == nil {
		return
	}
	switch {
	case errors.Is(err, auth.ErrCompanyMismatch):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, billing.ErrBillNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, billing.ErrNothingToCommit):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, err.Error(), http.StatusBadRequest)
	}
}
