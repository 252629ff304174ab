package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"homecare-cloud/internal/auth"
	billing "homecare-cloud/internal/billing/domain"
	"homecare-cloud/internal/observability/metrics"
)

// DraftRequest describes a draft billing run.
type DraftRequest struct {
	CompanyID  string
	CustomerID string
	StartDate  time.Time
	EndDate    time.Time
}

// DraftBillService computes draft bills from the billing sources.
type DraftBillService struct {
	events     EventSource
	fundings   FundingSource
	surcharges SurchargeSource
	holidays   billing.HolidayCalendar
	cfg        Config
	loc        *time.Location
	logger     *log.Logger
}

// DraftOption configures the draft service.
type DraftOption func(*DraftBillService)

// WithHolidays sets the public holiday calendar.
func WithHolidays(calendar billing.HolidayCalendar) DraftOption {
	return func(s *DraftBillService) {
		if calendar != nil {
			s.holidays = calendar
		}
	}
}

// WithConfig sets the billing configuration.
func WithConfig(cfg Config) DraftOption {
	return func(s *DraftBillService) {
		s.cfg = cfg
	}
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) DraftOption {
	return func(s *DraftBillService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewDraftBillService constructs the service.
func NewDraftBillService(events EventSource, fundings FundingSource, surcharges SurchargeSource, opts ...DraftOption) (*DraftBillService, error) {
	if events == nil {
		return nil, errors.New("draft bill service: nil event source")
	}
	if fundings == nil {
		return nil, errors.New("draft bill service: nil funding source")
	}
	if surcharges == nil {
		return nil, errors.New("draft bill service: nil surcharge source")
	}
	s := &DraftBillService{
		events:     events,
		fundings:   fundings,
		surcharges: surcharges,
		holidays:   billing.NoHolidays{},
		cfg:        DefaultConfig(),
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	loc, err := s.cfg.Location()
	if err != nil {
		return nil, err
	}
	s.loc = loc
	return s, nil
}

// Location returns the billing time zone.
func (s *DraftBillService) Location() *time.Location {
	return s.loc
}

// Draft computes the draft bills of a period. Nothing is persisted.
func (s *DraftBillService) Draft(ctx context.Context, req DraftRequest) ([]billing.DraftBill, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	customers := 0
	defer func() {
		metrics.ObserveDraftBills(result, time.Since(start), customers)
	}()

	companyID := auth.CompanyIDFromContext(ctx)
	if companyID == "" {
		companyID = req.CompanyID
	}
	if companyID == "" {
		result = metrics.ResultError
		return nil, errors.New("draft bill service: company_id required")
	}
	if req.CompanyID != "" && req.CompanyID != companyID {
		result = metrics.ResultError
		return nil, auth.ErrCompanyMismatch
	}
	period := billing.BillingPeriod{StartDate: req.StartDate, EndDate: req.EndDate.In(s.loc)}
	if !period.StartDate.IsZero() {
		period.StartDate = period.StartDate.In(s.loc)
	}
	if err := period.Validate(); err != nil {
		result = metrics.ResultError
		return nil, err
	}

	batch, err := s.events.LoadBillableEvents(ctx, DraftScope{CompanyID: companyID, CustomerID: req.CustomerID, Period: period})
	if err != nil {
		result = metrics.ResultError
		return nil, fmt.Errorf("load events: %w", err)
	}
	if len(batch.Events) == 0 {
		return nil, nil
	}
	// Week days, holidays and history months are local to the company.
	for i := range batch.Events {
		batch.Events[i].StartDate = batch.Events[i].StartDate.In(s.loc)
		batch.Events[i].EndDate = batch.Events[i].EndDate.In(s.loc)
	}

	fundings, err := s.loadFundings(ctx, companyID, batch, period.EndDate)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	surcharges, err := s.loadSurcharges(ctx, companyID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}

	joined, err := billing.JoinCustomerEvents(batch.Events, batch.Customers, batch.Subscriptions, batch.Services, fundings)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	drafts, err := billing.AssembleDraftBills(billing.DraftRun{
		Period:      period,
		Customers:   joined,
		Surcharges:  surcharges,
		Holidays:    s.holidays,
		MaxParallel: s.cfg.MaxParallelCustomers,
	})
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	customers = len(drafts)

	s.logger.Printf("draft bills computed: company=%s customer=%s end=%s events=%d bills=%d duration_ms=%d",
		companyID, req.CustomerID, period.EndDate.Format("2006-01-02"), len(batch.Events), len(drafts), time.Since(start).Milliseconds())
	return drafts, nil
}

func (s *DraftBillService) loadFundings(ctx context.Context, companyID string, batch EventBatch, endDate time.Time) ([]billing.Funding, error) {
	customerIDs := make([]string, 0, len(batch.Customers))
	for _, customer := range batch.Customers {
		customerIDs = append(customerIDs, customer.ID)
	}
	fundings, err := s.fundings.ListFundings(ctx, companyID, customerIDs)
	if err != nil {
		return nil, fmt.Errorf("load fundings: %w", err)
	}
	if len(fundings) == 0 {
		return nil, nil
	}
	payers, err := s.fundings.ListThirdPartyPayers(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load third party payers: %w", err)
	}
	fundingIDs := make([]string, 0, len(fundings))
	for _, funding := range fundings {
		fundingIDs = append(fundingIDs, funding.ID)
	}
	histories, err := s.fundings.ListFundingHistories(ctx, fundingIDs)
	if err != nil {
		return nil, fmt.Errorf("load funding histories: %w", err)
	}
	return billing.PopulateFundings(fundings, payers, histories, endDate), nil
}

func (s *DraftBillService) loadSurcharges(ctx context.Context, companyID string) (map[string]billing.Surcharge, error) {
	list, err := s.surcharges.ListSurcharges(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("load surcharges: %w", err)
	}
	result := make(map[string]billing.Surcharge, len(list))
	for _, surcharge := range list {
		if err := surcharge.Validate(); err != nil {
			s.logger.Printf("surcharge invalid: company=%s surcharge=%s err=%v", companyID, surcharge.ID, err)
		}
		result[surcharge.ID] = surcharge
	}
	return result, nil
}
