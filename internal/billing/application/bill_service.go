package application

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"homecare-cloud/internal/auth"
	billing "homecare-cloud/internal/billing/domain"
	"homecare-cloud/internal/observability/metrics"
)

// CommitRequest carries the drafts to persist.
type CommitRequest struct {
	CompanyID string
	EndDate   time.Time
	Drafts    []billing.DraftBill
}

// BillService handles the committed bill lifecycle.
type BillService struct {
	repo      BillRepository
	publisher BillPublisher
	clock     Clock
	prefix    string
	loc       *time.Location
	logger    *log.Logger
}

// NewBillService constructs a service.
func NewBillService(repo BillRepository, publisher BillPublisher, clock Clock, cfg Config, logger *log.Logger) (*BillService, error) {
	if repo == nil {
		return nil, errors.New("bill service: nil repo")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if logger == nil {
		logger = log.Default()
	}
	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	return &BillService{repo: repo, publisher: publisher, clock: clock, prefix: cfg.BillNumberPrefix, loc: loc, logger: logger}, nil
}

// Commit numbers and persists the bills of drafts, consumes the funding
// quotas they carry and flags their events as billed.
func (s *BillService) Commit(ctx context.Context, req CommitRequest) ([]billing.Bill, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveBillCommit(result, time.Since(start))
	}()

	companyID, err := s.companyID(ctx, req.CompanyID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	if req.EndDate.IsZero() {
		result = metrics.ResultError
		return nil, billing.ErrInvalidPeriod
	}

	var bills []billing.Bill
	for _, draft := range req.Drafts {
		if draft.Customer.CompanyID != "" && draft.Customer.CompanyID != companyID {
			result = metrics.ResultError
			return nil, auth.ErrCompanyMismatch
		}
		bills = append(bills, billing.BillsFromDraft(companyID, draft)...)
	}
	if len(bills) == 0 {
		result = metrics.ResultError
		return nil, billing.ErrNothingToCommit
	}

	now := s.clock.Now().UTC()
	endDate := req.EndDate.In(s.loc)
	var eventIDs []string
	for i := range bills {
		eventIDs = append(eventIDs, bills[i].EventIDs()...)
	}
	eventIDs = uniqueStrings(eventIDs)

	batch := CommitBatch{
		CompanyID:      companyID,
		SequenceMonth:  endDate.Format("2006-01"),
		Bills:          bills,
		HistoryDeltas:  billing.HistoryDeltas(bills),
		BilledEventIDs: eventIDs,
		Seal: func(bill *billing.Bill, seq int) error {
			bill.ID = uuid.NewString()
			bill.Number = billing.BillNumber(s.prefix, endDate, seq)
			bill.EndDate = endDate
			bill.CreatedAt = now
			bill.UpdatedAt = now
			hash, err := computeSnapshotHash(*bill)
			if err != nil {
				return err
			}
			bill.SnapshotHash = hash
			return nil
		},
	}
	if err := s.repo.SaveCommit(ctx, batch); err != nil {
		result = metrics.ResultError
		return nil, err
	}
	metrics.AddEventsBilled(len(eventIDs))

	if s.publisher != nil {
		ids := make([]string, 0, len(bills))
		for _, bill := range bills {
			ids = append(ids, bill.ID)
		}
		event := BillsCommitted{CompanyID: companyID, EndDate: endDate, BillIDs: ids, EventCount: len(eventIDs), OccurredAt: now}
		if err := s.publisher.PublishBillsCommitted(ctx, event); err != nil {
			s.logger.Printf("bills committed publish failed: company=%s err=%v", companyID, err)
		}
	}
	s.logger.Printf("bills committed: company=%s end=%s bills=%d events=%d", companyID, req.EndDate.Format("2006-01-02"), len(bills), len(eventIDs))
	return bills, nil
}

// Get returns a committed bill.
func (s *BillService) Get(ctx context.Context, id string) (*billing.Bill, error) {
	bill, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bill == nil {
		return nil, billing.ErrBillNotFound
	}
	companyID := auth.CompanyIDFromContext(ctx)
	if companyID != "" && bill.CompanyID != companyID {
		return nil, auth.ErrCompanyMismatch
	}
	return bill, nil
}

// List returns the committed bills of a customer.
func (s *BillService) List(ctx context.Context, companyID, customerID string) ([]billing.Bill, error) {
	if customerID == "" {
		return nil, errors.New("bill service: customer_id required")
	}
	companyID, err := s.companyID(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return s.repo.ListByCustomer(ctx, companyID, customerID)
}

// Void voids a committed bill. Funding consumption and billed flags are kept;
// a credit note is expected to compensate.
func (s *BillService) Void(ctx context.Context, id, reason string) (*billing.Bill, error) {
	bill, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if bill.Status == billing.BillStatusVoided {
		return bill, nil
	}
	now := s.clock.Now().UTC()
	if err := s.repo.MarkVoided(ctx, id, reason, now); err != nil {
		return nil, err
	}
	bill.Status = billing.BillStatusVoided
	bill.VoidReason = reason
	bill.VoidedAt = now
	bill.UpdatedAt = now

	if s.publisher != nil {
		if err := s.publisher.PublishBillVoided(ctx, BillVoided{CompanyID: bill.CompanyID, BillID: bill.ID, Reason: reason, OccurredAt: now}); err != nil {
			s.logger.Printf("bill voided publish failed: bill=%s err=%v", bill.ID, err)
		}
	}
	return bill, nil
}

func (s *BillService) companyID(ctx context.Context, requested string) (string, error) {
	companyID := auth.CompanyIDFromContext(ctx)
	if companyID == "" {
		companyID = requested
	}
	if companyID == "" {
		return "", errors.New("bill service: company_id required")
	}
	if requested != "" && requested != companyID {
		return "", auth.ErrCompanyMismatch
	}
	return companyID, nil
}

func computeSnapshotHash(bill billing.Bill) (string, error) {
	bill.SnapshotHash = ""
	data, err := json.Marshal(bill)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, value := range values {
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		result = append(result, value)
	}
	return result
}
