package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"homecare-cloud/internal/billing/application"
	billing "homecare-cloud/internal/billing/domain"
)

// Store keeps billing data in memory. It implements every source and the
// bill repository used by the application layer.
type Store struct {
	mu            sync.RWMutex
	events        map[string]billing.Event
	customers     map[string]billing.Customer
	subscriptions map[string]billing.Subscription
	services      map[string]billing.Service
	fundings      map[string]billing.Funding
	payers        map[string]billing.ThirdPartyPayer
	surcharges    map[string]billing.Surcharge
	histories     map[string]billing.FundingHistory
	bills         map[string]billing.Bill
	sequences     map[string]int
}

// NewStore constructs an empty store.
func NewStore() *Store {
	return &Store{
		events:        make(map[string]billing.Event),
		customers:     make(map[string]billing.Customer),
		subscriptions: make(map[string]billing.Subscription),
		services:      make(map[string]billing.Service),
		fundings:      make(map[string]billing.Funding),
		payers:        make(map[string]billing.ThirdPartyPayer),
		surcharges:    make(map[string]billing.Surcharge),
		histories:     make(map[string]billing.FundingHistory),
		bills:         make(map[string]billing.Bill),
		sequences:     make(map[string]int),
	}
}

// AddEvents stores events.
func (s *Store) AddEvents(events ...billing.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, event := range events {
		s.events[event.ID] = event
	}
}

// AddCustomers stores customers.
func (s *Store) AddCustomers(customers ...billing.Customer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, customer := range customers {
		s.customers[customer.ID] = customer
	}
}

// AddSubscriptions stores subscriptions.
func (s *Store) AddSubscriptions(subscriptions ...billing.Subscription) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, subscription := range subscriptions {
		s.subscriptions[subscription.ID] = subscription
	}
}

// AddServices stores services.
func (s *Store) AddServices(services ...billing.Service) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, service := range services {
		s.services[service.ID] = service
	}
}

// AddFundings stores fundings.
func (s *Store) AddFundings(fundings ...billing.Funding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, funding := range fundings {
		s.fundings[funding.ID] = funding
	}
}

// AddThirdPartyPayers stores payers.
func (s *Store) AddThirdPartyPayers(payers ...billing.ThirdPartyPayer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, payer := range payers {
		s.payers[payer.ID] = payer
	}
}

// AddSurcharges stores surcharges.
func (s *Store) AddSurcharges(surcharges ...billing.Surcharge) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, surcharge := range surcharges {
		s.surcharges[surcharge.ID] = surcharge
	}
}

// Event returns a stored event.
func (s *Store) Event(id string) (billing.Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	event, ok := s.events[id]
	return event, ok
}

// LoadBillableEvents returns billable events of the scope with the records
// they reference.
func (s *Store) LoadBillableEvents(ctx context.Context, scope application.DraftScope) (application.EventBatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var batch application.EventBatch
	customers := map[string]struct{}{}
	subscriptions := map[string]struct{}{}
	for _, event := range s.events {
		if event.CompanyID != scope.CompanyID || !event.IsBillable() || !scope.Period.Contains(event.StartDate) {
			continue
		}
		if scope.CustomerID != "" && event.CustomerID != scope.CustomerID {
			continue
		}
		batch.Events = append(batch.Events, event)
		customers[event.CustomerID] = struct{}{}
		subscriptions[event.SubscriptionID] = struct{}{}
	}
	sort.Slice(batch.Events, func(i, j int) bool { return batch.Events[i].ID < batch.Events[j].ID })

	services := map[string]struct{}{}
	for id := range customers {
		if customer, ok := s.customers[id]; ok {
			batch.Customers = append(batch.Customers, customer)
		}
	}
	for id := range subscriptions {
		if subscription, ok := s.subscriptions[id]; ok {
			batch.Subscriptions = append(batch.Subscriptions, subscription)
			services[subscription.ServiceID] = struct{}{}
		}
	}
	for id := range services {
		if service, ok := s.services[id]; ok {
			batch.Services = append(batch.Services, service)
		}
	}
	return batch, nil
}

// ListFundings returns the fundings of the given customers.
func (s *Store) ListFundings(ctx context.Context, companyID string, customerIDs []string) ([]billing.Funding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]struct{}, len(customerIDs))
	for _, id := range customerIDs {
		wanted[id] = struct{}{}
	}
	var result []billing.Funding
	for _, funding := range s.fundings {
		if _, ok := wanted[funding.CustomerID]; ok {
			result = append(result, funding)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListThirdPartyPayers returns the payers of a company.
func (s *Store) ListThirdPartyPayers(ctx context.Context, companyID string) ([]billing.ThirdPartyPayer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []billing.ThirdPartyPayer
	for _, payer := range s.payers {
		if payer.CompanyID == "" || payer.CompanyID == companyID {
			result = append(result, payer)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// ListFundingHistories returns the persisted ledger of fundings.
func (s *Store) ListFundingHistories(ctx context.Context, fundingIDs []string) ([]billing.FundingHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	wanted := make(map[string]struct{}, len(fundingIDs))
	for _, id := range fundingIDs {
		wanted[id] = struct{}{}
	}
	var result []billing.FundingHistory
	for _, history := range s.histories {
		if _, ok := wanted[history.FundingID]; ok {
			result = append(result, history)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].FundingID != result[j].FundingID {
			return result[i].FundingID < result[j].FundingID
		}
		return result[i].Month < result[j].Month
	})
	return result, nil
}

// ListSurcharges returns the surcharges of a company.
func (s *Store) ListSurcharges(ctx context.Context, companyID string) ([]billing.Surcharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []billing.Surcharge
	for _, surcharge := range s.surcharges {
		if surcharge.CompanyID == companyID {
			result = append(result, surcharge)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

// SaveCommit numbers and stores bills, adds the history deltas to the ledger
// and flags events as billed. Nothing is written when a step fails.
func (s *Store) SaveCommit(ctx context.Context, batch application.CommitBatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range batch.BilledEventIDs {
		if event, ok := s.events[id]; ok && event.IsBilled {
			return fmt.Errorf("event %s already billed", id)
		}
	}
	key := batch.CompanyID + "/" + batch.SequenceMonth
	seq := s.sequences[key]
	if batch.Seal != nil {
		for i := range batch.Bills {
			if err := batch.Seal(&batch.Bills[i], seq+1); err != nil {
				return err
			}
			seq++
		}
		s.sequences[key] = seq
	}
	for _, bill := range batch.Bills {
		s.bills[bill.ID] = bill
	}
	for _, delta := range batch.HistoryDeltas {
		key := delta.FundingID + "/" + delta.Month
		current := s.histories[key]
		current.FundingID = delta.FundingID
		current.Month = delta.Month
		current.CareHours += delta.CareHours
		current.AmountTTC += delta.AmountTTC
		current.NbEvents += delta.NbEvents
		s.histories[key] = current
	}
	for _, id := range batch.BilledEventIDs {
		if event, ok := s.events[id]; ok {
			event.IsBilled = true
			s.events[id] = event
		}
	}
	return nil
}

// GetByID returns a bill or nil when missing.
func (s *Store) GetByID(ctx context.Context, id string) (*billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	bill, ok := s.bills[id]
	if !ok {
		return nil, nil
	}
	return &bill, nil
}

// ListByCustomer returns the bills of a customer, newest number first.
func (s *Store) ListByCustomer(ctx context.Context, companyID, customerID string) ([]billing.Bill, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []billing.Bill
	for _, bill := range s.bills {
		if bill.CompanyID == companyID && bill.CustomerID == customerID {
			result = append(result, bill)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Number > result[j].Number })
	return result, nil
}

// MarkVoided voids a bill.
func (s *Store) MarkVoided(ctx context.Context, id, reason string, voidedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	bill, ok := s.bills[id]
	if !ok {
		return billing.ErrBillNotFound
	}
	bill.Status = billing.BillStatusVoided
	bill.VoidReason = reason
	bill.VoidedAt = voidedAt
	bill.UpdatedAt = voidedAt
	s.bills[id] = bill
	return nil
}

var (
	_ application.EventSource     = (*Store)(nil)
	_ application.FundingSource   = (*Store)(nil)
	_ application.SurchargeSource = (*Store)(nil)
	_ application.BillRepository  = (*Store)(nil)
)
