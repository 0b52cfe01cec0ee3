package redemption

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/domain/assignment"
	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/catalog"
	"github.com/enterprise-access/access-api/internal/pkg/lms"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

const (
	testLearner    int64 = 1001
	testContentKey       = "edX+DemoX"
	testPrice      int64 = 19900
)

type stubPolicies struct {
	policies []*policy.Policy
	err      error
}

func (s *stubPolicies) GetByUUID(_ context.Context, id uuid.UUID) (*policy.Policy, error) {
	for _, p := range s.policies {
		if p.UUID == id {
			return p, nil
		}
	}
	return nil, policy.ErrPolicyNotFound
}

func (s *stubPolicies) ListActiveForEnterprise(_ context.Context, enterpriseUUID uuid.UUID) ([]*policy.Policy, error) {
	if s.err != nil {
		return nil, s.err
	}
	var out []*policy.Policy
	for _, p := range s.policies {
		if p.Active && p.EnterpriseCustomerUUID == enterpriseUUID {
			out = append(out, p)
		}
	}
	return out, nil
}

type stubCatalog struct {
	metadata     map[string]*catalog.ContentMetadata
	excluded     map[uuid.UUID]bool
	metadataErr  error
	containsErr  error
	containCalls int
}

func (s *stubCatalog) ContainsContentKey(_ context.Context, catalogUUID uuid.UUID, _ string) (bool, error) {
	s.containCalls++
	if s.containsErr != nil {
		return false, s.containsErr
	}
	return !s.excluded[catalogUUID], nil
}

func (s *stubCatalog) GetContentMetadata(_ context.Context, contentKey string) (*catalog.ContentMetadata, error) {
	if s.metadataErr != nil {
		return nil, s.metadataErr
	}
	m, ok := s.metadata[contentKey]
	if !ok {
		return nil, catalog.ErrContentNotFound
	}
	copied := *m
	return &copied, nil
}

type stubLedger struct {
	subsidies    map[uuid.UUID]*subsidy.Subsidy
	transactions map[uuid.UUID][]subsidy.Transaction
	inactive     bool
	cannotRedeem bool
	listErr      error
	canRedeemErr error
	createErr    error

	created        []subsidy.CreateTransactionRequest
	listCalls      int
	subsidyCalls   int
	canRedeemCalls int
}

func (s *stubLedger) RetrieveSubsidy(_ context.Context, subsidyUUID uuid.UUID) (*subsidy.Subsidy, error) {
	s.subsidyCalls++
	sub, ok := s.subsidies[subsidyUUID]
	if !ok {
		return nil, subsidy.ErrSubsidyNotFound
	}
	copied := *sub
	return &copied, nil
}

func (s *stubLedger) CanRedeem(_ context.Context, subsidyUUID uuid.UUID, lmsUserID int64, contentKey string) (*subsidy.CanRedeemResult, error) {
	s.canRedeemCalls++
	if s.canRedeemErr != nil {
		return nil, s.canRedeemErr
	}
	var all []subsidy.Transaction
	for _, tx := range s.transactions[subsidyUUID] {
		if tx.LmsUserID == lmsUserID && tx.ContentKey == contentKey {
			all = append(all, tx)
		}
	}
	return &subsidy.CanRedeemResult{
		ContentKey:      contentKey,
		CanRedeem:       !s.cannotRedeem,
		Active:          !s.inactive,
		AllTransactions: all,
	}, nil
}

func (s *stubLedger) ListTransactions(_ context.Context, filter subsidy.TransactionFilter) (*subsidy.TransactionList, error) {
	s.listCalls++
	if s.listErr != nil {
		return nil, s.listErr
	}
	list := &subsidy.TransactionList{Results: []subsidy.Transaction{}}
	for _, tx := range s.transactions[filter.SubsidyUUID] {
		if filter.LmsUserID != 0 && tx.LmsUserID != filter.LmsUserID {
			continue
		}
		if filter.SubsidyAccessPolicyUUID != uuid.Nil && tx.SubsidyAccessPolicyUUID != filter.SubsidyAccessPolicyUUID {
			continue
		}
		list.Results = append(list.Results, tx)
		list.Aggregates.TotalQuantity += tx.Quantity
	}
	return list, nil
}

func (s *stubLedger) CreateTransaction(_ context.Context, req subsidy.CreateTransactionRequest) (*subsidy.Transaction, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, req)
	return &subsidy.Transaction{
		UUID:                    uuid.New(),
		State:                   subsidy.StateCommitted,
		IdempotencyKey:          req.IdempotencyKey,
		LmsUserID:               req.LmsUserID,
		ContentKey:              req.ContentKey,
		SubsidyAccessPolicyUUID: req.SubsidyAccessPolicyUUID,
		Quantity:                -*req.RequestedPrice,
	}, nil
}

type stubIdentity struct {
	users       map[int64]*lms.EnterpriseUser
	customer    *lms.EnterpriseCustomer
	userErr     error
	customerErr error
}

func (s *stubIdentity) GetEnterpriseUser(_ context.Context, _ uuid.UUID, lmsUserID int64) (*lms.EnterpriseUser, error) {
	if s.userErr != nil {
		return nil, s.userErr
	}
	return s.users[lmsUserID], nil
}

func (s *stubIdentity) GetEnterpriseCustomerData(_ context.Context, _ uuid.UUID) (*lms.EnterpriseCustomer, error) {
	if s.customerErr != nil {
		return nil, s.customerErr
	}
	return s.customer, nil
}

type stubAssignments struct {
	assignments []*assignment.Assignment
}

func (s *stubAssignments) GetAssignment(_ context.Context, configUUID uuid.UUID, lmsUserID int64, contentKey string) (*assignment.Assignment, error) {
	for _, a := range s.assignments {
		if a.AssignmentConfigurationUUID == configUUID && a.LmsUserID != nil && *a.LmsUserID == lmsUserID && a.MatchesContent(contentKey) {
			return a, nil
		}
	}
	return nil, nil
}

func (s *stubAssignments) AllocatedQuantity(_ context.Context, configUUID uuid.UUID) (int64, error) {
	var total int64
	for _, a := range s.assignments {
		if a.AssignmentConfigurationUUID == configUUID && a.IsAllocated() {
			total += a.ContentQuantity
		}
	}
	return total, nil
}

type fixture struct {
	enterpriseUUID uuid.UUID
	subsidyUUID    uuid.UUID
	catalogUUID    uuid.UUID
	now            time.Time

	policies    *stubPolicies
	catalog     *stubCatalog
	ledger      *stubLedger
	identity    *stubIdentity
	assignments *stubAssignments
	svc         *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		enterpriseUUID: uuid.New(),
		subsidyUUID:    uuid.New(),
		catalogUUID:    uuid.New(),
		now:            time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	price := testPrice
	f.policies = &stubPolicies{}
	f.catalog = &stubCatalog{
		metadata: map[string]*catalog.ContentMetadata{
			testContentKey: {ContentKey: testContentKey, ContentPrice: &price},
		},
		excluded: map[uuid.UUID]bool{},
	}
	f.ledger = &stubLedger{
		subsidies: map[uuid.UUID]*subsidy.Subsidy{
			f.subsidyUUID: {UUID: f.subsidyUUID, CurrentBalance: 1000000, TotalDeposits: 1000000, IsActive: true},
		},
		transactions: map[uuid.UUID][]subsidy.Transaction{},
	}
	f.identity = &stubIdentity{
		users: map[int64]*lms.EnterpriseUser{
			testLearner: {LmsUserID: testLearner, EnterpriseCustomerUUID: f.enterpriseUUID, Active: true},
		},
		customer: &lms.EnterpriseCustomer{UUID: f.enterpriseUUID, ContactEmail: "admin@example.com"},
	}
	f.assignments = &stubAssignments{}

	f.svc = NewService(Deps{
		Policies:    f.policies,
		Catalog:     f.catalog,
		Ledger:      f.ledger,
		Identity:    f.identity,
		Assignments: f.assignments,
	})
	f.svc.now = func() time.Time { return f.now }
	return f
}

func (f *fixture) addPolicy(typ policy.Type, opts ...func(*policy.Policy)) *policy.Policy {
	limit := int64(1000000)
	p := &policy.Policy{
		UUID:                   uuid.New(),
		PolicyType:             typ,
		EnterpriseCustomerUUID: f.enterpriseUUID,
		CatalogUUID:            f.catalogUUID,
		SubsidyUUID:            f.subsidyUUID,
		AccessMethod:           policy.AccessMethodDirect,
		Active:                 true,
		SpendLimit:             &limit,
		Created:                f.now.Add(time.Duration(len(f.policies.policies)) * time.Minute),
	}
	if typ == policy.TypeAssignedLearnerCredit {
		configUUID := uuid.New()
		p.AccessMethod = policy.AccessMethodAssigned
		p.AssignmentConfigurationUUID = &configUUID
	}
	for _, opt := range opts {
		opt(p)
	}
	f.policies.policies = append(f.policies.policies, p)
	return p
}

func (f *fixture) addTransaction(p *policy.Policy, state subsidy.TransactionState, quantity int64, opts ...func(*subsidy.Transaction)) subsidy.Transaction {
	existing := f.ledger.transactions[p.SubsidyUUID]
	tx := subsidy.Transaction{
		UUID:                    uuid.New(),
		State:                   state,
		LmsUserID:               testLearner,
		ContentKey:              testContentKey,
		Quantity:                quantity,
		SubsidyAccessPolicyUUID: p.UUID,
		Created:                 f.now.Add(-time.Hour + time.Duration(len(existing))*time.Minute),
	}
	for _, opt := range opts {
		opt(&tx)
	}
	f.ledger.transactions[p.SubsidyUUID] = append(existing, tx)
	return tx
}

func reversed(tx *subsidy.Transaction) {
	tx.Reversal = &subsidy.Reversal{UUID: uuid.New(), State: subsidy.StateCommitted}
}

func (f *fixture) evaluate(t *testing.T, keys ...string) []Result {
	t.Helper()
	if len(keys) == 0 {
		keys = []string{testContentKey}
	}
	results, err := f.svc.Evaluate(context.Background(), EvaluateRequest{
		EnterpriseCustomerUUID: f.enterpriseUUID,
		LmsUserID:              testLearner,
		ContentKeys:            keys,
	})
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	return results
}

func int64Ptr(v int64) *int64 { return &v }

func intPtr(v int) *int { return &v }
