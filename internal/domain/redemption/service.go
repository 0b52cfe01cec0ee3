package redemption

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/domain/assignment"
	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/catalog"
	"github.com/enterprise-access/access-api/internal/pkg/lms"
	"github.com/enterprise-access/access-api/internal/pkg/metrics"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

// Policies loads subsidy access policies.
type Policies interface {
	GetByUUID(ctx context.Context, id uuid.UUID) (*policy.Policy, error)
	ListActiveForEnterprise(ctx context.Context, enterpriseCustomerUUID uuid.UUID) ([]*policy.Policy, error)
}

// Catalog answers content membership and price questions.
type Catalog interface {
	ContainsContentKey(ctx context.Context, catalogUUID uuid.UUID, contentKey string) (bool, error)
	GetContentMetadata(ctx context.Context, contentKey string) (*catalog.ContentMetadata, error)
}

// Ledger is the subsidy transaction service.
type Ledger interface {
	RetrieveSubsidy(ctx context.Context, subsidyUUID uuid.UUID) (*subsidy.Subsidy, error)
	CanRedeem(ctx context.Context, subsidyUUID uuid.UUID, lmsUserID int64, contentKey string) (*subsidy.CanRedeemResult, error)
	ListTransactions(ctx context.Context, filter subsidy.TransactionFilter) (*subsidy.TransactionList, error)
	CreateTransaction(ctx context.Context, req subsidy.CreateTransactionRequest) (*subsidy.Transaction, error)
}

// Identity resolves enterprise membership and admin contacts.
type Identity interface {
	GetEnterpriseUser(ctx context.Context, enterpriseCustomerUUID uuid.UUID, lmsUserID int64) (*lms.EnterpriseUser, error)
	GetEnterpriseCustomerData(ctx context.Context, enterpriseCustomerUUID uuid.UUID) (*lms.EnterpriseCustomer, error)
}

// Assignments reads learner content assignments.
type Assignments interface {
	GetAssignment(ctx context.Context, configurationUUID uuid.UUID, lmsUserID int64, contentKey string) (*assignment.Assignment, error)
	AllocatedQuantity(ctx context.Context, configurationUUID uuid.UUID) (int64, error)
}

// Deps are the collaborators of Service. Metrics may be nil.
type Deps struct {
	Policies    Policies
	Catalog     Catalog
	Ledger      Ledger
	Identity    Identity
	Assignments Assignments
	Metrics     *metrics.Metrics
}

// Service decides redeemability and performs redemptions.
type Service struct {
	policies    Policies
	catalog     Catalog
	ledger      Ledger
	identity    Identity
	assignments Assignments
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewService(deps Deps) *Service {
	return &Service{
		policies:    deps.Policies,
		catalog:     deps.Catalog,
		ledger:      deps.Ledger,
		identity:    deps.Identity,
		assignments: deps.Assignments,
		metrics:     deps.Metrics,
		now:         time.Now,
	}
}

func (s *Service) newUsageCache() *usageCache {
	return newUsageCache(s.ledger, s.identity, s.assignments)
}

// ResolveLearner picks the learner to evaluate. Only staff callers may act for someone else.
func ResolveLearner(callerLmsUserID int64, callerIsStaff bool, requested *int64) int64 {
	if callerIsStaff && requested != nil && *requested != 0 {
		return *requested
	}
	return callerLmsUserID
}
