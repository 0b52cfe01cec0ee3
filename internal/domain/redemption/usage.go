package redemption

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/domain/assignment"
	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/lms"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

// Aggregates is the usage of one policy, in USD cents and enrollments.
type Aggregates struct {
	AmountRedeemed  int64
	AmountAllocated int64
	SpendAvailable  int64
}

// LearnerUsage is one learner's usage of one policy.
type LearnerUsage struct {
	AmountSpent     int64
	EnrollmentCount int
}

type transactionsKey struct {
	subsidyUUID uuid.UUID
	policyUUID  uuid.UUID
	lmsUserID   int64
}

type canRedeemKey struct {
	subsidyUUID uuid.UUID
	lmsUserID   int64
	contentKey  string
}

type assignmentKey struct {
	configurationUUID uuid.UUID
	lmsUserID         int64
	contentKey        string
}

// usageCache memoises collaborator reads for the lifetime of one engine call.
// It is not safe for concurrent use and must not outlive the call.
type usageCache struct {
	ledger      Ledger
	identity    Identity
	assignments Assignments

	subsidies        map[uuid.UUID]*subsidy.Subsidy
	transactions     map[transactionsKey][]subsidy.Transaction
	canRedeem        map[canRedeemKey]*subsidy.CanRedeemResult
	allocated        map[uuid.UUID]int64
	assignmentsByKey map[assignmentKey]*assignment.Assignment
	members          map[uuid.UUID]*lms.EnterpriseUser
	customers        map[uuid.UUID][]AdminContact
}

func newUsageCache(ledger Ledger, identity Identity, assignments Assignments) *usageCache {
	return &usageCache{
		ledger:           ledger,
		identity:         identity,
		assignments:      assignments,
		subsidies:        map[uuid.UUID]*subsidy.Subsidy{},
		transactions:     map[transactionsKey][]subsidy.Transaction{},
		canRedeem:        map[canRedeemKey]*subsidy.CanRedeemResult{},
		allocated:        map[uuid.UUID]int64{},
		assignmentsByKey: map[assignmentKey]*assignment.Assignment{},
		members:          map[uuid.UUID]*lms.EnterpriseUser{},
		customers:        map[uuid.UUID][]AdminContact{},
	}
}

func (c *usageCache) subsidy(ctx context.Context, subsidyUUID uuid.UUID) (*subsidy.Subsidy, error) {
	if s, ok := c.subsidies[subsidyUUID]; ok {
		return s, nil
	}
	s, err := c.ledger.RetrieveSubsidy(ctx, subsidyUUID)
	if err != nil {
		return nil, err
	}
	c.subsidies[subsidyUUID] = s
	return s, nil
}

// transactionsFor lists the ledger transactions of a subsidy, narrowed by policy and learner
// when they are set.
func (c *usageCache) transactionsFor(ctx context.Context, subsidyUUID, policyUUID uuid.UUID, lmsUserID int64) ([]subsidy.Transaction, error) {
	key := transactionsKey{subsidyUUID: subsidyUUID, policyUUID: policyUUID, lmsUserID: lmsUserID}
	if txs, ok := c.transactions[key]; ok {
		return txs, nil
	}
	list, err := c.ledger.ListTransactions(ctx, subsidy.TransactionFilter{
		SubsidyUUID:             subsidyUUID,
		SubsidyAccessPolicyUUID: policyUUID,
		LmsUserID:               lmsUserID,
	})
	if err != nil {
		return nil, err
	}
	c.transactions[key] = list.Results
	return list.Results, nil
}

func (c *usageCache) ledgerCanRedeem(ctx context.Context, subsidyUUID uuid.UUID, lmsUserID int64, contentKey string) (*subsidy.CanRedeemResult, error) {
	key := canRedeemKey{subsidyUUID: subsidyUUID, lmsUserID: lmsUserID, contentKey: contentKey}
	if r, ok := c.canRedeem[key]; ok {
		return r, nil
	}
	r, err := c.ledger.CanRedeem(ctx, subsidyUUID, lmsUserID, contentKey)
	if err != nil {
		return nil, err
	}
	c.canRedeem[key] = r
	return r, nil
}

// allocatedQuantity returns the cents earmarked by allocated assignments, as a positive amount.
func (c *usageCache) allocatedQuantity(ctx context.Context, p *policy.Policy) (int64, error) {
	if !p.IsAssignable() || p.AssignmentConfigurationUUID == nil {
		return 0, nil
	}
	configUUID := *p.AssignmentConfigurationUUID
	if q, ok := c.allocated[configUUID]; ok {
		return q, nil
	}
	q, err := c.assignments.AllocatedQuantity(ctx, configUUID)
	if err != nil {
		return 0, err
	}
	c.allocated[configUUID] = -q
	return -q, nil
}

func (c *usageCache) assignment(ctx context.Context, p *policy.Policy, lmsUserID int64, contentKey string) (*assignment.Assignment, error) {
	if p.AssignmentConfigurationUUID == nil {
		return nil, nil
	}
	key := assignmentKey{configurationUUID: *p.AssignmentConfigurationUUID, lmsUserID: lmsUserID, contentKey: contentKey}
	if a, ok := c.assignmentsByKey[key]; ok {
		return a, nil
	}
	a, err := c.assignments.GetAssignment(ctx, key.configurationUUID, lmsUserID, contentKey)
	if err != nil {
		return nil, err
	}
	c.assignmentsByKey[key] = a
	return a, nil
}

// enterpriseUser returns nil when the learner is not linked to the enterprise.
func (c *usageCache) enterpriseUser(ctx context.Context, enterpriseUUID uuid.UUID, lmsUserID int64) (*lms.EnterpriseUser, error) {
	if u, ok := c.members[enterpriseUUID]; ok {
		return u, nil
	}
	u, err := c.identity.GetEnterpriseUser(ctx, enterpriseUUID, lmsUserID)
	if err != nil {
		return nil, err
	}
	c.members[enterpriseUUID] = u
	return u, nil
}

// adminContacts never fails; a missing customer record yields no contacts.
func (c *usageCache) adminContacts(ctx context.Context, enterpriseUUID uuid.UUID) []AdminContact {
	if contacts, ok := c.customers[enterpriseUUID]; ok {
		return contacts
	}
	customer, err := c.identity.GetEnterpriseCustomerData(ctx, enterpriseUUID)
	if err != nil {
		logger.FromContext(ctx).Warn().Err(err).
			Str("enterprise_customer_uuid", enterpriseUUID.String()).
			Msg("enterprise admin contacts unavailable")
	}
	contacts := adminContacts(customer)
	c.customers[enterpriseUUID] = contacts
	return contacts
}

// aggregates computes policy-wide usage. Reversed and failed transactions are ignored.
// released is subtracted from the allocated amount before SpendAvailable is derived.
func (c *usageCache) aggregates(ctx context.Context, p *policy.Policy, released int64) (Aggregates, error) {
	sub, err := c.subsidy(ctx, p.SubsidyUUID)
	if err != nil {
		return Aggregates{}, fmt.Errorf("retrieve subsidy: %w", err)
	}
	txs, err := c.transactionsFor(ctx, p.SubsidyUUID, p.UUID, 0)
	if err != nil {
		return Aggregates{}, fmt.Errorf("list policy transactions: %w", err)
	}
	allocated, err := c.allocatedQuantity(ctx, p)
	if err != nil {
		return Aggregates{}, fmt.Errorf("allocated quantity: %w", err)
	}

	agg := Aggregates{AmountRedeemed: redeemedAmount(txs), AmountAllocated: allocated}
	agg.SpendAvailable = spendAvailable(sub.CurrentBalance, p.SpendLimit, agg.AmountRedeemed, allocated-released)
	return agg, nil
}

func (c *usageCache) learnerUsage(ctx context.Context, p *policy.Policy, lmsUserID int64) (LearnerUsage, error) {
	txs, err := c.transactionsFor(ctx, p.SubsidyUUID, p.UUID, lmsUserID)
	if err != nil {
		return LearnerUsage{}, fmt.Errorf("list learner transactions: %w", err)
	}
	usage := LearnerUsage{AmountSpent: redeemedAmount(txs)}
	for _, tx := range txs {
		if tx.CountsTowardSpend() {
			usage.EnrollmentCount++
		}
	}
	return usage, nil
}

// redeemedAmount returns spent cents as a positive number.
func redeemedAmount(txs []subsidy.Transaction) int64 {
	var total int64
	for _, tx := range txs {
		if tx.CountsTowardSpend() {
			total -= tx.Quantity
		}
	}
	return total
}

func spendAvailable(balance int64, spendLimit *int64, redeemed, allocated int64) int64 {
	available := balance
	if remaining, limited := limitAvailable(spendLimit, redeemed, 0); limited && remaining < available {
		available = remaining
	}
	available -= allocated
	if available < 0 {
		return 0
	}
	return available
}

// limitAvailable is what the policy's own spend limit still allows, ignoring the
// subsidy balance. limited is false when the policy has no spend limit.
func limitAvailable(spendLimit *int64, redeemed, allocated int64) (remaining int64, limited bool) {
	if spendLimit == nil {
		return 0, false
	}
	return *spendLimit - redeemed - allocated, true
}
