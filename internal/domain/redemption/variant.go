package redemption

import (
	"context"

	"github.com/enterprise-access/access-api/internal/domain/assignment"
	"github.com/enterprise-access/access-api/internal/domain/policy"
)

// policyCheck is the input to one policy's redeemability check.
type policyCheck struct {
	policy     *policy.Policy
	lmsUserID  int64
	contentKey string
	price      int64
	usage      *usageCache
}

// variant holds the rules specific to a policy type.
type variant interface {
	// spendCredit is added to the policy's available spend for this learner.
	spendCredit(ctx context.Context, c policyCheck) (int64, error)
	check(ctx context.Context, c policyCheck) (ReasonCode, error)
}

func variantFor(p *policy.Policy) variant {
	switch p.PolicyType {
	case policy.TypePerLearnerEnrollmentCap:
		return perLearnerEnrollmentCap{}
	case policy.TypePerLearnerSpendCap:
		return perLearnerSpendCap{}
	case policy.TypeAssignedLearnerCredit:
		return assignedCredit{}
	}
	return cappedEnrollment{}
}

// cappedEnrollment is bounded only by the policy spend limit.
type cappedEnrollment struct{}

func (cappedEnrollment) spendCredit(context.Context, policyCheck) (int64, error) { return 0, nil }

func (cappedEnrollment) check(context.Context, policyCheck) (ReasonCode, error) { return "", nil }

type perLearnerEnrollmentCap struct{}

func (perLearnerEnrollmentCap) spendCredit(context.Context, policyCheck) (int64, error) {
	return 0, nil
}

func (perLearnerEnrollmentCap) check(ctx context.Context, c policyCheck) (ReasonCode, error) {
	limit := c.policy.PerLearnerEnrollmentLimit
	if limit == nil {
		return "", nil
	}
	usage, err := c.usage.learnerUsage(ctx, c.policy, c.lmsUserID)
	if err != nil {
		return "", err
	}
	if usage.EnrollmentCount >= *limit {
		return ReasonLearnerMaxEnrollmentsReached, nil
	}
	return "", nil
}

type perLearnerSpendCap struct{}

func (perLearnerSpendCap) spendCredit(context.Context, policyCheck) (int64, error) { return 0, nil }

func (perLearnerSpendCap) check(ctx context.Context, c policyCheck) (ReasonCode, error) {
	limit := c.policy.PerLearnerSpendLimit
	if limit == nil {
		return "", nil
	}
	usage, err := c.usage.learnerUsage(ctx, c.policy, c.lmsUserID)
	if err != nil {
		return "", err
	}
	if usage.AmountSpent+c.price > *limit {
		return ReasonLearnerMaxSpendReached, nil
	}
	return "", nil
}

// assignedCredit only lets learners redeem content earmarked for them.
type assignedCredit struct{}

// spendCredit releases the learner's own allocation, which is already counted against the policy.
func (assignedCredit) spendCredit(ctx context.Context, c policyCheck) (int64, error) {
	a, err := c.usage.assignment(ctx, c.policy, c.lmsUserID, c.contentKey)
	if err != nil || a == nil || !a.IsAllocated() {
		return 0, err
	}
	return -a.ContentQuantity, nil
}

func (assignedCredit) check(ctx context.Context, c policyCheck) (ReasonCode, error) {
	a, err := c.usage.assignment(ctx, c.policy, c.lmsUserID, c.contentKey)
	if err != nil {
		return "", err
	}
	if a == nil || !a.MatchesContent(c.contentKey) {
		return ReasonLearnerNotAssignedContent, nil
	}
	switch a.State {
	case assignment.StateAllocated:
		return "", nil
	case assignment.StateCancelled:
		return ReasonLearnerAssignmentCancelled, nil
	case assignment.StateErrored:
		return ReasonLearnerAssignmentFailed, nil
	}
	return ReasonLearnerNotAssignedContent, nil
}
