package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
)

// CreditsAvailable is a policy the learner can still spend from.
type CreditsAvailable struct {
	Policy                  *policy.Policy
	RemainingBalancePerUser *int64
	RemainingBalance        int64
	SubsidyExpirationDate   *time.Time
}

// CreditsAvailable lists the direct-access policies a learner may still draw on.
// Assigned policies are left out since their credit is tied to specific content.
func (s *Service) CreditsAvailable(ctx context.Context, enterpriseUUID uuid.UUID, lmsUserID int64) ([]CreditsAvailable, error) {
	ctx = logger.WithLearner(ctx, enterpriseUUID.String(), lmsUserID)

	policies, err := s.policies.ListActiveForEnterprise(ctx, enterpriseUUID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	set := NewResolutionSet(policies, nil)
	usage := s.newUsageCache()
	now := s.now()

	member, err := usage.enterpriseUser(ctx, enterpriseUUID, lmsUserID)
	if err != nil {
		return nil, fmt.Errorf("enterprise membership: %w", err)
	}

	out := []CreditsAvailable{}
	if member == nil {
		return out, nil
	}
	for _, p := range set.Policies() {
		if p.IsAssignable() {
			continue
		}
		if p.HasGroupRestriction() && !member.InAnyGroup(p.GroupUUIDs) {
			continue
		}
		sub, err := usage.subsidy(ctx, p.SubsidyUUID)
		if err != nil {
			return nil, err
		}
		if !sub.IsCurrentlyActive(now) || sub.CurrentBalance <= 0 {
			continue
		}
		agg, err := usage.aggregates(ctx, p, 0)
		if err != nil {
			return nil, err
		}
		if agg.SpendAvailable <= 0 {
			continue
		}

		credit := CreditsAvailable{
			Policy:                p,
			RemainingBalance:      agg.SpendAvailable,
			SubsidyExpirationDate: sub.ExpirationDatetime,
		}
		exhausted, err := s.learnerCapExhausted(ctx, usage, p, lmsUserID, &credit)
		if err != nil {
			return nil, err
		}
		if exhausted {
			continue
		}
		out = append(out, credit)
	}
	return out, nil
}

func (s *Service) learnerCapExhausted(ctx context.Context, usage *usageCache, p *policy.Policy, lmsUserID int64, credit *CreditsAvailable) (bool, error) {
	switch p.PolicyType {
	case policy.TypePerLearnerSpendCap:
		if p.PerLearnerSpendLimit == nil {
			return false, nil
		}
		learner, err := usage.learnerUsage(ctx, p, lmsUserID)
		if err != nil {
			return false, err
		}
		remaining := *p.PerLearnerSpendLimit - learner.AmountSpent
		credit.RemainingBalancePerUser = &remaining
		return remaining <= 0, nil
	case policy.TypePerLearnerEnrollmentCap:
		if p.PerLearnerEnrollmentLimit == nil {
			return false, nil
		}
		learner, err := usage.learnerUsage(ctx, p, lmsUserID)
		if err != nil {
			return false, err
		}
		return learner.EnrollmentCount >= *p.PerLearnerEnrollmentLimit, nil
	}
	return false, nil
}
