package redemption

import (
	"context"
	"fmt"
	"time"

	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/catalog"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
)

// checkPolicy runs the common rules, then the variant rules, then the enrollment deadline.
// An empty code means the learner may redeem contentKey under p.
func checkPolicy(ctx context.Context, usage *usageCache, p *policy.Policy, lmsUserID int64, metadata *catalog.ContentMetadata, now time.Time) (ReasonCode, error) {
	code, err := evaluatePolicy(ctx, usage, p, lmsUserID, metadata, now)
	if err != nil {
		return "", err
	}
	if code != "" {
		logger.FromContext(ctx).Debug().
			Str("policy_uuid", p.UUID.String()).
			Str("content_key", metadata.ContentKey).
			Str("reason", string(code)).
			Msg("policy not redeemable")
	}
	return code, nil
}

func evaluatePolicy(ctx context.Context, usage *usageCache, p *policy.Policy, lmsUserID int64, metadata *catalog.ContentMetadata, now time.Time) (ReasonCode, error) {
	contentKey := metadata.ContentKey
	price := *metadata.ContentPrice

	sub, err := usage.subsidy(ctx, p.SubsidyUUID)
	if err != nil {
		return "", err
	}
	verdict, err := usage.ledgerCanRedeem(ctx, p.SubsidyUUID, lmsUserID, contentKey)
	if err != nil {
		return "", err
	}
	if !verdict.Active || !sub.IsCurrentlyActive(now) {
		return ReasonSubsidyExpired, nil
	}

	member, err := usage.enterpriseUser(ctx, p.EnterpriseCustomerUUID, lmsUserID)
	if err != nil {
		return "", fmt.Errorf("enterprise membership: %w", err)
	}
	if member == nil {
		return ReasonLearnerNotInEnterprise, nil
	}
	if p.HasGroupRestriction() && !member.InAnyGroup(p.GroupUUIDs) {
		return ReasonLearnerNotInEnterpriseGroup, nil
	}

	c := policyCheck{policy: p, lmsUserID: lmsUserID, contentKey: contentKey, price: price, usage: usage}
	v := variantFor(p)

	credit, err := v.spendCredit(ctx, c)
	if err != nil {
		return "", err
	}
	agg, err := usage.aggregates(ctx, p, credit)
	if err != nil {
		return "", err
	}
	if price > agg.SpendAvailable {
		remaining, limited := limitAvailable(p.SpendLimit, agg.AmountRedeemed, agg.AmountAllocated-credit)
		if limited && price > remaining {
			return ReasonPolicySpendLimitReached, nil
		}
		return ReasonNotEnoughValueInSubsidy, nil
	}
	if !verdict.CanRedeem {
		return ReasonNotEnoughValueInSubsidy, nil
	}

	code, err := v.check(ctx, c)
	if err != nil || code != "" {
		return code, err
	}

	if metadata.EnrollByDate != nil && now.After(*metadata.EnrollByDate) && !p.IsLateRedemptionAllowed(now) {
		return ReasonBeyondEnrollmentDeadline, nil
	}
	return "", nil
}
