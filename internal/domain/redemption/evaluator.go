package redemption

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/enterprise-access/access-api/internal/domain/policy"
	"github.com/enterprise-access/access-api/internal/pkg/catalog"
	"github.com/enterprise-access/access-api/internal/pkg/logger"
	"github.com/enterprise-access/access-api/internal/pkg/subsidy"
)

// EvaluateRequest asks whether a learner can redeem each content key.
type EvaluateRequest struct {
	EnterpriseCustomerUUID uuid.UUID
	LmsUserID              int64
	ContentKeys            []string
	PolicyUUID             *uuid.UUID
}

// ListPrice is the content price in dollars and cents.
type ListPrice struct {
	USD      decimal.Decimal
	USDCents int64
}

func newListPrice(cents int64) *ListPrice {
	return &ListPrice{USD: decimal.New(cents, -2), USDCents: cents}
}

// Result is the redeemability decision for one content key.
type Result struct {
	ContentKey              string
	ListPrice               *ListPrice
	Redemptions             []subsidy.Transaction
	HasSuccessfulRedemption bool
	RedeemablePolicy        *policy.Policy
	CanRedeem               bool
	Reasons                 []Reason
	DisplayReason           *Reason
}

// Evaluate decides redeemability for every requested content key, in request order.
// Soft refusals are reported as reasons; an error aborts the whole batch.
func (s *Service) Evaluate(ctx context.Context, req EvaluateRequest) ([]Result, error) {
	ctx = logger.WithLearner(ctx, req.EnterpriseCustomerUUID.String(), req.LmsUserID)

	policies, err := s.policies.ListActiveForEnterprise(ctx, req.EnterpriseCustomerUUID)
	if err != nil {
		return nil, fmt.Errorf("list policies: %w", err)
	}
	enterprise := NewResolutionSet(policies, nil)
	set := enterprise
	if req.PolicyUUID != nil {
		set = NewResolutionSet(policies, req.PolicyUUID)
	}

	usage := s.newUsageCache()
	results := make([]Result, 0, len(req.ContentKeys))
	for _, contentKey := range req.ContentKeys {
		result, err := s.evaluateContent(ctx, usage, enterprise, set, req, contentKey)
		if err != nil {
			s.metrics.ObserveEvaluation("error")
			return nil, err
		}
		s.observeResult(result)
		results = append(results, *result)
	}
	return results, nil
}

func (s *Service) evaluateContent(ctx context.Context, usage *usageCache, enterprise, set *ResolutionSet, req EvaluateRequest, contentKey string) (*Result, error) {
	result := &Result{ContentKey: contentKey, Reasons: []Reason{}}

	metadata, err := s.catalog.GetContentMetadata(ctx, contentKey)
	if err != nil && !errors.Is(err, catalog.ErrContentNotFound) {
		return nil, fmt.Errorf("content metadata %s: %w", contentKey, err)
	}

	result.Redemptions, err = learnerRedemptions(ctx, usage, enterprise, req.LmsUserID, contentKey)
	if err != nil {
		return nil, err
	}
	for _, tx := range result.Redemptions {
		if tx.IsSuccessfulRedemption() {
			result.HasSuccessfulRedemption = true
			break
		}
	}

	if metadata == nil {
		s.refuse(ctx, usage, req, result, notInCatalog(set))
		return result, nil
	}
	if metadata.ContentPrice == nil {
		return nil, &PriceError{ContentKey: contentKey}
	}
	result.ListPrice = newListPrice(*metadata.ContentPrice)

	if result.HasSuccessfulRedemption {
		return result, nil
	}

	candidates, err := set.Candidates(ctx, s.catalog, contentKey)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.refuse(ctx, usage, req, result, notInCatalog(set))
		return result, nil
	}

	var failures []failure
	now := s.now()
	for _, p := range candidates {
		code, err := checkPolicy(ctx, usage, p, req.LmsUserID, metadata, now)
		if err != nil {
			return nil, err
		}
		if code == "" {
			result.CanRedeem = true
			result.RedeemablePolicy = p
			return result, nil
		}
		failures = append(failures, failure{code: code, policyUUID: p.UUID})
	}

	s.refuse(ctx, usage, req, result, failures)
	return result, nil
}

func (s *Service) refuse(ctx context.Context, usage *usageCache, req EvaluateRequest, result *Result, failures []failure) {
	result.Reasons = buildReasons(failures, usage.adminContacts(ctx, req.EnterpriseCustomerUUID))
	if len(result.Reasons) > 0 {
		display := result.Reasons[0]
		result.DisplayReason = &display
	}
}

func notInCatalog(set *ResolutionSet) []failure {
	ids := set.PolicyUUIDs()
	if len(ids) == 0 {
		return []failure{{code: ReasonContentNotInCatalog}}
	}
	failures := make([]failure, len(ids))
	for i, id := range ids {
		failures[i] = failure{code: ReasonContentNotInCatalog, policyUUID: id}
	}
	return failures
}

// learnerRedemptions lists the learner's transactions for contentKey made under any of the
// enterprise's policies, oldest first.
func learnerRedemptions(ctx context.Context, usage *usageCache, enterprise *ResolutionSet, lmsUserID int64, contentKey string) ([]subsidy.Transaction, error) {
	redemptions := []subsidy.Transaction{}
	for _, subsidyUUID := range enterprise.SubsidyUUIDs() {
		txs, err := usage.transactionsFor(ctx, subsidyUUID, uuid.Nil, lmsUserID)
		if err != nil {
			return nil, fmt.Errorf("list learner transactions: %w", err)
		}
		for _, tx := range txs {
			if tx.ContentKey == contentKey && enterprise.Contains(tx.SubsidyAccessPolicyUUID) {
				redemptions = append(redemptions, tx)
			}
		}
	}
	return sortedTransactions(redemptions), nil
}

func (s *Service) observeResult(result *Result) {
	switch {
	case result.CanRedeem:
		s.metrics.ObserveEvaluation("redeemable")
	case result.HasSuccessfulRedemption:
		s.metrics.ObserveEvaluation("already_redeemed")
	default:
		s.metrics.ObserveEvaluation("not_redeemable")
	}
	for _, r := range result.Reasons {
		s.metrics.ObserveReason(string(r.Code))
	}
}
